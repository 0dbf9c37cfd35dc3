package chatstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CreateIndexes 創建本服務擁有的集合索引；groups、users 等外部集合由各自的服務管理
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	messageIndexes := []mongo.IndexModel{
		// 1. 群組 + 創建時間（消息列表、最後消息聚合）
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("group_time_idx"),
		},
		// 2. 作者（孤兒引用檢查）
		{
			Keys:    bson.D{{Key: "author_id", Value: 1}},
			Options: options.Index().SetName("author_idx").SetSparse(true),
		},
		// 3. 分享內容作者
		{
			Keys:    bson.D{{Key: "shared.author_id", Value: 1}},
			Options: options.Index().SetName("shared_author_idx").SetSparse(true),
		},
	}
	if _, err := db.Collection(MessagesCollection).Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("創建消息索引失敗: %w", err)
	}

	reactionIndexes := []mongo.IndexModel{
		// 每個用戶在每則消息上只有一個表情
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetName("message_user_unique_idx").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}},
			Options: options.Index().SetName("group_idx"),
		},
	}
	if _, err := db.Collection(ReactionsCollection).Indexes().CreateMany(ctx, reactionIndexes); err != nil {
		return fmt.Errorf("創建表情索引失敗: %w", err)
	}

	return nil
}

// GetIndexStats 獲取索引資訊
func GetIndexStats(ctx context.Context, db *mongo.Database) (map[string][]bson.M, error) {
	stats := make(map[string][]bson.M)
	for _, name := range []string{MessagesCollection, ReactionsCollection} {
		cursor, err := db.Collection(name).Indexes().List(ctx)
		if err != nil {
			return nil, err
		}
		var indexes []bson.M
		if err := cursor.All(ctx, &indexes); err != nil {
			return nil, err
		}
		stats[name] = indexes
	}
	return stats, nil
}
