package database

import (
	"context"

	"groupchat-gateway/internal/platform/logger"
	"groupchat-gateway/internal/storage/database/chatstore"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Repositories 倉儲集合.
type Repositories struct {
	Messages  *chatstore.MessageStore
	Reactions *chatstore.ReactionStore
	Groups    *chatstore.GroupStore
	Users     *chatstore.UserStore
	Contents  *chatstore.ContentStore
	Orphans   *chatstore.OrphanStore
}

// NewRepositories 創建倉儲集合並建立索引.
func NewRepositories(ctx context.Context, db *mongo.Database) *Repositories {
	// 索引失敗只記錄，不中斷服務啟動
	if err := chatstore.CreateIndexes(ctx, db); err != nil {
		logger.Error(ctx, "創建索引失敗", logger.WithError(err))
	}

	return &Repositories{
		Messages:  chatstore.NewMessageStore(db),
		Reactions: chatstore.NewReactionStore(db),
		Groups:    chatstore.NewGroupStore(db),
		Users:     chatstore.NewUserStore(db),
		Contents:  chatstore.NewContentStore(db),
		Orphans:   chatstore.NewOrphanStore(db),
	}
}

// OrphanReferences 孤兒引用修復需要的用戶與引用存儲.
type OrphanReferences struct {
	*chatstore.UserStore
	*chatstore.OrphanStore
}

// OrphanReferences 組合用戶存儲與引用存儲.
func (r *Repositories) OrphanReferences() OrphanReferences {
	return OrphanReferences{UserStore: r.Users, OrphanStore: r.Orphans}
}
