package chatstore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// OrphanStore 找出並改寫指向不存在用戶的引用
type OrphanStore struct {
	db *mongo.Database
}

// NewOrphanStore 創建孤兒引用存儲
func NewOrphanStore(db *mongo.Database) *OrphanStore {
	return &OrphanStore{db: db}
}

// DanglingReferences 返回 collection.field 中找不到對應用戶的 ID，最多 limit 個
func (s *OrphanStore) DanglingReferences(ctx context.Context, collection, field, sentinelID string, limit int) ([]string, error) {
	if err := ValidateFieldPath(field); err != nil {
		return nil, err
	}
	sentinel, err := objectID(sentinelID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{field: bson.M{
			"$exists": true,
			"$type":   "objectId",
			"$ne":     sentinel,
		}}}},
		{{Key: "$group", Value: bson.M{"_id": "$" + field}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         UsersCollection,
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "user",
		}}},
		{{Key: "$match", Value: bson.M{"user": bson.M{"$size": 0}}}},
		{{Key: "$limit", Value: limit}},
	}

	cursor, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var row struct {
			ID bson.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID.Hex())
	}
	return ids, cursor.Err()
}

// Rewrite 將指定 ID 的引用改寫為固定用戶，重複執行不會有額外變更
func (s *OrphanStore) Rewrite(ctx context.Context, collection, field string, ids []string, sentinelID string) (int64, error) {
	if err := ValidateFieldPath(field); err != nil {
		return 0, err
	}
	sentinel, err := objectID(sentinelID)
	if err != nil {
		return 0, err
	}
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return 0, nil
	}

	res, err := s.db.Collection(collection).UpdateMany(ctx,
		bson.M{field: bson.M{"$in": oids}},
		bson.M{"$set": bson.M{field: sentinel}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
