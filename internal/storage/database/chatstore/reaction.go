package chatstore

import (
	"context"
	"errors"
	"time"

	"groupchat-gateway/internal/chat"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type reactionDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	MessageID bson.ObjectID `bson:"message_id"`
	UserID    bson.ObjectID `bson:"user_id"`
	GroupID   bson.ObjectID `bson:"group_id"`
	Emoji     string        `bson:"emoji"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

func (d *reactionDoc) toDomain() chat.Reaction {
	return chat.Reaction{
		MessageID: d.MessageID.Hex(),
		UserID:    d.UserID.Hex(),
		GroupID:   d.GroupID.Hex(),
		Emoji:     d.Emoji,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// ReactionStore 表情回應存儲，(message_id, user_id) 有唯一索引
type ReactionStore struct {
	collection *mongo.Collection
}

// NewReactionStore 創建表情回應存儲
func NewReactionStore(db *mongo.Database) *ReactionStore {
	return &ReactionStore{
		collection: db.Collection(ReactionsCollection),
	}
}

// Upsert 原子替換用戶在消息上的表情，返回替換前的記錄
func (s *ReactionStore) Upsert(ctx context.Context, r chat.Reaction) (*chat.Reaction, error) {
	messageID, err := objectID(r.MessageID)
	if err != nil {
		return nil, err
	}
	userID, err := objectID(r.UserID)
	if err != nil {
		return nil, err
	}
	groupID, err := objectID(r.GroupID)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"message_id": messageID, "user_id": userID}
	update := bson.M{
		"$set": bson.M{
			"emoji":      r.Emoji,
			"group_id":   groupID,
			"updated_at": r.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": r.CreatedAt},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	prev, err := s.findOneAndUpsert(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// 兩個並發的首次寫入，其中一個因唯一索引失敗，重試時會命中已存在的記錄
		prev, err = s.findOneAndUpsert(ctx, filter, update, opts)
	}
	return prev, err
}

func (s *ReactionStore) findOneAndUpsert(ctx context.Context, filter, update bson.M, opts *options.FindOneAndUpdateOptionsBuilder) (*chat.Reaction, error) {
	var doc reactionDoc
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	prev := doc.toDomain()
	return &prev, nil
}

// Remove 刪除指定表情
func (s *ReactionStore) Remove(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	mid, err := objectID(messageID)
	if err != nil {
		return false, nil
	}
	uid, err := objectID(userID)
	if err != nil {
		return false, nil
	}

	res, err := s.collection.DeleteOne(ctx, bson.M{
		"message_id": mid,
		"user_id":    uid,
		"emoji":      emoji,
	})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// ListByMessages 取得多則消息的表情回應
func (s *ReactionStore) ListByMessages(ctx context.Context, messageIDs []string) ([]chat.Reaction, error) {
	oids := objectIDs(messageIDs)
	if len(oids) == 0 {
		return []chat.Reaction{}, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"message_id": bson.M{"$in": oids}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []chat.Reaction
	for cursor.Next(ctx) {
		var doc reactionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, cursor.Err()
}
