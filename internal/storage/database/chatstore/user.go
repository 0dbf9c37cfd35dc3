package chatstore

import (
	"context"
	"time"

	"groupchat-gateway/internal/chat"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type userDoc struct {
	ID             bson.ObjectID `bson:"_id"`
	Username       string        `bson:"username"`
	FirstName      string        `bson:"first_name"`
	LastName       string        `bson:"last_name"`
	ProfilePicture string        `bson:"profile_picture,omitempty"`
	IsDeleted      bool          `bson:"is_deleted"`
}

func (d *userDoc) toDomain() *chat.User {
	return &chat.User{
		ID:             d.ID.Hex(),
		Username:       d.Username,
		FirstName:      d.FirstName,
		LastName:       d.LastName,
		ProfilePicture: d.ProfilePicture,
		IsDeleted:      d.IsDeleted,
	}
}

// 只讀取展示需要的欄位
var userProjection = bson.M{
	"username":        1,
	"first_name":      1,
	"last_name":       1,
	"profile_picture": 1,
	"is_deleted":      1,
}

// UserStore 用戶資料查詢（用戶由用戶服務管理）
type UserStore struct {
	collection *mongo.Collection
}

// NewUserStore 創建用戶存儲
func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{
		collection: db.Collection(UsersCollection),
	}
}

// GetByIDs 批次查詢用戶
func (s *UserStore) GetByIDs(ctx context.Context, ids []string) (map[string]*chat.User, error) {
	out := make(map[string]*chat.User, len(ids))
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return out, nil
	}

	opts := options.Find().SetProjection(userProjection)
	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": oids}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc userDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out[doc.ID.Hex()] = doc.toDomain()
	}
	return out, cursor.Err()
}

// EnsureSentinel 取得或建立固定的已刪除用戶記錄，返回其 ID
func (s *UserStore) EnsureSentinel(ctx context.Context, username string) (string, error) {
	now := time.Now().UTC()
	update := bson.M{"$setOnInsert": bson.M{
		"username":        username,
		"first_name":      chat.DeletedFirstName,
		"last_name":       chat.DeletedLastName,
		"profile_picture": nil,
		"is_deleted":      true,
		"created_at":      now,
		"updated_at":      now,
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.M{"_id": 1})

	var doc userDoc
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"username": username}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		err = s.collection.FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	}
	if err != nil {
		return "", err
	}
	return doc.ID.Hex(), nil
}
