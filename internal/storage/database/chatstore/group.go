package chatstore

import (
	"context"
	"errors"
	"time"

	"groupchat-gateway/internal/chat"
	"groupchat-gateway/internal/constants"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type hiddenDoc struct {
	UserID   bson.ObjectID `bson:"user_id"`
	HiddenAt time.Time     `bson:"hidden_at"`
}

type historyDoc struct {
	UserID    bson.ObjectID `bson:"user_id"`
	DeletedAt time.Time     `bson:"deleted_at"`
}

// groupDoc 群組文檔（群組生命週期由群組服務管理）
type groupDoc struct {
	ID                     bson.ObjectID   `bson:"_id"`
	Name                   string          `bson:"name"`
	Members                []bson.ObjectID `bson:"members"`
	AdminID                *bson.ObjectID  `bson:"admin_id,omitempty"`
	ModeratorIDs           []bson.ObjectID `bson:"moderator_ids,omitempty"`
	HiddenFor              []bson.ObjectID `bson:"hidden_for,omitempty"`
	HiddenForWithTimestamp []hiddenDoc     `bson:"hidden_for_with_timestamp,omitempty"`
	HistoryDeletedFor      []historyDoc    `bson:"history_deleted_for,omitempty"`
	CreatedAt              time.Time       `bson:"created_at"`
	UpdatedAt              time.Time       `bson:"updated_at"`
}

func (d *groupDoc) toDomain() *chat.Group {
	g := &chat.Group{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Members:      hexList(d.Members),
		AdminID:      hexOf(d.AdminID),
		ModeratorIDs: hexList(d.ModeratorIDs),
		HiddenFor:    hexList(d.HiddenFor),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	for _, h := range d.HiddenForWithTimestamp {
		g.HiddenForWithTimestamp = append(g.HiddenForWithTimestamp, chat.HiddenMarker{UserID: h.UserID.Hex(), HiddenAt: h.HiddenAt})
	}
	for _, h := range d.HistoryDeletedFor {
		g.HistoryDeletedFor = append(g.HistoryDeletedFor, chat.HistoryMarker{UserID: h.UserID.Hex(), DeletedAt: h.DeletedAt})
	}
	return g
}

// GroupStore 群組存儲
type GroupStore struct {
	collection *mongo.Collection
}

// NewGroupStore 創建群組存儲
func NewGroupStore(db *mongo.Database) *GroupStore {
	return &GroupStore{
		collection: db.Collection(GroupsCollection),
	}
}

// GetByID 根據 ID 獲取群組
func (s *GroupStore) GetByID(ctx context.Context, id string) (*chat.Group, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var doc groupDoc
	if err := s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.toDomain(), nil
}

// ListForMember 用戶所在的群組
func (s *GroupStore) ListForMember(ctx context.Context, userID string) ([]*chat.Group, error) {
	oid, err := objectID(userID)
	if err != nil {
		return []*chat.Group{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetLimit(constants.DefaultUserGroupsLimit)
	cursor, err := s.collection.Find(ctx, bson.M{"members": oid}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var groups []*chat.Group
	for cursor.Next(ctx) {
		var doc groupDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		groups = append(groups, doc.toDomain())
	}
	return groups, cursor.Err()
}

// Touch 更新群組活動時間，只會向後推進
func (s *GroupStore) Touch(ctx context.Context, id string, at time.Time) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$max": bson.M{"updated_at": at}})
	return err
}

// ClearHiddenFor 原子清空 hidden_for，返回清空前的用戶。
// hidden_for 為空時不寫入並返回 nil；hidden_for_with_timestamp 保持不變。
func (s *GroupStore) ClearHiddenFor(ctx context.Context, id string, at time.Time) ([]string, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"_id": oid, "hidden_for.0": bson.M{"$exists": true}}
	update := bson.M{"$set": bson.M{"hidden_for": bson.A{}, "updated_at": at}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.M{"hidden_for": 1})

	var doc groupDoc
	err = s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return hexList(doc.HiddenFor), nil
}

// Hide 隱藏對話：加入 hidden_for 並記錄隱藏時間（同一用戶只保留最新一筆）
func (s *GroupStore) Hide(ctx context.Context, groupID, userID string, at time.Time) error {
	gid, err := objectID(groupID)
	if err != nil {
		return err
	}
	uid, err := objectID(userID)
	if err != nil {
		return err
	}

	// $pull 和 $push 不能作用於同一欄位，分兩步更新
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": gid}, bson.M{
		"$pull": bson.M{"hidden_for_with_timestamp": bson.M{"user_id": uid}},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return chat.ErrNotFound
	}

	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": gid}, bson.M{
		"$addToSet": bson.M{"hidden_for": uid},
		"$push":     bson.M{"hidden_for_with_timestamp": hiddenDoc{UserID: uid, HiddenAt: at}},
	})
	return err
}

// DeleteHistory 記錄用戶刪除歷史的時間
func (s *GroupStore) DeleteHistory(ctx context.Context, groupID, userID string, at time.Time) error {
	gid, err := objectID(groupID)
	if err != nil {
		return err
	}
	uid, err := objectID(userID)
	if err != nil {
		return err
	}

	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": gid}, bson.M{
		"$pull": bson.M{"history_deleted_for": bson.M{"user_id": uid}},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return chat.ErrNotFound
	}

	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": gid}, bson.M{
		"$push": bson.M{"history_deleted_for": historyDoc{UserID: uid, DeletedAt: at}},
	})
	return err
}
