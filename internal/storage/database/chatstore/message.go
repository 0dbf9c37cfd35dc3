package chatstore

import (
	"context"
	"time"

	"groupchat-gateway/internal/chat"
	"groupchat-gateway/internal/constants"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// sharedDoc 分享內容快照
type sharedDoc struct {
	Kind     string            `bson:"kind"`
	ItemID   bson.ObjectID     `bson:"item_id"`
	Title    string            `bson:"title"`
	AuthorID *bson.ObjectID    `bson:"author_id,omitempty"`
	Metadata map[string]string `bson:"metadata,omitempty"`
}

// messageDoc 消息文檔
type messageDoc struct {
	ID              bson.ObjectID  `bson:"_id"`
	GroupID         bson.ObjectID  `bson:"group_id"`
	Kind            string         `bson:"kind"`
	AuthorID        *bson.ObjectID `bson:"author_id,omitempty"`
	Content         string         `bson:"content"`
	ReplyTo         *bson.ObjectID `bson:"reply_to,omitempty"`
	Shared          *sharedDoc     `bson:"shared,omitempty"`
	IsSystemMessage bool           `bson:"is_system_message"`
	IsDeleted       bool           `bson:"is_deleted"`
	DeletedAt       *time.Time     `bson:"deleted_at,omitempty"`
	DeletedBy       *bson.ObjectID `bson:"deleted_by,omitempty"`
	DeletionReason  string         `bson:"deletion_reason,omitempty"`
	EditedAt        *time.Time     `bson:"edited_at,omitempty"`
	CreatedAt       time.Time      `bson:"created_at"`
	UpdatedAt       time.Time      `bson:"updated_at"`
}

func toMessageDoc(m *chat.Message) (*messageDoc, error) {
	groupID, err := bson.ObjectIDFromHex(m.GroupID)
	if err != nil {
		return nil, err
	}

	doc := &messageDoc{
		GroupID:         groupID,
		Kind:            string(m.Kind),
		Content:         m.Content,
		ReplyTo:         optionalObjectID(m.ReplyToID),
		IsSystemMessage: m.IsSystem(),
		EditedAt:        m.EditedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if !m.IsSystem() {
		doc.AuthorID = optionalObjectID(m.AuthorID)
	}
	if m.ID != "" {
		if doc.ID, err = bson.ObjectIDFromHex(m.ID); err != nil {
			return nil, err
		}
	} else {
		doc.ID = bson.NewObjectID()
	}

	if sh := m.Shared; sh != nil {
		itemID, err := bson.ObjectIDFromHex(sh.ItemID)
		if err != nil {
			return nil, err
		}
		doc.Shared = &sharedDoc{
			Kind:     string(sh.Kind),
			ItemID:   itemID,
			Title:    sh.Title,
			AuthorID: optionalObjectID(sh.AuthorID),
			Metadata: sh.Metadata,
		}
	}

	if d := m.Deletion; d != nil {
		at := d.At
		doc.IsDeleted = true
		doc.DeletedAt = &at
		doc.DeletedBy = optionalObjectID(d.By)
		doc.DeletionReason = string(d.Reason)
	}
	return doc, nil
}

func (d *messageDoc) toDomain() *chat.Message {
	m := &chat.Message{
		ID:        d.ID.Hex(),
		GroupID:   d.GroupID.Hex(),
		Kind:      chat.MessageKind(d.Kind),
		AuthorID:  hexOf(d.AuthorID),
		Content:   d.Content,
		ReplyToID: hexOf(d.ReplyTo),
		EditedAt:  d.EditedAt,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	// 舊文檔沒有 kind 欄位
	if m.Kind == "" {
		m.Kind = chat.KindUser
		if d.IsSystemMessage || d.AuthorID == nil {
			m.Kind = chat.KindSystem
		}
	}
	if m.Kind == chat.KindSystem {
		m.AuthorID = ""
	}

	if sh := d.Shared; sh != nil {
		m.Shared = &chat.SharedContent{
			Kind:     chat.SharedKind(sh.Kind),
			ItemID:   sh.ItemID.Hex(),
			Title:    sh.Title,
			AuthorID: hexOf(sh.AuthorID),
			Metadata: sh.Metadata,
		}
	}

	if d.IsDeleted {
		del := &chat.Deletion{
			By:     hexOf(d.DeletedBy),
			Reason: chat.DeletionReason(d.DeletionReason),
		}
		if d.DeletedAt != nil {
			del.At = *d.DeletedAt
		}
		m.Deletion = del
	}
	return m
}

// notDeleted 排除軟刪除消息，兼容沒有 is_deleted 欄位的舊文檔
var notDeleted = bson.M{"$ne": true}

// MessageStore 消息存儲實作
type MessageStore struct {
	collection *mongo.Collection
}

// NewMessageStore 創建新的消息存儲
func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{
		collection: db.Collection(MessagesCollection),
	}
}

// Insert 寫入消息
func (s *MessageStore) Insert(ctx context.Context, m *chat.Message) error {
	doc, err := toMessageDoc(m)
	if err != nil {
		return err
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return err
	}
	m.ID = doc.ID.Hex()
	return nil
}

// GetByID 根據 ID 獲取消息（包含已刪除）
func (s *MessageStore) GetByID(ctx context.Context, id string) (*chat.Message, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var doc messageDoc
	if err := s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.toDomain(), nil
}

// GetByIDs 批次獲取消息（包含已刪除），找不到的 ID 不會出現在結果中
func (s *MessageStore) GetByIDs(ctx context.Context, ids []string) (map[string]*chat.Message, error) {
	out := make(map[string]*chat.Message, len(ids))
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return out, nil
	}

	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc messageDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out[doc.ID.Hex()] = doc.toDomain()
	}
	return out, cursor.Err()
}

// ListVisible 按創建時間倒序返回一頁未刪除的消息及總數
func (s *MessageStore) ListVisible(ctx context.Context, q chat.MessageQuery) ([]*chat.Message, int64, error) {
	groupID, err := objectID(q.GroupID)
	if err != nil {
		return []*chat.Message{}, 0, nil
	}

	filter := bson.M{
		"group_id":   groupID,
		"is_deleted": notDeleted,
	}
	if q.After != nil {
		filter["created_at"] = bson.M{"$gt": *q.After}
	}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	limit := ValidateLimit(q.Limit, constants.DefaultPageSize, constants.MaxMongoQueryLimit)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(ValidateSkip(q.Skip))).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	messages := make([]*chat.Message, 0, limit)
	for cursor.Next(ctx) {
		var doc messageDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, err
		}
		messages = append(messages, doc.toDomain())
	}
	return messages, total, cursor.Err()
}

// UpdateContent 更新消息內容並返回更新後的消息
func (s *MessageStore) UpdateContent(ctx context.Context, id, content string, at time.Time) (*chat.Message, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	update := bson.M{"$set": bson.M{
		"content":    content,
		"edited_at":  at,
		"updated_at": at,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc messageDoc
	err = s.collection.FindOneAndUpdate(ctx, bson.M{"_id": oid, "is_deleted": notDeleted}, update, opts).Decode(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	return doc.toDomain(), nil
}

// SoftDelete 標記刪除，已刪除的消息返回 chat.ErrNotFound
func (s *MessageStore) SoftDelete(ctx context.Context, id string, d chat.Deletion) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	set := bson.M{
		"is_deleted":      true,
		"deleted_at":      d.At,
		"deletion_reason": string(d.Reason),
		"updated_at":      d.At,
	}
	if by := optionalObjectID(d.By); by != nil {
		set["deleted_by"] = *by
	}

	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": oid, "is_deleted": notDeleted}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return chat.ErrNotFound
	}
	return nil
}

// LastPerGroup 以聚合查詢取得每個群組最新一則未刪除消息
func (s *MessageStore) LastPerGroup(ctx context.Context, groupIDs []string) (map[string]*chat.Message, error) {
	out := make(map[string]*chat.Message, len(groupIDs))
	oids := objectIDs(groupIDs)
	if len(oids) == 0 {
		return out, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"group_id":   bson.M{"$in": oids},
			"is_deleted": notDeleted,
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "group_id", Value: 1},
			{Key: "created_at", Value: -1},
			{Key: "_id", Value: -1},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":  "$group_id",
			"last": bson.M{"$first": "$$ROOT"},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var row struct {
			GroupID bson.ObjectID `bson:"_id"`
			Last    messageDoc    `bson:"last"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		out[row.GroupID.Hex()] = row.Last.toDomain()
	}
	return out, cursor.Err()
}
