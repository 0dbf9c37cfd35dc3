package chatstore

import (
	"context"
	"fmt"

	"groupchat-gateway/internal/chat"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// contentDoc 貼文、資料夾、PDF 共用的欄位；不同集合的標題和作者欄位名稱不同
type contentDoc struct {
	ID       bson.ObjectID     `bson:"_id"`
	Title    string            `bson:"title,omitempty"`
	Name     string            `bson:"name,omitempty"`
	Filename string            `bson:"filename,omitempty"`
	AuthorID *bson.ObjectID    `bson:"author_id,omitempty"`
	OwnerID  *bson.ObjectID    `bson:"owner_id,omitempty"`
	Category string            `bson:"category,omitempty"`
	Metadata map[string]string `bson:"metadata,omitempty"`
}

// ContentStore 分享內容來源
type ContentStore struct {
	posts   *mongo.Collection
	folders *mongo.Collection
	pdfs    *mongo.Collection
}

// NewContentStore 創建分享內容存儲
func NewContentStore(db *mongo.Database) *ContentStore {
	return &ContentStore{
		posts:   db.Collection(PostsCollection),
		folders: db.Collection(FoldersCollection),
		pdfs:    db.Collection(PdfsCollection),
	}
}

func (s *ContentStore) collectionFor(kind chat.SharedKind) (*mongo.Collection, error) {
	switch kind {
	case chat.SharedPost:
		return s.posts, nil
	case chat.SharedFolder:
		return s.folders, nil
	case chat.SharedPdf:
		return s.pdfs, nil
	}
	return nil, fmt.Errorf("未知的分享類型: %q", kind)
}

// Snapshot 擷取分享時的內容快照
func (s *ContentStore) Snapshot(ctx context.Context, kind chat.SharedKind, itemID string) (*chat.SharedContent, error) {
	coll, err := s.collectionFor(kind)
	if err != nil {
		return nil, err
	}
	oid, err := objectID(itemID)
	if err != nil {
		return nil, err
	}

	opts := options.FindOne().SetProjection(bson.M{
		"title":     1,
		"name":      1,
		"filename":  1,
		"author_id": 1,
		"owner_id":  1,
		"category":  1,
		"metadata":  1,
	})

	var doc contentDoc
	if err := coll.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.snapshot(kind), nil
}

func (d *contentDoc) snapshot(kind chat.SharedKind) *chat.SharedContent {
	sc := &chat.SharedContent{
		Kind:     kind,
		ItemID:   d.ID.Hex(),
		Metadata: map[string]string{},
	}
	for k, v := range d.Metadata {
		sc.Metadata[k] = v
	}

	switch kind {
	case chat.SharedFolder:
		sc.Title = d.Name
		sc.AuthorID = hexOf(d.OwnerID)
	case chat.SharedPdf:
		sc.Title = d.Title
		if sc.Title == "" {
			sc.Title = d.Filename
		}
		if d.Filename != "" {
			sc.Metadata["filename"] = d.Filename
		}
		sc.AuthorID = hexOf(d.AuthorID)
	default:
		sc.Title = d.Title
		sc.AuthorID = hexOf(d.AuthorID)
	}
	if d.Category != "" {
		sc.Metadata["category"] = d.Category
	}
	if len(sc.Metadata) == 0 {
		sc.Metadata = nil
	}
	return sc
}
