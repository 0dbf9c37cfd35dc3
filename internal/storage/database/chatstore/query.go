// Package chatstore 群組消息的 MongoDB 存儲實作
package chatstore

import (
	"errors"
	"fmt"
	"strings"

	"groupchat-gateway/internal/chat"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// 集合名稱
const (
	MessagesCollection  = "messages"
	ReactionsCollection = "message_reactions"
	GroupsCollection    = "groups"
	UsersCollection     = "users"
	PostsCollection     = "posts"
	FoldersCollection   = "folders"
	PdfsCollection      = "pdfs"
	CommentsCollection  = "comments"
)

// objectID 格式錯誤的 ID 視為找不到記錄
func objectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, chat.ErrNotFound
	}
	return oid, nil
}

// objectIDs 轉換並略過格式錯誤的 ID
func objectIDs(ids []string) []bson.ObjectID {
	out := make([]bson.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := bson.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
	}
	return out
}

func optionalObjectID(id string) *bson.ObjectID {
	if id == "" {
		return nil
	}
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	return &oid
}

func hexOf(oid *bson.ObjectID) string {
	if oid == nil || oid.IsZero() {
		return ""
	}
	return oid.Hex()
}

func hexList(oids []bson.ObjectID) []string {
	out := make([]string, 0, len(oids))
	for _, oid := range oids {
		out = append(out, oid.Hex())
	}
	return out
}

// notFound 轉換 mongo.ErrNoDocuments
func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chat.ErrNotFound
	}
	return err
}

// ValidateFieldPath 只允許由字母、數字和底線組成的點分欄位路徑（防止操作符注入）
func ValidateFieldPath(path string) error {
	if path == "" || strings.HasPrefix(path, "$") {
		return fmt.Errorf("不允許的欄位: %q", path)
	}
	for _, part := range strings.Split(path, ".") {
		if part == "" || strings.ContainsAny(part, "$\x00 ") {
			return fmt.Errorf("不允許的欄位: %q", path)
		}
	}
	return nil
}

// ValidateLimit 驗證並限制查詢數量
func ValidateLimit(limit, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// ValidateSkip 驗證並限制跳過數量
func ValidateSkip(skip int) int {
	const maxSkip = 100000

	if skip < 0 {
		return 0
	}
	if skip > maxSkip {
		return maxSkip
	}
	return skip
}
