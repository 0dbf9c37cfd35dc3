package chat

import (
	"context"
	"time"
)

// MessageQuery 消息列表查詢條件
type MessageQuery struct {
	GroupID string
	// After 不為 nil 時只返回 created_at 嚴格大於此時間的消息
	After *time.Time
	Skip  int
	Limit int
}

// MessageRepository 消息倉儲接口。查詢均排除已軟刪除的消息。
type MessageRepository interface {
	// Insert 寫入消息，ID 為空時由存儲分配
	Insert(ctx context.Context, m *Message) error
	// GetByID 包含已刪除消息，呼叫方自行判斷
	GetByID(ctx context.Context, id string) (*Message, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*Message, error)
	// ListVisible 按 created_at 倒序返回一頁，並返回符合條件的總數
	ListVisible(ctx context.Context, q MessageQuery) ([]*Message, int64, error)
	UpdateContent(ctx context.Context, id, content string, at time.Time) (*Message, error)
	SoftDelete(ctx context.Context, id string, d Deletion) error
	// LastPerGroup 每個群組最新一則未刪除消息
	LastPerGroup(ctx context.Context, groupIDs []string) (map[string]*Message, error)
}

// ReactionRepository 表情回應倉儲接口
type ReactionRepository interface {
	// Upsert 以 (MessageID, UserID) 為鍵原子寫入，返回寫入前的記錄（新增時為 nil）
	Upsert(ctx context.Context, r Reaction) (*Reaction, error)
	// Remove 刪除指定表情，返回是否有記錄被刪除
	Remove(ctx context.Context, messageID, userID, emoji string) (bool, error)
	ListByMessages(ctx context.Context, messageIDs []string) ([]Reaction, error)
}

// GroupRepository 群組倉儲接口
type GroupRepository interface {
	GetByID(ctx context.Context, id string) (*Group, error)
	ListForMember(ctx context.Context, userID string) ([]*Group, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// ClearHiddenFor 僅在 hiddenFor 非空時清空，返回清空前的用戶列表
	ClearHiddenFor(ctx context.Context, id string, at time.Time) ([]string, error)
	Hide(ctx context.Context, groupID, userID string, at time.Time) error
	DeleteHistory(ctx context.Context, groupID, userID string, at time.Time) error
}

// UserDirectory 用戶資料查詢，不存在的用戶不會出現在結果中
type UserDirectory interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*User, error)
}

// ContentDirectory 分享內容來源（貼文、資料夾、PDF）
type ContentDirectory interface {
	Snapshot(ctx context.Context, kind SharedKind, itemID string) (*SharedContent, error)
}

// Notifier 即時事件推送，失敗不影響主流程
type Notifier interface {
	ToGroup(ctx context.Context, groupID, event string, payload any)
	ToUser(ctx context.Context, userID, event string, payload any)
}

// Auditor 審計記錄
type Auditor interface {
	LogMessageDeleted(ctx context.Context, actorID, groupID, messageID string, reason DeletionReason)
}
