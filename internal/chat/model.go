package chat

import (
	"errors"
	"slices"
	"time"
)

// ErrNotFound 存儲層找不到記錄時返回
var ErrNotFound = errors.New("chat: record not found")

// MessageKind 消息類型：用戶消息或系統消息
type MessageKind string

const (
	KindUser   MessageKind = "user"
	KindSystem MessageKind = "system"
)

// SharedKind 分享內容類型
type SharedKind string

const (
	SharedPost   SharedKind = "post"
	SharedFolder SharedKind = "folder"
	SharedPdf    SharedKind = "pdf"
)

// Valid 檢查分享類型
func (k SharedKind) Valid() bool {
	switch k {
	case SharedPost, SharedFolder, SharedPdf:
		return true
	}
	return false
}

// SharedContent 分享時擷取的內容快照，之後不會同步更新
type SharedContent struct {
	Kind     SharedKind
	ItemID   string
	Title    string
	AuthorID string
	Metadata map[string]string
}

// Deletion 軟刪除記錄
type Deletion struct {
	At     time.Time
	By     string
	Reason DeletionReason
}

// DeletionReason 刪除者身份
type DeletionReason string

const (
	DeletedByAuthor    DeletionReason = "author"
	DeletedByAdmin     DeletionReason = "admin"
	DeletedByModerator DeletionReason = "moderator"
)

// Message 群組消息。Kind 為 KindSystem 時 AuthorID 必為空。
type Message struct {
	ID        string
	GroupID   string
	Kind      MessageKind
	AuthorID  string
	Content   string
	ReplyToID string
	Shared    *SharedContent
	Deletion  *Deletion
	EditedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUserMessage 創建用戶消息
func NewUserMessage(groupID, authorID, content string, at time.Time) *Message {
	return &Message{
		GroupID:   groupID,
		Kind:      KindUser,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// NewSystemMessage 創建系統消息
func NewSystemMessage(groupID, content string, at time.Time) *Message {
	return &Message{
		GroupID:   groupID,
		Kind:      KindSystem,
		Content:   content,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// IsSystem 是否為系統消息
func (m *Message) IsSystem() bool {
	return m.Kind == KindSystem
}

// IsDeleted 是否已刪除
func (m *Message) IsDeleted() bool {
	return m.Deletion != nil
}

// Reaction 表情回應，每個 (MessageID, UserID) 最多一筆
type Reaction struct {
	MessageID string
	UserID    string
	GroupID   string
	Emoji     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HiddenMarker 隱藏對話記錄，清除 hiddenFor 後仍保留
type HiddenMarker struct {
	UserID   string
	HiddenAt time.Time
}

// HistoryMarker 刪除歷史記錄
type HistoryMarker struct {
	UserID    string
	DeletedAt time.Time
}

// Group 群組（由群組服務管理，這裡只讀取成員和可見性標記）
type Group struct {
	ID                     string
	Name                   string
	Members                []string
	AdminID                string
	ModeratorIDs           []string
	HiddenFor              []string
	HiddenForWithTimestamp []HiddenMarker
	HistoryDeletedFor      []HistoryMarker
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsMember 是否為群組成員
func (g *Group) IsMember(userID string) bool {
	return userID != "" && slices.Contains(g.Members, userID)
}

// IsAdmin 是否為管理員
func (g *Group) IsAdmin(userID string) bool {
	return userID != "" && g.AdminID == userID
}

// IsModerator 是否為版主
func (g *Group) IsModerator(userID string) bool {
	return userID != "" && slices.Contains(g.ModeratorIDs, userID)
}

// User 用戶資料（由用戶服務管理）
type User struct {
	ID             string
	Username       string
	FirstName      string
	LastName       string
	ProfilePicture string
	IsDeleted      bool
}
