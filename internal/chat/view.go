package chat

import "time"

// UserProfile 消息中展示的作者資料
type UserProfile struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	FirstName      string  `json:"firstName"`
	LastName       string  `json:"lastName"`
	ProfilePicture *string `json:"profilePicture"`
	IsDeleted      bool    `json:"isDeleted"`
}

// ReplyPreview 回覆預覽，讀取時解析而非寫入時複製
type ReplyPreview struct {
	ID        string       `json:"id"`
	Content   string       `json:"content"`
	Author    *UserProfile `json:"author"`
	IsDeleted bool         `json:"isDeleted"`
	CreatedAt *time.Time   `json:"createdAt,omitempty"`
}

// SharedView 分享內容快照
type SharedView struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Author   *UserProfile      `json:"author,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ReactionSummary 某個表情的聚合結果
type ReactionSummary struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// MessageView 返回給客戶端的消息
type MessageView struct {
	ID              string                     `json:"id"`
	GroupID         string                     `json:"groupId"`
	Kind            MessageKind                `json:"kind"`
	Author          *UserProfile               `json:"author"`
	Content         string                     `json:"content"`
	ReplyTo         *ReplyPreview              `json:"replyTo,omitempty"`
	SharedPost      *SharedView                `json:"sharedPost,omitempty"`
	SharedFolder    *SharedView                `json:"sharedFolder,omitempty"`
	SharedPdf       *SharedView                `json:"sharedPdf,omitempty"`
	Reactions       map[string]ReactionSummary `json:"reactions"`
	IsSystemMessage bool                       `json:"isSystemMessage"`
	IsEdited        bool                       `json:"isEdited"`
	EditedAt        *time.Time                 `json:"editedAt,omitempty"`
	CreatedAt       time.Time                  `json:"createdAt"`
	UpdatedAt       time.Time                  `json:"updatedAt"`
}

// GroupView groupUpdated 事件內容
type GroupView struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Members      []UserProfile `json:"members"`
	AdminID      string        `json:"adminId"`
	ModeratorIDs []string      `json:"moderatorIds"`
	HiddenFor    []string      `json:"hiddenFor"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Pagination 分頁資訊
type Pagination struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"hasMore"`
}

// MessagePage 消息列表結果
type MessagePage struct {
	Messages   []MessageView
	Pagination Pagination
	Warnings   []EnrichmentError
}

// LastMessage 對話列表中每個群組的最後一則消息
type LastMessage struct {
	GroupID     string      `json:"groupId"`
	GroupName   string      `json:"groupName"`
	LastMessage MessageView `json:"lastMessage"`
}
