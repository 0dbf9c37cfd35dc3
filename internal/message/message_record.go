package message

// SendMessageRequest 發送消息請求.
type SendMessageRequest struct {
	GroupID   string `json:"groupId" binding:"required"`
	Content   string `json:"content"`
	ReplyToID string `json:"replyToId,omitempty"`
}

// EditMessageRequest 修改消息請求.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// ReactionRequest 表情回應請求.
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// ShareRequest 分享內容請求.
type ShareRequest struct {
	GroupID string `json:"groupId" binding:"required"`
	ItemID  string `json:"itemId" binding:"required"`
	Content string `json:"content,omitempty"`
}

// ListMessagesQuery 消息列表查詢參數.
type ListMessagesQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}
