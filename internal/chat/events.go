package chat

// 推送給客戶端的事件名稱
const (
	EventNewMessage      = "new-message"
	EventMessagesUpdated = "messages-updated"
	EventMessageDeleted  = "message-deleted"
	EventMessageUpdated  = "message-updated"
	EventGroupUpdated    = "groupUpdated"
	EventReactionAdded   = "reaction-added"
	EventReactionRemoved = "reaction-removed"
)

// MessageDeletedPayload message-deleted 事件內容
type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	GroupID   string `json:"groupId"`
}

// MessagesUpdatedPayload messages-updated 事件內容
type MessagesUpdatedPayload struct {
	GroupID  string        `json:"groupId"`
	Messages []MessageView `json:"messages"`
}

// ReactionPayload reaction-added / reaction-removed 事件內容
type ReactionPayload struct {
	MessageID string                     `json:"messageId"`
	GroupID   string                     `json:"groupId"`
	UserID    string                     `json:"userId"`
	Emoji     string                     `json:"emoji"`
	Reactions map[string]ReactionSummary `json:"reactions,omitempty"`
}
