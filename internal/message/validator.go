package message

import (
	"errors"
	"strings"
	"unicode/utf8"

	"groupchat-gateway/internal/constants"
	"groupchat-gateway/internal/platform/middleware"
)

// ValidateSendMessageRequest 驗證發送消息請求；內容長度由服務層檢查.
func ValidateSendMessageRequest(req *SendMessageRequest) error {
	if strings.TrimSpace(req.GroupID) == "" {
		return errors.New("Identifiant de groupe requis")
	}
	req.Content = middleware.SanitizeInput(req.Content)
	req.ReplyToID = strings.TrimSpace(req.ReplyToID)
	return nil
}

// ValidateReactionRequest 驗證表情回應.
func ValidateReactionRequest(req *ReactionRequest) error {
	req.Emoji = strings.TrimSpace(req.Emoji)
	if req.Emoji == "" {
		return errors.New("Emoji requis")
	}
	if utf8.RuneCountInString(req.Emoji) > constants.MaxEmojiLength {
		return errors.New("Emoji invalide")
	}
	return nil
}

// ValidateShareRequest 驗證分享請求.
func ValidateShareRequest(req *ShareRequest) error {
	if strings.TrimSpace(req.GroupID) == "" {
		return errors.New("Identifiant de groupe requis")
	}
	if strings.TrimSpace(req.ItemID) == "" {
		return errors.New("Identifiant du contenu requis")
	}
	req.Content = middleware.SanitizeInput(req.Content)
	return nil
}
