package chat

import (
	"context"
	"errors"
	"strings"

	"groupchat-gateway/internal/apperr"
	"groupchat-gateway/internal/platform/logger"
	"groupchat-gateway/internal/platform/metrics"
)

// ReactionChange 表情變更結果
type ReactionChange struct {
	// Added 新增的表情，無變更時為空
	Added string `json:"added,omitempty"`
	// Removed 被替換掉的舊表情
	Removed   string                     `json:"removed,omitempty"`
	Reactions map[string]ReactionSummary `json:"reactions"`
}

// Changed 是否有實際變更
func (c ReactionChange) Changed() bool {
	return c.Added != "" || c.Removed != ""
}

// reactionTarget 驗證表情、消息和成員身份
func (s *Service) reactionTarget(ctx context.Context, messageID, userID, emoji string) (*Message, string, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, "", apperr.InvalidArgument(msgEmojiRequired)
	}

	msg, err := s.liveMessage(ctx, messageID)
	if err != nil {
		return nil, "", err
	}

	group, err := s.groups.GetByID(ctx, msg.GroupID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", apperr.NotFound(msgGroupNotFound)
		}
		return nil, "", apperr.Internal(msgInternal, err)
	}
	if !group.IsMember(userID) {
		return nil, "", apperr.Forbidden(msgNotMember)
	}
	return msg, emoji, nil
}

// AddReaction 添加表情；同一用戶在同一消息上只保留一個表情
func (s *Service) AddReaction(ctx context.Context, messageID, userID, emoji string) (*ReactionChange, error) {
	msg, emoji, err := s.reactionTarget(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, err
	}

	now := s.now()
	prev, err := s.reactions.Upsert(ctx, Reaction{
		MessageID: msg.ID,
		UserID:    userID,
		GroupID:   msg.GroupID,
		Emoji:     emoji,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, apperr.Internal(msgInternal, err)
	}

	change := &ReactionChange{}
	switch {
	case prev != nil && prev.Emoji == emoji:
		metrics.Reactions.WithLabelValues("noop").Inc()
		change.Reactions = s.messageReactions(ctx, msg.ID)
		return change, nil
	case prev != nil:
		change.Removed = prev.Emoji
		metrics.Reactions.WithLabelValues("replace").Inc()
	default:
		metrics.Reactions.WithLabelValues("add").Inc()
	}
	change.Added = emoji
	change.Reactions = s.messageReactions(ctx, msg.ID)

	if change.Removed != "" {
		s.notifier.ToGroup(ctx, msg.GroupID, EventReactionRemoved, ReactionPayload{
			MessageID: msg.ID,
			GroupID:   msg.GroupID,
			UserID:    userID,
			Emoji:     change.Removed,
			Reactions: change.Reactions,
		})
	}
	s.notifier.ToGroup(ctx, msg.GroupID, EventReactionAdded, ReactionPayload{
		MessageID: msg.ID,
		GroupID:   msg.GroupID,
		UserID:    userID,
		Emoji:     emoji,
		Reactions: change.Reactions,
	})
	return change, nil
}

// RemoveReaction 移除表情，不存在時返回 InvalidArgument
func (s *Service) RemoveReaction(ctx context.Context, messageID, userID, emoji string) (*ReactionChange, error) {
	msg, emoji, err := s.reactionTarget(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, err
	}

	removed, err := s.reactions.Remove(ctx, msg.ID, userID, emoji)
	if err != nil {
		return nil, apperr.Internal(msgInternal, err)
	}
	if !removed {
		return nil, apperr.InvalidArgument(msgReactionNotFound)
	}
	metrics.Reactions.WithLabelValues("remove").Inc()

	change := &ReactionChange{Removed: emoji, Reactions: s.messageReactions(ctx, msg.ID)}
	s.notifier.ToGroup(ctx, msg.GroupID, EventReactionRemoved, ReactionPayload{
		MessageID: msg.ID,
		GroupID:   msg.GroupID,
		UserID:    userID,
		Emoji:     emoji,
		Reactions: change.Reactions,
	})
	return change, nil
}

// messageReactions 單則消息的聚合結果，失敗時返回 nil 並記錄
func (s *Service) messageReactions(ctx context.Context, messageID string) map[string]ReactionSummary {
	list, err := s.reactions.ListByMessages(ctx, []string{messageID})
	if err != nil {
		logger.Warning(ctx, "載入表情聚合失敗",
			logger.WithMessageID(messageID),
			logger.WithError(err))
		return nil
	}
	if agg, ok := AggregateReactions(list)[messageID]; ok {
		return agg
	}
	return map[string]ReactionSummary{}
}
