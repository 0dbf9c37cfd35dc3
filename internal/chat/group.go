package chat

import (
	"context"
	"errors"
	"time"

	"groupchat-gateway/internal/apperr"
	"groupchat-gateway/internal/platform/logger"
)

// HideConversation 從用戶的對話列表隱藏群組；隱藏前的消息之後仍不可見
func (s *Service) HideConversation(ctx context.Context, groupID, userID string) (*GroupView, error) {
	return s.markGroup(ctx, groupID, userID, "hide_conversation", s.groups.Hide)
}

// DeleteHistory 清除用戶在群組中的歷史記錄
func (s *Service) DeleteHistory(ctx context.Context, groupID, userID string) (*GroupView, error) {
	return s.markGroup(ctx, groupID, userID, "delete_history", s.groups.DeleteHistory)
}

func (s *Service) markGroup(
	ctx context.Context,
	groupID, userID, action string,
	mark func(ctx context.Context, groupID, userID string, at time.Time) error,
) (*GroupView, error) {
	if _, err := s.memberGroup(ctx, groupID, userID); err != nil {
		return nil, err
	}

	if err := mark(ctx, groupID, userID, s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound(msgGroupNotFound)
		}
		return nil, apperr.Internal(msgInternal, err)
	}

	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, apperr.Internal(msgInternal, err)
	}

	view := s.groupView(ctx, g)
	s.notifier.ToUser(ctx, userID, EventGroupUpdated, view)

	logger.Info(ctx, "群組可見性已更新",
		logger.WithUserID(userID),
		logger.WithGroupID(groupID),
		logger.WithAction(action))
	return &view, nil
}
