package chat

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"groupchat-gateway/internal/apperr"
	"groupchat-gateway/internal/platform/logger"
	"groupchat-gateway/internal/platform/metrics"
)

// SendInput 發送消息參數
type SendInput struct {
	GroupID   string
	AuthorID  string
	Content   string
	ReplyToID string
}

// 舊版客戶端把回覆目標寫在內容前綴
var legacyReplyPrefix = regexp.MustCompile(`(?s)^\[REPLY:([^\]\s]+)\]\s?(.*)$`)

// parseLegacyReply 解析 "[REPLY:<id>] <text>"，沒有前綴時原樣返回
func parseLegacyReply(content string) (replyTo, text string) {
	m := legacyReplyPrefix.FindStringSubmatch(content)
	if m == nil {
		return "", content
	}
	return m[1], m[2]
}

// normalizeContent 去除首尾空白並檢查長度
func (s *Service) normalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.InvalidArgument(msgContentRequired)
	}
	if utf8.RuneCountInString(content) > s.opts.MaxContentLength {
		return "", apperr.InvalidArgument(msgContentTooLong)
	}
	return content, nil
}

// Send 發送消息
func (s *Service) Send(ctx context.Context, in SendInput) (*MessageView, error) {
	group, err := s.memberGroup(ctx, in.GroupID, in.AuthorID)
	if err != nil {
		return nil, err
	}

	replyTo, content := in.ReplyToID, in.Content
	if replyTo == "" {
		replyTo, content = parseLegacyReply(content)
	}

	content, err = s.normalizeContent(content)
	if err != nil {
		return nil, err
	}

	msg := NewUserMessage(group.ID, in.AuthorID, content, s.now())
	msg.ReplyToID = s.resolveReplyTarget(ctx, group.ID, replyTo)

	return s.persistAndBroadcast(ctx, group, msg, "user")
}

// resolveReplyTarget 回覆目標不存在或不屬於同一群組時忽略，不讓發送失敗
func (s *Service) resolveReplyTarget(ctx context.Context, groupID, replyTo string) string {
	if replyTo == "" {
		return ""
	}

	target, err := s.messages.GetByID(ctx, replyTo)
	switch {
	case err != nil && !errors.Is(err, ErrNotFound):
		logger.Warning(ctx, "查詢回覆目標失敗，消息將不帶回覆",
			logger.WithGroupID(groupID),
			logger.WithMessageID(replyTo),
			logger.WithError(err))
		return ""
	case err != nil, target.IsDeleted():
		logger.Warning(ctx, "回覆目標不存在，消息將不帶回覆",
			logger.WithGroupID(groupID),
			logger.WithMessageID(replyTo))
		return ""
	case target.GroupID != groupID:
		logger.Warning(ctx, "回覆目標屬於其他群組，消息將不帶回覆",
			logger.WithGroupID(groupID),
			logger.WithMessageID(replyTo))
		return ""
	}
	return target.ID
}

// persistAndBroadcast 寫入消息、更新群組並推送 new-message / groupUpdated
func (s *Service) persistAndBroadcast(ctx context.Context, group *Group, msg *Message, kind string) (*MessageView, error) {
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, apperr.Internal(msgInternal, err)
	}
	metrics.MessagesSent.WithLabelValues(kind).Inc()

	// 以下為附帶更新，失敗只記錄
	if err := s.groups.Touch(ctx, group.ID, msg.CreatedAt); err != nil {
		logger.Error(ctx, "更新群組活動時間失敗",
			logger.WithGroupID(group.ID),
			logger.WithError(err))
	}
	group.UpdatedAt = msg.CreatedAt

	var unhidden []string
	if len(group.HiddenFor) > 0 {
		prev, err := s.groups.ClearHiddenFor(ctx, group.ID, msg.CreatedAt)
		if err != nil {
			logger.Error(ctx, "清除 hiddenFor 失敗",
				logger.WithGroupID(group.ID),
				logger.WithError(err))
		} else {
			unhidden = prev
			group.HiddenFor = nil
		}
	}

	view := s.enrichOne(ctx, msg)
	s.notifier.ToGroup(ctx, group.ID, EventNewMessage, view)

	if len(unhidden) > 0 {
		gv := s.groupView(ctx, group)
		s.notifier.ToGroup(ctx, group.ID, EventGroupUpdated, gv)
		// 隱藏對話的用戶可能沒有加入群組房間
		for _, uid := range unhidden {
			s.notifier.ToUser(ctx, uid, EventGroupUpdated, gv)
		}
	}

	logger.Info(ctx, "消息已發送",
		logger.WithUserID(msg.AuthorID),
		logger.WithGroupID(group.ID),
		logger.WithMessageID(msg.ID),
		logger.WithAction("send_message"))
	return &view, nil
}

// EditInput 編輯消息參數
type EditInput struct {
	MessageID string
	UserID    string
	Content   string
}

// Edit 編輯消息，僅作者可操作
func (s *Service) Edit(ctx context.Context, in EditInput) (*MessageView, error) {
	msg, err := s.liveMessage(ctx, in.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.IsSystem() || msg.AuthorID != in.UserID {
		return nil, apperr.Forbidden(msgEditForbidden)
	}
	// 已離開群組的作者不能再修改
	if _, err := s.memberGroup(ctx, msg.GroupID, in.UserID); err != nil {
		return nil, err
	}

	content, err := s.normalizeContent(in.Content)
	if err != nil {
		return nil, err
	}

	updated, err := s.messages.UpdateContent(ctx, msg.ID, content, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound(msgMessageNotFound)
		}
		return nil, apperr.Internal(msgInternal, err)
	}

	view := s.enrichOne(ctx, updated)
	s.notifier.ToGroup(ctx, updated.GroupID, EventMessageUpdated, view)
	return &view, nil
}
