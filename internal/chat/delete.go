package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"groupchat-gateway/internal/apperr"
	"groupchat-gateway/internal/platform/logger"
	"groupchat-gateway/internal/platform/metrics"
)

const fallbackFirstName = "Utilisateur"

// DeleteResult 刪除結果；由管理員或版主刪除時附帶系統消息
type DeleteResult struct {
	MessageID     string       `json:"messageId"`
	GroupID       string       `json:"groupId"`
	DeletedBy     string       `json:"deletedBy"`
	Reason        string       `json:"reason"`
	SystemMessage *MessageView `json:"systemMessage,omitempty"`
}

// deletionReason 作者優先，其次管理員，最後版主
func deletionReason(g *Group, m *Message, userID string) (DeletionReason, bool) {
	switch {
	case !m.IsSystem() && m.AuthorID == userID:
		return DeletedByAuthor, true
	case g.IsAdmin(userID):
		return DeletedByAdmin, true
	case g.IsModerator(userID):
		return DeletedByModerator, true
	}
	return "", false
}

// Delete 軟刪除消息
func (s *Service) Delete(ctx context.Context, messageID, userID string) (*DeleteResult, error) {
	msg, err := s.liveMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	group, err := s.groups.GetByID(ctx, msg.GroupID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound(msgGroupNotFound)
		}
		return nil, apperr.Internal(msgInternal, err)
	}

	reason, ok := deletionReason(group, msg, userID)
	if !ok {
		return nil, apperr.Forbidden(msgDeleteForbidden)
	}

	deletion := Deletion{At: s.now(), By: userID, Reason: reason}
	if err := s.messages.SoftDelete(ctx, msg.ID, deletion); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound(msgMessageNotFound)
		}
		return nil, apperr.Internal(msgInternal, err)
	}
	metrics.MessagesDeleted.WithLabelValues(string(reason)).Inc()

	if s.auditor != nil {
		s.auditor.LogMessageDeleted(ctx, userID, group.ID, msg.ID, reason)
	}

	logger.Info(ctx, "消息已刪除",
		logger.WithUserID(userID),
		logger.WithGroupID(group.ID),
		logger.WithMessageID(msg.ID),
		logger.WithAction("delete_message"),
		logger.WithDetails(map[string]interface{}{"reason": string(reason)}))

	result := &DeleteResult{
		MessageID: msg.ID,
		GroupID:   group.ID,
		DeletedBy: userID,
		Reason:    string(reason),
	}

	if reason == DeletedByAuthor || msg.IsSystem() {
		s.notifier.ToGroup(ctx, group.ID, EventMessageDeleted, MessageDeletedPayload{
			MessageID: msg.ID,
			GroupID:   group.ID,
		})
		return result, nil
	}

	notice, err := s.insertModerationNotice(ctx, group, msg, userID, reason, deletion.At)
	if err != nil {
		// 刪除已生效，通知失敗時退回輕量事件
		logger.Error(ctx, "寫入刪除系統消息失敗",
			logger.WithGroupID(group.ID),
			logger.WithMessageID(msg.ID),
			logger.WithError(err))
		s.notifier.ToGroup(ctx, group.ID, EventMessageDeleted, MessageDeletedPayload{
			MessageID: msg.ID,
			GroupID:   group.ID,
		})
		return result, nil
	}

	result.SystemMessage = s.broadcastRefresh(ctx, group, notice.ID)
	return result, nil
}

// ModerationNotice 系統消息文字
func ModerationNotice(authorFirstName, actorFirstName string, reason DeletionReason) string {
	role := "le modérateur"
	if reason == DeletedByAdmin {
		role = "l'administrateur"
	}
	return fmt.Sprintf("Message de %s supprimé par %s %s", authorFirstName, role, actorFirstName)
}

func (s *Service) insertModerationNotice(ctx context.Context, g *Group, deleted *Message, actorID string, reason DeletionReason, at time.Time) (*Message, error) {
	authorName, actorName := fallbackFirstName, fallbackFirstName
	users, err := s.users.GetByIDs(ctx, uniq([]string{deleted.AuthorID, actorID}))
	if err != nil {
		logger.Warning(ctx, "載入刪除通知用戶名稱失敗",
			logger.WithGroupID(g.ID),
			logger.WithError(err))
	} else {
		authorName = firstNameOr(resolveProfile(deleted.AuthorID, users))
		actorName = firstNameOr(resolveProfile(actorID, users))
	}

	notice := NewSystemMessage(g.ID, ModerationNotice(authorName, actorName, reason), at)
	if err := s.messages.Insert(ctx, notice); err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues("system").Inc()

	if err := s.groups.Touch(ctx, g.ID, notice.CreatedAt); err != nil {
		logger.Error(ctx, "更新群組活動時間失敗",
			logger.WithGroupID(g.ID),
			logger.WithError(err))
	}
	return notice, nil
}

func firstNameOr(p *UserProfile) string {
	if p == nil || p.FirstName == "" {
		return fallbackFirstName
	}
	return p.FirstName
}

// broadcastRefresh 重新載入群組全部可見消息，按每位成員的截止時間過濾後推送到各自的用戶房間。
// 返回系統消息的視圖.
func (s *Service) broadcastRefresh(ctx context.Context, g *Group, noticeID string) *MessageView {
	recent, err := s.loadAllVisible(ctx, g.ID)
	if err != nil {
		logger.Error(ctx, "重新載入群組消息失敗",
			logger.WithGroupID(g.ID),
			logger.WithError(err))
		return nil
	}
	slices.Reverse(recent)

	views, _ := s.enrich(ctx, recent, enrichOptions{reactions: true})

	var notice *MessageView
	for i := range views {
		if views[i].ID == noticeID {
			notice = &views[i]
			break
		}
	}

	for _, member := range g.Members {
		cutoff, has := Cutoff(g, member, PolicyFull)
		visible := make([]MessageView, 0, len(views))
		for i, m := range recent {
			if VisibleAfter(m, cutoff, has) {
				visible = append(visible, views[i])
			}
		}
		redactReplies(visible, cutoff, has)
		s.notifier.ToUser(ctx, member, EventMessagesUpdated, MessagesUpdatedPayload{
			GroupID:  g.ID,
			Messages: visible,
		})
	}
	return notice
}

// loadAllVisible 分批讀取群組所有未刪除消息，按創建時間倒序返回
func (s *Service) loadAllVisible(ctx context.Context, groupID string) ([]*Message, error) {
	batch := s.opts.RefreshBatch
	var all []*Message
	for {
		page, total, err := s.messages.ListVisible(ctx, MessageQuery{GroupID: groupID, Skip: len(all), Limit: batch})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) == 0 || int64(len(all)) >= total {
			return all, nil
		}
	}
}
