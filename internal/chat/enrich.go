package chat

import (
	"context"
	"fmt"

	"groupchat-gateway/internal/platform/logger"
	"groupchat-gateway/internal/platform/metrics"
)

// 補充步驟名稱
const (
	StepReplies   = "reply_previews"
	StepAuthors   = "authors"
	StepReactions = "reactions"
)

// EnrichmentError 某個補充步驟失敗，讀取仍返回部分資料
type EnrichmentError struct {
	Step string
	Err  error
}

func (e EnrichmentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e EnrichmentError) Unwrap() error { return e.Err }

// WarningSteps 轉為回應中的 warnings 欄位
func WarningSteps(ws []EnrichmentError) []string {
	if len(ws) == 0 {
		return nil
	}
	steps := make([]string, 0, len(ws))
	for _, w := range ws {
		steps = append(steps, w.Step)
	}
	return steps
}

// runStep 執行單一補充步驟，錯誤和 panic 都轉成 EnrichmentError
func runStep[T any](ctx context.Context, step string, fn func() (T, error)) (result T, failure *EnrichmentError) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			failure = &EnrichmentError{Step: step, Err: fmt.Errorf("panic: %v", r)}
		}
		if failure != nil {
			metrics.EnrichmentFailures.WithLabelValues(step).Inc()
			logger.Warning(ctx, "消息補充步驟失敗，返回降級資料",
				logger.WithAction("enrich"),
				logger.WithError(failure.Err),
				logger.WithDetails(map[string]interface{}{"step": step}))
		}
	}()

	v, err := fn()
	if err != nil {
		return v, &EnrichmentError{Step: step, Err: err}
	}
	return v, nil
}

type enrichOptions struct {
	reactions bool
}

// enrich 解析回覆預覽、作者資料和表情聚合
func (s *Service) enrich(ctx context.Context, msgs []*Message, opts enrichOptions) ([]MessageView, []EnrichmentError) {
	var warnings []EnrichmentError
	if len(msgs) == 0 {
		return []MessageView{}, nil
	}

	replies, replyErr := runStep(ctx, StepReplies, func() (map[string]*Message, error) {
		ids := make([]string, 0)
		for _, m := range msgs {
			if m.ReplyToID != "" {
				ids = append(ids, m.ReplyToID)
			}
		}
		if len(ids) == 0 {
			return map[string]*Message{}, nil
		}
		return s.messages.GetByIDs(ctx, uniq(ids))
	})
	if replyErr != nil {
		warnings = append(warnings, *replyErr)
	}

	users, userErr := runStep(ctx, StepAuthors, func() (map[string]*User, error) {
		return s.users.GetByIDs(ctx, uniq(collectUserIDs(msgs, replies)))
	})
	if userErr != nil {
		warnings = append(warnings, *userErr)
	}

	profile := func(id string) *UserProfile {
		if userErr != nil {
			return unresolvedProfile(id)
		}
		return resolveProfile(id, users)
	}

	var reactions map[string]map[string]ReactionSummary
	if opts.reactions {
		var reactionErr *EnrichmentError
		reactions, reactionErr = runStep(ctx, StepReactions, func() (map[string]map[string]ReactionSummary, error) {
			ids := make([]string, 0, len(msgs))
			for _, m := range msgs {
				ids = append(ids, m.ID)
			}
			list, err := s.reactions.ListByMessages(ctx, ids)
			if err != nil {
				return nil, err
			}
			return AggregateReactions(list), nil
		})
		if reactionErr != nil {
			warnings = append(warnings, *reactionErr)
		}
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, buildView(m, replies, replyErr == nil, profile, reactions))
	}
	return views, warnings
}

// enrichOne 單則消息的補充，警告只記錄日誌
func (s *Service) enrichOne(ctx context.Context, m *Message) MessageView {
	views, _ := s.enrich(ctx, []*Message{m}, enrichOptions{reactions: true})
	return views[0]
}

func buildView(m *Message, replies map[string]*Message, repliesOK bool, profile func(string) *UserProfile, reactions map[string]map[string]ReactionSummary) MessageView {
	v := MessageView{
		ID:              m.ID,
		GroupID:         m.GroupID,
		Kind:            m.Kind,
		Content:         m.Content,
		IsSystemMessage: m.IsSystem(),
		IsEdited:        m.EditedAt != nil,
		EditedAt:        m.EditedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		Reactions:       map[string]ReactionSummary{},
	}
	if !m.IsSystem() {
		v.Author = profile(m.AuthorID)
	}

	if m.ReplyToID != "" {
		v.ReplyTo = buildReplyPreview(m.ReplyToID, replies, repliesOK, profile)
	}

	if sh := m.Shared; sh != nil {
		sv := &SharedView{ID: sh.ItemID, Title: sh.Title, Metadata: sh.Metadata}
		if sh.AuthorID != "" {
			sv.Author = profile(sh.AuthorID)
		}
		switch sh.Kind {
		case SharedPost:
			v.SharedPost = sv
		case SharedFolder:
			v.SharedFolder = sv
		case SharedPdf:
			v.SharedPdf = sv
		}
	}

	if rs, ok := reactions[m.ID]; ok {
		v.Reactions = rs
	}
	return v
}

func buildReplyPreview(id string, replies map[string]*Message, repliesOK bool, profile func(string) *UserProfile) *ReplyPreview {
	target, ok := replies[id]
	if !ok {
		// 查詢失敗時只知道 ID；查詢成功但找不到則視為已刪除
		return &ReplyPreview{ID: id, IsDeleted: repliesOK}
	}
	if target.IsDeleted() {
		return &ReplyPreview{ID: id, IsDeleted: true}
	}
	createdAt := target.CreatedAt
	p := &ReplyPreview{ID: id, Content: target.Content, CreatedAt: &createdAt}
	if !target.IsSystem() {
		p.Author = profile(target.AuthorID)
	}
	return p
}

// AggregateReactions 按消息和表情分組：{emoji: {users, count}}
func AggregateReactions(list []Reaction) map[string]map[string]ReactionSummary {
	out := make(map[string]map[string]ReactionSummary)
	for _, r := range list {
		byEmoji, ok := out[r.MessageID]
		if !ok {
			byEmoji = make(map[string]ReactionSummary)
			out[r.MessageID] = byEmoji
		}
		sum := byEmoji[r.Emoji]
		sum.Users = append(sum.Users, r.UserID)
		sum.Count++
		byEmoji[r.Emoji] = sum
	}
	return out
}

func collectUserIDs(msgs []*Message, replies map[string]*Message) []string {
	ids := make([]string, 0, len(msgs)*2)
	add := func(m *Message) {
		if m.AuthorID != "" {
			ids = append(ids, m.AuthorID)
		}
		if m.Shared != nil && m.Shared.AuthorID != "" {
			ids = append(ids, m.Shared.AuthorID)
		}
	}
	for _, m := range msgs {
		add(m)
	}
	for _, r := range replies {
		add(r)
	}
	return ids
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
