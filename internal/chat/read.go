package chat

import (
	"context"
	"slices"
	"time"

	"groupchat-gateway/internal/apperr"
	"groupchat-gateway/internal/platform/logger"
)

// ListInput 消息列表參數，Page 從 1 開始
type ListInput struct {
	GroupID string
	UserID  string
	Page    int
	Limit   int
}

func (s *Service) normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.opts.DefaultPageSize
	}
	if limit > s.opts.MaxPageSize {
		limit = s.opts.MaxPageSize
	}
	return page, limit
}

// ListMessages 取得用戶在群組中可見的消息，分頁按最新優先取出，返回時由舊到新排列
func (s *Service) ListMessages(ctx context.Context, in ListInput) (*MessagePage, error) {
	group, err := s.memberGroup(ctx, in.GroupID, in.UserID)
	if err != nil {
		return nil, err
	}

	page, limit := s.normalizePage(in.Page, in.Limit)
	q := MessageQuery{
		GroupID: group.ID,
		Skip:    (page - 1) * limit,
		Limit:   limit,
	}
	cutoff, hasCutoff := Cutoff(group, in.UserID, PolicyFull)
	if hasCutoff {
		q.After = &cutoff
	}

	msgs, total, err := s.messages.ListVisible(ctx, q)
	if err != nil {
		return nil, apperr.Internal(msgInternal, err)
	}
	slices.Reverse(msgs)

	views, warnings := s.enrich(ctx, msgs, enrichOptions{reactions: true})
	redactReplies(views, cutoff, hasCutoff)
	return &MessagePage{
		Messages: views,
		Pagination: Pagination{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasMore: int64(q.Skip+len(msgs)) < total,
		},
		Warnings: warnings,
	}, nil
}

// LastMessages 用戶所在每個群組的最後一則消息。
// 只以刪除歷史時間過濾，最後消息不晚於該時間的群組視為空對話而略過。
func (s *Service) LastMessages(ctx context.Context, userID string) ([]LastMessage, []EnrichmentError, error) {
	groups, err := s.groups.ListForMember(ctx, userID)
	if err != nil {
		return nil, nil, apperr.Internal(msgInternal, err)
	}
	if len(groups) == 0 {
		return []LastMessage{}, nil, nil
	}

	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	last, err := s.messages.LastPerGroup(ctx, ids)
	if err != nil {
		return nil, nil, apperr.Internal(msgInternal, err)
	}

	kept := make([]*Group, 0, len(groups))
	msgs := make([]*Message, 0, len(groups))
	cutoffs := make([]time.Time, 0, len(groups))
	for _, g := range groups {
		m, ok := last[g.ID]
		if !ok {
			continue
		}
		cutoff, has := Cutoff(g, userID, PolicyHistoryOnly)
		if !VisibleAfter(m, cutoff, has) {
			continue
		}
		kept = append(kept, g)
		msgs = append(msgs, m)
		cutoffs = append(cutoffs, cutoff)
	}

	views, warnings := s.enrich(ctx, msgs, enrichOptions{})
	rows := make([]LastMessage, 0, len(kept))
	for i, g := range kept {
		redactReplies(views[i:i+1], cutoffs[i], !cutoffs[i].IsZero())
		rows = append(rows, LastMessage{
			GroupID:     g.ID,
			GroupName:   g.Name,
			LastMessage: views[i],
		})
	}
	slices.SortStableFunc(rows, func(a, b LastMessage) int {
		return b.LastMessage.CreatedAt.Compare(a.LastMessage.CreatedAt)
	})

	logger.Debug(ctx, "載入最後消息列表",
		logger.WithUserID(userID),
		logger.WithDetails(map[string]interface{}{"groups": len(groups), "rows": len(rows)}))
	return rows, warnings, nil
}
