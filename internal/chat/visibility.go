package chat

import "time"

// CutoffPolicy 截止時間的計算規則
type CutoffPolicy int

const (
	// PolicyFull 先看隱藏時間，再看刪除歷史時間（消息列表使用）
	PolicyFull CutoffPolicy = iota
	// PolicyHistoryOnly 只看刪除歷史時間（最後消息摘要使用）
	PolicyHistoryOnly
)

// Cutoff 計算用戶在群組中可見消息的截止時間。
// 第二個返回值為 false 表示沒有截止時間，所有消息可見。
func Cutoff(g *Group, userID string, policy CutoffPolicy) (time.Time, bool) {
	if g == nil {
		return time.Time{}, false
	}

	if policy == PolicyFull {
		for _, h := range g.HiddenForWithTimestamp {
			if h.UserID == userID {
				return h.HiddenAt, true
			}
		}
	}

	for _, h := range g.HistoryDeletedFor {
		if h.UserID == userID {
			return h.DeletedAt, true
		}
	}

	return time.Time{}, false
}

// VisibleAfter 消息必須嚴格晚於截止時間才可見
func VisibleAfter(m *Message, cutoff time.Time, hasCutoff bool) bool {
	return !hasCutoff || m.CreatedAt.After(cutoff)
}

// redactReplies 回覆目標不晚於截止時間時只保留其 ID
func redactReplies(views []MessageView, cutoff time.Time, hasCutoff bool) {
	if !hasCutoff {
		return
	}
	for i := range views {
		r := views[i].ReplyTo
		if r != nil && r.CreatedAt != nil && !r.CreatedAt.After(cutoff) {
			views[i].ReplyTo = &ReplyPreview{ID: r.ID}
		}
	}
}
