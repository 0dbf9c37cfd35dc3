// Package audit 審計記錄：消息刪除、存取拒絕與孤兒引用修復。
package audit

import (
	"context"
	"time"

	"groupchat-gateway/internal/chat"
	"groupchat-gateway/internal/platform/logger"
	"groupchat-gateway/internal/platform/middleware"
	"groupchat-gateway/internal/reconcile"
)

// AuditService 審計服務
type AuditService struct {
	enabled bool
	clock   func() time.Time
	sink    func(ctx context.Context, event AuditEvent)
}

// NewAuditService 創建審計服務
func NewAuditService(enabled bool) *AuditService {
	return &AuditService{
		enabled: enabled,
		clock:   time.Now,
		sink:    writeEvent,
	}
}

// AuditEvent 審計事件
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	UserID    string                 `json:"user_id,omitempty"`
	GroupID   string                 `json:"group_id,omitempty"`
	MessageID string                 `json:"message_id,omitempty"`
	Action    string                 `json:"action"`
	Result    string                 `json:"result"` // success, failure, denied
	Details   map[string]interface{} `json:"details,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// LogMessageDeleted 記錄消息刪除及刪除者的身份
func (a *AuditService) LogMessageDeleted(ctx context.Context, actorID, groupID, messageID string, reason chat.DeletionReason) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: a.clock().UTC(),
		EventType: "message_deleted",
		UserID:    actorID,
		GroupID:   groupID,
		MessageID: messageID,
		Action:    "delete_message",
		Result:    "success",
		Details: map[string]interface{}{
			"reason": string(reason),
		},
	}

	a.enrichWithMetadata(ctx, &event)
	a.sink(ctx, event)
}

// LogAccessDenied 記錄訪問被拒絕
func (a *AuditService) LogAccessDenied(ctx context.Context, userID, groupID, action, reason string) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: a.clock().UTC(),
		EventType: "access_denied",
		UserID:    userID,
		GroupID:   groupID,
		Action:    action,
		Result:    "denied",
		Details: map[string]interface{}{
			"reason": reason,
		},
	}

	a.enrichWithMetadata(ctx, &event)
	a.sink(ctx, event)
}

// LogReconcileRun 記錄一次孤兒引用修復
func (a *AuditService) LogReconcileRun(ctx context.Context, report *reconcile.Report) {
	if !a.enabled || report == nil {
		return
	}

	result := "success"
	if report.Failed() > 0 {
		result = "failure"
	}

	event := AuditEvent{
		Timestamp: a.clock().UTC(),
		EventType: "orphan_reconcile",
		Action:    "rewrite_references",
		Result:    result,
		Details: map[string]interface{}{
			"run_id":      report.RunID,
			"sentinel_id": report.SentinelID,
			"rewritten":   report.Rewritten(),
			"failed":      report.Failed(),
			"results":     report.Results,
			"duration":    report.FinishedAt.Sub(report.StartedAt).String(),
		},
	}

	a.sink(ctx, event)
}

// IsEnabled 檢查審計是否啟用
func (a *AuditService) IsEnabled() bool {
	return a.enabled
}

// enrichWithMetadata 從 context 提取請求元數據
func (a *AuditService) enrichWithMetadata(ctx context.Context, event *AuditEvent) {
	meta := middleware.GetRequestMetadata(ctx)
	event.IPAddress = meta.IPAddress
	event.UserAgent = meta.UserAgent
	event.RequestID = meta.RequestID
}

// writeEvent 以 NOTICE 級別寫入結構化日誌，labels 標記為審計記錄
func writeEvent(ctx context.Context, event AuditEvent) {
	details := map[string]interface{}{
		"event_type": event.EventType,
		"result":     event.Result,
		"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
	}
	for k, v := range event.Details {
		details[k] = v
	}
	if event.IPAddress != "" {
		details["ip_address"] = event.IPAddress
	}
	if event.UserAgent != "" {
		details["user_agent"] = event.UserAgent
	}
	if event.RequestID != "" {
		details["request_id"] = event.RequestID
	}

	logger.Notice(ctx, "[AUDIT] "+event.EventType,
		logger.WithLabels(map[string]string{"log_type": "audit"}),
		logger.WithAction(event.Action),
		logger.WithUserID(event.UserID),
		logger.WithGroupID(event.GroupID),
		logger.WithMessageID(event.MessageID),
		logger.WithDetails(details))
}
