package realtime

import (
	"context"

	"groupchat-gateway/internal/platform/logger"
	"groupchat-gateway/internal/platform/metrics"
)

// Publisher 將消息服務的事件交給 Broker。發送失敗只記錄，不返回給呼叫方。
type Publisher struct {
	broker Broker
}

// NewPublisher 創建 Publisher
func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker}
}

// ToGroup 推送到群組房間
func (p *Publisher) ToGroup(ctx context.Context, groupID, event string, payload any) {
	p.publish(ctx, GroupRoom(groupID), event, payload, nil)
}

// ToUser 推送到用戶房間
func (p *Publisher) ToUser(ctx context.Context, userID, event string, payload any) {
	p.publish(ctx, UserRoom(userID), event, payload, nil)
}

func (p *Publisher) publish(ctx context.Context, room, event string, payload any, evict *Eviction) {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		metrics.RealtimeEvents.WithLabelValues(event, "encode_error").Inc()
		logger.Error(ctx, "編碼即時事件失敗",
			logger.WithAction("realtime_publish"),
			logger.WithError(err),
			logger.WithDetails(map[string]interface{}{"event": event, "room": room}))
		return
	}

	env := Envelope{Room: room, Event: event, Frame: frame, Evict: evict}
	if err := p.broker.Publish(ctx, env); err != nil {
		metrics.RealtimeEvents.WithLabelValues(event, "error").Inc()
		logger.Warning(ctx, "發布即時事件失敗",
			logger.WithAction("realtime_publish"),
			logger.WithError(err),
			logger.WithDetails(map[string]interface{}{"event": event, "room": room}))
		return
	}
	metrics.RealtimeEvents.WithLabelValues(event, "ok").Inc()
}
