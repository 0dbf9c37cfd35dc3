package realtime

import (
	"context"
	"fmt"

	"groupchat-gateway/internal/platform/logger"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Broker 事件的跨實例分發
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	// Run 阻塞直到 ctx 結束，期間將收到的事件交給本機 Hub
	Run(ctx context.Context) error
	Close() error
}

// LocalBroker 單實例部署，直接投遞給本機 Hub
type LocalBroker struct {
	hub *Hub
}

// NewLocalBroker 創建單實例 Broker
func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

// Publish 直接投遞
func (b *LocalBroker) Publish(ctx context.Context, env Envelope) error {
	b.hub.Deliver(ctx, env)
	return nil
}

// Run 無需訂閱
func (b *LocalBroker) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Close 無資源需要釋放
func (b *LocalBroker) Close() error { return nil }

// RedisBroker 透過 Redis Pub/Sub 廣播 msgpack 編碼的 Envelope。
// 發布者本身也訂閱同一頻道，本機投遞統一走訂閱路徑。
type RedisBroker struct {
	client  *redis.Client
	channel string
	hub     *Hub
}

// NewRedisBroker 創建 Redis Broker
func NewRedisBroker(client *redis.Client, channel string, hub *Hub) *RedisBroker {
	return &RedisBroker{client: client, channel: channel, hub: hub}
}

// Publish 發布到 Redis 頻道
func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	data, err := msgpack.Marshal(&env)
	if err != nil {
		return fmt.Errorf("編碼事件失敗: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("發布事件失敗: %w", err)
	}
	return nil
}

// Run 訂閱頻道並投遞給本機 Hub
func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// 等待訂閱確認，確保之後發布的事件不會遺漏
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("訂閱 %s 失敗: %w", b.channel, err)
	}
	logger.Info(ctx, "已訂閱即時事件頻道", logger.WithDetails(map[string]interface{}{"channel": b.channel}))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := b.deliverPayload(ctx, msg.Payload); err != nil {
				logger.Warning(ctx, "無法解碼即時事件", logger.WithError(err))
			}
		}
	}
}

// deliverPayload 解碼一則頻道訊息並交給本機 Hub
func (b *RedisBroker) deliverPayload(ctx context.Context, payload string) error {
	var env Envelope
	if err := msgpack.Unmarshal([]byte(payload), &env); err != nil {
		return err
	}
	b.hub.Deliver(ctx, env)
	return nil
}

// Close Redis 客戶端由 driver 管理，這裡不關閉
func (b *RedisBroker) Close() error { return nil }
