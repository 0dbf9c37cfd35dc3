package driver

import (
	"context"
	"fmt"
	"time"

	"groupchat-gateway/internal/platform/config"
	"groupchat-gateway/internal/platform/logger"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// ConnectRedis 連接 Redis；未啟用時返回 nil 且不建立連線.
func ConnectRedis(ctx context.Context) error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("配置未載入")
	}
	if !cfg.Redis.Enabled {
		logger.Info(ctx, "Redis 未啟用，使用單實例廣播且不快取用戶資料")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	redisClient = client
	logger.Info(ctx, "Redis 連接成功", logger.WithDetails(map[string]interface{}{
		"addr": cfg.Redis.Addr,
		"db":   cfg.Redis.DB,
	}))
	return nil
}

// GetRedisClient 獲取 Redis 客戶端，未啟用時為 nil.
func GetRedisClient() *redis.Client {
	return redisClient
}

// PingRedis 檢查 Redis 連線.
func PingRedis(ctx context.Context) error {
	if redisClient == nil {
		return fmt.Errorf("redis not enabled")
	}
	return redisClient.Ping(ctx).Err()
}

// CloseRedis 關閉 Redis 連接.
func CloseRedis() error {
	if redisClient == nil {
		return nil
	}
	err := redisClient.Close()
	redisClient = nil
	return err
}
