package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupchat-gateway/internal/chat"
	"groupchat-gateway/internal/message"
	"groupchat-gateway/internal/platform/config"
	"groupchat-gateway/internal/platform/driver"
	"groupchat-gateway/internal/platform/health"
	"groupchat-gateway/internal/platform/logger"
	"groupchat-gateway/internal/platform/middleware"
	"groupchat-gateway/internal/platform/server"
	"groupchat-gateway/internal/realtime"
	"groupchat-gateway/internal/reconcile"
	"groupchat-gateway/internal/security/audit"
	"groupchat-gateway/internal/storage/cache"
	"groupchat-gateway/internal/storage/database"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := mainNoExit(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// mainNoExit 分離主要邏輯以避免 exitAfterDefer 問題，確保 defer 函數正常執行.
func mainNoExit() error {
	// 初始化日誌.
	if err := logger.InitLogger(); err != nil {
		return err
	}
	defer logger.CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 載入配置.
	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.Get()
	logger.Info(ctx, "設定載入成功", logger.WithDetails(map[string]interface{}{
		"env":     config.GetEnv(),
		"broker":  cfg.Realtime.Broker,
		"version": cfg.App.Version,
	}))

	// 連接資料庫.
	if err := driver.ConnectMongo(ctx); err != nil {
		return err
	}
	defer func() {
		if err := driver.CloseMongo(); err != nil {
			logger.Errorf(ctx, "關閉 MongoDB 連接失敗: %v", err)
		}
	}()

	if err := driver.ConnectRedis(ctx); err != nil {
		return err
	}
	defer func() {
		if err := driver.CloseRedis(); err != nil {
			logger.Errorf(ctx, "關閉 Redis 連接失敗: %v", err)
		}
	}()
	redisClient := driver.GetRedisClient()

	// 初始化 Repository.
	repos := database.NewRepositories(ctx, driver.GetMongoDatabase())
	auditor := audit.NewAuditService(cfg.Security.Audit.Enabled)

	// 即時廣播
	ws := cfg.Limits.WebSocket
	hub := realtime.NewHub(ws.MaxConnsPerUser, ws.MaxTotalConns)
	defer hub.Close()

	broker, err := newBroker(cfg, redisClient, hub)
	if err != nil {
		return err
	}
	defer broker.Close()
	go func() {
		if err := broker.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Critical(ctx, "即時廣播訂閱中斷", logger.WithError(err))
			stop()
		}
	}()

	// 聊天服務
	svc := chat.NewService(chat.Dependencies{
		Messages:  repos.Messages,
		Reactions: repos.Reactions,
		Groups:    repos.Groups,
		Users:     newUserDirectory(cfg, repos, redisClient),
		Contents:  repos.Contents,
		Notifier:  realtime.NewPublisher(broker),
		Auditor:   auditor,
	}, chat.WithOptions(chat.Options{
		MaxContentLength: cfg.Limits.Message.MaxLength,
		DefaultPageSize:  cfg.Limits.Pagination.DefaultPageSize,
		MaxPageSize:      cfg.Limits.Pagination.MaxPageSize,
		RefreshBatch:     ws.RefreshBatchSize,
	}))

	// 孤兒引用定期修復
	if cfg.Reconcile.Enabled {
		stopReconcile, err := startReconciler(ctx, cfg, repos, auditor)
		if err != nil {
			return err
		}
		defer stopReconcile()
	}

	// HTTP 路由
	auth := cfg.Security.Authentication
	if !auth.JWTEnabled {
		logger.Warning(ctx, "[WARNING] JWT 認證未啟用，身份取自 X-User-ID 標頭，僅限開發環境")
	}
	var redisCheck health.Checker
	if redisClient != nil {
		redisCheck = driver.PingRedis
	}
	router := server.NewRouter(server.RouterDeps{
		Config:   cfg,
		Auth:     middleware.NewJWTMiddleware(auth.JWTSecret, auth.CookieName, auth.Issuer, auth.JWTEnabled),
		Messages: message.NewMessageHandler(svc, auditor),
		Realtime: realtime.NewServer(hub, broker, svc, realtime.Options{
			SendBuffer:     ws.SendBuffer,
			MaxMessageSize: ws.MaxMessageSize,
			PingInterval:   time.Duration(ws.PingIntervalSec) * time.Second,
			PongWait:       time.Duration(ws.PongWaitSec) * time.Second,
			WriteWait:      time.Duration(ws.WriteWaitSec) * time.Second,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}),
		Health: health.NewHealthHandler(cfg.App.Name, cfg.App.Debug, driver.PingMongo, redisCheck, hub.Stats),
	})
	defer router.Close()

	// 啟動 gRPC 健康檢查服務器
	if cfg.GRPC.Enabled {
		grpcServer, err := server.NewHealthServer(cfg.Security.TLS)
		if err != nil {
			logger.Error(ctx, "gRPC 服務器創建失敗", logger.WithError(err))
			return fmt.Errorf("server initialization failed")
		}
		go func() {
			if err := grpcServer.Start(config.GetGRPCAddr()); err != nil {
				logger.Errorf(ctx, "gRPC 服務器啟動失敗: %v", err)
			}
		}()
		grpcServer.SetServing(true)
		defer grpcServer.Stop()
	}

	logger.Info(ctx, "[System] 服務器啟動完成")
	httpServer := server.NewHTTPServer(config.GetServerAddr(), router.Engine, cfg.Server.Timeout)
	return httpServer.Run(ctx)
}

// newBroker 依配置選擇單實例或 Redis 廣播
func newBroker(cfg *config.Config, client *redis.Client, hub *realtime.Hub) (realtime.Broker, error) {
	switch cfg.Realtime.Broker {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("realtime.broker=redis 需要啟用 redis")
		}
		return realtime.NewRedisBroker(client, cfg.Redis.Channel, hub), nil
	default:
		return realtime.NewLocalBroker(hub), nil
	}
}

// newUserDirectory 啟用 Redis 時在用戶查詢前加上快取
func newUserDirectory(cfg *config.Config, repos *database.Repositories, client *redis.Client) chat.UserDirectory {
	if client == nil {
		return repos.Users
	}
	ttl := time.Duration(cfg.Redis.ProfileCacheTTL) * time.Second
	return cache.NewUserDirectory(repos.Users, cache.NewRedisKV(client), ttl)
}

func startReconciler(ctx context.Context, cfg *config.Config, repos *database.Repositories, auditor reconcile.Auditor) (context.CancelFunc, error) {
	targets, err := reconcile.ParseTargets(cfg.Reconcile.Targets)
	if err != nil {
		return nil, err
	}
	r := reconcile.New(repos.OrphanReferences(), auditor, reconcile.Options{
		Targets:          targets,
		SentinelUsername: cfg.Reconcile.SentinelUsername,
		BatchSize:        cfg.Reconcile.BatchSize,
		Cron:             cfg.Reconcile.Cron,
	})
	return r.Start(ctx)
}
