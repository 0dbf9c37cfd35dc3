// 手動執行一次孤兒引用修復，例如在大量刪除用戶之後。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"groupchat-gateway/internal/platform/config"
	"groupchat-gateway/internal/platform/driver"
	"groupchat-gateway/internal/platform/logger"
	"groupchat-gateway/internal/reconcile"
	"groupchat-gateway/internal/security/audit"
	"groupchat-gateway/internal/storage/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	targetsFlag := flag.String("targets", "", "以逗號分隔的 collection.field，預設使用配置")
	batch := flag.Int("batch", 0, "每批處理的引用數量，預設使用配置")
	flag.Parse()

	if err := logger.InitLogger(); err != nil {
		return err
	}
	defer logger.CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.Get()

	targetList := cfg.Reconcile.Targets
	if *targetsFlag != "" {
		targetList = strings.Split(*targetsFlag, ",")
	}
	targets, err := reconcile.ParseTargets(targetList)
	if err != nil {
		return err
	}
	batchSize := cfg.Reconcile.BatchSize
	if *batch > 0 {
		batchSize = *batch
	}

	if err := driver.ConnectMongo(ctx); err != nil {
		return err
	}
	defer func() {
		if err := driver.CloseMongo(); err != nil {
			logger.Errorf(ctx, "關閉 MongoDB 連接失敗: %v", err)
		}
	}()

	repos := database.NewRepositories(ctx, driver.GetMongoDatabase())
	r := reconcile.New(repos.OrphanReferences(), audit.NewAuditService(cfg.Security.Audit.Enabled), reconcile.Options{
		Targets:          targets,
		SentinelUsername: cfg.Reconcile.SentinelUsername,
		BatchSize:        batchSize,
	})

	report, err := r.RunOnce(ctx)
	if err != nil {
		return err
	}

	for _, res := range report.Results {
		status := "ok"
		if res.Error != "" {
			status = "error: " + res.Error
		}
		fmt.Printf("%-32s rewritten=%-6d %s\n", res.Target, res.Rewritten, status)
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d 個目標修復失敗", n)
	}
	return nil
}
