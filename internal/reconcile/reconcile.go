// Package reconcile 將指向已刪除用戶的引用改寫為固定的「已刪除用戶」記錄。
//
// 每個目標（集合.欄位）獨立處理，單一目標失敗只記錄在報告中，不會中斷整次執行。
// 改寫是冪等的：已指向固定用戶的引用不會再被選中。
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"groupchat-gateway/internal/chat"
	"groupchat-gateway/internal/constants"
	"groupchat-gateway/internal/platform/logger"
	"groupchat-gateway/internal/platform/metrics"

	"github.com/google/uuid"
)

// ErrAlreadyRunning 上一次執行尚未結束
var ErrAlreadyRunning = errors.New("reconcile: already running")

// DefaultTargets 預設檢查的引用
var DefaultTargets = []string{
	"messages.author_id",
	"messages.shared.author_id",
	"comments.author_id",
}

// 單一目標最多處理的批次數，避免改寫沒有生效時無限循環
const maxBatchesPerTarget = 1000

// Store 孤兒引用的存儲操作
type Store interface {
	EnsureSentinel(ctx context.Context, username string) (string, error)
	DanglingReferences(ctx context.Context, collection, field, sentinelID string, limit int) ([]string, error)
	Rewrite(ctx context.Context, collection, field string, ids []string, sentinelID string) (int64, error)
}

// Auditor 執行結果的審計記錄
type Auditor interface {
	LogReconcileRun(ctx context.Context, report *Report)
}

// Target 需要檢查的集合和欄位
type Target struct {
	Collection string
	Field      string
}

func (t Target) String() string {
	return t.Collection + "." + t.Field
}

// ParseTarget 解析 "collection.field.path"，第一段為集合名稱
func ParseTarget(s string) (Target, error) {
	coll, field, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || coll == "" || field == "" {
		return Target{}, fmt.Errorf("無效的目標 %q，格式應為 collection.field", s)
	}
	return Target{Collection: coll, Field: field}, nil
}

// ParseTargets 解析多個目標
func ParseTargets(list []string) ([]Target, error) {
	targets := make([]Target, 0, len(list))
	for _, s := range list {
		t, err := ParseTarget(s)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// TargetResult 單一目標的結果
type TargetResult struct {
	Target    string `json:"target"`
	Dangling  int    `json:"dangling"`
	Rewritten int64  `json:"rewritten"`
	Error     string `json:"error,omitempty"`
}

// Report 一次執行的結果
type Report struct {
	RunID      string         `json:"runId"`
	SentinelID string         `json:"sentinelId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Results    []TargetResult `json:"results"`
}

// Rewritten 所有目標改寫的總數
func (r *Report) Rewritten() int64 {
	var n int64
	for _, res := range r.Results {
		n += res.Rewritten
	}
	return n
}

// Failed 失敗的目標數
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Error != "" {
			n++
		}
	}
	return n
}

// Options 執行參數
type Options struct {
	Targets          []Target
	SentinelUsername string
	BatchSize        int
	Cron             string
}

// Reconciler 孤兒引用修復
type Reconciler struct {
	store   Store
	auditor Auditor
	opts    Options
	clock   func() time.Time

	mu      sync.Mutex
	running bool
}

// New 創建 Reconciler
func New(store Store, auditor Auditor, opts Options) *Reconciler {
	if opts.SentinelUsername == "" {
		opts.SentinelUsername = chat.DeletedUsername
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = constants.DefaultReconcileBatch
	}
	if len(opts.Targets) == 0 {
		opts.Targets, _ = ParseTargets(DefaultTargets)
	}
	return &Reconciler{
		store:   store,
		auditor: auditor,
		opts:    opts,
		clock:   time.Now,
	}
}

// RunOnce 執行一次完整的修復；只有無法取得固定用戶時返回錯誤
func (r *Reconciler) RunOnce(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: r.clock().UTC(),
	}
	ctx = logger.WithTraceID(ctx, report.RunID)

	sentinelID, err := r.store.EnsureSentinel(ctx, r.opts.SentinelUsername)
	if err != nil {
		return nil, fmt.Errorf("取得已刪除用戶記錄失敗: %w", err)
	}
	report.SentinelID = sentinelID

	logger.Info(ctx, "開始修復孤兒引用",
		logger.WithAction("reconcile"),
		logger.WithDetails(map[string]interface{}{"targets": len(r.opts.Targets), "sentinel": sentinelID}))

	for _, t := range r.opts.Targets {
		res := r.reconcileTarget(ctx, t, sentinelID)
		report.Results = append(report.Results, res)
		if ctx.Err() != nil {
			break
		}
	}
	report.FinishedAt = r.clock().UTC()

	logger.Info(ctx, "孤兒引用修復完成",
		logger.WithAction("reconcile"),
		logger.WithDetails(map[string]interface{}{
			"rewritten": report.Rewritten(),
			"failed":    report.Failed(),
		}))
	if r.auditor != nil {
		r.auditor.LogReconcileRun(ctx, report)
	}
	return report, nil
}

// reconcileTarget 分批處理單一目標，錯誤和 panic 都記錄在結果中
func (r *Reconciler) reconcileTarget(ctx context.Context, t Target, sentinelID string) (res TargetResult) {
	res.Target = t.String()
	defer func() {
		if p := recover(); p != nil {
			res.Error = fmt.Sprintf("panic: %v", p)
		}
		if res.Error != "" {
			metrics.ReconcileFailures.WithLabelValues(res.Target).Inc()
			logger.Warning(ctx, "修復目標失敗",
				logger.WithAction("reconcile"),
				logger.WithDetails(map[string]interface{}{"target": res.Target, "error": res.Error}))
		}
	}()

	for batch := 0; batch < maxBatchesPerTarget; batch++ {
		ids, err := r.store.DanglingReferences(ctx, t.Collection, t.Field, sentinelID, r.opts.BatchSize)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		if len(ids) == 0 {
			return res
		}
		res.Dangling += len(ids)

		n, err := r.store.Rewrite(ctx, t.Collection, t.Field, ids, sentinelID)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		res.Rewritten += n
		metrics.ReconcileRewritten.WithLabelValues(res.Target).Add(float64(n))

		if n == 0 || len(ids) < r.opts.BatchSize {
			return res
		}
	}
	return res
}
