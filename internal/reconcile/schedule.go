package reconcile

import (
	"context"
	"errors"
	"time"

	"groupchat-gateway/internal/platform/logger"

	"github.com/adhocore/gronx"
)

// ValidateCron 檢查 cron 表達式
func ValidateCron(expr string) bool {
	return gronx.IsValid(expr)
}

// Start 依 cron 排程在背景執行，返回停止函數
func (r *Reconciler) Start(ctx context.Context) (context.CancelFunc, error) {
	if !ValidateCron(r.opts.Cron) {
		return nil, errors.New("無效的 cron 表達式: " + r.opts.Cron)
	}

	ctx, cancel := context.WithCancel(ctx)
	logger.Info(ctx, "孤兒引用修復已啟用",
		logger.WithAction("reconcile"),
		logger.WithDetails(map[string]interface{}{"cron": r.opts.Cron}))
	go r.scheduleLoop(ctx)
	return cancel, nil
}

func (r *Reconciler) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(r.opts.Cron, r.clock(), false)
		if err != nil {
			logger.Error(ctx, "計算下次執行時間失敗", logger.WithError(err))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}

		select {
		case <-time.After(wait):
			r.runScheduled(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) runScheduled(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			logger.Info(ctx, "上一次修復尚未結束，略過本次排程")
			return
		}
		logger.Error(ctx, "孤兒引用修復失敗", logger.WithError(err))
	}
}
