package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"groupchat-gateway/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

const (
	// 健康狀態常數.
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusWarning   = "warning"
	statusDisabled  = "disabled"

	// 記憶體相關常數.
	memoryMB        = 1024 * 1024
	memoryThreshold = 1024 // 1GB

	// 超時常數.
	checkTimeout = 5 * time.Second
)

// Checker 依賴的連線檢查，nil 表示未啟用.
type Checker func(ctx context.Context) error

// StatsFunc 附加的統計資訊.
type StatsFunc func() map[string]interface{}

// Handler 健康檢查處理器.
type Handler struct {
	appName  string
	debug    bool
	mongo    Checker
	redis    Checker
	realtime StatsFunc
}

// NewHealthHandler 創建新的健康檢查處理器.
func NewHealthHandler(appName string, debug bool, mongo, redis Checker, realtime StatsFunc) *Handler {
	return &Handler{
		appName:  appName,
		debug:    debug,
		mongo:    mongo,
		redis:    redis,
		realtime: realtime,
	}
}

// HealthCheck 健康檢查端點.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	mongoStatus := h.check(ctx, "mongodb", h.mongo)
	redisStatus := h.check(ctx, "redis", h.redis)
	systemStatus := h.checkSystemResources()

	// 從環境變數讀取版本，沒有則用預設值
	appVersion := os.Getenv("APP_VERSION")
	if appVersion == "" {
		appVersion = "NO_VERSION_SET"
	}

	response := gin.H{
		"status":    statusHealthy,
		"timestamp": time.Now().Unix(),
		"app": gin.H{
			"name":    h.appName,
			"version": appVersion,
			"debug":   h.debug,
		},
		"database": mongoStatus,
		"redis":    redisStatus,
		"system": gin.H{
			"status":  systemStatus.Status,
			"details": systemStatus.Details,
			"uptime":  time.Since(startTime).String(),
		},
	}
	if h.realtime != nil {
		response["realtime"] = h.realtime()
	}

	if mongoStatus["status"] == statusUnhealthy || redisStatus["status"] == statusUnhealthy {
		response["status"] = "degraded"
	}

	// 依賴不健康時仍返回 200.
	c.JSON(http.StatusOK, response)
}

func (h *Handler) check(ctx context.Context, name string, checker Checker) gin.H {
	if checker == nil {
		return gin.H{"status": statusDisabled}
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	if err := checker(ctx); err != nil {
		logger.Error(ctx, fmt.Sprintf("健康檢查 - %s 連線失敗", name), logger.WithError(err))
		return gin.H{"status": statusUnhealthy, "error": err.Error()}
	}
	return gin.H{"status": statusHealthy, "latency": time.Since(start).String()}
}

// SystemStatus 系統狀態.
type SystemStatus struct {
	Status  string                 `json:"status"`
	Details map[string]interface{} `json:"details"`
}

// checkSystemResources 檢查系統資源.
func (h *Handler) checkSystemResources() SystemStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	details := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"memory": gin.H{
			"alloc":       fmt.Sprintf("%.2f MB", float64(m.Alloc)/memoryMB),
			"total_alloc": fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/memoryMB),
			"sys":         fmt.Sprintf("%.2f MB", float64(m.Sys)/memoryMB),
			"num_gc":      m.NumGC,
		},
		"cpu": gin.H{
			"num_cpu": runtime.NumCPU(),
		},
	}

	// 記憶體超過 1GB 視為警告
	status := statusHealthy
	if m.Sys/memoryMB > memoryThreshold {
		status = statusWarning
		details["memory_warning"] = "Memory usage is high"
	}

	return SystemStatus{
		Status:  status,
		Details: details,
	}
}

// 記錄服務啟動時間.
var startTime = time.Now()
