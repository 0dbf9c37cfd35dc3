package middleware

import (
	"net/http"
	"sync"
	"time"

	"groupchat-gateway/internal/constants"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterEntry 單一訪問者的令牌桶
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 以用戶（未認證時為 IP）為鍵的令牌桶限流器
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter 創建限流器；perMinute 為每分鐘允許的請求數
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = constants.DefaultRateLimitPerMinute
	}
	if burst <= 0 {
		burst = constants.DefaultRateLimitBurst
	}
	rl := &RateLimiter{
		visitors: make(map[string]*limiterEntry),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		ttl:      constants.RateLimitCleanupIntervalMin * time.Minute,
		stop:     make(chan struct{}),
	}

	go rl.cleanupVisitors()

	return rl
}

// Allow 檢查是否允許請求
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	entry, ok := rl.visitors[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// Middleware 返回 Gin 中間件；需放在認證之後才能以用戶為鍵
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(visitorKey(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"message":    "Trop de requêtes, veuillez réessayer plus tard",
				"request_id": GetRequestID(c),
			})
			return
		}
		c.Next()
	}
}

// Stop 停止背景清理
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// cleanupVisitors 定期清理長時間沒有活動的記錄
func (rl *RateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.ttl)
			rl.mu.Lock()
			for key, entry := range rl.visitors {
				if entry.lastSeen.Before(cutoff) {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func visitorKey(c *gin.Context) string {
	if userID := GetUserID(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + GetClientIP(c)
}
