package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// WSConnectLimiter 限制同一來源建立 websocket 連線的頻率。
// 同時連線數由 realtime.Hub 控制，這裡只處理重連風暴。
type WSConnectLimiter struct {
	mu              sync.Mutex
	lastConnect     map[string]time.Time
	minInterval     time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

// NewWSConnectLimiter 創建 websocket 連線頻率限制器
func NewWSConnectLimiter(minInterval time.Duration) *WSConnectLimiter {
	limiter := &WSConnectLimiter{
		lastConnect:     make(map[string]time.Time),
		minInterval:     minInterval,
		cleanupInterval: 5 * time.Minute,
		now:             time.Now,
	}

	go limiter.cleanup()

	return limiter
}

// Middleware websocket 連線限制中間件，放在認證之後
func (l *WSConnectLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := GetUserID(c) + "|" + GetClientIP(c)
		if !l.allowConnection(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"message":    "Reconnexion trop rapide, veuillez patienter",
				"request_id": GetRequestID(c),
			})
			return
		}
		c.Next()
	}
}

// allowConnection 檢查連線間隔並記錄本次連線
func (l *WSConnectLimiter) allowConnection(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.lastConnect[key]; ok && now.Sub(last) < l.minInterval {
		return false
	}
	l.lastConnect[key] = now
	return true
}

// cleanup 定期清理過期記錄
func (l *WSConnectLimiter) cleanup() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := l.now()
		for key, last := range l.lastConnect {
			if now.Sub(last) > 10*time.Minute {
				delete(l.lastConnect, key)
			}
		}
		l.mu.Unlock()
	}
}
