package server

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"groupchat-gateway/internal/constants"
	"groupchat-gateway/internal/message"
	"groupchat-gateway/internal/platform/config"
	"groupchat-gateway/internal/platform/health"
	"groupchat-gateway/internal/platform/metrics"
	"groupchat-gateway/internal/platform/middleware"
	"groupchat-gateway/internal/realtime"

	"github.com/gin-gonic/gin"
)

// RouterDeps 路由依賴.
type RouterDeps struct {
	Config   *config.Config
	Auth     *middleware.JWTMiddleware
	Messages *message.MessageHandler
	Realtime *realtime.Server
	Health   *health.Handler
}

// Router HTTP 路由與它持有的背景清理任務.
type Router struct {
	Engine   *gin.Engine
	limiters []*middleware.RateLimiter
}

// Close 停止限流器的清理循環.
func (r *Router) Close() {
	for _, l := range r.limiters {
		l.Stop()
	}
}

// securityHeadersMiddleware 添加安全標頭
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 防止點擊劫持
		c.Header("X-Frame-Options", "DENY")

		// 防止 MIME 類型嗅探
		c.Header("X-Content-Type-Options", "nosniff")

		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		c.Next()
	}
}

// corsMiddleware 只允許配置中的來源，"*" 表示任意來源
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAny := slices.Contains(allowed, "*")
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (allowAny || slices.Contains(allowed, origin)) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400") // 預檢請求緩存 24 小時

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// NewRouter 設定路由.
func NewRouter(deps RouterDeps) *Router {
	cfg := deps.Config
	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	router := &Router{Engine: r}

	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins))

	// 添加請求 ID 中間件（最優先）
	r.Use(middleware.RequestIDMiddleware())
	r.Use(securityHeadersMiddleware())
	r.Use(middleware.RequestMetadataMiddleware())
	r.Use(middleware.AccessLogMiddleware("/health", "/metrics"))

	maxBody := cfg.Limits.Request.MaxBodySize
	if maxBody <= 0 {
		maxBody = constants.DefaultMaxRequestBodySize
	}
	r.Use(middleware.RequestSizeLimiter(maxBody))

	if deps.Health != nil {
		r.GET("/health", deps.Health.HealthCheck)
	}
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1", deps.Auth.GinMiddleware(false))
	var limits message.RouteLimits
	if rl := cfg.Limits.RateLimiting; rl.Enabled {
		general := router.limiter(rl.DefaultPerMinute, rl.Burst)
		api.Use(general.Middleware())
		limits.Messages = router.limiter(rl.MessagesPerMin, rl.Burst).Middleware()
		limits.Reactions = router.limiter(rl.ReactionsPerMin, rl.Burst).Middleware()
	}
	if deps.Messages != nil {
		deps.Messages.RegisterRoutes(api, limits)
	}

	if deps.Realtime != nil {
		wsLimiter := middleware.NewWSConnectLimiter(constants.DefaultWSMinConnectInterval * time.Second)
		r.GET("/ws", deps.Auth.GinMiddleware(true), wsLimiter.Middleware(), func(c *gin.Context) {
			deps.Realtime.Serve(c.Writer, c.Request, middleware.GetUserID(c))
		})
	}

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Route introuvable"})
			return
		}
		c.Status(http.StatusNotFound)
	})

	return router
}

func (r *Router) limiter(perMinute, burst int) *middleware.RateLimiter {
	l := middleware.NewRateLimiter(perMinute, burst)
	r.limiters = append(r.limiters, l)
	return l
}
