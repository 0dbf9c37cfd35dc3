package middleware

import (
	"fmt"
	"time"

	"groupchat-gateway/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

// AccessLogMiddleware 以 GCP httpRequest 格式記錄每個請求
func AccessLogMiddleware(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if skip[c.Request.URL.Path] {
			return
		}

		status := c.Writer.Status()
		req := &logger.HTTPRequest{
			RequestMethod: c.Request.Method,
			RequestURL:    c.Request.URL.Path,
			Status:        status,
			ResponseSize:  int64(c.Writer.Size()),
			UserAgent:     c.Request.UserAgent(),
			RemoteIP:      GetClientIP(c),
			Latency:       fmt.Sprintf("%.3fs", time.Since(start).Seconds()),
			Protocol:      c.Request.Proto,
		}

		opts := []logger.LogOption{logger.WithHTTPRequest(req)}
		if userID := GetUserID(c); userID != "" {
			opts = append(opts, logger.WithUserID(userID))
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			logger.Error(ctx, "HTTP 請求", opts...)
		case status >= 400:
			logger.Warning(ctx, "HTTP 請求", opts...)
		default:
			logger.Info(ctx, "HTTP 請求", opts...)
		}
	}
}
