package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"groupchat-gateway/internal/platform/logger"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	idleTimeout            = 120 * time.Second
)

// HTTPServer HTTP 伺服器.
type HTTPServer struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

// NewHTTPServer 創建 HTTP 伺服器；readTimeoutSec <= 0 表示不設限.
func NewHTTPServer(addr string, handler http.Handler, readTimeoutSec int) *HTTPServer {
	return &HTTPServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       time.Duration(readTimeoutSec) * time.Second,
			WriteTimeout:      0, // websocket 需要長連接，設為 0 表示不超時
			IdleTimeout:       idleTimeout,
		},
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// Run 開始監聽，ctx 結束時優雅關閉.
func (s *HTTPServer) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve 在指定的 listener 上提供服務.
func (s *HTTPServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP 伺服器正在監聽", logger.WithDetails(map[string]interface{}{"addr": lis.Addr().String()}))
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(ctx, "收到關閉信號，正在優雅關閉 HTTP 伺服器...", logger.WithAction("shutdown"))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP 伺服器關閉失敗", logger.WithError(err))
		return err
	}

	logger.Info(ctx, "HTTP 伺服器已優雅關閉")
	return <-errCh
}
