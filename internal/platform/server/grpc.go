package server

import (
	"context"
	"net"
	"time"

	"groupchat-gateway/internal/platform/config"
	"groupchat-gateway/internal/platform/logger"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// HealthServer 提供 grpc.health.v1 的 gRPC 服務器
type HealthServer struct {
	grpcServer *grpc.Server
	health     *grpchealth.Server
}

// NewHealthServer 創建 gRPC 健康檢查服務器，依 TLS 配置決定是否加密
func NewHealthServer(tlsCfg config.TLSConfig) (*HealthServer, error) {
	opts := []grpc.ServerOption{grpc.UnaryInterceptor(loggingInterceptor)}

	creds, err := LoadTLSCredentials(tlsCfg)
	if err != nil {
		return nil, err
	}
	if creds != nil {
		opts = append(opts, grpc.Creds(creds))
	}

	s := &HealthServer{
		grpcServer: grpc.NewServer(opts...),
		health:     grpchealth.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	return s, nil
}

// SetServing 更新整體服務狀態
func (s *HealthServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
}

// Start 監聽地址並開始服務，直到 Stop
func (s *HealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve 在指定的 listener 上提供服務
func (s *HealthServer) Serve(lis net.Listener) error {
	logger.Info(context.Background(), "gRPC 健康檢查服務正在監聽",
		logger.WithDetails(map[string]interface{}{"addr": lis.Addr().String()}))
	return s.grpcServer.Serve(lis)
}

// Stop 標記為不可用並優雅停止
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		logger.Warning(ctx, "gRPC 請求失敗",
			logger.WithAction(info.FullMethod),
			logger.WithError(err),
			logger.WithDetails(map[string]interface{}{
				"code":    status.Code(err).String(),
				"latency": time.Since(start).String(),
			}))
	}
	return resp, err
}
