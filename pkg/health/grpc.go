package health

import (
	"context"

	"github.com/gogo/status"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
)

var GRPC = fx.Module("health.grpc",
	fx.Provide(NewGRPCServer),
	fx.Invoke(func(srv *grpc.Server, h *GRPCServer) {
		grpc_health_v1.RegisterHealthServer(srv, h)
	}),
)

// GRPCServer answers grpc.health.v1 checks from the same dependency checks as /readyz.
type GRPCServer struct {
	grpc_health_v1.UnimplementedHealthServer
	checker HealthService
}

func NewGRPCServer(checker HealthService) *GRPCServer {
	return &GRPCServer{checker: checker}
}

func (s *GRPCServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if s.checker == nil {
		return nil, status.Error(codes.Internal, "health checker not ready")
	}

	if s.checker.Check(ctx).Status != StatusHealthy {
		return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}

func (s *GRPCServer) Watch(req *grpc_health_v1.HealthCheckRequest, srv grpc_health_v1.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "Watch method not implemented")
}
