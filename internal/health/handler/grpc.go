package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"saas-control-plane/backend/internal/health"
)

// ServiceName is the gRPC health service name for the control plane. The empty name means the whole server.
const ServiceName = "saas.controlplane.v1"

// Server implements grpc.health.v1.Health for readiness/liveness.
type Server struct {
	healthpb.UnimplementedHealthServer
	checker *health.Checker
}

// NewServer returns a Health gRPC server. A nil checker always reports SERVING.
func NewServer(checker *health.Checker) *Server {
	return &Server{checker: checker}
}

// Check runs the readiness checks. A failing dependency yields NOT_SERVING, never a gRPC error.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	if s.checker == nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}
	if !s.checker.Check(ctx).Healthy() {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
