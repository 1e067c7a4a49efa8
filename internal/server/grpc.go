package server

import (
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"saas-control-plane/backend/internal/health"
	healthhandler "saas-control-plane/backend/internal/health/handler"
	"saas-control-plane/backend/internal/server/interceptors"
)

// GRPCDeps configures the gRPC server.
type GRPCDeps struct {
	// Tokens validates Bearer tokens on protected RPCs. If nil, no auth interceptor is installed.
	Tokens interceptors.TokenValidator
	// Health backs grpc.health.v1.Health/Check. If nil, Check always reports SERVING.
	Health *health.Checker
	Logger *slog.Logger
}

// publicMethods do not require a Bearer token.
var publicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// NewGRPCServer returns a gRPC server exposing the health service, instrumented with OpenTelemetry.
func NewGRPCServer(deps GRPCDeps, opts ...grpc.ServerOption) *grpc.Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	chain := []grpc.UnaryServerInterceptor{
		interceptors.RequestContextUnary(),
		interceptors.LoggingUnary(deps.Logger, publicMethods),
	}
	if deps.Tokens != nil {
		chain = append(chain, interceptors.AuthUnary(deps.Tokens, publicMethods))
	}
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(chain...),
	}, opts...)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.Health))
	return s
}
