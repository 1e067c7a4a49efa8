package interceptors

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"saas-control-plane/backend/internal/platform/reqctx"
)

// LoggingUnary logs one line per RPC with its status code and duration. Methods in skipMethods are not logged.
func LoggingUnary(logger *slog.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
		}
		logger.LogAttrs(ctx, level, "grpc request",
			slog.String("method", info.FullMethod),
			slog.String("code", status.Code(err).String()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("client_ip", reqctx.ClientIP(ctx)),
			slog.String("request_id", reqctx.RequestID(ctx)),
		)
		return resp, err
	}
}
