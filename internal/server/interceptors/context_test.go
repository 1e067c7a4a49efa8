package interceptors

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"saas-control-plane/backend/internal/platform/reqctx"
)

func TestClientIP(t *testing.T) {
	withPeer := peer.NewContext(context.Background(), &peer.Peer{
		Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.7"), Port: 51234},
	})
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"forwarded for", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", "203.0.113.5, 10.0.0.1")), "203.0.113.5"},
		{"real ip", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-real-ip", "198.51.100.2")), "198.51.100.2"},
		{"peer", withPeer, "10.0.0.7"},
		{"nothing", context.Background(), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientIP(tt.ctx); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestContextUnary(t *testing.T) {
	interceptor := RequestContextUnary()
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		"x-request-id", "req-42",
		"x-real-ip", "198.51.100.2",
	))
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/test.Service/M"}, func(ctx context.Context, _ interface{}) (interface{}, error) {
		if got := reqctx.RequestID(ctx); got != "req-42" {
			t.Errorf("RequestID = %q", got)
		}
		if got := reqctx.ClientIP(ctx); got != "198.51.100.2" {
			t.Errorf("ClientIP = %q", got)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ interface{}) (interface{}, error) {
		if reqctx.RequestID(ctx) == "" {
			t.Error("request ID should be generated when missing")
		}
		return nil, nil
	})
}
