package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"saas-control-plane/backend/internal/platform/reqctx"
	"saas-control-plane/backend/internal/security"
)

// TokenValidator is implemented by *security.TokenProvider.
type TokenValidator interface {
	ValidateAccess(token string) (*security.AccessClaims, error)
}

var errUnauthenticated = status.Error(codes.Unauthenticated, "missing or invalid authorization")

// AuthUnary validates the bearer access token from gRPC metadata and puts the user ID on the context.
// Methods in publicMethods (e.g. grpc.health.v1.Health/Check) also run without a valid token.
func AuthUnary(tokens TokenValidator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		userID, ok := authenticate(ctx, tokens)
		switch {
		case ok:
			return handler(reqctx.WithUserID(ctx, userID), req)
		case publicMethods[info.FullMethod]:
			return handler(ctx, req)
		default:
			return nil, errUnauthenticated
		}
	}
}

func authenticate(ctx context.Context, tokens TokenValidator) (string, bool) {
	token := extractBearer(ctx)
	if token == "" {
		return "", false
	}
	claims, err := tokens.ValidateAccess(token)
	if err != nil || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	return security.BearerToken(vals[0])
}
