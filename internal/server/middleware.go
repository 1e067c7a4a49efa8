package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"saas-control-plane/backend/internal/platform/apperr"
	"saas-control-plane/backend/internal/platform/reqctx"
	"saas-control-plane/backend/internal/security"
)

// TokenValidator is implemented by *security.TokenProvider.
type TokenValidator interface {
	ValidateAccess(token string) (*security.AccessClaims, error)
}

// authenticate validates the Bearer (access) token from the Authorization header and sets the user ID
// in context. Requests without a valid token are rejected with 401.
func authenticate(tokens TokenValidator, writeErr func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := security.BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeErr(w, r, apperr.Unauthenticated("missing or invalid authorization"))
				return
			}
			claims, err := tokens.ValidateAccess(token)
			if err != nil || claims.Subject == "" {
				writeErr(w, r, apperr.Unauthenticated("missing or invalid authorization"))
				return
			}
			next.ServeHTTP(w, r.WithContext(reqctx.WithUserID(r.Context(), claims.Subject)))
		})
	}
}

// requestContext copies chi's request ID and the client address into reqctx so services and
// best-effort listeners can read them. Run after chi's RequestID and RealIP.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := chimiddleware.GetReqID(ctx); id != "" {
			ctx = reqctx.WithRequestID(ctx, id)
			w.Header().Set(chimiddleware.RequestIDHeader, id)
		}
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		if ip != "" {
			ctx = reqctx.WithClientIP(ctx, ip)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("client_ip", reqctx.ClientIP(r.Context())),
				slog.String("request_id", reqctx.RequestID(r.Context())),
			)
		})
	}
}
