// Server runs the control-plane HTTP API and the gRPC health endpoint.
// Migrations are applied on start. Set DATABASE_URL and JWT_PUBLIC_KEY (or JWT_PRIVATE_KEY).
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"saas-control-plane/backend/internal/app"
	"saas-control-plane/backend/internal/config"
	"saas-control-plane/backend/internal/db"
	"saas-control-plane/backend/internal/db/migrate"
	eventskafka "saas-control-plane/backend/internal/events/kafka"
	"saas-control-plane/backend/internal/notification/delivery"
	"saas-control-plane/backend/internal/security"
	telemetryotel "saas-control-plane/backend/internal/telemetry/otel"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: "saas-control-plane",
		Environment: cfg.Env,
		Insecure:    cfg.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}
	providers.SetGlobal()

	if err := migrate.Run(cfg.DatabaseURL, migrate.DirectionUp); err != nil {
		return err
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	tokens, err := tokenValidator(cfg)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable; delivery jobs and the redis role cache will fail until it recovers", "error", err)
	}

	queue := delivery.NewQueue(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queue.Close()

	mirror := eventskafka.NewMirror(cfg.EventsKafkaBrokersList(), cfg.EventsKafkaTopic)
	if mirror != nil {
		logger.Info("mirroring domain events to kafka", "topic", cfg.EventsKafkaTopic)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(cfg, app.Infra{
		DB:             conn,
		Tokens:         tokens,
		Redis:          rdb,
		Queue:          queue,
		Mirror:         mirror,
		LoggerProvider: providers.LoggerProvider,
		Registerer:     reg,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	grpcSrv := a.GRPCServer()
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		// Servers are stopped, so nothing publishes anymore; drain queued listeners before the
		// exporters go away.
		err = errors.Join(err, a.Close(shutdownCtx), providers.Shutdown(shutdownCtx))
		logger.Info("server stopped")
		return err
	})
	return g.Wait()
}

// tokenValidator returns a verify-only provider when JWT_PUBLIC_KEY is set, otherwise it derives
// the public key from JWT_PRIVATE_KEY.
func tokenValidator(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPublicKey != "" {
		pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		return security.NewTokenProvider(nil, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
	}
	if cfg.JWTPrivateKey != "" {
		priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
		if err != nil {
			return nil, err
		}
		return security.NewTokenProvider(priv, nil, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
	}
	return nil, errors.New("JWT_PUBLIC_KEY or JWT_PRIVATE_KEY must be set")
}
