// Worker runs the background side of the control plane:
//   - notification delivery: asynq tasks enqueued by the API server are sent through the delivery service;
//   - event stream: domain events mirrored to Kafka are pushed to Loki (when KAFKA_BROKERS and LOKI_URL are set).
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"saas-control-plane/backend/internal/config"
	"saas-control-plane/backend/internal/db"
	"saas-control-plane/backend/internal/notification/delivery"
	"saas-control-plane/backend/internal/telemetry/loki"
	"saas-control-plane/backend/internal/telemetry/stream"
	userrepo "saas-control-plane/backend/internal/user/repository"
)

const deliveryConcurrency = 10

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("worker: DATABASE_URL is required to resolve recipients")
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sender delivery.Sender = delivery.NewHTTPSender(cfg.DeliveryAPIKey, cfg.DeliveryBaseURL, cfg.DeliveryRatePerSec)
	if cfg.DeliveryBaseURL == "" {
		logger.Warn("worker: DELIVERY_BASE_URL not set; email and push are logged, not sent")
		sender = delivery.LogSender{Logger: logger}
	}
	worker := delivery.NewWorker(sender, userrepo.NewPostgresRepository(conn), logger.With("component", "delivery"))

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: deliveryConcurrency,
			Queues:      map[string]int{delivery.QueueName: 1},
			Logger:      newAsynqLogger(logger),
		},
	)
	mux := asynq.NewServeMux()
	worker.Register(mux)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker: delivery started", "queue", delivery.QueueName, "concurrency", deliveryConcurrency)
		if err := srv.Start(mux); err != nil {
			return err
		}
		<-gctx.Done()
		srv.Shutdown()
		return nil
	})

	consumer, err := newStreamConsumer(cfg, logger)
	if err != nil {
		return err
	}
	if consumer != nil {
		g.Go(func() error {
			logger.Info("worker: consuming event stream",
				"topic", cfg.EventsKafkaTopic, "group", cfg.KafkaGroupID, "loki", cfg.LokiURL)
			return consumer.Run(gctx)
		})
	}

	err = g.Wait()
	logger.Info("worker: stopped")
	return err
}

// newStreamConsumer returns nil when either Kafka or Loki is not configured.
func newStreamConsumer(cfg *config.Config, logger *slog.Logger) (*stream.Consumer, error) {
	brokers := cfg.EventsKafkaBrokersList()
	if len(brokers) == 0 || cfg.LokiURL == "" {
		logger.Info("worker: event stream disabled (KAFKA_BROKERS or LOKI_URL unset)")
		return nil, nil
	}
	client, err := loki.NewClient(cfg.LokiURL)
	if err != nil {
		return nil, err
	}
	reader := kafka.NewReader(stream.ReaderConfig(brokers, cfg.EventsKafkaTopic, cfg.KafkaGroupID))
	return stream.NewConsumer(reader, client, logger.With("component", "stream")), nil
}
