// Package stream consumes the mirrored domain-event topic and forwards every envelope to a sink.
package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	eventskafka "saas-control-plane/backend/internal/events/kafka"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Sink receives one envelope per Kafka message. *loki.Client implements it.
type Sink interface {
	PushEnvelope(ctx context.Context, raw []byte) error
}

// Consumer reads messages and pushes them to a Sink. A failed push is logged and the message is
// skipped; the event stream is an observability copy and is never replayed.
type Consumer struct {
	reader      MessageReader
	sink        Sink
	logger      *slog.Logger
	pushTimeout time.Duration
}

// ReaderConfig returns the kafka-go reader configuration for the worker's consumer group.
func ReaderConfig(brokers []string, topic, groupID string) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	}
}

// NewConsumer returns a Consumer. Pass kafka.NewReader(ReaderConfig(...)) as reader.
func NewConsumer(reader MessageReader, sink Sink, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{reader: reader, sink: sink, logger: logger, pushTimeout: 10 * time.Second}
}

// Run consumes until ctx is cancelled, then closes the reader. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("stream: close reader", "error", err)
		}
	}()
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return errors.New("stream: kafka reader closed")
			}
			c.logger.Warn("stream: kafka read", "error", err)
			continue
		}
		c.forward(ctx, msg)
	}
}

func (c *Consumer) forward(ctx context.Context, msg kafka.Message) {
	pushCtx, cancel := context.WithTimeout(ctx, c.pushTimeout)
	defer cancel()
	if err := c.sink.PushEnvelope(pushCtx, msg.Value); err != nil {
		c.logger.Warn("stream: push failed",
			"error", err,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"event", eventName(msg),
		)
	}
}

func eventName(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == eventskafka.HeaderEventName {
			return string(h.Value)
		}
	}
	return ""
}
