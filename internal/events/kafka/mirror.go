// Package kafka mirrors domain events onto a Kafka topic so that processes other than the publisher
// (the worker, external consumers) can observe them. Delivery is best-effort.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"saas-control-plane/backend/internal/events"
)

// ListenerID is the bus listener ID used by Register.
const ListenerID = "kafka-mirror"

// HeaderEventName is the message header carrying the event name.
const HeaderEventName = "event-name"

// Envelope is the JSON value written for every mirrored event.
type Envelope struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	OccurredAt time.Time       `json:"occurredAt"`
	OrgID      string          `json:"orgId,omitempty"`
	ActorID    string          `json:"actorId,omitempty"`
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload"`
}

// MessageWriter is the subset of *kafka.Writer the mirror needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Mirror writes events to Kafka.
type Mirror struct {
	writer MessageWriter
}

// NewMirror returns a Mirror writing to topic. It returns nil when brokers or topic are empty;
// a nil Mirror is valid and Register on it is a no-op.
func NewMirror(brokers []string, topic string) *Mirror {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return NewMirrorWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	})
}

// NewMirrorWithWriter returns a Mirror over w.
func NewMirrorWithWriter(w MessageWriter) *Mirror {
	return &Mirror{writer: w}
}

// Encode builds the Kafka message for e. The message key is the event's org ID so one organization's
// events stay ordered within a partition.
func Encode(e events.Event) (kafka.Message, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return kafka.Message{}, err
	}
	value, err := json.Marshal(Envelope{
		ID:         e.ID,
		Name:       string(e.Name),
		OccurredAt: e.OccurredAt,
		OrgID:      e.OrgID,
		ActorID:    e.ActorID,
		Key:        e.Payload.Key(),
		Payload:    payload,
	})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(e.OrgID),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventName, Value: []byte(e.Name)},
		},
	}, nil
}

// Handle writes e to the topic.
func (m *Mirror) Handle(ctx context.Context, e events.Event) error {
	if m == nil || m.writer == nil {
		return nil
	}
	msg, err := Encode(e)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.writer.WriteMessages(writeCtx, msg)
}

// Register subscribes the mirror to every event as a best-effort listener.
func (m *Mirror) Register(bus *events.Bus) error {
	if m == nil {
		return nil
	}
	return bus.SubscribeAll(ListenerID, m.Handle)
}

// Close flushes and closes the writer. Safe on a nil Mirror.
func (m *Mirror) Close() error {
	if m == nil || m.writer == nil {
		return nil
	}
	return m.writer.Close()
}
