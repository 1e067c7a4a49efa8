package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"saas-control-plane/backend/internal/events"
)

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewMirror_DisabledWithoutConfig(t *testing.T) {
	if m := NewMirror(nil, "topic"); m != nil {
		t.Error("NewMirror without brokers should return nil")
	}
	if m := NewMirror([]string{"localhost:9092"}, ""); m != nil {
		t.Error("NewMirror without topic should return nil")
	}
	var m *Mirror
	if err := m.Handle(context.Background(), events.Event{}); err != nil {
		t.Errorf("nil Mirror Handle = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("nil Mirror Close = %v", err)
	}
}

func TestHandle_WritesEnvelope(t *testing.T) {
	w := &mockWriter{}
	m := NewMirrorWithWriter(w)
	e := events.New("user-1", "org-1", events.MemberJoinedPayload{MembershipID: "m1", OrgID: "org-1", UserID: "user-2", Role: "member"})

	if err := m.Handle(context.Background(), e); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "org-1" {
		t.Errorf("key = %q, want org-1", msg.Key)
	}
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.ID != e.ID || env.Name != "organization.member_joined" || env.Key != "membership:m1:joined" {
		t.Errorf("envelope = %+v", env)
	}
	var p events.MemberJoinedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.UserID != "user-2" {
		t.Errorf("payload = %+v, %v", p, err)
	}
}

func TestHandle_WriterError(t *testing.T) {
	boom := errors.New("broker unavailable")
	m := NewMirrorWithWriter(&mockWriter{err: boom})
	err := m.Handle(context.Background(), events.New("", "", events.UserCreatedPayload{UserID: "u"}))
	if !errors.Is(err, boom) {
		t.Errorf("Handle = %v, want writer error", err)
	}
}

func TestClose(t *testing.T) {
	w := &mockWriter{}
	if err := NewMirrorWithWriter(w).Close(); err != nil || !w.closed {
		t.Errorf("Close = %v, closed = %v", err, w.closed)
	}
}
