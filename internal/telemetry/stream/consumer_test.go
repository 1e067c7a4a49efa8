package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	eventskafka "saas-control-plane/backend/internal/events/kafka"
)

// fakeReader yields queued messages, then the queued error, then blocks until ctx is done.
type fakeReader struct {
	msgs   []kafka.Message
	errs   []error
	closed bool
	onDone func()
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		return m, nil
	}
	if r.onDone != nil {
		r.onDone()
		r.onDone = nil
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	pushed []string
	err    error
}

func (s *fakeSink) PushEnvelope(_ context.Context, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushed = append(s.pushed, string(raw))
	return s.err
}

func TestRun_ForwardsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{
		errs: []error{errors.New("broker unavailable")},
		msgs: []kafka.Message{
			{Value: []byte(`{"name":"user.created"}`), Headers: []kafka.Header{{Key: eventskafka.HeaderEventName, Value: []byte("user.created")}}},
			{Value: []byte(`{"name":"organization.created"}`)},
		},
		onDone: cancel,
	}
	sink := &fakeSink{}

	if err := NewConsumer(reader, sink, nil).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.pushed) != 2 {
		t.Fatalf("pushed = %v, want 2 envelopes", sink.pushed)
	}
	if !reader.closed {
		t.Error("reader not closed")
	}
}

func TestRun_PushFailureSkipsMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{
		msgs:   []kafka.Message{{Value: []byte("a")}, {Value: []byte("b")}},
		onDone: cancel,
	}
	sink := &fakeSink{err: errors.New("loki down")}

	if err := NewConsumer(reader, sink, nil).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.pushed) != 2 {
		t.Errorf("pushed = %v, want both attempted", sink.pushed)
	}
}

func TestRun_ReaderClosed(t *testing.T) {
	reader := &fakeReader{errs: []error{io.EOF}}
	if err := NewConsumer(reader, &fakeSink{}, nil).Run(context.Background()); err == nil {
		t.Fatal("expected error when the reader is closed")
	}
}

func TestEventName(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: "other", Value: []byte("x")}, {Key: eventskafka.HeaderEventName, Value: []byte("member.left")}}}
	if got := eventName(msg); got != "member.left" {
		t.Errorf("eventName = %q", got)
	}
	if got := eventName(kafka.Message{}); got != "" {
		t.Errorf("eventName(no headers) = %q", got)
	}
}
