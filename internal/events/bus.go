package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "saas-control-plane/events"

var (
	// ErrUnknownEvent is returned by Subscribe and Publish for unregistered event names.
	ErrUnknownEvent = errors.New("events: unknown event")
	// ErrAlreadySubscribed is returned when (event, listener ID) is already registered.
	ErrAlreadySubscribed = errors.New("events: listener already subscribed")
	// ErrPayloadMismatch is returned by Publish when the payload belongs to another event.
	ErrPayloadMismatch = errors.New("events: payload does not match event name")
	// ErrListenerTimeout is the failure recorded when a listener exceeds its timeout.
	ErrListenerTimeout = errors.New("events: listener timed out")
	// ErrListenerPanic is the failure recorded when a listener panics.
	ErrListenerPanic = errors.New("events: listener panicked")
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("events: bus closed")
)

// Handler consumes one event.
type Handler func(ctx context.Context, e Event) error

type subscription struct {
	listenerID string
	handler    Handler
	blocking   bool
	timeout    time.Duration
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscription)

// Blocking marks the listener as blocking: it runs inline before Publish returns and its failure is
// returned to the publisher.
func Blocking() SubscribeOption {
	return func(s *subscription) { s.blocking = true }
}

// WithTimeout overrides the bus default timeout for this listener.
func WithTimeout(d time.Duration) SubscribeOption {
	return func(s *subscription) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Options configures a Bus. Zero values get defaults.
type Options struct {
	// Workers is the number of goroutines running best-effort listeners (default 4).
	Workers int
	// QueueSize bounds pending best-effort jobs (default 1024). A full queue drops new jobs.
	QueueSize int
	// BlockingTimeout is the default timeout for blocking listeners (default 2s).
	BlockingTimeout time.Duration
	// ListenerTimeout is the default timeout for best-effort listeners (default 10s).
	ListenerTimeout time.Duration
	// AfterCommit defers best-effort scheduling until the transaction on ctx commits. It reports
	// false when ctx carries no transaction, in which case jobs are scheduled immediately.
	AfterCommit func(ctx context.Context, fn func()) bool
	// Detach builds the context handed to best-effort listeners from the publisher's context.
	// The result must not carry the publisher's cancellation or transaction. Defaults to a
	// background context carrying only the trace span.
	Detach func(ctx context.Context) context.Context
	Logger *slog.Logger
	Meter  metric.Meter
	Tracer trace.Tracer
}

// Stats counts bus activity since creation.
type Stats struct {
	Published int64
	Failed    int64
	Dropped   int64
}

type job struct {
	sub   *subscription
	event Event
	ctx   context.Context
}

// Bus is a process-local publish/subscribe hub. Events never cross process boundaries; see the
// kafka subpackage for mirroring them out.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Name][]*subscription
	ids    map[Name]map[string]bool
	closed bool

	queue chan job
	quit  chan struct{}
	wg    sync.WaitGroup

	blockingTimeout time.Duration
	listenerTimeout time.Duration
	afterCommit     func(ctx context.Context, fn func()) bool
	detach          func(ctx context.Context) context.Context
	logger          *slog.Logger
	tracer          trace.Tracer

	published, failed, dropped atomic.Int64
	publishedCounter           metric.Int64Counter
	failedCounter              metric.Int64Counter
	droppedCounter             metric.Int64Counter
}

// NewBus returns a Bus and starts its worker pool. Call Close at shutdown.
func NewBus(opts Options) *Bus {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.BlockingTimeout <= 0 {
		opts.BlockingTimeout = 2 * time.Second
	}
	if opts.ListenerTimeout <= 0 {
		opts.ListenerTimeout = 10 * time.Second
	}
	if opts.Detach == nil {
		opts.Detach = detachTrace
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Meter == nil {
		opts.Meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}

	b := &Bus{
		subs:            make(map[Name][]*subscription),
		ids:             make(map[Name]map[string]bool),
		queue:           make(chan job, opts.QueueSize),
		quit:            make(chan struct{}),
		blockingTimeout: opts.BlockingTimeout,
		listenerTimeout: opts.ListenerTimeout,
		afterCommit:     opts.AfterCommit,
		detach:          opts.Detach,
		logger:          opts.Logger,
		tracer:          opts.Tracer,
	}
	b.publishedCounter, _ = opts.Meter.Int64Counter("events.published", metric.WithDescription("Domain events published."))
	b.failedCounter, _ = opts.Meter.Int64Counter("events.listener.failures", metric.WithDescription("Listener invocations that failed, panicked or timed out."))
	b.droppedCounter, _ = opts.Meter.Int64Counter("events.dropped", metric.WithDescription("Best-effort jobs dropped because the queue was full."))

	for i := 0; i < opts.Workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func detachTrace(ctx context.Context) context.Context {
	return trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
}

// Subscribe registers handler for name under listenerID. Listeners run in registration order.
// Registering the same (name, listenerID) twice returns ErrAlreadySubscribed and leaves a single subscription.
func (b *Bus) Subscribe(name Name, listenerID string, handler Handler, opts ...SubscribeOption) error {
	if !Known(name) {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	if listenerID == "" || handler == nil {
		return errors.New("events: listener ID and handler are required")
	}
	s := &subscription{listenerID: listenerID, handler: handler}
	for _, o := range opts {
		o(s)
	}
	if s.timeout == 0 {
		if s.blocking {
			s.timeout = b.blockingTimeout
		} else {
			s.timeout = b.listenerTimeout
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ids[name][listenerID] {
		return fmt.Errorf("%w: %s on %s", ErrAlreadySubscribed, listenerID, name)
	}
	if b.ids[name] == nil {
		b.ids[name] = make(map[string]bool)
	}
	b.ids[name][listenerID] = true
	b.subs[name] = append(b.subs[name], s)
	return nil
}

// SubscribeAll registers handler on every known event. Events already carrying listenerID are skipped;
// the returned error joins the ErrAlreadySubscribed errors for them.
func (b *Bus) SubscribeAll(listenerID string, handler Handler, opts ...SubscribeOption) error {
	var errs []error
	for _, n := range Names() {
		if err := b.Subscribe(n, listenerID, handler, opts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publish delivers e to its listeners. Blocking listeners run first, inline, in registration order;
// the first failure stops delivery and is returned wrapped, so errors.Is works on the listener's error.
// Best-effort listeners are then queued in registration order. Their failures are logged and counted,
// never returned. When ctx carries a transaction (see Options.AfterCommit) they are queued only after commit.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if !Known(e.Name) {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Name)
	}
	if e.Payload == nil || e.Payload.EventName() != e.Name {
		return fmt.Errorf("%w: %s", ErrPayloadMismatch, e.Name)
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := append([]*subscription(nil), b.subs[e.Name]...)
	b.mu.RUnlock()

	ctx, span := b.tracer.Start(ctx, "events.publish "+string(e.Name), trace.WithAttributes(
		attribute.String("event.name", string(e.Name)),
		attribute.String("event.id", e.ID),
	))
	defer span.End()

	b.published.Add(1)
	b.publishedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event", string(e.Name))))

	var deferred []*subscription
	for _, s := range subs {
		if !s.blocking {
			deferred = append(deferred, s)
			continue
		}
		if err := b.runBlocking(ctx, s, e); err != nil {
			b.recordFailure(ctx, s, e, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "blocking listener failed")
			return fmt.Errorf("events: %s listener %s: %w", e.Name, s.listenerID, err)
		}
	}
	if len(deferred) == 0 {
		return nil
	}

	jobCtx := b.detach(ctx)
	schedule := func() {
		for _, s := range deferred {
			b.enqueue(job{sub: s, event: e, ctx: jobCtx})
		}
	}
	if b.afterCommit == nil || !b.afterCommit(ctx, schedule) {
		schedule()
	}
	return nil
}

func (b *Bus) runBlocking(ctx context.Context, s *subscription, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- invoke(ctx, s, e) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrListenerTimeout, s.timeout)
		}
		return ctx.Err()
	}
}

func invoke(ctx context.Context, s *subscription, e Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrListenerPanic, p, debug.Stack())
		}
	}()
	return s.handler(ctx, e)
}

func (b *Bus) enqueue(j job) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.drop(j, "bus closed")
		return
	}
	select {
	case b.queue <- j:
	default:
		b.drop(j, "queue full")
	}
}

func (b *Bus) drop(j job, reason string) {
	b.dropped.Add(1)
	b.droppedCounter.Add(j.ctx, 1, metric.WithAttributes(attribute.String("event", string(j.event.Name))))
	b.logger.Warn("events: dropped best-effort listener job",
		"event", j.event.Name, "event_id", j.event.ID, "listener", j.sub.listenerID, "reason", reason)
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case j := <-b.queue:
			b.runAsync(j)
		case <-b.quit:
			for {
				select {
				case j := <-b.queue:
					b.runAsync(j)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) runAsync(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, j.sub.timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- invoke(ctx, j.sub, j.event) }()
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("%w after %s", ErrListenerTimeout, j.sub.timeout)
	}
	if err != nil {
		b.recordFailure(ctx, j.sub, j.event, err)
	}
}

func (b *Bus) recordFailure(ctx context.Context, s *subscription, e Event, err error) {
	b.failed.Add(1)
	b.failedCounter.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("event", string(e.Name)),
		attribute.String("listener", s.listenerID),
	))
	b.logger.Error("events: listener failed",
		"event", e.Name, "event_id", e.ID, "listener", s.listenerID, "blocking", s.blocking, "error", err)
}

// Stats returns counters since the bus was created.
func (b *Bus) Stats() Stats {
	return Stats{Published: b.published.Load(), Failed: b.failed.Load(), Dropped: b.dropped.Load()}
}

// Close stops accepting events and waits for queued best-effort jobs to finish or ctx to expire.
// It is safe to call more than once.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.quit)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("events: close: %w", ctx.Err())
	}
}
