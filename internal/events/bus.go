package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Bus fans progress events out to in-process subscribers and registered
// sinks (the excluded WebSocket boundary plugs in as a sink).
//
// Publishing never blocks on a slow or disconnected subscriber: subscribers
// receive events through buffered channels, and when a buffer is full the
// event is dropped for that subscriber and logged. Sink delivery errors are
// likewise logged and skipped, never retried.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscription
	sinks       []Sink
	logger      *slog.Logger
	bufferSize  int
	closed      bool
}

// subscription is a single subscriber with its filter and delivery channel.
type subscription struct {
	id       string
	ch       chan Event
	filter   Filter
	ctx      context.Context
	cancel   context.CancelFunc
	created  time.Time
	dropped  atomic.Int64
	received atomic.Int64
}

// Option configures a Bus.
type Option func(*Bus)

// WithDefaultBufferSize sets the subscriber channel buffer used when
// Subscribe is called with bufferSize 0. Default: 100.
func WithDefaultBufferSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithLogger sets the logger used for dropped events and sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates a progress event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[string]*subscription),
		logger:      slog.Default(),
		bufferSize:  100,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterSink attaches a delivery sink. Sinks receive every published event
// unfiltered, after local subscribers.
func (b *Bus) RegisterSink(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Publish delivers the event synchronously to all matching subscribers, then
// hands it to every registered sink. Returns an error only when the bus is
// closed or the publisher's context is cancelled.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	for _, sub := range b.subscribers {
		select {
		case <-sub.ctx.Done():
			// Subscriber gone; cleaned up by its unsubscribe func.
			continue
		default:
		}

		if !sub.filter.Matches(event) {
			continue
		}

		select {
		case sub.ch <- event:
			sub.received.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		default:
			sub.dropped.Add(1)
			b.logger.Warn("dropped event for slow subscriber",
				"subscriber_id", sub.id,
				"event_type", event.Type,
				"job_id", event.JobID,
			)
		}
	}

	for _, sink := range b.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			b.logger.Warn("event sink delivery failed",
				"sink", sink.Name(),
				"event_type", event.Type,
				"job_id", event.JobID,
				"error", err,
			)
		}
	}

	return nil
}

// Subscribe creates a subscription with optional filtering. The returned
// cleanup function must be called to release the subscription; the channel
// is closed by cleanup or by Close.
func (b *Bus) Subscribe(ctx context.Context, filter Filter, bufferSize int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bufferSize <= 0 {
		bufferSize = b.bufferSize
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		id:      nextSubscriberID(),
		ch:      make(chan Event, bufferSize),
		filter:  filter,
		ctx:     subCtx,
		cancel:  cancel,
		created: time.Now(),
	}
	b.subscribers[sub.id] = sub

	cleanup := func() { b.unsubscribe(sub.id) }
	return sub.ch, cleanup
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[id]
	if !ok {
		return
	}

	sub.cancel()
	close(sub.ch)
	delete(b.subscribers, id)
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts the bus down, closing all subscriber channels. Idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for id, sub := range b.subscribers {
		sub.cancel()
		close(sub.ch)
		delete(b.subscribers, id)
	}
	return nil
}

var subscriberCounter atomic.Uint64

func nextSubscriberID() string {
	return fmt.Sprintf("sub-%d-%d", time.Now().UnixNano(), subscriberCounter.Add(1))
}
