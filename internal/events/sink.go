package events

import "context"

// Sink receives every published event after local subscriber delivery. The
// real-time WebSocket boundary registers itself as a sink for remote fanout.
// A sink returning an error is logged and skipped; the bus never retries.
type Sink interface {
	// Name identifies the sink in log output.
	Name() string

	// Deliver hands the event to the sink. Implementations should not block
	// the publisher; buffer internally if delivery is slow.
	Deliver(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, event Event) error
}

// Name returns the sink's name.
func (s SinkFunc) Name() string { return s.SinkName }

// Deliver invokes the wrapped function.
func (s SinkFunc) Deliver(ctx context.Context, event Event) error { return s.Fn(ctx, event) }
