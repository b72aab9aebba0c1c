// Package eventtap implements the Event Tap: a fan-out that tees a
// single event stream to N best-effort sinks without altering what the
// primary consumer sees.
package eventtap

import (
	"context"
	"log/slog"

	"github.com/pattern-run/pattern/pkg/models"
)

// Sink receives a copy of every event on the tap. Emit must be safe to
// call from a goroutine dedicated to this sink; a panic or error from
// one sink never affects the primary stream or other sinks.
type Sink interface {
	Emit(ctx context.Context, e models.AgentEvent) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, e models.AgentEvent) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, e models.AgentEvent) error { return f(ctx, e) }

// Config configures the tap's primary output buffer size.
type Config struct {
	// BufferSize bounds the primary output channel. When full, the tap
	// blocks forwarding (never drops a primary event). Default: 64.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{BufferSize: 64}
}

// Tap tees an input stream to a fixed sink list while forwarding every
// event, in order, to its primary output.
type Tap struct {
	sinks []Sink
	out   chan models.AgentEvent
}

// New starts a Tap consuming in. The returned channel is the primary
// stream S'; the caller must drain it (or cancel ctx) or the tap's
// internal goroutine blocks on a full buffer, per the "producer waits"
// contract.
func New(ctx context.Context, in <-chan models.AgentEvent, sinks []Sink, cfg Config) (*Tap, <-chan models.AgentEvent) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	t := &Tap{
		sinks: sinks,
		out:   make(chan models.AgentEvent, cfg.BufferSize),
	}
	go t.run(ctx, in)
	return t, t.out
}

func (t *Tap) run(ctx context.Context, in <-chan models.AgentEvent) {
	defer close(t.out)

	for {
		select {
		case e, ok := <-in:
			if !ok {
				return
			}
			t.dispatchToSinks(ctx, e)

			select {
			case t.out <- e:
			case <-ctx.Done():
				// Consumer disconnected (ctx cancelled); stop pulling S
				// on this, our next iteration.
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// dispatchToSinks fires each sink concurrently and best-effort; a sink
// error or panic is logged and isolated, never propagated to the
// primary stream.
func (t *Tap) dispatchToSinks(ctx context.Context, e models.AgentEvent) {
	for _, sink := range t.sinks {
		go func(s Sink) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event tap sink panicked", "panic", r)
				}
			}()
			if err := s.Emit(ctx, e); err != nil {
				slog.Warn("event tap sink failed", "error", err)
			}
		}(sink)
	}
}
