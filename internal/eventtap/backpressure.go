package eventtap

import (
	"context"
	"sync/atomic"

	"github.com/pattern-run/pattern/internal/observability"
	"github.com/pattern-run/pattern/pkg/models"
)

// BackpressureConfig configures a BackpressureSink's buffer sizes for
// its high-priority and low-priority event lanes.
type BackpressureConfig struct {
	// HighPriBuffer is the buffer size for non-droppable events.
	// Default: 32.
	HighPriBuffer int

	// LowPriBuffer is the buffer size for droppable events.
	// Default: 256.
	LowPriBuffer int

	// Name labels this sink's metrics series. Defaults to "default".
	Name string

	// Metrics, if set, receives queue-depth and drop observations.
	Metrics *observability.Metrics

	// Logger, if set, is warned every time an event is dropped.
	Logger *observability.Logger
}

// DefaultBackpressureConfig returns sensible defaults.
func DefaultBackpressureConfig() BackpressureConfig {
	return BackpressureConfig{HighPriBuffer: 32, LowPriBuffer: 256}
}

// BackpressureSink is a Sink implementing two-lane backpressure: chunk
// events (droppable) are dropped under load, while lifecycle events
// (group/agent started, completed, errors) are never dropped. It
// exists for sinks that are themselves slow consumers — for example a
// websocket writer — where a tap-level sink must not stall dispatch to
// other sinks.
type BackpressureSink struct {
	highPri chan models.AgentEvent
	lowPri  chan models.AgentEvent
	merged  chan models.AgentEvent
	dropped uint64
	closed  uint32

	name    string
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewBackpressureSink creates a backpressure-aware sink with a merged
// output channel the caller must consume.
func NewBackpressureSink(config BackpressureConfig) (*BackpressureSink, <-chan models.AgentEvent) {
	if config.HighPriBuffer <= 0 {
		config.HighPriBuffer = 32
	}
	if config.LowPriBuffer <= 0 {
		config.LowPriBuffer = 256
	}
	if config.Name == "" {
		config.Name = "default"
	}

	s := &BackpressureSink{
		highPri: make(chan models.AgentEvent, config.HighPriBuffer),
		lowPri:  make(chan models.AgentEvent, config.LowPriBuffer),
		merged:  make(chan models.AgentEvent, config.HighPriBuffer),
		name:    config.Name,
		metrics: config.Metrics,
		logger:  config.Logger,
	}
	go s.mergeLoop()
	return s, s.merged
}

func (s *BackpressureSink) mergeLoop() {
	defer close(s.merged)

	for {
		select {
		case e, ok := <-s.highPri:
			if ok {
				s.merged <- e
				continue
			}
			for e := range s.lowPri {
				s.merged <- e
			}
			return
		default:
		}

		select {
		case e, ok := <-s.highPri:
			if ok {
				s.merged <- e
			} else {
				for e := range s.lowPri {
					s.merged <- e
				}
				return
			}
		case e, ok := <-s.lowPri:
			if ok {
				s.merged <- e
			}
		}
	}
}

// Emit implements Sink, routing e to the appropriate lane.
func (s *BackpressureSink) Emit(ctx context.Context, e models.AgentEvent) error {
	if atomic.LoadUint32(&s.closed) == 1 {
		return nil
	}
	if isDroppableEvent(e.Kind) {
		select {
		case s.lowPri <- e:
		default:
			s.reportDropped(ctx, e)
		}
		s.reportQueueDepth()
		return nil
	}

	select {
	case s.highPri <- e:
	case <-ctx.Done():
		select {
		case s.highPri <- e:
		default:
			s.reportDropped(ctx, e)
		}
	}
	s.reportQueueDepth()
	return nil
}

func (s *BackpressureSink) reportQueueDepth() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetSinkQueueDepth(s.name, len(s.highPri)+len(s.lowPri))
}

func (s *BackpressureSink) reportDropped(ctx context.Context, e models.AgentEvent) {
	atomic.AddUint64(&s.dropped, 1)
	if s.metrics != nil {
		s.metrics.RecordSinkEventDropped(s.name)
	}
	if s.logger != nil {
		s.logger.Warn(ctx, "sink dropped event under backpressure", "sink", s.name, "kind", string(e.Kind))
	}
}

// DroppedCount returns the number of low-priority events dropped due to
// backpressure.
func (s *BackpressureSink) DroppedCount() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

// Close signals the sink to stop and closes the output channel.
func (s *BackpressureSink) Close() {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return
	}
	close(s.highPri)
	close(s.lowPri)
}

// isDroppableEvent reports whether t can be dropped under backpressure.
// Text and reasoning chunks are droppable; every lifecycle event
// (started/completed/tool-call boundaries/errors) is not.
func isDroppableEvent(k models.AgentEventKind) bool {
	switch k {
	case models.EventTextChunk, models.EventReasoningChunk:
		return true
	default:
		return false
	}
}
