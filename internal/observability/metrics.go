package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized collection of Prometheus gauges and counters
// for the coordination engine's own backpressure and scheduling
// surfaces: sink-queue depth per event tap, permission-broker pending
// requests, per-agent message-queue depth, stream-buffer occupancy,
// and ticker skip counts.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.SetSinkQueueDepth("websocket", depth)
type Metrics struct {
	// SinkQueueDepth tracks an event tap sink's buffered event count.
	// Labels: sink
	SinkQueueDepth *prometheus.GaugeVec

	// SinkEventsDropped counts droppable events a backpressure sink
	// discarded under load.
	// Labels: sink
	SinkEventsDropped *prometheus.CounterVec

	// PermissionPendingRequests is the permission broker's current
	// count of outstanding approval requests awaiting a decision.
	PermissionPendingRequests prometheus.Gauge

	// PermissionRequestsResolved counts resolved permission requests
	// by outcome.
	// Labels: outcome (approve_once|approve_for_scope|deny|timeout)
	PermissionRequestsResolved *prometheus.CounterVec

	// QueueDepth tracks a per-agent message queue's current length.
	// Labels: agent
	QueueDepth *prometheus.GaugeVec

	// BufferOccupancy tracks a stream buffer's current item count.
	// Labels: buffer
	BufferOccupancy *prometheus.GaugeVec

	// TickerSkipped counts ticks a Background Ticker skipped because
	// the previous dispatch was still in flight.
	// Labels: ticker
	TickerSkipped *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus collectors against
// the default registry. Call once at process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		SinkQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pattern_sink_queue_depth",
				Help: "Current buffered event count for an event tap sink",
			},
			[]string{"sink"},
		),

		SinkEventsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattern_sink_events_dropped_total",
				Help: "Total droppable events discarded by a backpressure sink",
			},
			[]string{"sink"},
		),

		PermissionPendingRequests: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pattern_permission_pending_requests",
				Help: "Current number of permission requests awaiting a decision",
			},
		),

		PermissionRequestsResolved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattern_permission_requests_resolved_total",
				Help: "Total permission requests resolved by outcome",
			},
			[]string{"outcome"},
		),

		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pattern_queue_depth",
				Help: "Current message queue depth for an agent",
			},
			[]string{"agent"},
		),

		BufferOccupancy: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pattern_stream_buffer_occupancy",
				Help: "Current item count held in a stream buffer",
			},
			[]string{"buffer"},
		),

		TickerSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattern_ticker_skipped_total",
				Help: "Total ticks skipped because the previous dispatch was still running",
			},
			[]string{"ticker"},
		),
	}
}

// SetSinkQueueDepth records a sink's current buffered event count.
func (m *Metrics) SetSinkQueueDepth(sink string, depth int) {
	m.SinkQueueDepth.WithLabelValues(sink).Set(float64(depth))
}

// RecordSinkEventDropped increments a sink's dropped-event counter.
func (m *Metrics) RecordSinkEventDropped(sink string) {
	m.SinkEventsDropped.WithLabelValues(sink).Inc()
}

// RecordPermissionRequested increments the pending-request gauge.
func (m *Metrics) RecordPermissionRequested() {
	m.PermissionPendingRequests.Inc()
}

// RecordPermissionResolved decrements the pending-request gauge and
// counts the resolution by outcome.
func (m *Metrics) RecordPermissionResolved(outcome string) {
	m.PermissionPendingRequests.Dec()
	m.PermissionRequestsResolved.WithLabelValues(outcome).Inc()
}

// SetQueueDepth records an agent's current message queue depth.
func (m *Metrics) SetQueueDepth(agent string, depth int) {
	m.QueueDepth.WithLabelValues(agent).Set(float64(depth))
}

// SetBufferOccupancy records a stream buffer's current item count.
func (m *Metrics) SetBufferOccupancy(buffer string, count int) {
	m.BufferOccupancy.WithLabelValues(buffer).Set(float64(count))
}

// RecordTickerSkipped increments a ticker's skip counter.
func (m *Metrics) RecordTickerSkipped(ticker string) {
	m.TickerSkipped.WithLabelValues(ticker).Inc()
}
