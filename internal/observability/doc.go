// Package observability provides metrics and structured logging for the
// runtime: a Prometheus-backed Metrics collector for the sink, queue,
// buffer, and permission-broker gauges/counters, and a slog-backed
// Logger with sensitive-data redaction and context-based correlation.
//
// # Metrics
//
//	metrics := observability.NewMetrics()
//	metrics.SetSinkQueueDepth("telegram", 12)
//	metrics.RecordPermissionResolved("approve_once")
//
// # Logging
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	ctx := observability.AddSessionID(ctx, sessionID)
//	logger.Warn(ctx, "ticker skipped overlapping tick", "ticker", "default")
//
// Logging redacts API keys, passwords, tokens, and other sensitive
// fields before they reach the sink, whether they appear as key-value
// pairs or nested inside a map argument.
package observability
