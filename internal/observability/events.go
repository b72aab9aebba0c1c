// Package observability provides logging and correlation-id helpers.
// This file carries the context keys used to thread a tool call's id
// through to its logs without plumbing it through every signature.
package observability

import "context"

// RunIDKey is the context key for run IDs (a single agent run/turn).
const RunIDKey ContextKey = "run_id"

// ToolCallIDKey is the context key for tool call IDs.
const ToolCallIDKey ContextKey = "tool_call_id"

// AddRunID adds a run ID to the context.
func AddRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run ID from the context.
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}

// AddToolCallID adds a tool call ID to the context.
func AddToolCallID(ctx context.Context, toolCallID string) context.Context {
	return context.WithValue(ctx, ToolCallIDKey, toolCallID)
}

// GetToolCallID retrieves the tool call ID from the context.
func GetToolCallID(ctx context.Context) string {
	if id, ok := ctx.Value(ToolCallIDKey).(string); ok {
		return id
	}
	return ""
}
