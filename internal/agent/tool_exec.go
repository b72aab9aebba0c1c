package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/internal/observability"
	"github.com/pattern-run/pattern/internal/toolrules"
	"github.com/pattern-run/pattern/pkg/models"
)

// ToolHandler executes one tool call and returns its opaque result.
type ToolHandler func(ctx context.Context, input json.RawMessage) (string, error)

// ToolRegistry maps tool names to handlers, the concrete backing for an
// agent's tool ops (§4.1: "execute by name with opaque parameters").
type ToolRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ToolHandler
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{handlers: make(map[string]ToolHandler)}
}

// Register adds or replaces the handler for name.
func (r *ToolRegistry) Register(name string, handler ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Execute runs the named tool's handler, or returns an error if no
// handler is registered.
func (r *ToolRegistry) Execute(ctx context.Context, name string, input json.RawMessage) (models.ToolResult, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return models.ToolResult{}, fmt.Errorf("tool %q not registered", name)
	}
	content, err := handler(ctx, input)
	if err != nil {
		return models.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return models.ToolResult{Content: content}, nil
}

// ToolExecConfig configures tool execution behavior including concurrency,
// timeouts, and retry settings.
type ToolExecConfig struct {
	// Concurrency is the maximum number of concurrent tool executions.
	// Default: 4.
	Concurrency int

	// PerToolTimeout is the timeout for individual tool executions.
	// Default: 30 seconds.
	PerToolTimeout time.Duration

	// MaxAttempts is the number of attempts per tool call (default 1).
	MaxAttempts int

	// RetryBackoff waits between retries.
	RetryBackoff time.Duration
}

// DefaultToolExecConfig returns sensible defaults for tool execution with
// 4 concurrent tools and 30 second timeout.
func DefaultToolExecConfig() ToolExecConfig {
	return ToolExecConfig{
		Concurrency:    4,
		PerToolTimeout: 30 * time.Second,
		MaxAttempts:    1,
		RetryBackoff:   0,
	}
}

// ToolExecutor handles concurrent tool execution with timeouts and retry
// logic, backing an Agent's tool ops.
type ToolExecutor struct {
	registry *ToolRegistry
	config   ToolExecConfig
	rules    *toolrules.Engine // optional; gates ExecuteSequentially and ExecuteSingle
}

// SetRules installs the Tool-Rule Engine gating this executor's
// sequential and single-call paths. Concurrent execution does not
// consult rules, since the engine's ordering and exclusivity
// constraints assume calls complete one at a time.
func (e *ToolExecutor) SetRules(rules *toolrules.Engine) {
	e.rules = rules
}

// NewToolExecutor creates a new tool executor with the given registry and configuration.
// Default values are applied if config fields are zero.
func NewToolExecutor(registry *ToolRegistry, config ToolExecConfig) *ToolExecutor {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = 30 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	return &ToolExecutor{
		registry: registry,
		config:   config,
	}
}

// ToolExecResult contains the result of a tool execution including timing and timeout information.
type ToolExecResult struct {
	Index     int
	ToolCall  models.ToolCall
	Result    models.ToolResult
	StartTime time.Time
	EndTime   time.Time
	TimedOut  bool
}

// EventCallback is a non-blocking callback invoked for ToolCallStarted
// and ToolCallFinished events during execution.
type EventCallback func(models.AgentEvent)

// ExecuteConcurrently executes multiple tool calls with concurrency limits and timeouts.
// Results are returned in the same order as the input tool calls.
// The emit callback is called for lifecycle events (non-blocking, never blocks execution).
func (e *ToolExecutor) ExecuteConcurrently(ctx context.Context, agentID id.ID, toolCalls []models.ToolCall, emit EventCallback) []ToolExecResult {
	results := make([]ToolExecResult, len(toolCalls))

	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, tc := range toolCalls {
		wg.Add(1)
		go func(idx int, call models.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = ToolExecResult{
					Index:    idx,
					ToolCall: call,
					Result: models.ToolResult{
						ToolCallID: call.ID,
						Content:    "context canceled",
						IsError:    true,
					},
				}
				return
			}

			if emit != nil {
				emit(models.AgentEvent{
					Kind:            models.EventToolCallStarted,
					Time:            time.Now(),
					ToolCallStarted: &models.ToolCallStartedPayload{AgentID: agentID, CallID: call.ID, Name: call.Name, Args: call.Input},
				})
			}

			startTime := time.Now()
			var result models.ToolResult
			var timedOut bool
			maxAttempts := e.config.MaxAttempts
			if maxAttempts <= 0 {
				maxAttempts = 1
			}

			for attempt := 1; attempt <= maxAttempts; attempt++ {
				toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
				toolCtx = observability.AddToolCallID(toolCtx, call.ID)
				result, timedOut = e.executeWithTimeout(toolCtx, call)
				cancel()

				if !result.IsError {
					break
				}
				if attempt < maxAttempts && e.config.RetryBackoff > 0 {
					select {
					case <-time.After(e.config.RetryBackoff):
					case <-ctx.Done():
						result = models.ToolResult{ToolCallID: call.ID, Content: "tool execution canceled", IsError: true}
					}
				}
			}

			endTime := time.Now()

			results[idx] = ToolExecResult{
				Index:     idx,
				ToolCall:  call,
				Result:    result,
				StartTime: startTime,
				EndTime:   endTime,
				TimedOut:  timedOut,
			}

			if emit != nil {
				finished := &models.ToolCallFinishedPayload{AgentID: agentID, CallID: call.ID, Result: result.Content}
				if result.IsError {
					finished.Result = ""
					finished.Err = result.Content
				}
				emit(models.AgentEvent{Kind: models.EventToolCallFinished, Time: endTime, ToolCallFinished: finished})
			}
		}(i, tc)
	}

	wg.Wait()
	return results
}

// executeWithTimeout executes a single tool call with timeout handling.
func (e *ToolExecutor) executeWithTimeout(ctx context.Context, call models.ToolCall) (models.ToolResult, bool) {
	type execResult struct {
		result models.ToolResult
		err    error
	}

	resultChan := make(chan execResult, 1)

	go func() {
		result, err := e.registry.Execute(ctx, call.Name, call.Input)
		select {
		case resultChan <- execResult{result: result, err: err}:
		default:
			slog.Warn("tool execution completed after timeout, result discarded",
				"tool", call.Name, "tool_call_id", call.ID)
		}
	}()

	select {
	case <-ctx.Done():
		var content string
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			content = fmt.Sprintf("tool execution timed out after %v", e.config.PerToolTimeout)
		} else {
			content = "tool execution canceled"
		}
		return models.ToolResult{ToolCallID: call.ID, Content: content, IsError: true}, errors.Is(ctx.Err(), context.DeadlineExceeded)
	case res := <-resultChan:
		if res.err != nil {
			return models.ToolResult{ToolCallID: call.ID, Content: res.err.Error(), IsError: true}, false
		}
		res.result.ToolCallID = call.ID
		return res.result, false
	}
}

// ExecuteSequentially executes tool calls one at a time in order,
// consulting the installed Tool-Rule Engine (if any) before each call
// and recording its outcome afterward. A rule violation under
// PolicyFatal aborts the remaining calls with a rule-violation result;
// PolicySkip and PolicyRetry produce a result for that call without
// running it and continue. Results are returned in the same order as
// the input calls.
func (e *ToolExecutor) ExecuteSequentially(ctx context.Context, toolCalls []models.ToolCall) []ToolExecResult {
	results := make([]ToolExecResult, len(toolCalls))

	for i, tc := range toolCalls {
		if e.rules != nil {
			now := time.Now()
			if violation, policy := e.rules.CheckCall(tc.Name, now); violation != nil {
				results[i] = ruleViolationResult(i, tc, violation, policy)
				if policy == toolrules.PolicyFatal {
					for j := i + 1; j < len(toolCalls); j++ {
						results[j] = ruleViolationResult(j, toolCalls[j], &toolrules.Violation{Detail: "turn aborted by an earlier rule violation"}, toolrules.PolicyFatal)
					}
					return results
				}
				continue
			}
			e.rules.RecordStart(tc.Name, now)
		}

		startTime := time.Now()
		maxAttempts := e.config.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 1
		}
		var result models.ToolResult
		var timedOut bool
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
			toolCtx = observability.AddToolCallID(toolCtx, tc.ID)
			result, timedOut = e.executeWithTimeout(toolCtx, tc)
			cancel()
			if !result.IsError {
				break
			}
			if attempt < maxAttempts && e.config.RetryBackoff > 0 {
				select {
				case <-time.After(e.config.RetryBackoff):
				case <-ctx.Done():
					result = models.ToolResult{ToolCallID: tc.ID, Content: "tool execution canceled", IsError: true}
				}
			}
		}
		endTime := time.Now()

		if e.rules != nil {
			if result.IsError {
				e.rules.RecordFailed(tc.Name, endTime)
			} else {
				e.rules.RecordCompleted(tc.Name, endTime, result.RequestHeartbeat)
			}
		}

		results[i] = ToolExecResult{
			Index:     i,
			ToolCall:  tc,
			Result:    result,
			StartTime: startTime,
			EndTime:   endTime,
			TimedOut:  timedOut,
		}
	}

	return results
}

// ruleViolationResult builds the ToolExecResult standing in for a call
// the Tool-Rule Engine rejected before it ran.
func ruleViolationResult(index int, tc models.ToolCall, violation *toolrules.Violation, policy toolrules.Policy) ToolExecResult {
	content := "tool rule violation: " + violation.Detail
	if policy == toolrules.PolicySkip {
		content = "skipped: " + violation.Detail
	}
	return ToolExecResult{
		Index:    index,
		ToolCall: tc,
		Result:   models.ToolResult{ToolCallID: tc.ID, Content: content, IsError: policy != toolrules.PolicySkip},
	}
}

// ExecuteSingle executes a single tool call by name with timeout and retry logic.
func (e *ToolExecutor) ExecuteSingle(ctx context.Context, name string, input json.RawMessage) (models.ToolResult, error) {
	maxAttempts := e.config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
		result, err := e.registry.Execute(toolCtx, name, input)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt < maxAttempts && e.config.RetryBackoff > 0 {
			select {
			case <-time.After(e.config.RetryBackoff):
			case <-ctx.Done():
				return models.ToolResult{}, ctx.Err()
			}
		}
	}
	return models.ToolResult{}, lastErr
}
