package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/models"
)

func TestToolRegistryExecuteUnregistered(t *testing.T) {
	reg := NewToolRegistry()
	_, err := reg.Execute(context.Background(), "missing", nil)
	if err == nil {
		t.Fatal("expected an error for an unregistered tool")
	}
}

func TestToolRegistryExecuteReturnsHandlerError(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register("fails", func(ctx context.Context, input json.RawMessage) (string, error) {
		return "", errors.New("boom")
	})
	result, err := reg.Execute(context.Background(), "fails", nil)
	if err != nil {
		t.Fatalf("Execute returned transport error: %v", err)
	}
	if !result.IsError || result.Content != "boom" {
		t.Fatalf("got %+v, want IsError=true Content=boom", result)
	}
}

func TestExecuteConcurrentlyEmitsStartedAndFinished(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register("echo", func(ctx context.Context, input json.RawMessage) (string, error) {
		return string(input), nil
	})
	executor := NewToolExecutor(reg, DefaultToolExecConfig())
	agentID := id.New(id.PrefixAgent)

	var events []models.AgentEvent
	var mu = make(chan struct{}, 1)
	mu <- struct{}{}
	emit := func(e models.AgentEvent) {
		<-mu
		events = append(events, e)
		mu <- struct{}{}
	}

	calls := []models.ToolCall{{ID: "c1", Name: "echo", Input: json.RawMessage(`"hi"`)}}
	results := executor.ExecuteConcurrently(context.Background(), agentID, calls, emit)

	if len(results) != 1 || results[0].Result.IsError {
		t.Fatalf("unexpected results: %+v", results)
	}

	var sawStarted, sawFinished bool
	for _, e := range events {
		switch e.Kind {
		case models.EventToolCallStarted:
			sawStarted = true
			if e.ToolCallStarted.CallID != "c1" {
				t.Fatalf("started call id = %q, want c1", e.ToolCallStarted.CallID)
			}
		case models.EventToolCallFinished:
			sawFinished = true
			if !e.ToolCallFinished.Ok() {
				t.Fatalf("expected finished event to report success, got err=%q", e.ToolCallFinished.Err)
			}
		}
	}
	if !sawStarted || !sawFinished {
		t.Fatalf("expected both started and finished events, got %+v", events)
	}
}

func TestExecuteConcurrentlyTimesOutSlowTool(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register("slow", func(ctx context.Context, input json.RawMessage) (string, error) {
		select {
		case <-time.After(time.Second):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	cfg := DefaultToolExecConfig()
	cfg.PerToolTimeout = 10 * time.Millisecond
	executor := NewToolExecutor(reg, cfg)

	results := executor.ExecuteConcurrently(context.Background(), id.New(id.PrefixAgent), []models.ToolCall{{ID: "c1", Name: "slow"}}, nil)
	if len(results) != 1 || !results[0].TimedOut || !results[0].Result.IsError {
		t.Fatalf("expected a timed-out error result, got %+v", results)
	}
}

func TestExecuteSequentiallyPreservesOrder(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register("echo", func(ctx context.Context, input json.RawMessage) (string, error) {
		return string(input), nil
	})
	executor := NewToolExecutor(reg, DefaultToolExecConfig())

	calls := []models.ToolCall{
		{ID: "a", Name: "echo", Input: json.RawMessage(`"1"`)},
		{ID: "b", Name: "echo", Input: json.RawMessage(`"2"`)},
	}
	results := executor.ExecuteSequentially(context.Background(), calls)
	if len(results) != 2 || results[0].ToolCall.ID != "a" || results[1].ToolCall.ID != "b" {
		t.Fatalf("unexpected order: %+v", results)
	}
}
