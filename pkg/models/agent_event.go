package models

import (
	"time"

	"github.com/pattern-run/pattern/internal/id"
)

// AgentEvent is the unified event model for group execution streaming.
// A single stream drives callers, logging, and the Event Tap's fan-out
// sinks.
//
// Design principles:
//   - Single Kind discriminator with exactly one payload field populated
//   - Monotonic Sequence for ordering guarantees across goroutines
//   - For any single agent within a group run, its events are strictly
//     ordered Started -> (TextChunk | ReasoningChunk | ToolCallStarted |
//     ToolCallFinished)* -> Completed
type AgentEvent struct {
	// Kind identifies which payload below is populated.
	Kind AgentEventKind `json:"kind"`

	// Time is when the event occurred.
	Time time.Time `json:"time"`

	// Sequence is monotonic within a group run for ordering guarantees.
	Sequence uint64 `json:"seq"`

	// GroupID identifies the group run this event belongs to.
	GroupID id.ID `json:"group_id"`

	// Exactly one payload should be non-nil for a given Kind.
	Started          *GroupStartedPayload     `json:"started,omitempty"`
	AgentStarted     *AgentStartedPayload     `json:"agent_started,omitempty"`
	TextChunk        *TextChunkPayload        `json:"text_chunk,omitempty"`
	ReasoningChunk   *TextChunkPayload        `json:"reasoning_chunk,omitempty"`
	ToolCallStarted  *ToolCallStartedPayload  `json:"tool_call_started,omitempty"`
	ToolCallFinished *ToolCallFinishedPayload `json:"tool_call_finished,omitempty"`
	AgentCompleted   *AgentCompletedPayload   `json:"agent_completed,omitempty"`
	Complete         *GroupCompletePayload    `json:"complete,omitempty"`
	Error            *AgentErrorPayload       `json:"error,omitempty"`
}

// AgentEventKind identifies the shape of an AgentEvent's payload.
type AgentEventKind string

const (
	EventGroupStarted     AgentEventKind = "group.started"
	EventAgentStarted     AgentEventKind = "agent.started"
	EventTextChunk        AgentEventKind = "text.chunk"
	EventReasoningChunk   AgentEventKind = "reasoning.chunk"
	EventToolCallStarted  AgentEventKind = "tool_call.started"
	EventToolCallFinished AgentEventKind = "tool_call.finished"
	EventAgentCompleted   AgentEventKind = "agent.completed"
	EventGroupComplete    AgentEventKind = "group.complete"
	EventError            AgentEventKind = "error"
)

// GroupStartedPayload marks the beginning of a group's pattern execution.
type GroupStartedPayload struct {
	Pattern    string `json:"pattern"`
	AgentCount int    `json:"agent_count"`
}

// AgentStartedPayload marks one agent beginning its turn within a group
// run.
type AgentStartedPayload struct {
	AgentID   id.ID  `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Role      string `json:"role,omitempty"`
}

// TextChunkPayload carries an incremental text or reasoning delta from
// one agent. IsFinal marks the last chunk in the agent's current turn.
type TextChunkPayload struct {
	AgentID id.ID  `json:"agent_id"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// ToolCallStartedPayload marks a tool invocation beginning.
type ToolCallStartedPayload struct {
	AgentID id.ID  `json:"agent_id"`
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Args    []byte `json:"args,omitempty"`
}

// ToolCallFinishedPayload marks a tool invocation's outcome. Exactly one
// of Result or Err is set, mirroring the original Result<String, String>
// shape.
type ToolCallFinishedPayload struct {
	AgentID id.ID  `json:"agent_id"`
	CallID  string `json:"call_id"`
	Result  string `json:"result,omitempty"`
	Err     string `json:"err,omitempty"`
}

// Ok reports whether the tool call succeeded.
func (p ToolCallFinishedPayload) Ok() bool {
	return p.Err == ""
}

// AgentCompletedPayload marks one agent finishing its turn within a
// group run. MessageID is empty if the agent produced no message (for
// example, a tool-only turn that was absorbed by the pattern).
type AgentCompletedPayload struct {
	AgentID   id.ID  `json:"agent_id"`
	AgentName string `json:"agent_name"`
	MessageID id.ID  `json:"message_id,omitempty"`
}

// AgentResponseSummary is one agent's contribution to a completed group
// run, carried on GroupCompletePayload.
type AgentResponseSummary struct {
	AgentID   id.ID `json:"agent_id"`
	AgentName string `json:"agent_name"`
	MessageID id.ID `json:"message_id,omitempty"`
}

// GroupCompletePayload marks the end of a group's pattern execution.
type GroupCompletePayload struct {
	Pattern        string                 `json:"pattern"`
	ExecutionTime  time.Duration          `json:"execution_time"`
	AgentResponses []AgentResponseSummary `json:"agent_responses"`
	StateChanges   map[string]any         `json:"state_changes,omitempty"`
}

// AgentErrorPayload standardizes errors for streaming and fan-out sinks.
// AgentID is empty for a group-level error not attributable to one
// agent.
type AgentErrorPayload struct {
	AgentID     id.ID  `json:"agent_id,omitempty"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}
