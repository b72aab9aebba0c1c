// Package agent implements the Agent Contract: the process/memory/tool/
// endpoint surface every agent exposes to a Pattern Manager, plus the
// state machine gating when an agent may accept work.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/pattern-run/pattern/internal/heartbeat"
	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/internal/memory"
	"github.com/pattern-run/pattern/internal/toolrules"
	"github.com/pattern-run/pattern/pkg/models"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// AgentType is one of a known small set plus a custom-string variant.
type AgentType string

const (
	AgentTypeAssistant AgentType = "assistant"
	AgentTypeSupervisor AgentType = "supervisor"
	AgentTypeWorker     AgentType = "worker"
	AgentTypeCustom     AgentType = "custom"
)

// Counters tracks per-agent lifetime counts the record carries.
type Counters struct {
	Messages    uint64
	ToolCalls   uint64
	ContextRebuilds uint64
	Compressions    uint64
}

// Record is the durable identity and configuration of an agent: type,
// instructions, owner, counters, timestamps, preferred model, and the
// tool-rule list governing its tool ops.
type Record struct {
	ID            id.ID
	Name          string
	Type          AgentType
	CustomType    string // populated when Type == AgentTypeCustom
	Instructions  string
	Owner         id.ID
	Counters      Counters
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PreferredModel string
	ToolRuleIDs   []string
}

// Endpoint is a named outbound sink an agent can deliver content to.
type Endpoint interface {
	Deliver(ctx context.Context, content models.Content) error
}

// Processor realizes an agent's process(message) -> Response op. A
// non-streaming implementation emits a single AgentCompleted event at
// the end; a streaming one emits the full per-agent event sequence.
type Processor interface {
	Process(ctx context.Context, message models.Message, emit func(models.AgentEvent)) (Response, error)
}

// Response is what process(message) produces: ordered content parts,
// optional reasoning, and run metadata.
type Response struct {
	Content   models.Content
	Reasoning string
	Metadata  ResponseMetadata
}

// ResponseMetadata carries timing, token, and model accounting for one
// process() call.
type ResponseMetadata struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	Model        string
	InputTokens  int
	OutputTokens int
}

// Agent is the full contract a Pattern Manager dispatches against:
// process, memory ops, tool ops, endpoint registration, and state.
type Agent struct {
	mu        sync.RWMutex
	record    Record
	processor Processor
	memory    *memory.Store
	tools     *ToolRegistry
	executor  *ToolExecutor
	endpoints map[string]Endpoint
	state     *StateMachine

	rules      *toolrules.Engine   // optional; gates this agent's tool ops (§4.9)
	heartbeats *heartbeat.Scheduler // optional; drives turns rules.NeedsHeartbeat() requests
}

// New constructs an Agent wrapping the given record, processor, memory
// store, and tool registry.
func New(record Record, processor Processor, mem *memory.Store, tools *ToolRegistry) *Agent {
	return &Agent{
		record:    record,
		processor: processor,
		memory:    mem,
		tools:     tools,
		executor:  NewToolExecutor(tools, DefaultToolExecConfig()),
		endpoints: make(map[string]Endpoint),
		state:     NewStateMachine(),
	}
}

// SetToolRules installs the Tool-Rule Engine gating this agent's tool
// ops. Passing nil disables gating.
func (a *Agent) SetToolRules(rules *toolrules.Engine) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = rules
	a.executor.SetRules(rules)
}

// SetHeartbeatScheduler installs the scheduler driving additional
// turns when rules.NeedsHeartbeat() reports one is needed after
// Process returns. Passing nil disables the heartbeat-turn driver.
func (a *Agent) SetHeartbeatScheduler(scheduler *heartbeat.Scheduler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.heartbeats = scheduler
}

// Record returns a copy of the agent's durable record.
func (a *Agent) Record() Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.record
}

// ID returns the agent's identifier as a string, for callers that only
// need the narrow group.MemberAgent surface.
func (a *Agent) ID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.record.ID.String()
}

// Name returns the agent's display name.
func (a *Agent) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.record.Name
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() State {
	return a.state.Current()
}

// Transition attempts a state transition, per §4.3's allowed-transition
// table.
func (a *Agent) Transition(next State) (State, error) {
	return a.state.Transition(next)
}

// Process accepts a message, transitioning Ready->Processing for the
// duration of the call and back to Ready (or Cooldown, on a rate/
// tool-rule signal surfaced via processErr) on completion.
func (a *Agent) Process(ctx context.Context, message models.Message, emit func(models.AgentEvent)) (Response, error) {
	if _, err := a.state.Transition(State{Kind: StateProcessing}); err != nil {
		return Response{}, err
	}

	a.mu.Lock()
	a.record.Counters.Messages++
	a.record.UpdatedAt = time.Now()
	rules := a.rules
	scheduler := a.heartbeats
	a.mu.Unlock()

	if rules != nil {
		rules.StartTurn()
	}

	resp, err := a.processor.Process(ctx, message, emit)

	if err == nil && rules != nil && scheduler != nil && rules.NeedsHeartbeat() {
		a.startHeartbeatRun(ctx, rules, scheduler, emit)
	}

	if cd, ok := asCooldown(err); ok {
		a.state.Transition(cd)
		return resp, err
	}
	if err != nil {
		a.state.Transition(State{Kind: StateError})
		return resp, err
	}
	if _, terr := a.state.Transition(State{Kind: StateReady}); terr != nil {
		return resp, terr
	}
	return resp, nil
}

// startHeartbeatRun drives the agent's additional turns, one per
// rules.NeedsHeartbeat() request, without blocking Process's caller.
// Each turn re-invokes the processor with a synthetic heartbeat
// message carrying no new external input; its ack, if any, is
// delivered to the agent's default user endpoint.
func (a *Agent) startHeartbeatRun(ctx context.Context, rules *toolrules.Engine, scheduler *heartbeat.Scheduler, emit func(models.AgentEvent)) {
	a.mu.RLock()
	runID := a.record.ID.String()
	owner := a.record.ID
	a.mu.RUnlock()

	turn := func(turnCtx context.Context) (heartbeat.TurnResult, error) {
		rules.StartTurn()
		msg := models.Message{
			ID:        id.New(id.PrefixMessage),
			Role:      models.RoleSystem,
			Owner:     owner,
			Content:   models.Content{Kind: models.ContentPlainText},
			Metadata:  models.Metadata{Custom: map[string]any{"heartbeat": true}},
			Timestamp: time.Now(),
		}
		resp, err := a.processor.Process(turnCtx, msg, emit)
		if err != nil {
			return heartbeat.TurnResult{}, err
		}
		return heartbeat.TurnResult{Ack: resp.Content.PlainText, NeedsAnother: rules.NeedsHeartbeat()}, nil
	}

	deliver := func(deliverCtx context.Context, text string) error {
		ep, ok := a.Endpoint(DefaultUserEndpoint)
		if !ok {
			return nil
		}
		return ep.Deliver(deliverCtx, models.Content{Kind: models.ContentPlainText, PlainText: text})
	}

	scheduler.StopRun(runID)
	runner := scheduler.GetOrCreate(runID, turn, deliver, nil)
	runner.Start(ctx, runID)
}

// asCooldown reports whether err carries a RateLimited classification,
// in which case the agent should move to Cooldown rather than Error.
func asCooldown(err error) (State, bool) {
	if err == nil {
		return State{}, false
	}
	if patternerr.Is(err, patternerr.RateLimited) {
		return Cooldown(time.Now().Add(time.Second)), true
	}
	return State{}, false
}

// MemoryGet returns a memory block by label.
func (a *Agent) MemoryGet(label string) (models.MemoryBlock, bool) {
	return a.memory.Get(a.record.ID, label)
}

// MemoryLabels lists the agent's memory block labels.
func (a *Agent) MemoryLabels() []string {
	return a.memory.Labels(a.record.ID)
}

// MemorySearch performs semantic search over the agent's own memory
// blocks, returning (label, block, score) triples.
func (a *Agent) MemorySearch(ctx context.Context, query string, limit int) ([]models.MemorySearchResult, error) {
	return a.memory.Search(ctx, a.record.ID, query, limit)
}

// MemoryShareWith shares a memory block with another agent.
func (a *Agent) MemoryShareWith(blockID, recipient id.ID) error {
	return a.memory.ShareWith(blockID, recipient)
}

// MemoryGetShared returns memory blocks shared with this agent.
func (a *Agent) MemoryGetShared() []models.MemoryBlock {
	return a.memory.Shared(a.record.ID)
}

// ExecuteTool runs a single tool call by name with opaque parameters,
// consulting the installed Tool-Rule Engine (if any) before and after.
func (a *Agent) ExecuteTool(ctx context.Context, call models.ToolCall) (models.ToolResult, error) {
	a.mu.Lock()
	a.record.Counters.ToolCalls++
	rules := a.rules
	a.mu.Unlock()

	if rules != nil {
		now := time.Now()
		if violation, policy := rules.CheckCall(call.Name, now); violation != nil {
			switch policy {
			case toolrules.PolicySkip:
				return models.ToolResult{ToolCallID: call.ID, Content: "skipped: " + violation.Detail}, nil
			case toolrules.PolicyRetry:
				return models.ToolResult{ToolCallID: call.ID, Content: "deferred: " + violation.Detail, IsError: true}, nil
			default:
				err := patternerr.New(patternerr.Fatal, violation.Detail)
				if violation.Kind == toolrules.ViolationCooldown {
					err = patternerr.New(patternerr.RateLimited, violation.Detail)
				}
				return models.ToolResult{ToolCallID: call.ID, Content: "tool rule violation: " + violation.Detail, IsError: true}, err
			}
		}
		rules.RecordStart(call.Name, now)
	}

	result, err := a.executor.ExecuteSingle(ctx, call.Name, call.Input)

	if rules != nil {
		done := time.Now()
		if err != nil || result.IsError {
			rules.RecordFailed(call.Name, done)
		} else {
			rules.RecordCompleted(call.Name, done, result.RequestHeartbeat)
		}
	}
	return result, err
}

// RegisterEndpoint registers a named outbound sink.
func (a *Agent) RegisterEndpoint(name string, ep Endpoint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.endpoints[name] = ep
}

// DefaultUserEndpoint name, set via RegisterEndpoint("user", ep).
const DefaultUserEndpoint = "user"

// Endpoint looks up a registered endpoint by name.
func (a *Agent) Endpoint(name string) (Endpoint, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ep, ok := a.endpoints[name]
	return ep, ok
}
