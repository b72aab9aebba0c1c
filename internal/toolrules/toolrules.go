// Package toolrules implements the per-turn Tool-Rule Engine (§4.9):
// ordering, exclusivity, init/exit, and cooldown constraints over the
// tool calls an agent makes within a single turn, plus the heartbeat
// signal a tool result can raise to request an additional turn.
package toolrules

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Phase is a tool call's lifecycle state within a turn.
type Phase string

const (
	Pending   Phase = "pending"
	Running   Phase = "running"
	Completed Phase = "completed"
	Failed    Phase = "failed"
)

// Execution records one tool call's lifecycle within the current turn.
type Execution struct {
	ToolName         string
	Phase            Phase
	StartedAt        time.Time
	FinishedAt       time.Time
	RequestHeartbeat bool
}

// RuleKind discriminates the shape a Rule takes.
type RuleKind string

const (
	RulePrecedence     RuleKind = "precedence"      // Before must complete before After may start
	RuleExclusiveGroup RuleKind = "exclusive_group" // at most one of Group per turn
	RuleInit           RuleKind = "init"            // Tool must be the turn's first call
	RuleExit           RuleKind = "exit"            // Tool must be called before the turn may end
	RuleCooldown       RuleKind = "cooldown"        // Tool is rate-limited after completing
)

// Rule is one constraint attached to an agent's tool set. Only the
// fields relevant to Kind are populated.
type Rule struct {
	Kind RuleKind

	Before string // RulePrecedence
	After  string // RulePrecedence

	Group []string // RuleExclusiveGroup

	Tool string // RuleInit, RuleExit, RuleCooldown

	CooldownSeconds float64 // RuleCooldown, 0 disables the time-based gate
	CooldownCalls   int     // RuleCooldown, 0 disables the count-based gate
}

// Precedence builds a rule requiring before to complete before after
// may start.
func Precedence(before, after string) Rule {
	return Rule{Kind: RulePrecedence, Before: before, After: after}
}

// ExclusiveGroup builds a rule permitting at most one of tools per turn.
func ExclusiveGroup(tools ...string) Rule {
	return Rule{Kind: RuleExclusiveGroup, Group: tools}
}

// Init builds a rule requiring tool to be the turn's first call.
func Init(tool string) Rule { return Rule{Kind: RuleInit, Tool: tool} }

// Exit builds a rule requiring tool to be called before the turn ends.
func Exit(tool string) Rule { return Rule{Kind: RuleExit, Tool: tool} }

// Cooldown builds a rule disallowing tool for seconds after it last
// completed, or for calls subsequent tool calls, whichever is
// configured (0 disables that gate).
func Cooldown(tool string, seconds float64, calls int) Rule {
	return Rule{Kind: RuleCooldown, Tool: tool, CooldownSeconds: seconds, CooldownCalls: calls}
}

// ViolationKind classifies why CheckCall rejected a call.
type ViolationKind string

const (
	ViolationPrecedence     ViolationKind = "precedence"
	ViolationExclusiveGroup ViolationKind = "exclusive_group"
	ViolationInitRequired   ViolationKind = "init_required"
	ViolationExitRequired   ViolationKind = "exit_required"
	ViolationCooldown       ViolationKind = "cooldown"
)

// Violation describes one rejected call.
type Violation struct {
	Kind   ViolationKind
	Tool   string
	Detail string
}

// Policy governs what happens when a Violation is raised.
type Policy string

const (
	PolicyFatal Policy = "fatal" // the turn is aborted
	PolicySkip  Policy = "skip"  // the call is dropped, the turn continues
	PolicyRetry Policy = "retry" // the caller should retry the call later in the turn
)

// Engine evaluates tool calls within one turn against a fixed set of
// rules. Safe for concurrent use; StartTurn resets per-turn state.
type Engine struct {
	mu            sync.Mutex
	rules         []Rule
	defaultPolicy Policy
	overrides     map[ViolationKind]Policy

	calls            []Execution
	callCountSince   map[string]int // calls made since this tool's cooldown-triggering completion
	lastCompleted    map[string]time.Time
	exclusiveUsed    map[int]string          // group index -> tool name already used
	cooldownLimiters map[string]*rate.Limiter // duration-based cooldown gate, one per tool
}

// NewEngine constructs an Engine. overrides may be nil.
func NewEngine(rules []Rule, defaultPolicy Policy, overrides map[ViolationKind]Policy) *Engine {
	if defaultPolicy == "" {
		defaultPolicy = PolicyFatal
	}
	e := &Engine{rules: rules, defaultPolicy: defaultPolicy, overrides: overrides}
	e.StartTurn()
	return e
}

// StartTurn discards all per-turn state, the ToolExecutionState §4.9
// says is "discarded on completion."
func (e *Engine) StartTurn() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
	e.callCountSince = make(map[string]int)
	e.lastCompleted = make(map[string]time.Time)
	e.exclusiveUsed = make(map[int]string)
	e.cooldownLimiters = make(map[string]*rate.Limiter)
}

func (e *Engine) policyFor(kind ViolationKind) Policy {
	if e.overrides != nil {
		if p, ok := e.overrides[kind]; ok {
			return p
		}
	}
	return e.defaultPolicy
}

// CheckCall evaluates whether toolName may start now. A nil Violation
// means the call is allowed; otherwise Policy says how the caller
// should react.
func (e *Engine) CheckCall(toolName string, now time.Time) (*Violation, Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v := e.checkInit(toolName); v != nil {
		return v, e.policyFor(v.Kind)
	}
	if v := e.checkPrecedence(toolName); v != nil {
		return v, e.policyFor(v.Kind)
	}
	if v := e.checkExclusiveGroup(toolName); v != nil {
		return v, e.policyFor(v.Kind)
	}
	if v := e.checkCooldown(toolName, now); v != nil {
		return v, e.policyFor(v.Kind)
	}
	return nil, ""
}

func (e *Engine) checkInit(toolName string) *Violation {
	if len(e.calls) != 0 {
		return nil
	}
	for _, r := range e.rules {
		if r.Kind == RuleInit && r.Tool != toolName {
			return &Violation{Kind: ViolationInitRequired, Tool: toolName, Detail: "turn must start with " + r.Tool}
		}
	}
	return nil
}

func (e *Engine) checkPrecedence(toolName string) *Violation {
	for _, r := range e.rules {
		if r.Kind != RulePrecedence || r.After != toolName {
			continue
		}
		if !e.hasCompleted(r.Before) {
			return &Violation{Kind: ViolationPrecedence, Tool: toolName, Detail: r.Before + " must complete before " + toolName}
		}
	}
	return nil
}

func (e *Engine) checkExclusiveGroup(toolName string) *Violation {
	for i, r := range e.rules {
		if r.Kind != RuleExclusiveGroup || !contains(r.Group, toolName) {
			continue
		}
		if used, ok := e.exclusiveUsed[i]; ok && used != toolName {
			return &Violation{Kind: ViolationExclusiveGroup, Tool: toolName, Detail: used + " already used this turn from the same exclusive group"}
		}
	}
	return nil
}

func (e *Engine) checkCooldown(toolName string, now time.Time) *Violation {
	for _, r := range e.rules {
		if r.Kind != RuleCooldown || r.Tool != toolName {
			continue
		}
		if _, seen := e.lastCompleted[toolName]; !seen {
			continue
		}
		if r.CooldownSeconds > 0 {
			if lim, ok := e.cooldownLimiters[toolName]; ok && !lim.AllowN(now, 1) {
				return &Violation{Kind: ViolationCooldown, Tool: toolName, Detail: "tool is cooling down"}
			}
		}
		if r.CooldownCalls > 0 && e.callCountSince[toolName] < r.CooldownCalls {
			return &Violation{Kind: ViolationCooldown, Tool: toolName, Detail: "tool has not seen enough intervening calls"}
		}
	}
	return nil
}

func (e *Engine) hasCompleted(toolName string) bool {
	for _, c := range e.calls {
		if c.ToolName == toolName && c.Phase == Completed {
			return true
		}
	}
	return false
}

// RecordStart logs toolName beginning, advancing any exclusive-group
// and increment bookkeeping that CheckCall relies on.
func (e *Engine) RecordStart(toolName string, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Execution{ToolName: toolName, Phase: Running, StartedAt: now})
	for i, r := range e.rules {
		if r.Kind == RuleExclusiveGroup && contains(r.Group, toolName) {
			e.exclusiveUsed[i] = toolName
		}
	}
	for tool := range e.callCountSince {
		if tool != toolName {
			e.callCountSince[tool]++
		}
	}
}

// RecordCompleted marks the most recent Running execution of toolName
// as Completed, noting whether its result asked for a heartbeat.
func (e *Engine) RecordCompleted(toolName string, now time.Time, requestHeartbeat bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finish(toolName, now, Completed, requestHeartbeat)
	e.lastCompleted[toolName] = now
	e.callCountSince[toolName] = 0
	e.armCooldown(toolName, now)
}

// armCooldown (re)creates toolName's duration-based cooldown limiter
// and immediately consumes its initial burst token, so the next
// CheckCall is blocked until the configured cooldown elapses.
func (e *Engine) armCooldown(toolName string, now time.Time) {
	for _, r := range e.rules {
		if r.Kind != RuleCooldown || r.Tool != toolName || r.CooldownSeconds <= 0 {
			continue
		}
		lim := rate.NewLimiter(rate.Every(time.Duration(r.CooldownSeconds*float64(time.Second))), 1)
		lim.AllowN(now, 1)
		e.cooldownLimiters[toolName] = lim
	}
}

// RecordFailed marks the most recent Running execution of toolName as
// Failed.
func (e *Engine) RecordFailed(toolName string, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finish(toolName, now, Failed, false)
}

func (e *Engine) finish(toolName string, now time.Time, phase Phase, requestHeartbeat bool) {
	for i := len(e.calls) - 1; i >= 0; i-- {
		if e.calls[i].ToolName == toolName && e.calls[i].Phase == Running {
			e.calls[i].Phase = phase
			e.calls[i].FinishedAt = now
			e.calls[i].RequestHeartbeat = requestHeartbeat
			return
		}
	}
}

// NeedsHeartbeat reports whether any completed call this turn
// requested an additional model turn without external input.
func (e *Engine) NeedsHeartbeat() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.calls {
		if c.Phase == Completed && c.RequestHeartbeat {
			return true
		}
	}
	return false
}

// CanEndTurn reports whether every configured Exit tool has been
// called, and if not, the violation identifying the first missing one.
func (e *Engine) CanEndTurn() (bool, *Violation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.rules {
		if r.Kind == RuleExit && !e.hasCompleted(r.Tool) {
			return false, &Violation{Kind: ViolationExitRequired, Tool: r.Tool, Detail: r.Tool + " must be called before the turn ends"}
		}
	}
	return true, nil
}

// Calls returns a snapshot of this turn's executions in call order.
func (e *Engine) Calls() []Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Execution, len(e.calls))
	copy(out, e.calls)
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
