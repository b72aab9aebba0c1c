// Package permission implements the Permission Broker (§4.10): a
// process-wide mediator between an agent that wants to perform a
// gated action (a memory edit requiring consent, a risky tool call, a
// data-source action) and whatever is listening for requests to
// decide them. A request blocks until a decision arrives or its
// timeout expires, in which case it is treated as denied.
package permission

import (
	"context"
	"sync"
	"time"

	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/internal/observability"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// ScopeKind discriminates the kind of action a Scope gates.
type ScopeKind string

const (
	ScopeMemoryEdit       ScopeKind = "memory_edit"
	ScopeMemoryBatch      ScopeKind = "memory_batch"
	ScopeToolExecution    ScopeKind = "tool_execution"
	ScopeDataSourceAction ScopeKind = "data_source_action"
)

// Scope describes exactly what a grant would cover. Only the fields
// relevant to Kind are populated.
type Scope struct {
	Kind ScopeKind

	Key    string // MemoryEdit
	Prefix string // MemoryBatch

	Tool       string // ToolExecution
	ArgsDigest string // ToolExecution

	SourceID string // DataSourceAction
	Action   string // DataSourceAction
}

// MemoryEditScope builds a Scope covering a single memory block key.
func MemoryEditScope(key string) Scope {
	return Scope{Kind: ScopeMemoryEdit, Key: key}
}

// MemoryBatchScope builds a Scope covering every memory block under a
// key prefix.
func MemoryBatchScope(prefix string) Scope {
	return Scope{Kind: ScopeMemoryBatch, Prefix: prefix}
}

// ToolExecutionScope builds a Scope covering one tool invocation,
// fingerprinted by a digest of its arguments so a grant does not carry
// over to a differently-parameterized call.
func ToolExecutionScope(tool, argsDigest string) Scope {
	return Scope{Kind: ScopeToolExecution, Tool: tool, ArgsDigest: argsDigest}
}

// DataSourceActionScope builds a Scope covering one action against one
// data source.
func DataSourceActionScope(sourceID, action string) Scope {
	return Scope{Kind: ScopeDataSourceAction, SourceID: sourceID, Action: action}
}

// Grant is the outcome of an approved request: permission to proceed,
// optionally time-boxed.
type Grant struct {
	ID        id.ID
	Scope     Scope
	ExpiresAt time.Time // zero means no expiry
}

// Expired reports whether the grant's time-box has passed as of now.
func (g Grant) Expired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && now.After(g.ExpiresAt)
}

// Request is what a subscriber receives: an agent asking to do
// something that requires a decision.
type Request struct {
	ID       id.ID
	AgentID  id.ID
	ToolName string
	Scope    Scope
	Reason   string
}

// DecisionKind is the shape of a response to a Request.
type DecisionKind string

const (
	DecisionDeny               DecisionKind = "deny"
	DecisionApproveOnce        DecisionKind = "approve_once"
	DecisionApproveForScope    DecisionKind = "approve_for_scope"
	DecisionApproveForDuration DecisionKind = "approve_for_duration"
)

// Decision is the resolution a subscriber supplies for a Request.
type Decision struct {
	Kind     DecisionKind
	Duration time.Duration // only meaningful for DecisionApproveForDuration
}

// Deny is the zero-config deny decision.
func Deny() Decision { return Decision{Kind: DecisionDeny} }

// ApproveOnce approves exactly the requested action, once.
func ApproveOnce() Decision { return Decision{Kind: DecisionApproveOnce} }

// ApproveForScope approves every future action matching the request's
// scope, with no expiry.
func ApproveForScope() Decision { return Decision{Kind: DecisionApproveForScope} }

// ApproveForDuration approves the scope until d elapses.
func ApproveForDuration(d time.Duration) Decision {
	return Decision{Kind: DecisionApproveForDuration, Duration: d}
}

// ResolveStatus reports what Resolve actually did, distinguishing a
// fresh resolution from the idempotent re-resolution of a known id.
type ResolveStatus string

const (
	ResolveOK              ResolveStatus = "resolved"
	ResolveAlreadyResolved ResolveStatus = "already_resolved"
	ResolveNotFound        ResolveStatus = "not_found"
)

// ErrConsentTimeout is returned by Request when no decision arrives
// before the caller's timeout elapses.
var ErrConsentTimeout = patternerr.New(patternerr.ConsentTimeout, "permission: request timed out")

// ErrDenied is returned by Request when a subscriber explicitly denies.
var ErrDenied = patternerr.New(patternerr.PermissionDenied, "permission: request denied")

// Broker fans requests out to subscribers and collects exactly one
// decision per request. It has no opinion on policy; every decision
// comes from whatever is subscribed (a human approval UI, an
// auto-approve bot for tests, a policy engine).
type Broker struct {
	mu          sync.Mutex
	subscribers []chan Request
	pending     map[id.ID]chan Decision
	resolved    map[id.ID]struct{}
	metrics     *observability.Metrics
	logger      *observability.Logger
}

// SetLogger installs the logger warned on a request timeout.
func (b *Broker) SetLogger(logger *observability.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
}

// NewBroker constructs an empty Broker.
func NewBroker() *Broker {
	return &Broker{
		pending:  make(map[id.ID]chan Decision),
		resolved: make(map[id.ID]struct{}),
	}
}

// SetMetrics installs the collector receiving pending-request and
// resolution-outcome observations. Passing nil disables reporting.
func (b *Broker) SetMetrics(metrics *observability.Metrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = metrics
}

// Subscribe registers a channel that receives every future request.
// The channel is buffered so a slow subscriber cannot block Request
// from publishing; subscribers that fall behind simply miss requests
// other subscribers may still answer.
func (b *Broker) Subscribe() <-chan Request {
	ch := make(chan Request, 32)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Request publishes a request and blocks until a subscriber resolves
// it or timeout elapses. A Deny decision and a timeout both return
// (nil, error); only a non-deny decision returns a non-nil Grant.
func (b *Broker) Request(ctx context.Context, agentID id.ID, toolName string, scope Scope, reason string, timeout time.Duration) (*Grant, error) {
	req := Request{
		ID:       id.New(id.PrefixPermission),
		AgentID:  agentID,
		ToolName: toolName,
		Scope:    scope,
		Reason:   reason,
	}

	decisionCh := make(chan Decision, 1)
	b.mu.Lock()
	b.pending[req.ID] = decisionCh
	subs := append([]chan Request(nil), b.subscribers...)
	metrics := b.metrics
	b.mu.Unlock()

	if metrics != nil {
		metrics.RecordPermissionRequested()
	}

	for _, s := range subs {
		select {
		case s <- req:
		default:
			// subscriber's buffer is full; it misses this request.
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case decision := <-decisionCh:
		return grantFor(req.ID, scope, decision)
	case <-timer.C:
		b.abandon(req.ID, "timeout")
		if logger := b.loggerRef(); logger != nil {
			logger.Warn(ctx, "permission request timed out", "request_id", req.ID.String(), "tool", toolName)
		}
		return nil, ErrConsentTimeout
	case <-ctx.Done():
		b.abandon(req.ID, "canceled")
		return nil, ctx.Err()
	}
}

func (b *Broker) loggerRef() *observability.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logger
}

func (b *Broker) abandon(requestID id.ID, outcome string) {
	b.mu.Lock()
	_, existed := b.pending[requestID]
	delete(b.pending, requestID)
	metrics := b.metrics
	b.mu.Unlock()

	if existed && metrics != nil {
		metrics.RecordPermissionResolved(outcome)
	}
}

func grantFor(requestID id.ID, scope Scope, d Decision) (*Grant, error) {
	switch d.Kind {
	case DecisionDeny:
		return nil, ErrDenied
	case DecisionApproveForDuration:
		return &Grant{ID: requestID, Scope: scope, ExpiresAt: time.Now().Add(d.Duration)}, nil
	case DecisionApproveOnce, DecisionApproveForScope:
		return &Grant{ID: requestID, Scope: scope}, nil
	default:
		return nil, patternerr.New(patternerr.Fatal, "permission: unknown decision kind")
	}
}

// Resolve answers a pending request. Resolution is idempotent by
// request id: resolving a request a second time (by this or any other
// caller) returns ResolveAlreadyResolved without affecting the first
// resolution, and resolving an id Request never issued returns
// ResolveNotFound.
func (b *Broker) Resolve(requestID id.ID, decision Decision) ResolveStatus {
	b.mu.Lock()
	ch, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
		b.resolved[requestID] = struct{}{}
	}
	_, alreadyResolved := b.resolved[requestID]
	metrics := b.metrics
	b.mu.Unlock()

	if ok {
		ch <- decision
		if metrics != nil {
			metrics.RecordPermissionResolved(string(decision.Kind))
		}
		return ResolveOK
	}
	if alreadyResolved {
		return ResolveAlreadyResolved
	}
	return ResolveNotFound
}

var (
	defaultOnce   sync.Once
	defaultBroker *Broker
)

// Default returns the process-wide Broker singleton.
func Default() *Broker {
	defaultOnce.Do(func() {
		defaultBroker = NewBroker()
	})
	return defaultBroker
}
