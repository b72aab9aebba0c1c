package pattern

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pattern-run/pattern/internal/group"
	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/models"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// OnFailureKind names a pipeline stage's failure policy.
type OnFailureKind string

const (
	OnFailureSkip     OnFailureKind = "skip"
	OnFailureRetry    OnFailureKind = "retry"
	OnFailureAbort    OnFailureKind = "abort"
	OnFailureFallback OnFailureKind = "fallback"
)

// FailurePolicy is one stage's on-failure configuration.
type FailurePolicy struct {
	Kind            OnFailureKind `json:"kind"`
	MaxRetries      int           `json:"max_retries,omitempty"`
	FallbackAgentID string        `json:"fallback_agent_id,omitempty"`
}

// PipelineStage is one ordered step: the agents that run it, its
// timeout, and what to do if one of them fails.
type PipelineStage struct {
	AgentIDs  []string      `json:"agent_ids"`
	Timeout   time.Duration `json:"timeout"`
	OnFailure FailurePolicy `json:"on_failure"`
}

// PipelineConfig is an ordered list of stages plus a parallel-stages
// hint; this implementation always serializes agents within a stage
// but records the flag for a future concurrent dispatcher.
type PipelineConfig struct {
	Stages         []PipelineStage `json:"stages"`
	ParallelStages bool            `json:"parallel_stages"`
}

// PipelineState records how far the last run progressed.
type PipelineState struct {
	LastStageIndex int `json:"last_stage_index"`
}

// Pipeline runs a message through ordered stages, reducing each
// stage's agent outputs by concatenating their text in deterministic
// member order before passing it to the next stage.
type Pipeline struct {
	Config PipelineConfig
}

// NewPipeline constructs a Pipeline manager with the given config.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{Config: cfg}
}

// Pattern identifies this manager's PatternKind.
func (p *Pipeline) Pattern() group.PatternKind { return group.PatternPipeline }

type pipelineOutcome struct {
	content models.Content
	msgID   id.ID
}

// Route executes the configured stages in order against message,
// threading each stage's reduced output into the next.
func (p *Pipeline) Route(ctx context.Context, g *group.Group, agents map[string]group.MemberAgent, message models.Message, emit func(models.AgentEvent)) (any, error) {
	started := time.Now()
	seq := newSequencer(g.ID, emit)
	seq.started(p.Pattern(), len(g.ActiveMembers()))

	var responses []models.AgentResponseSummary
	current := message

	for stageIdx, stage := range p.Config.Stages {
		stageCtx := ctx
		var cancel context.CancelFunc
		if stage.Timeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, stage.Timeout)
		}

		var texts []string
		for _, agentID := range stage.AgentIDs {
			member, ok := agents[agentID]
			if !ok {
				if cancel != nil {
					cancel()
				}
				err := patternerr.New(patternerr.NotFound, fmt.Sprintf("pipeline: stage %d agent %s not in dispatch set", stageIdx, agentID))
				seq.errorEvent(id.Nil, err, false)
				return nil, err
			}

			content, msgID, err := runMember(stageCtx, seq, member, "", current)
			if err != nil {
				outcome, handled, herr := p.handleFailure(stageCtx, seq, stage, agents, current, agentID, err)
				if herr != nil {
					if cancel != nil {
						cancel()
					}
					seq.errorEvent(id.ID(agentID), herr, patternerr.Recoverable(herr))
					return nil, herr
				}
				if !handled {
					continue
				}
				content, msgID = outcome.content, outcome.msgID
			}

			texts = append(texts, content.PlainText)
			responses = append(responses, models.AgentResponseSummary{AgentID: id.ID(agentID), AgentName: member.Name(), MessageID: msgID})
		}

		if cancel != nil {
			cancel()
		}

		current = models.Message{
			ID:      id.New(id.PrefixMessage),
			Role:    models.RoleAssistant,
			Content: models.PlainText(strings.Join(texts, "\n")),
		}
	}

	next := PipelineState{LastStageIndex: len(p.Config.Stages) - 1}
	seq.complete(p.Pattern(), started, responses, nil)
	return next, nil
}

// handleFailure applies a stage's on-failure policy after a member's
// Process call returned an error.
func (p *Pipeline) handleFailure(ctx context.Context, seq *sequencer, stage PipelineStage, agents map[string]group.MemberAgent, message models.Message, failedAgentID string, cause error) (pipelineOutcome, bool, error) {
	switch stage.OnFailure.Kind {
	case OnFailureAbort:
		return pipelineOutcome{}, false, patternerr.New(patternerr.Fatal, fmt.Sprintf("pipeline: agent %s failed, aborting", failedAgentID))
	case OnFailureFallback:
		fb, ok := agents[stage.OnFailure.FallbackAgentID]
		if !ok {
			return pipelineOutcome{}, false, patternerr.New(patternerr.NotFound, fmt.Sprintf("pipeline: fallback agent %s not found", stage.OnFailure.FallbackAgentID))
		}
		content, msgID, err := runMember(ctx, seq, fb, "", message)
		if err != nil {
			return pipelineOutcome{}, false, err
		}
		return pipelineOutcome{content: content, msgID: msgID}, true, nil
	case OnFailureRetry:
		member := agents[failedAgentID]
		max := stage.OnFailure.MaxRetries
		if max <= 0 {
			max = 1
		}
		var lastErr error
		for i := 0; i < max; i++ {
			content, msgID, err := runMember(ctx, seq, member, "", message)
			if err == nil {
				return pipelineOutcome{content: content, msgID: msgID}, true, nil
			}
			lastErr = err
		}
		return pipelineOutcome{}, false, lastErr
	default: // skip
		seq.errorEvent(id.ID(failedAgentID), cause, true)
		return pipelineOutcome{}, false, nil
	}
}
