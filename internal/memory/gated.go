package memory

import (
	"context"
	"time"

	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/internal/permission"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// AppendWithConsent runs the ACL matrix for op against the block's
// permission, then performs the write directly, routes through broker
// for a human decision, or refuses, matching Gate's three outcomes.
// The broker supplies the consent Human and Partner blocks require.
func (s *Store) AppendWithConsent(ctx context.Context, blockID, agentID id.ID, text string, consentTimeout time.Duration, broker *permission.Broker) error {
	return s.writeWithConsent(ctx, blockID, agentID, OpAppend, consentTimeout, broker, func() error {
		return s.Append(blockID, text)
	})
}

// OverwriteWithConsent is Overwrite's counterpart to AppendWithConsent.
func (s *Store) OverwriteWithConsent(ctx context.Context, blockID, agentID id.ID, value string, consentTimeout time.Duration, broker *permission.Broker) error {
	return s.writeWithConsent(ctx, blockID, agentID, OpOverwrite, consentTimeout, broker, func() error {
		return s.Overwrite(blockID, value)
	})
}

func (s *Store) writeWithConsent(ctx context.Context, blockID, agentID id.ID, op Op, consentTimeout time.Duration, broker *permission.Broker, write func() error) error {
	s.mu.RLock()
	block, ok := s.byID[blockID]
	s.mu.RUnlock()
	if !ok {
		return patternerr.New(patternerr.NotFound, "memory block not found")
	}

	switch Check(block.Permission, op) {
	case GateAllow:
		return write()
	case GateDeny:
		return permission.ErrDenied
	case GateRequireConsent:
		scope := permission.MemoryEditScope(block.Label)
		_, err := broker.Request(ctx, agentID, "memory."+string(op), scope, "memory ACL requires consent for "+block.Label, consentTimeout)
		if err != nil {
			return err
		}
		return write()
	default:
		return permission.ErrDenied
	}
}
