package permission

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/pattern-run/pattern/internal/id"
)

func genDecision() gopter.Gen {
	return gen.OneGenOf(
		gen.Const(Deny()),
		gen.Const(ApproveOnce()),
		gen.Const(ApproveForScope()),
		gen.IntRange(1, 3600).Map(func(seconds int) Decision {
			return ApproveForDuration(time.Duration(seconds) * time.Second)
		}),
	)
}

// TestPermissionDoubleResolveProperty verifies that if resolve(id,
// decision) is called twice, only the first effects a grant; the
// second reports already-resolved, regardless of which decision each
// call carries.
func TestPermissionDoubleResolveProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("only the first resolve of a request id effects a grant", prop.ForAll(
		func(first, second Decision) bool {
			b := NewBroker()
			resultCh := make(chan struct {
				grant *Grant
				err   error
			}, 1)

			sub := b.Subscribe()
			go func() {
				grant, err := b.Request(context.Background(), id.New(id.PrefixAgent), "tool", ToolExecutionScope("tool", "digest"), "why", time.Second)
				resultCh <- struct {
					grant *Grant
					err   error
				}{grant, err}
			}()

			req := <-sub
			firstStatus := b.Resolve(req.ID, first)
			secondStatus := b.Resolve(req.ID, second)

			<-resultCh

			if firstStatus != ResolveOK {
				return false
			}
			return secondStatus == ResolveAlreadyResolved
		},
		genDecision(),
		genDecision(),
	))

	properties.TestingRun(t)
}

// TestPermissionResolveUnknownIDProperty verifies resolving an id that
// was never issued reports not-found.
func TestPermissionResolveUnknownIDProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("resolving an unissued request id reports not found", prop.ForAll(
		func(decision Decision) bool {
			b := NewBroker()
			status := b.Resolve(id.New(id.PrefixPermission), decision)
			return status == ResolveNotFound
		},
		genDecision(),
	))

	properties.TestingRun(t)
}
