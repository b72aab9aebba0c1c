package pattern

import (
	"context"
	"testing"

	"github.com/pattern-run/pattern/internal/group"
	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/models"
)

func TestSleeptimeRoutesToFixedInterventionAgent(t *testing.T) {
	a := newFakeMember("a", "a")
	b := newFakeMember("b", "b")
	g, agents := newGroupWithMembers(group.PatternSleeptime, a, b)

	st := NewSleeptime(SleeptimeConfig{InterventionAgentID: b.id.String()})
	emit, _ := collectEvents()

	_, err := st.Route(context.Background(), g, agents, models.NewMessage(models.RoleSystem, id.Nil, models.PlainText("wake")), emit)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if b.calls != 1 || a.calls != 0 {
		t.Fatalf("expected only b dispatched, a=%d b=%d", a.calls, b.calls)
	}
}

func TestSleeptimeCursorRotatesWithoutFixedAgent(t *testing.T) {
	a := newFakeMember("a", "a")
	b := newFakeMember("b", "b")
	g, agents := newGroupWithMembers(group.PatternSleeptime, a, b)
	g.State = SleeptimeState{CurrentIndex: 0}

	st := NewSleeptime(SleeptimeConfig{})
	emit, _ := collectEvents()

	next, err := st.Route(context.Background(), g, agents, models.NewMessage(models.RoleSystem, id.Nil, models.PlainText("wake")), emit)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if a.calls != 1 {
		t.Fatalf("expected a dispatched first, calls=%d", a.calls)
	}
	if next.(SleeptimeState).CurrentIndex != 1 {
		t.Fatalf("CurrentIndex = %d, want 1", next.(SleeptimeState).CurrentIndex)
	}
}
