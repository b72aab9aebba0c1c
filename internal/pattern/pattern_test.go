package pattern

import (
	"context"
	"errors"
	"time"

	"github.com/pattern-run/pattern/internal/group"
	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/models"
)

var errBoom = errors.New("fakeMember: boom")

// fakeMember is a group.MemberAgent test double whose Process returns
// a fixed reply (or error) and optionally emits a TextChunk.
type fakeMember struct {
	id      id.ID
	name    string
	reply   string
	err     error
	calls   int
}

func newFakeMember(name, reply string) *fakeMember {
	return &fakeMember{id: id.New(id.PrefixAgent), name: name, reply: reply}
}

func (f *fakeMember) ID() string   { return f.id.String() }
func (f *fakeMember) Name() string { return f.name }

func (f *fakeMember) Process(ctx context.Context, message models.Message, emit func(models.AgentEvent)) (models.Content, error) {
	f.calls++
	if f.err != nil {
		return models.Content{}, f.err
	}
	emit(models.AgentEvent{
		Kind:      models.EventTextChunk,
		TextChunk: &models.TextChunkPayload{AgentID: f.id, Text: f.reply, IsFinal: true},
	})
	return models.PlainText(f.reply), nil
}

// newGroupWithMembers builds a Group and its matching dispatch map out
// of fakeMembers, in member order.
func newGroupWithMembers(pattern group.PatternKind, members ...*fakeMember) (*group.Group, map[string]group.MemberAgent) {
	g := &group.Group{
		ID:      id.New(id.PrefixGroup),
		Pattern: pattern,
		Active:  true,
	}
	agents := make(map[string]group.MemberAgent, len(members))
	for _, m := range members {
		g.Members = append(g.Members, group.Membership{
			AgentID:  m.id,
			Active:   true,
			JoinedAt: time.Now(),
		})
		agents[m.id.String()] = m
	}
	return g, agents
}

// collectEvents returns an emit func plus the slice it appends to.
func collectEvents() (func(models.AgentEvent), *[]models.AgentEvent) {
	events := make([]models.AgentEvent, 0)
	return func(e models.AgentEvent) { events = append(events, e) }, &events
}
