package ticker

import (
	"context"

	"github.com/pattern-run/pattern/internal/group"
	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/models"
)

// syncTrigger is the canonical "context sync" message §4.14 says the
// ticker sends on every tick.
const syncTrigger = "context sync"

// GroupDispatcher adapts a group and its Pattern Manager to
// Dispatcher, applying each tick's StateChanges to the group (under
// its writer lock) and feeding them back as the next tick's prior
// state.
type GroupDispatcher struct {
	Group   *group.Group
	Manager group.Manager
	Agents  map[string]group.MemberAgent
	Locker  *group.Locker
	OnEvent func(models.AgentEvent)
}

// Dispatch routes a synthesized sync-trigger message through the
// group's Pattern Manager, serialized by the group's writer lock per
// §5, and returns the resulting state as a map for the ticker to carry
// into the next tick.
func (d *GroupDispatcher) Dispatch(priorState map[string]any) (map[string]any, error) {
	ctx := context.Background()
	if err := d.Locker.Lock(ctx, d.Group.ID); err != nil {
		return nil, err
	}
	defer d.Locker.Unlock(d.Group.ID)

	if priorState != nil {
		d.Group.State = priorState
	}

	emit := d.OnEvent
	if emit == nil {
		emit = func(models.AgentEvent) {}
	}

	trigger := models.NewMessage(models.RoleSystem, id.Nil, models.PlainText(syncTrigger))
	newState, err := d.Manager.Route(ctx, d.Group, d.Agents, trigger, emit)
	if err != nil {
		return nil, err
	}

	changes, _ := newState.(map[string]any)
	return changes, nil
}
