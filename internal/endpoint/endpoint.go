// Package endpoint implements the Endpoint Router: resolving which
// named sink a message addressed to an agent should be delivered
// through, first-match-wins across explicit metadata, origin context,
// the default-user sink, and a configured per-type default.
package endpoint

import (
	"context"

	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/models"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// Sink is a named outbound destination. EndpointType groups sinks by
// platform (e.g. "user", "discord", "bluesky") without the router
// inspecting message content.
type Sink interface {
	EndpointType() string
	Deliver(ctx context.Context, message models.Message) error
}

// DefaultUserSink is the well-known name every router falls back to
// before consulting a per-type default.
const DefaultUserSink = "user"

// Metadata carries the explicit destination hint a caller supplies
// alongside a message, if any (e.g. a platform user or channel id).
type Metadata struct {
	DestinationSink string
}

// IdentityResolver resolves an inbound (channel, peerID) pair to a
// stable canonical owner id, minting one on first contact. Satisfied
// structurally by *identity.Store and *identity.MemoryStore.
type IdentityResolver interface {
	ResolveOrCreate(ctx context.Context, channel, peerID string) (id.ID, error)
}

// Router resolves a named sink per agent, first-match-wins.
type Router struct {
	sinks          map[string]Sink
	defaultsByType map[string]string
	identities     IdentityResolver // optional; backs ResolveOwner
}

// NewRouter constructs an empty Router.
func NewRouter() *Router {
	return &Router{
		sinks:          make(map[string]Sink),
		defaultsByType: make(map[string]string),
	}
}

// SetIdentityResolver installs the resolver backing ResolveOwner.
// Passing nil makes ResolveOwner always fail with ErrNoIdentityResolver.
func (r *Router) SetIdentityResolver(resolver IdentityResolver) {
	r.identities = resolver
}

// ErrNoIdentityResolver is returned by ResolveOwner when no
// IdentityResolver has been installed.
var ErrNoIdentityResolver = patternerr.New(patternerr.NotFound, "endpoint: no identity resolver installed")

// ResolveOwner maps an inbound sink's platform-specific peer id (e.g.
// peerID "123456" arriving through the "telegram" sink) to the stable
// canonical owner id that should be attached to any message minted
// from it, so the same human is recognized across every sink they
// reach an agent through.
func (r *Router) ResolveOwner(ctx context.Context, channel, peerID string) (id.ID, error) {
	if r.identities == nil {
		return id.Nil, ErrNoIdentityResolver
	}
	return r.identities.ResolveOrCreate(ctx, channel, peerID)
}

// Register adds a named sink.
func (r *Router) Register(name string, sink Sink) {
	r.sinks[name] = sink
}

// SetDefault configures the sink name used as the fallback for a given
// endpoint type when no more specific match applies.
func (r *Router) SetDefault(endpointType, sinkName string) {
	r.defaultsByType[endpointType] = sinkName
}

// ErrNoDestination is returned when no resolution rule yields a sink.
var ErrNoDestination = patternerr.New(patternerr.NotFound, "endpoint: no destination resolved")

// Send resolves a destination for message, in order: explicit
// metadata, origin context, the default-user sink, then the
// configured default for endpointType. It does not mutate message.
func (r *Router) Send(ctx context.Context, message models.Message, meta Metadata, origin, endpointType string) error {
	sink, err := r.resolve(meta, origin, endpointType)
	if err != nil {
		return err
	}
	return sink.Deliver(ctx, message)
}

func (r *Router) resolve(meta Metadata, origin, endpointType string) (Sink, error) {
	if meta.DestinationSink != "" {
		if s, ok := r.sinks[meta.DestinationSink]; ok {
			return s, nil
		}
	}
	if origin != "" {
		if s, ok := r.sinks[origin]; ok {
			return s, nil
		}
	}
	if s, ok := r.sinks[DefaultUserSink]; ok {
		return s, nil
	}
	if endpointType != "" {
		if def, ok := r.defaultsByType[endpointType]; ok {
			if s, ok := r.sinks[def]; ok {
				return s, nil
			}
		}
	}
	return nil, ErrNoDestination
}
