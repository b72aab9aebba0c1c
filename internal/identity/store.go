// Package identity resolves platform-specific peer identifiers (e.g.
// "telegram:123456", "discord:789") to a single canonical id.ID, so an
// agent's memory, permission decisions, and group membership follow
// the same human across every endpoint they reach it through.
package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pattern-run/pattern/internal/id"
)

// Identity is a canonical user identity that can span multiple
// endpoint channels.
type Identity struct {
	CanonicalID id.ID
	DisplayName string
	Email       string

	// LinkedPeers are platform-specific peer ids linked to this
	// identity, formatted "channel:peer_id" (e.g. "telegram:123456").
	LinkedPeers []string

	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists canonical identities and their linked peers.
type Store interface {
	Create(ctx context.Context, identity *Identity) error
	Get(ctx context.Context, canonicalID id.ID) (*Identity, error)
	Update(ctx context.Context, identity *Identity) error
	Delete(ctx context.Context, canonicalID id.ID) error
	List(ctx context.Context, limit, offset int) ([]*Identity, int, error)

	LinkPeer(ctx context.Context, canonicalID id.ID, channel, peerID string) error
	UnlinkPeer(ctx context.Context, canonicalID id.ID, channel, peerID string) error
	ResolveByPeer(ctx context.Context, channel, peerID string) (*Identity, error)
	GetLinkedPeers(ctx context.Context, canonicalID id.ID) ([]string, error)

	// ResolveOrCreate resolves channel/peerID to its linked identity,
	// minting and linking a fresh one if none exists yet. This is the
	// entry point callers use to turn an inbound (channel, peerID)
	// pair into a stable owner id.
	ResolveOrCreate(ctx context.Context, channel, peerID string) (id.ID, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu sync.RWMutex

	identities map[id.ID]*Identity
	peerIndex  map[string]id.ID // "channel:peer_id" -> canonical id
}

// NewMemoryStore creates an empty in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[id.ID]*Identity),
		peerIndex:  make(map[string]id.ID),
	}
}

func clonePeers(peers []string) []string {
	out := make([]string, len(peers))
	copy(out, peers)
	return out
}

func cloneMetadata(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneIdentity(src *Identity) *Identity {
	clone := *src
	clone.LinkedPeers = clonePeers(src.LinkedPeers)
	clone.Metadata = cloneMetadata(src.Metadata)
	return &clone
}

// Create stores a new identity.
func (s *MemoryStore) Create(ctx context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.identities[identity.CanonicalID]; exists {
		return fmt.Errorf("identity already exists: %s", identity.CanonicalID)
	}

	now := time.Now()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	clone := cloneIdentity(identity)
	s.identities[identity.CanonicalID] = clone
	for _, peer := range clone.LinkedPeers {
		s.peerIndex[peer] = identity.CanonicalID
	}
	return nil
}

// Get returns an identity by canonical id, or nil if unknown.
func (s *MemoryStore) Get(ctx context.Context, canonicalID id.ID) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, exists := s.identities[canonicalID]
	if !exists {
		return nil, nil
	}
	return cloneIdentity(identity), nil
}

// Update replaces an existing identity's fields, preserving CreatedAt.
func (s *MemoryStore) Update(ctx context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.identities[identity.CanonicalID]
	if !exists {
		return fmt.Errorf("identity not found: %s", identity.CanonicalID)
	}

	for _, peer := range existing.LinkedPeers {
		delete(s.peerIndex, peer)
	}

	identity.UpdatedAt = time.Now()
	identity.CreatedAt = existing.CreatedAt

	clone := cloneIdentity(identity)
	s.identities[identity.CanonicalID] = clone
	for _, peer := range clone.LinkedPeers {
		s.peerIndex[peer] = identity.CanonicalID
	}
	return nil
}

// Delete removes an identity and its peer links.
func (s *MemoryStore) Delete(ctx context.Context, canonicalID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, exists := s.identities[canonicalID]
	if !exists {
		return nil
	}
	for _, peer := range identity.LinkedPeers {
		delete(s.peerIndex, peer)
	}
	delete(s.identities, canonicalID)
	return nil
}

// List returns a page of identities plus the total count.
func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]*Identity, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.identities)
	all := make([]*Identity, 0, total)
	for _, identity := range s.identities {
		all = append(all, cloneIdentity(identity))
	}

	if offset >= len(all) {
		return []*Identity{}, total, nil
	}
	end := offset + limit
	if end > len(all) || limit <= 0 {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// LinkPeer links channel/peerID to canonicalID, failing if the peer is
// already linked to a different identity.
func (s *MemoryStore) LinkPeer(ctx context.Context, canonicalID id.ID, channel, peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkPeerLocked(canonicalID, channel, peerID)
}

func (s *MemoryStore) linkPeerLocked(canonicalID id.ID, channel, peerID string) error {
	identity, exists := s.identities[canonicalID]
	if !exists {
		return fmt.Errorf("identity not found: %s", canonicalID)
	}

	platformID := channel + ":" + peerID
	if existing, ok := s.peerIndex[platformID]; ok && existing != canonicalID {
		return fmt.Errorf("peer %s already linked to identity %s", platformID, existing)
	}
	for _, p := range identity.LinkedPeers {
		if p == platformID {
			return nil
		}
	}

	identity.LinkedPeers = append(identity.LinkedPeers, platformID)
	identity.UpdatedAt = time.Now()
	s.peerIndex[platformID] = canonicalID
	return nil
}

// UnlinkPeer removes a peer link from an identity.
func (s *MemoryStore) UnlinkPeer(ctx context.Context, canonicalID id.ID, channel, peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, exists := s.identities[canonicalID]
	if !exists {
		return fmt.Errorf("identity not found: %s", canonicalID)
	}

	platformID := channel + ":" + peerID
	newPeers := make([]string, 0, len(identity.LinkedPeers))
	for _, p := range identity.LinkedPeers {
		if p != platformID {
			newPeers = append(newPeers, p)
		}
	}
	identity.LinkedPeers = newPeers
	identity.UpdatedAt = time.Now()
	delete(s.peerIndex, platformID)
	return nil
}

// ResolveByPeer returns the identity linked to channel/peerID, or nil
// if none is linked yet.
func (s *MemoryStore) ResolveByPeer(ctx context.Context, channel, peerID string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canonicalID, exists := s.peerIndex[channel+":"+peerID]
	if !exists {
		return nil, nil
	}
	identity, exists := s.identities[canonicalID]
	if !exists {
		return nil, nil
	}
	return cloneIdentity(identity), nil
}

// GetLinkedPeers returns the peers linked to an identity.
func (s *MemoryStore) GetLinkedPeers(ctx context.Context, canonicalID id.ID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, exists := s.identities[canonicalID]
	if !exists {
		return nil, fmt.Errorf("identity not found: %s", canonicalID)
	}
	return clonePeers(identity.LinkedPeers), nil
}

// ResolveOrCreate resolves channel/peerID to its canonical id, minting
// a fresh identity and linking it on first contact.
func (s *MemoryStore) ResolveOrCreate(ctx context.Context, channel, peerID string) (id.ID, error) {
	if existing, err := s.ResolveByPeer(ctx, channel, peerID); err != nil {
		return id.Nil, err
	} else if existing != nil {
		return existing.CanonicalID, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if canonicalID, ok := s.peerIndex[channel+":"+peerID]; ok {
		return canonicalID, nil
	}

	canonicalID := id.New(id.PrefixUser)
	now := time.Now()
	s.identities[canonicalID] = &Identity{
		CanonicalID: canonicalID,
		LinkedPeers: []string{channel + ":" + peerID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.peerIndex[channel+":"+peerID] = canonicalID
	return canonicalID, nil
}
