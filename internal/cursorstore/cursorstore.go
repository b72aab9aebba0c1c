// Package cursorstore implements the Cursor Store (§4.11): durable
// resume points for data sources, keyed by (agent, source). A stream
// source calls Save before acknowledging a processed event and Load on
// restart to resume from the last saved payload.
package cursorstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// Cursor is one saved resume point. Payload is opaque to the store;
// its shape is defined by SourceType.
type Cursor struct {
	AgentID    id.ID           `json:"agent_id"`
	SourceID   string          `json:"source_id"`
	SourceType string          `json:"source_type"`
	Payload    json.RawMessage `json:"payload"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Store persists cursors in Redis, one string key per (agent, source).
type Store struct {
	rdb *redis.Client
	ttl time.Duration // 0 means cursors never expire
}

// NewStore constructs a Store backed by rdb. ttl, if positive, is
// applied to every saved key; cursors for long-lived sources should
// pass 0.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func key(agentID id.ID, sourceID string) string {
	return "cursor:" + agentID.String() + ":" + sourceID
}

// Save upserts the cursor for (agentID, sourceID).
func (s *Store) Save(ctx context.Context, agentID id.ID, sourceID, sourceType string, payload json.RawMessage) error {
	c := Cursor{
		AgentID:    agentID,
		SourceID:   sourceID,
		SourceType: sourceType,
		Payload:    payload,
		UpdatedAt:  time.Now(),
	}
	data, err := json.Marshal(c)
	if err != nil {
		return patternerr.Wrap(patternerr.Fatal, "cursorstore: marshal cursor", err)
	}
	if err := s.rdb.Set(ctx, key(agentID, sourceID), data, s.ttl).Err(); err != nil {
		return patternerr.Wrap(patternerr.Transient, "cursorstore: save cursor", err)
	}
	return nil
}

// Load returns the latest cursor for (agentID, sourceID), or
// (Cursor{}, false, nil) if none has been saved.
func (s *Store) Load(ctx context.Context, agentID id.ID, sourceID string) (Cursor, bool, error) {
	raw, err := s.rdb.Get(ctx, key(agentID, sourceID)).Result()
	if errors.Is(err, redis.Nil) {
		return Cursor{}, false, nil
	}
	if err != nil {
		return Cursor{}, false, patternerr.Wrap(patternerr.Transient, "cursorstore: load cursor", err)
	}
	var c Cursor
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Cursor{}, false, patternerr.Wrap(patternerr.Fatal, "cursorstore: unmarshal cursor", err)
	}
	return c, true, nil
}

// Delete removes a saved cursor, e.g. when a source is removed.
func (s *Store) Delete(ctx context.Context, agentID id.ID, sourceID string) error {
	if err := s.rdb.Del(ctx, key(agentID, sourceID)).Err(); err != nil {
		return patternerr.Wrap(patternerr.Transient, "cursorstore: delete cursor", err)
	}
	return nil
}
