package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pattern-run/pattern/internal/id"
)

// RedisWakeupScheduler is a durable Scheduled Wakeup (§4.8) heap backed
// by a Redis sorted set keyed by scheduled_for unix time, with the
// wakeup payload itself held in a companion hash so Cancel and DrainDue
// can round-trip the full ScheduledWakeup. It implements the same
// WakeupStore contract as WakeupScheduler.
type RedisWakeupScheduler struct {
	client  redis.Cmdable
	zsetKey string
	hashKey string
	ctx     context.Context
}

// RedisWakeupConfig configures a RedisWakeupScheduler.
type RedisWakeupConfig struct {
	// Client is the Redis connection. Required.
	Client redis.Cmdable
	// KeyPrefix namespaces this scheduler's keys. Defaults to
	// "pattern:wakeup".
	KeyPrefix string
}

// NewRedisWakeupScheduler constructs a RedisWakeupScheduler.
func NewRedisWakeupScheduler(cfg RedisWakeupConfig) *RedisWakeupScheduler {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "pattern:wakeup"
	}
	return &RedisWakeupScheduler{
		client:  cfg.Client,
		zsetKey: prefix + ":due",
		hashKey: prefix + ":data",
		ctx:     context.Background(),
	}
}

// Schedule adds a wakeup to the sorted set, scored by ScheduledFor.
func (s *RedisWakeupScheduler) Schedule(w ScheduledWakeup) {
	payload, err := json.Marshal(w)
	if err != nil {
		return
	}
	member := w.ID.String()
	if err := s.client.HSet(s.ctx, s.hashKey, member, payload).Err(); err != nil {
		return
	}
	_ = s.client.ZAdd(s.ctx, s.zsetKey, redis.Z{
		Score:  float64(w.ScheduledFor.Unix()),
		Member: member,
	}).Err()
}

// Cancel deactivates a wakeup by id; it remains in the sorted set until
// DrainDue encounters and discards it.
func (s *RedisWakeupScheduler) Cancel(wakeupID id.ID) {
	member := wakeupID.String()
	raw, err := s.client.HGet(s.ctx, s.hashKey, member).Result()
	if err != nil {
		return
	}
	var w ScheduledWakeup
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return
	}
	w.Active = false
	payload, err := json.Marshal(w)
	if err != nil {
		return
	}
	_ = s.client.HSet(s.ctx, s.hashKey, member, payload).Err()
}

// DrainDue pops and returns every due entry in scheduled order as of
// now, re-scoring recurring ones at their next future slot, exactly as
// WakeupScheduler.DrainDue does against the in-memory heap.
func (s *RedisWakeupScheduler) DrainDue(now time.Time) []ScheduledWakeup {
	members, err := s.client.ZRangeByScore(s.ctx, s.zsetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil || len(members) == 0 {
		return nil
	}

	var due []ScheduledWakeup
	for _, member := range members {
		raw, err := s.client.HGet(s.ctx, s.hashKey, member).Result()
		if err != nil {
			_ = s.client.ZRem(s.ctx, s.zsetKey, member).Err()
			continue
		}

		var w ScheduledWakeup
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			_ = s.client.ZRem(s.ctx, s.zsetKey, member).Err()
			_ = s.client.HDel(s.ctx, s.hashKey, member).Err()
			continue
		}

		_ = s.client.ZRem(s.ctx, s.zsetKey, member).Err()
		if !w.Active {
			_ = s.client.HDel(s.ctx, s.hashKey, member).Err()
			continue
		}

		fired := w
		due = append(due, fired)

		w.AdvanceForRecurrence(now)
		if w.Active {
			payload, err := json.Marshal(w)
			if err != nil {
				continue
			}
			_ = s.client.HSet(s.ctx, s.hashKey, member, payload).Err()
			_ = s.client.ZAdd(s.ctx, s.zsetKey, redis.Z{
				Score:  float64(w.ScheduledFor.Unix()),
				Member: member,
			}).Err()
		} else {
			_ = s.client.HDel(s.ctx, s.hashKey, member).Err()
		}
	}
	return due
}

// Len returns how many wakeups remain scheduled.
func (s *RedisWakeupScheduler) Len() int {
	n, err := s.client.ZCard(s.ctx, s.zsetKey).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
