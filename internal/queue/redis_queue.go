package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pattern-run/pattern/internal/id"
	"github.com/pattern-run/pattern/internal/observability"
	"github.com/pattern-run/pattern/pkg/patternerr"
)

// RedisQueue is a durable Message Queue (§4.7) backed by a Redis list
// per recipient: RPUSH on Enqueue, LPOP on Dequeue, keeping FIFO order
// and surviving process restarts. It implements the same MessageStore
// contract as Queue.
type RedisQueue struct {
	client    redis.Cmdable
	keyPrefix string
	loopLimit int
	metrics   *observability.Metrics
	ctx       context.Context
}

// RedisQueueConfig configures a RedisQueue.
type RedisQueueConfig struct {
	// Client is the Redis connection. Required.
	Client redis.Cmdable
	// KeyPrefix namespaces this queue's keys, letting several
	// deployments share one Redis instance. Defaults to "pattern:queue".
	KeyPrefix string
	// LoopLimit is forwarded to QueuedMessage.CountInCallChain the same
	// way Queue's does; <= 0 uses DefaultLoopLimit.
	LoopLimit int
}

// NewRedisQueue constructs a RedisQueue. Operations use context.Background()
// internally since MessageStore's methods (mirroring Queue's) take no
// context; callers needing cancellation should use the Redis client's
// own timeout configuration.
func NewRedisQueue(cfg RedisQueueConfig) *RedisQueue {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "pattern:queue"
	}
	loopLimit := cfg.LoopLimit
	if loopLimit <= 0 {
		loopLimit = DefaultLoopLimit
	}
	return &RedisQueue{
		client:    cfg.Client,
		keyPrefix: prefix,
		loopLimit: loopLimit,
		ctx:       context.Background(),
	}
}

// SetMetrics installs the collector receiving per-agent queue-depth
// observations. Passing nil disables reporting.
func (q *RedisQueue) SetMetrics(metrics *observability.Metrics) {
	q.metrics = metrics
}

func (q *RedisQueue) listKey(agent id.ID) string {
	return fmt.Sprintf("%s:%s", q.keyPrefix, agent.String())
}

func (q *RedisQueue) reportDepth(agent id.ID) {
	if q.metrics == nil {
		return
	}
	n, err := q.client.LLen(q.ctx, q.listKey(agent)).Result()
	if err != nil {
		return
	}
	q.metrics.SetQueueDepth(agent.String(), int(n))
}

// Enqueue appends message to its recipient's durable FIFO.
func (q *RedisQueue) Enqueue(message QueuedMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}
	if err := q.client.RPush(q.ctx, q.listKey(message.ToAgent), payload).Err(); err != nil {
		return
	}
	q.reportDepth(message.ToAgent)
}

// Dequeue pops the next undelivered message for agent from Redis,
// applying the same loop-prevention rule as Queue.Dequeue.
func (q *RedisQueue) Dequeue(agent id.ID) (QueuedMessage, error) {
	raw, err := q.client.LPop(q.ctx, q.listKey(agent)).Result()
	if errors.Is(err, redis.Nil) {
		return QueuedMessage{}, patternerr.New(patternerr.NotFound, "queue: no messages for agent")
	}
	if err != nil {
		return QueuedMessage{}, patternerr.Wrap(patternerr.Transient, "queue: redis lpop failed", err)
	}
	q.reportDepth(agent)

	var next QueuedMessage
	if err := json.Unmarshal([]byte(raw), &next); err != nil {
		return QueuedMessage{}, patternerr.Wrap(patternerr.Fatal, "queue: corrupt message payload", err)
	}

	if count := next.CountInCallChain(agent); count >= q.loopLimit {
		return QueuedMessage{}, patternerr.New(patternerr.LoopLimit, "queue: loop limit exceeded")
	}

	next.CallChain = append(next.CallChain, agent)
	return next, nil
}

// Read marks a dequeued message as read, identical to Queue.Read since
// the message has already left Redis by the time it is dequeued.
func (q *RedisQueue) Read(message *QueuedMessage) error {
	if message.Read {
		return ErrAlreadyRead
	}
	message.MarkRead()
	return nil
}

// Len returns how many undelivered messages are queued for agent.
func (q *RedisQueue) Len(agent id.ID) int {
	n, err := q.client.LLen(q.ctx, q.listKey(agent)).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
