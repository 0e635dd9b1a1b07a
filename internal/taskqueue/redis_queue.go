package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue using Redis.
//
// Due tasks live in the list <prefix>tasks; tasks with a future NotBefore
// wait in the sorted set <prefix>delayed, scored by due time in unix nanos,
// and are moved to the list once due. Values are gob-encoded Tasks.
type RedisQueue struct {
	client  redis.UniversalClient
	key     string
	delayed string
	poll    time.Duration
	now     func() time.Time
}

// NewRedisQueue constructs a Redis-backed Queue.
// prefix is optional but recommended (e.g. "docflow:").
func NewRedisQueue(client redis.UniversalClient, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "docflow:"
	}
	return &RedisQueue{
		client:  client,
		key:     prefix + "tasks",
		delayed: prefix + "delayed",
		poll:    time.Second,
		now:     time.Now,
	}
}

// Ensure RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	now := q.now()
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = now
	}
	if t.ID == "" {
		t.ID = strconv.FormatInt(t.EnqueuedAt.UnixNano(), 36)
	}
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}

	if t.NotBefore.After(now) {
		return q.client.ZAdd(ctx, q.delayed, redis.Z{
			Score:  float64(t.NotBefore.UnixNano()),
			Member: data,
		}).Err()
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// promote moves due delayed tasks onto the list. ZRem arbitrates between
// concurrent workers: only the one that removed a member pushes it.
func (q *RedisQueue) promote(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixNano(), 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, member := range due {
		removed, err := q.client.ZRem(ctx, q.delayed, member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.key, member).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Dequeue blocks on BRPOP until a task is available or ctx is cancelled.
// Delayed tasks are promoted between polls.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if err := q.promote(ctx); err != nil {
			return nil, fmt.Errorf("promote delayed tasks: %w", err)
		}

		// BRPop returns [key, value]
		res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if len(res) != 2 {
			slog.WarnContext(ctx, "redis_queue_unexpected_reply", slog.Any("reply", res))
			continue
		}
		return DecodeTask([]byte(res[1]))
	}
}

// Len returns LLEN plus ZCARD.
func (q *RedisQueue) Len() int {
	ctx := context.Background()
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		slog.Warn("redis_queue_len_failed", slog.Any("error", err))
		return 0
	}
	d, err := q.client.ZCard(ctx, q.delayed).Result()
	if err != nil {
		slog.Warn("redis_queue_len_failed", slog.Any("error", err))
		return int(n)
	}
	return int(n + d)
}
