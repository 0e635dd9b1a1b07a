package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/docflow/pkg/api"
)

// RedisHistoryStore is a HistoryStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>hist:<id>       => LIST of JSON-encoded entries, in sequence order
//	<prefix>idx:instances   => SET of all instance IDs
//
// Appends use WATCH/MULTI on the instance list so a concurrent writer
// surfaces as api.ErrSequenceConflict.
type RedisHistoryStore struct {
	client *redis.Client
	prefix string
}

var _ HistoryStore = (*RedisHistoryStore)(nil)

// NewRedisHistoryStore creates a RedisHistoryStore.
// prefix is optional but recommended (e.g. "docflow:").
func NewRedisHistoryStore(client *redis.Client, prefix string) *RedisHistoryStore {
	if prefix == "" {
		prefix = "docflow:"
	}
	return &RedisHistoryStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisHistoryStore) keyHistory(id string) string {
	return s.prefix + "hist:" + id
}

func (s *RedisHistoryStore) keyIndex() string {
	return s.prefix + "idx:instances"
}

func (s *RedisHistoryStore) Append(ctx context.Context, instanceID string, entries ...api.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	values := make([]any, 0, len(entries))
	for _, e := range entries {
		data, err := EncodeEntry(e)
		if err != nil {
			return err
		}
		values = append(values, data)
	}

	key := s.keyHistory(instanceID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err := checkContiguous(instanceID, n, entries); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, key, values...)
			pipe.SAdd(ctx, s.keyIndex(), instanceID)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: instance %s modified concurrently", api.ErrSequenceConflict, instanceID)
	}
	return err
}

func (s *RedisHistoryStore) Load(ctx context.Context, instanceID string) ([]api.HistoryEntry, error) {
	raw, err := s.client.LRange(ctx, s.keyHistory(instanceID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, api.ErrInstanceNotFound
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, api.ErrInstanceNotFound
	}

	out := make([]api.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		e, err := DecodeEntry([]byte(item))
		if err != nil {
			return nil, fmt.Errorf("redis: decode entry of %s: %w", instanceID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisHistoryStore) InstanceIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.keyIndex()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
