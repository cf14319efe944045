// Package redis implements cache.Store on go-redis. The three compound
// shapes execute as server-side Lua scripts so they are indivisible with
// respect to concurrent writers.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papercomputeco/strata/pkg/cache"
	"github.com/papercomputeco/strata/pkg/memory"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store implements cache.Store against a Redis server.
type Store struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewStore connects to Redis and verifies the connection.
func NewStore(c Config, logger *slog.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrConnection, err)
	}

	logger.Debug("redis cache store connected", "addr", c.Addr, "db", c.DB)

	return &Store{rdb: rdb, logger: logger}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", cache.ErrCacheMiss
	}
	return val, err
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *Store) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.rdb.LRange(ctx, key, start, stop).Result()
}

func (s *Store) ListLen(ctx context.Context, key string) (int64, error) {
	return s.rdb.LLen(ctx, key).Result()
}

func (s *Store) HashGet(ctx context.Context, key, field string) (string, error) {
	val, err := s.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", cache.ErrCacheMiss
	}
	return val, err
}

func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	// HGETALL on a missing key returns an empty map, not redis.Nil.
	if len(fields) == 0 {
		return nil, cache.ErrCacheMiss
	}
	return fields, nil
}

func (s *Store) HashSet(ctx context.Context, key string, fields map[string]string) error {
	args := make(map[string]any, len(fields))
	for k, v := range fields {
		args[k] = v
	}
	return s.rdb.HSet(ctx, key, args).Err()
}

func (s *Store) StreamAppend(ctx context.Context, stream string, values map[string]string) (string, error) {
	args := make(map[string]any, len(values))
	for k, v := range values {
		args[k] = v
	}

	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: args,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}

	return id, nil
}

func (s *Store) StreamRead(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]cache.StreamEntry, error) {
	// Idempotent; BUSYGROUP means the group already exists.
	if err := s.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err(); err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("xgroup create %s/%s: %w", stream, group, err)
	}

	results, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []cache.StreamEntry
	for _, result := range results {
		for _, msg := range result.Messages {
			values := make(map[string]string, len(msg.Values))
			for k, v := range msg.Values {
				if str, ok := v.(string); ok {
					values[k] = str
				}
			}
			entries = append(entries, cache.StreamEntry{ID: msg.ID, Values: values})
		}
	}

	return entries, nil
}

func (s *Store) StreamAck(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.rdb.XAck(ctx, stream, group, ids...).Err()
}

func (s *Store) WindowedAppend(ctx context.Context, key, value string, capacity int64, ttl time.Duration) (int64, error) {
	length, err := windowedAppendScript.Run(ctx, s.rdb,
		[]string{key},
		value, capacity, ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("windowed append %s: %w", key, err)
	}

	return length, nil
}

func (s *Store) ClaimBatch(ctx context.Context, pendingKey, claimedKey string, max, minLen int64, claimTTL time.Duration) ([]string, error) {
	raw, err := claimBatchScript.Run(ctx, s.rdb,
		[]string{pendingKey, claimedKey},
		max, minLen, claimTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("claim batch %s: %w", pendingKey, err)
	}

	claimed := make([]string, 0, len(raw))
	for _, item := range raw {
		if str, ok := item.(string); ok {
			claimed = append(claimed, str)
		}
	}

	return claimed, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, expected int64, data string, ttl time.Duration) (cache.CASResult, error) {
	version, err := casScript.Run(ctx, s.rdb,
		[]string{key},
		expected, data, ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return cache.CASResult{}, fmt.Errorf("cas %s: %w", key, err)
	}

	if version < 0 {
		return cache.CASResult{}, memory.ErrVersionConflict
	}

	return cache.CASResult{Version: version}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", cache.ErrConnection, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
