// Package inmemory implements cache.Store with plain maps guarded by a
// single mutex. The compound shapes are indivisible because every
// operation runs under the same lock, which mirrors the single-threaded
// execution of the Redis Lua scripts. Used by tests and local runs.
package inmemory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/papercomputeco/strata/pkg/cache"
	"github.com/papercomputeco/strata/pkg/memory"
)

type expiringValue struct {
	value     string
	expiresAt time.Time
}

type stream struct {
	entries []cache.StreamEntry
	nextSeq int64
	// cursors tracks the next unread entry index per consumer group.
	cursors map[string]int
}

// Store is an in-process cache.Store.
type Store struct {
	mu      sync.Mutex
	kv      map[string]expiringValue
	lists   map[string][]string
	listExp map[string]time.Time
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	streams map[string]*stream

	// now is swappable for TTL tests.
	now func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		kv:      make(map[string]expiringValue),
		lists:   make(map[string][]string),
		listExp: make(map[string]time.Time),
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]struct{}),
		streams: make(map[string]*stream),
		now:     time.Now,
	}
}

// SetClock overrides the store's clock. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.kv[key]
	if !ok || (!ev.expiresAt.IsZero() && s.now().After(ev.expiresAt)) {
		delete(s.kv, key)
		return "", cache.ErrCacheMiss
	}

	return ev.value, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := expiringValue{value: value}
	if ttl > 0 {
		ev.expiresAt = s.now().Add(ttl)
	}
	s.kv[key] = ev

	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.kv, key)
		delete(s.lists, key)
		delete(s.listExp, key)
		delete(s.hashes, key)
		delete(s.sets, key)
	}

	return nil
}

// expireListLocked drops the whole window once its TTL lapses, matching
// Redis key expiry.
func (s *Store) expireListLocked(key string) {
	if exp, ok := s.listExp[key]; ok && s.now().After(exp) {
		delete(s.lists, key)
		delete(s.listExp, key)
	}
}

func (s *Store) ListRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireListLocked(key)

	list := s.lists[key]
	n := int64(len(list))
	if n == 0 {
		return nil, nil
	}

	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}

	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])

	return out, nil
}

func (s *Store) ListLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireListLocked(key)

	return int64(len(s.lists[key])), nil
}

func (s *Store) HashGet(_ context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.hashes[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}

	val, ok := fields[field]
	if !ok {
		return "", cache.ErrCacheMiss
	}

	return val, nil
}

func (s *Store) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.hashes[key]
	if !ok || len(fields) == 0 {
		return nil, cache.ErrCacheMiss
	}

	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	return out, nil
}

func (s *Store) HashSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.hashes[key]
	if !ok {
		existing = make(map[string]string)
		s.hashes[key] = existing
	}
	for k, v := range fields {
		existing[k] = v
	}

	return nil
}

func (s *Store) StreamAppend(_ context.Context, name string, values map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[name]
	if !ok {
		st = &stream{cursors: make(map[string]int)}
		s.streams[name] = st
	}

	st.nextSeq++
	id := fmt.Sprintf("%d-%s", s.now().UnixMilli(), strconv.FormatInt(st.nextSeq, 10))

	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	st.entries = append(st.entries, cache.StreamEntry{ID: id, Values: copied})

	return id, nil
}

func (s *Store) StreamRead(ctx context.Context, name, group, _ string, count int64, block time.Duration) ([]cache.StreamEntry, error) {
	deadline := s.now().Add(block)

	for {
		s.mu.Lock()
		st, ok := s.streams[name]
		if !ok {
			st = &stream{cursors: make(map[string]int)}
			s.streams[name] = st
		}

		cursor := st.cursors[group]
		if cursor < len(st.entries) {
			end := cursor + int(count)
			if end > len(st.entries) {
				end = len(st.entries)
			}
			entries := make([]cache.StreamEntry, end-cursor)
			copy(entries, st.entries[cursor:end])
			st.cursors[group] = end
			s.mu.Unlock()
			return entries, nil
		}
		s.mu.Unlock()

		if block <= 0 || s.now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (s *Store) StreamAck(_ context.Context, _, _ string, _ ...string) error {
	// Cursor advance in StreamRead already consumes entries.
	return nil
}

func (s *Store) WindowedAppend(_ context.Context, key, value string, capacity int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireListLocked(key)

	list := append([]string{value}, s.lists[key]...)
	if int64(len(list)) > capacity {
		list = list[:capacity]
	}
	s.lists[key] = list

	if ttl > 0 {
		s.listExp[key] = s.now().Add(ttl)
	}

	return int64(len(list)), nil
}

func (s *Store) ClaimBatch(_ context.Context, pendingKey, claimedKey string, max, minLen int64, _ time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireListLocked(pendingKey)

	claimedSet, ok := s.sets[claimedKey]
	if !ok {
		claimedSet = make(map[string]struct{})
		s.sets[claimedKey] = claimedSet
	}

	pending := s.lists[pendingKey]
	var claimed []string
	// Oldest first: the list is most-recent-first, so walk backwards.
	for i := len(pending) - 1; i >= 0; i-- {
		if int64(len(claimed)) >= max {
			break
		}
		item := pending[i]
		if int64(len(item)) < minLen {
			continue
		}
		if _, taken := claimedSet[item]; taken {
			continue
		}
		claimedSet[item] = struct{}{}
		claimed = append(claimed, item)
	}

	return claimed, nil
}

func (s *Store) CompareAndSwap(_ context.Context, key string, expected int64, data string, _ time.Duration) (cache.CASResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.hashes[key]
	if !ok {
		fields = make(map[string]string)
		s.hashes[key] = fields
	}

	var current int64
	if raw, ok := fields["version"]; ok {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return cache.CASResult{}, fmt.Errorf("corrupt version at %s: %w", key, err)
		}
		current = parsed
	}

	if expected >= 0 && expected != current {
		return cache.CASResult{}, memory.ErrVersionConflict
	}

	next := current + 1
	fields["data"] = data
	fields["version"] = strconv.FormatInt(next, 10)

	return cache.CASResult{Version: next}, nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }
