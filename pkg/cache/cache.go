// Package cache abstracts the shared key-value cache store that backs the
// active context window, the workspace, and the telemetry stream.
//
// Besides plain key-value, list, hash, and stream operations, the Store
// exposes three compound operations that implementations MUST execute as
// single indivisible server-side units (Redis runs them as Lua scripts).
// Client-side read-modify-write breaks the concurrency guarantees the
// tiers depend on: ≥50 agent processes may hammer one session at once.
//
//   - WindowedAppend: prepend + truncate-to-capacity + TTL refresh.
//   - ClaimBatch: read pending items, apply a cheap length filter, and
//     mark the selected items as claimed so two concurrent promotion
//     passes cannot both claim the same item.
//   - CompareAndSwap: versioned update of a workspace payload.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss is returned when a key does not exist.
	ErrCacheMiss = errors.New("cache miss")

	// ErrConnection is returned when the cache backend is unreachable.
	ErrConnection = errors.New("cache connection failed")
)

// VersionAny is the wildcard expected version for CompareAndSwap,
// meaning "replace regardless of the current version".
const VersionAny int64 = -1

// StreamEntry is one entry read from a stream.
type StreamEntry struct {
	ID     string
	Values map[string]string
}

// CASResult is the outcome of a successful CompareAndSwap.
type CASResult struct {
	// Version is the new version after the swap.
	Version int64
}

// Store is the cache backend contract. All operations are safe for
// concurrent use.
type Store interface {
	// Get returns the string value at key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set writes a string value with an optional TTL (0 means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// ListRange returns list elements in [start, stop] (inclusive,
	// negative indexes count from the tail, Redis LRANGE semantics).
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ListLen returns the length of the list at key (0 if missing).
	ListLen(ctx context.Context, key string) (int64, error)

	// HashGet returns one hash field, or ErrCacheMiss.
	HashGet(ctx context.Context, key, field string) (string, error)

	// HashGetAll returns every field of the hash at key in one read, so
	// callers never observe fields from two different writes. Returns
	// ErrCacheMiss when the hash does not exist.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	// HashSet writes hash fields.
	HashSet(ctx context.Context, key string, fields map[string]string) error

	// StreamAppend appends an entry to a stream and returns its ID.
	StreamAppend(ctx context.Context, stream string, values map[string]string) (string, error)

	// StreamRead reads up to count entries for a consumer group, blocking
	// up to block. A nil slice with nil error means no entries arrived.
	StreamRead(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamEntry, error)

	// StreamAck acknowledges processed stream entries for a group.
	StreamAck(ctx context.Context, stream, group string, ids ...string) error

	// WindowedAppend prepends value to the list at key, truncates the
	// list to capacity, and refreshes its TTL — as one indivisible unit.
	// Returns the resulting window length.
	WindowedAppend(ctx context.Context, key, value string, capacity int64, ttl time.Duration) (int64, error)

	// ClaimBatch scans up to max items from the list at pendingKey
	// (oldest first), skips items shorter than minLen bytes, and adds the
	// rest to the set at claimedKey — as one indivisible unit. Only items
	// newly added to the claimed set are returned, so concurrent callers
	// never claim the same item twice.
	ClaimBatch(ctx context.Context, pendingKey, claimedKey string, max, minLen int64, claimTTL time.Duration) ([]string, error)

	// CompareAndSwap replaces the versioned payload stored in the hash at
	// key iff expected matches the current version (VersionAny skips the
	// check), incrementing the version by exactly one — as one
	// indivisible unit. A stale expected version yields
	// memory.ErrVersionConflict and mutates nothing.
	CompareAndSwap(ctx context.Context, key string, expected int64, data string, ttl time.Duration) (CASResult, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}
