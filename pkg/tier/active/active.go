// Package active implements the L1 tier: a session-scoped sliding window
// of raw conversation turns held in the cache store.
//
// The window is bounded two ways: capacity overflow drops the oldest
// turns, and inactivity beyond the TTL drops the whole window. Append is
// a single indivisible cache operation (prepend + truncate + TTL
// refresh), so concurrent appends from many agent processes on one
// session can never grow the window past capacity or lose its expiry.
package active

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/strata/pkg/cache"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/telemetry"
)

const (
	// DefaultCapacity is the default window size in turns.
	DefaultCapacity = 20

	// DefaultTTL is the default window inactivity expiry.
	DefaultTTL = 24 * time.Hour

	// minClaimLen filters obviously empty serialized turns out of
	// promotion claims before any scoring happens. A serialized turn
	// with no content is shorter than this.
	minClaimLen = 64
)

// Config holds window sizing.
type Config struct {
	Capacity int
	TTL      time.Duration
}

// Tier is the L1 active context window.
type Tier struct {
	store    cache.Store
	capacity int
	ttl      time.Duration
	logger   *slog.Logger
	events   *telemetry.Emitter
}

// New creates the tier. Zero config fields fall back to defaults.
func New(store cache.Store, c Config, logger *slog.Logger, events *telemetry.Emitter) *Tier {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}

	return &Tier{
		store:    store,
		capacity: c.Capacity,
		ttl:      c.TTL,
		logger:   logger,
		events:   events,
	}
}

func windowKey(sessionID string) string {
	return "strata:session:" + sessionID + ":window"
}

func claimedKey(sessionID string) string {
	return "strata:session:" + sessionID + ":promoted"
}

// Append adds a turn to the session window and returns the new window
// length. The prepend, truncation, and TTL refresh execute as one unit.
func (t *Tier) Append(ctx context.Context, sessionID string, turn memory.Turn) (int64, error) {
	if turn.TurnID == "" {
		return 0, fmt.Errorf("turn has no turn_id")
	}
	turn.SessionID = sessionID

	body, err := json.Marshal(turn)
	if err != nil {
		return 0, fmt.Errorf("marshaling turn %s: %w", turn.TurnID, err)
	}

	length, err := t.store.WindowedAppend(ctx, windowKey(sessionID), string(body), int64(t.capacity), t.ttl)
	if err != nil {
		return 0, fmt.Errorf("appending turn %s: %w", turn.TurnID, err)
	}

	t.logger.Debug("turn appended",
		"session_id", sessionID,
		"turn_id", turn.TurnID,
		"window_len", length,
	)
	t.events.Emit(telemetry.NewEvent(telemetry.EventTurnAppended, sessionID, map[string]any{
		"turn_id":    turn.TurnID,
		"window_len": length,
	}))

	return length, nil
}

// Recent returns up to maxTurns turns, most recent first.
func (t *Tier) Recent(ctx context.Context, sessionID string, maxTurns int) ([]memory.Turn, error) {
	if maxTurns <= 0 || maxTurns > t.capacity {
		maxTurns = t.capacity
	}

	raw, err := t.store.ListRange(ctx, windowKey(sessionID), 0, int64(maxTurns)-1)
	if err != nil {
		return nil, fmt.Errorf("reading window for %s: %w", sessionID, err)
	}

	return decodeTurns(raw)
}

// ClaimForPromotion atomically claims up to max unclaimed turns from the
// window, oldest first, and returns them in chronological order. Two
// concurrent promotion passes never receive the same turn. The claim only
// prevents double-claiming of raw turns; scoring happens later, outside
// the atomic unit.
func (t *Tier) ClaimForPromotion(ctx context.Context, sessionID string, max int) ([]memory.Turn, error) {
	if max <= 0 {
		max = t.capacity
	}

	raw, err := t.store.ClaimBatch(ctx, windowKey(sessionID), claimedKey(sessionID), int64(max), minClaimLen, t.ttl)
	if err != nil {
		return nil, fmt.Errorf("claiming turns for %s: %w", sessionID, err)
	}

	return decodeTurns(raw)
}

// HealthCheck verifies the cache backend is reachable.
func (t *Tier) HealthCheck(ctx context.Context) error {
	if err := t.store.Ping(ctx); err != nil {
		return &memory.BackendUnavailable{Backend: "cache", Err: err}
	}
	return nil
}

func decodeTurns(raw []string) ([]memory.Turn, error) {
	turns := make([]memory.Turn, 0, len(raw))
	for _, item := range raw {
		var turn memory.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("decoding turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
