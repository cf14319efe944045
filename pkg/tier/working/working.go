// Package working implements the L2 tier: durable, individually scored
// facts extracted from the active window. The tier wraps the fact store
// with lifecycle telemetry; the duplicate guard lives in the store
// itself so promotion stays idempotent no matter which driver backs it.
package working

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/strata/pkg/facts"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/telemetry"
)

// Tier is the L2 working memory.
type Tier struct {
	store  facts.Driver
	logger *slog.Logger
	events *telemetry.Emitter
}

// New creates the tier.
func New(store facts.Driver, logger *slog.Logger, events *telemetry.Emitter) *Tier {
	return &Tier{store: store, logger: logger, events: events}
}

// Store persists a fact. A duplicate (same fact ID or an already-indexed
// source turn) returns memory.ErrDuplicateFact; callers treat that as a
// no-op, not a failure.
func (t *Tier) Store(ctx context.Context, fact *memory.Fact) (string, error) {
	id, err := t.store.Store(ctx, fact)
	if err != nil {
		if errors.Is(err, memory.ErrDuplicateFact) {
			t.logger.Debug("duplicate fact skipped",
				"session_id", fact.SessionID,
				"fact_id", fact.FactID,
			)
			t.events.Emit(telemetry.NewEvent(telemetry.EventFactDuplicate, fact.SessionID, map[string]any{
				"fact_id": fact.FactID,
			}))
			return "", err
		}
		return "", fmt.Errorf("storing fact: %w", err)
	}

	t.logger.Debug("fact stored",
		"session_id", fact.SessionID,
		"fact_id", id,
		"ciar_score", fact.Score.Composite,
	)
	t.events.Emit(telemetry.NewEvent(telemetry.EventFactStored, fact.SessionID, map[string]any{
		"fact_id":    id,
		"ciar_score": fact.Score.Composite,
	}))

	return id, nil
}

// Query returns facts for a session ordered by descending significance.
// Matched facts get their LastAccessed stamp refreshed.
func (t *Tier) Query(ctx context.Context, sessionID string, q facts.Query) ([]memory.Fact, error) {
	results, err := t.store.Query(ctx, sessionID, q)
	if err != nil {
		return nil, fmt.Errorf("querying facts for %s: %w", sessionID, err)
	}

	if len(results) > 0 {
		ids := make([]string, 0, len(results))
		for _, f := range results {
			ids = append(ids, f.FactID)
		}
		if err := t.store.TouchAccessed(ctx, ids, time.Now().UTC()); err != nil {
			// Access stamps are advisory; a failed touch never fails the read.
			t.logger.Warn("updating fact access time failed", "session_id", sessionID, "error", err)
		}
	}

	return results, nil
}

// Unconsolidated returns facts in [since, until) not yet rolled into an
// episode, oldest first.
func (t *Tier) Unconsolidated(ctx context.Context, sessionID string, since, until time.Time) ([]memory.Fact, error) {
	results, err := t.store.Unconsolidated(ctx, sessionID, since, until)
	if err != nil {
		return nil, fmt.Errorf("listing unconsolidated facts for %s: %w", sessionID, err)
	}
	return results, nil
}

// MarkConsolidated stamps facts with the episode that consumed them.
func (t *Tier) MarkConsolidated(ctx context.Context, factIDs []string, episodeID string) error {
	if err := t.store.MarkConsolidated(ctx, factIDs, episodeID); err != nil {
		return fmt.Errorf("marking %d facts consolidated into %s: %w", len(factIDs), episodeID, err)
	}
	return nil
}

// HasSourceTurn reports whether a turn already produced a stored fact.
func (t *Tier) HasSourceTurn(ctx context.Context, sessionID, turnID string) (bool, error) {
	return t.store.HasSourceTurn(ctx, sessionID, turnID)
}

// HealthCheck verifies the fact store is reachable.
func (t *Tier) HealthCheck(ctx context.Context) error {
	return t.store.HealthCheck(ctx)
}
