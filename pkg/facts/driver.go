// Package facts defines the durable store behind the L2 working memory
// tier. Facts are individually scored claims extracted by the promotion
// engine; the store's uniqueness guards make promotion safe to re-run.
package facts

import (
	"context"
	"time"

	"github.com/papercomputeco/strata/pkg/memory"
)

// Query filters a fact lookup. Results are always ordered by descending
// composite score, tie-broken by ascending creation time.
type Query struct {
	// MinScore drops facts below the composite threshold.
	MinScore float64

	// IncludeConsolidated keeps facts already rolled into episodes.
	IncludeConsolidated bool

	// Limit caps the result size (0 means no cap).
	Limit int
}

// Driver is the L2 storage contract.
type Driver interface {
	// Store persists a fact. Returns memory.ErrDuplicateFact when the
	// fact ID or any (session_id, source_turn_id) pair is already
	// indexed — the idempotency guard for re-run promotion passes.
	Store(ctx context.Context, fact *memory.Fact) (string, error)

	// Query returns facts for a session matching q.
	Query(ctx context.Context, sessionID string, q Query) ([]memory.Fact, error)

	// Unconsolidated returns facts created in [since, until) not yet
	// rolled into an episode, oldest first.
	Unconsolidated(ctx context.Context, sessionID string, since, until time.Time) ([]memory.Fact, error)

	// MarkConsolidated stamps facts with the episode that consumed them.
	// Already-consolidated facts are left untouched.
	MarkConsolidated(ctx context.Context, factIDs []string, episodeID string) error

	// TouchAccessed updates LastAccessed on the given facts.
	TouchAccessed(ctx context.Context, factIDs []string, at time.Time) error

	// HasSourceTurn reports whether any stored fact for the session
	// already references the turn.
	HasSourceTurn(ctx context.Context, sessionID, turnID string) (bool, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases driver resources.
	Close() error
}
