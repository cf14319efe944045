// Package facade is the single entry point agent processes integrate
// against. It owns the four tiers, the three lifecycle engines, and the
// workspace manager, and exposes the handful of operations an agent
// needs: store a turn, retrieve memory, render a context block, run an
// engine, touch the workspace.
//
// Engines are feature-flagged at construction. A disabled engine's run
// returns ErrEngineDisabled; nothing is ever half-enabled at runtime.
package facade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/papercomputeco/strata/pkg/engine"
	"github.com/papercomputeco/strata/pkg/engine/consolidation"
	"github.com/papercomputeco/strata/pkg/engine/distillation"
	"github.com/papercomputeco/strata/pkg/engine/promotion"
	"github.com/papercomputeco/strata/pkg/facts"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/search"
	"github.com/papercomputeco/strata/pkg/tier/active"
	"github.com/papercomputeco/strata/pkg/tier/episodic"
	"github.com/papercomputeco/strata/pkg/tier/semantic"
	"github.com/papercomputeco/strata/pkg/tier/working"
	"github.com/papercomputeco/strata/pkg/workspace"
)

// ErrEngineDisabled is returned when a feature-flagged engine is asked
// to run.
var ErrEngineDisabled = errors.New("engine disabled by configuration")

// Flags enables or disables each lifecycle engine independently. The
// tiers themselves are always on.
type Flags struct {
	Promotion     bool
	Consolidation bool
	Distillation  bool
	Telemetry     bool
}

// Engines bundles the three lifecycle engines.
type Engines struct {
	Promotion     *promotion.Engine
	Consolidation *consolidation.Engine
	Distillation  *distillation.Engine
}

// Memory is the assembled memory substrate.
type Memory struct {
	activeTier   *active.Tier
	workingTier  *working.Tier
	episodicTier *episodic.Tier
	semanticTier *semantic.Tier
	workspaces   *workspace.Manager
	engines      Engines
	flags        Flags
	logger       *slog.Logger
}

// New assembles the facade.
func New(
	activeTier *active.Tier,
	workingTier *working.Tier,
	episodicTier *episodic.Tier,
	semanticTier *semantic.Tier,
	workspaces *workspace.Manager,
	engines Engines,
	flags Flags,
	logger *slog.Logger,
) *Memory {
	return &Memory{
		activeTier:   activeTier,
		workingTier:  workingTier,
		episodicTier: episodicTier,
		semanticTier: semanticTier,
		workspaces:   workspaces,
		engines:      engines,
		flags:        flags,
		logger:       logger,
	}
}

// Flags reports the engine feature flags.
func (m *Memory) Flags() Flags {
	return m.flags
}

// StoreTurn appends a turn to the session's active window and returns
// the new window length.
func (m *Memory) StoreTurn(ctx context.Context, sessionID string, turn memory.Turn) (int64, error) {
	return m.activeTier.Append(ctx, sessionID, turn)
}

// ErrUnknownTier is returned when a retrieval names a tier that does
// not exist.
var ErrUnknownTier = errors.New("unknown tier")

// RetrieveOptions bounds a cross-tier retrieval. Zero limits fall back
// to per-tier defaults.
type RetrieveOptions struct {
	MaxTurns     int
	MaxFacts     int
	MaxEpisodes  int
	MaxDocuments int

	// MinScore drops facts below the composite threshold.
	MinScore float64

	// Tiers restricts the fan-out to the named tiers ("active",
	// "working", "episodic", "semantic"). Empty means all four.
	Tiers []string
}

// RetrieveResult is the merged view across all four tiers. Tiers that
// errored are absent; Errors carries what went wrong per tier.
type RetrieveResult struct {
	Turns     []memory.Turn
	Facts     []memory.Fact
	Episodes  []episodic.SimilarResult
	Documents []search.Hit

	Errors map[string]error
}

// Retrieve fans the query out to the selected tiers concurrently and
// merges what comes back. An empty tier filter queries all four. A
// failing tier degrades the result instead of failing it; the per-tier
// error is reported alongside.
func (m *Memory) Retrieve(ctx context.Context, sessionID, query string, opts RetrieveOptions) (*RetrieveResult, error) {
	selected, err := selectTiers(opts.Tiers)
	if err != nil {
		return nil, err
	}

	result := &RetrieveResult{Errors: make(map[string]error)}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	fail := func(tier string, err error) {
		mu.Lock()
		result.Errors[tier] = err
		mu.Unlock()
	}

	if selected["active"] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			turns, err := m.activeTier.Recent(ctx, sessionID, opts.MaxTurns)
			if err != nil {
				fail("active", err)
				return
			}
			mu.Lock()
			result.Turns = turns
			mu.Unlock()
		}()
	}

	if selected["working"] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fs, err := m.workingTier.Query(ctx, sessionID, facts.Query{
				MinScore: opts.MinScore,
				Limit:    opts.MaxFacts,
			})
			if err != nil {
				fail("working", err)
				return
			}
			mu.Lock()
			result.Facts = fs
			mu.Unlock()
		}()
	}

	if selected["episodic"] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			episodes, err := m.episodicTier.SearchSimilar(ctx, query, opts.MaxEpisodes, sessionID)
			if err != nil {
				fail("episodic", err)
				return
			}
			mu.Lock()
			result.Episodes = episodes
			mu.Unlock()
		}()
	}

	if selected["semantic"] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docs, err := m.semanticTier.Search(ctx, query, "", opts.MaxDocuments)
			if err != nil {
				fail("semantic", err)
				return
			}
			mu.Lock()
			result.Documents = docs
			mu.Unlock()
		}()
	}

	wg.Wait()

	if len(result.Errors) == len(selected) {
		return result, fmt.Errorf("all queried tiers failed for session %s", sessionID)
	}
	for tier, err := range result.Errors {
		m.logger.Warn("tier retrieval degraded", "tier", tier, "session_id", sessionID, "error", err)
	}

	return result, nil
}

// selectTiers resolves a tier filter to the set of tiers to query.
func selectTiers(filter []string) (map[string]bool, error) {
	if len(filter) == 0 {
		return map[string]bool{"active": true, "working": true, "episodic": true, "semantic": true}, nil
	}

	selected := make(map[string]bool, len(filter))
	for _, name := range filter {
		switch name {
		case "active", "working", "episodic", "semantic":
			selected[name] = true
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownTier, name)
		}
	}

	return selected, nil
}

// ContextBlock renders the session's recent turns and most significant
// facts as a text block ready to prepend to an agent prompt.
func (m *Memory) ContextBlock(ctx context.Context, sessionID string, minScore float64, maxTurns, maxFacts int) (string, error) {
	turns, err := m.activeTier.Recent(ctx, sessionID, maxTurns)
	if err != nil {
		return "", fmt.Errorf("reading recent turns: %w", err)
	}

	fs, err := m.workingTier.Query(ctx, sessionID, facts.Query{MinScore: minScore, Limit: maxFacts})
	if err != nil {
		return "", fmt.Errorf("reading facts: %w", err)
	}

	var b strings.Builder

	if len(fs) > 0 {
		b.WriteString("## Known facts\n")
		for _, fact := range fs {
			fmt.Fprintf(&b, "- %s (significance %.2f)\n", fact.Content, fact.Score.Composite)
		}
	}

	if len(turns) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## Recent conversation\n")
		// Recent returns newest first; render oldest first.
		for i := len(turns) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "%s: %s\n", turns[i].Role, turns[i].Content)
		}
	}

	return b.String(), nil
}

// Answer synthesizes a response to a query from L4 knowledge.
func (m *Memory) Answer(ctx context.Context, query, topic string, maxSources int) (*semantic.Answer, error) {
	return m.semanticTier.Answer(ctx, query, topic, maxSources)
}

// RunPromotion executes one promotion pass, if the engine is enabled.
func (m *Memory) RunPromotion(ctx context.Context, sessionID string) (engine.BatchResult, error) {
	if !m.flags.Promotion {
		return engine.BatchResult{}, fmt.Errorf("promotion: %w", ErrEngineDisabled)
	}
	return m.engines.Promotion.Run(ctx, sessionID)
}

// RunConsolidation executes one consolidation pass, if the engine is
// enabled.
func (m *Memory) RunConsolidation(ctx context.Context, sessionID string) (engine.BatchResult, error) {
	if !m.flags.Consolidation {
		return engine.BatchResult{}, fmt.Errorf("consolidation: %w", ErrEngineDisabled)
	}
	return m.engines.Consolidation.Run(ctx, sessionID)
}

// RunDistillation executes one distillation pass, if the engine is
// enabled.
func (m *Memory) RunDistillation(ctx context.Context, sessionID string) (engine.BatchResult, error) {
	if !m.flags.Distillation {
		return engine.BatchResult{}, fmt.Errorf("distillation: %w", ErrEngineDisabled)
	}
	return m.engines.Distillation.Run(ctx, sessionID)
}

// Workspace returns the session workspace.
func (m *Memory) Workspace(ctx context.Context, sessionID string) (*memory.Workspace, error) {
	return m.workspaces.Get(ctx, sessionID)
}

// UpdateWorkspace applies a compare-and-swap workspace update.
func (m *Memory) UpdateWorkspace(ctx context.Context, sessionID string, data map[string]any, expectedVersion int64) (*memory.Workspace, error) {
	return m.workspaces.Update(ctx, sessionID, data, expectedVersion)
}

// HealthCheck probes every tier. The map always has one entry per tier;
// a nil value means healthy.
func (m *Memory) HealthCheck(ctx context.Context) map[string]error {
	return map[string]error{
		"active":    m.activeTier.HealthCheck(ctx),
		"working":   m.workingTier.HealthCheck(ctx),
		"episodic":  m.episodicTier.HealthCheck(ctx),
		"semantic":  m.semanticTier.HealthCheck(ctx),
		"workspace": m.workspaces.HealthCheck(ctx),
	}
}
