// Package promotion implements the L1→L2 engine: claim raw turns from
// the active window, segment them into topical spans, extract fact
// candidates, score each candidate, and store the significant ones as
// working memory.
//
// The run is safe to re-execute at any time. The claim is atomic, so two
// concurrent runs never process the same turn; and the fact store's
// source-turn uniqueness guard catches anything that slips through a
// crashed run's partially stored output.
package promotion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/strata/pkg/ciar"
	"github.com/papercomputeco/strata/pkg/engine"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/synth"
	"github.com/papercomputeco/strata/pkg/telemetry"
	"github.com/papercomputeco/strata/pkg/tier/active"
	"github.com/papercomputeco/strata/pkg/tier/working"
)

const (
	// DefaultThreshold is the minimum composite score for a candidate to
	// enter working memory.
	DefaultThreshold = 0.5

	// DefaultMaxTurns caps how many turns one run claims.
	DefaultMaxTurns = 50
)

// Config tunes one promotion engine.
type Config struct {
	// Threshold is the CIAR composite gate. Zero means DefaultThreshold.
	Threshold float64

	// MaxTurns caps the claim size per run. Zero means DefaultMaxTurns.
	MaxTurns int
}

// Engine promotes turns into facts.
type Engine struct {
	activeTier  *active.Tier
	workingTier *working.Tier
	invoker     synth.Invoker
	scorer      *ciar.Scorer
	threshold   float64
	maxTurns    int
	logger      *slog.Logger
	events      *telemetry.Emitter
}

// New creates the engine. Zero config fields fall back to defaults.
func New(activeTier *active.Tier, workingTier *working.Tier, invoker synth.Invoker, scorer *ciar.Scorer, c Config, logger *slog.Logger, events *telemetry.Emitter) *Engine {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}

	return &Engine{
		activeTier:  activeTier,
		workingTier: workingTier,
		invoker:     invoker,
		scorer:      scorer,
		threshold:   c.Threshold,
		maxTurns:    c.MaxTurns,
		logger:      logger,
		events:      events,
	}
}

// Run executes one promotion pass for a session.
func (e *Engine) Run(ctx context.Context, sessionID string) (engine.BatchResult, error) {
	var result engine.BatchResult

	e.events.Emit(telemetry.NewEvent(telemetry.EventPromotionStarted, sessionID, nil))

	turns, err := e.activeTier.ClaimForPromotion(ctx, sessionID, e.maxTurns)
	if err != nil {
		return result, fmt.Errorf("claiming turns: %w", err)
	}
	if len(turns) == 0 {
		e.emitCompleted(sessionID, result)
		return result, nil
	}

	segments, err := synth.Segment(ctx, e.invoker, synth.SegmentInput{Turns: turns})
	if err != nil {
		// Nothing stored yet; the whole claim failed as a unit.
		for _, turn := range turns {
			result.Fail(turn.TurnID, err)
		}
		e.emitCompleted(sessionID, result)
		return result, fmt.Errorf("segmenting %d turns: %w", len(turns), err)
	}

	claimed := make(map[string]struct{}, len(turns))
	for _, turn := range turns {
		claimed[turn.TurnID] = struct{}{}
	}

	for _, span := range segments.Spans {
		spanResult := e.processSpan(ctx, sessionID, turns, claimed, span)
		result.Merge(spanResult)
	}

	e.logger.Info("promotion run complete",
		"session_id", sessionID,
		"claimed", len(turns),
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	e.emitCompleted(sessionID, result)

	return result, nil
}

func (e *Engine) processSpan(ctx context.Context, sessionID string, turns []memory.Turn, claimed map[string]struct{}, span synth.Span) engine.BatchResult {
	var result engine.BatchResult

	if span.StartIndex < 0 || span.EndIndex >= len(turns) || span.StartIndex > span.EndIndex {
		result.Fail(span.Topic, fmt.Errorf("span indexes [%d,%d] out of range", span.StartIndex, span.EndIndex))
		return result
	}
	spanTurns := turns[span.StartIndex : span.EndIndex+1]

	extracted, err := synth.Extract(ctx, e.invoker, synth.ExtractInput{Turns: spanTurns, Topic: span.Topic})
	if err != nil {
		var schemaErr *memory.SchemaError
		if errors.As(err, &schemaErr) {
			// Malformed model output: log, skip the span, keep the run going.
			e.logger.Warn("extraction output rejected", "session_id", sessionID, "topic", span.Topic, "error", err)
			result.Skipped += len(spanTurns)
			return result
		}
		result.Fail(span.Topic, err)
		return result
	}

	for _, candidate := range extracted.Facts {
		// A candidate may only cite turns from this claim; anything else
		// is provider output inventing provenance.
		if unknown := unknownTurns(candidate.SourceTurnIDs, claimed); len(unknown) > 0 {
			e.logger.Warn("fact candidate cites turns outside the claim",
				"session_id", sessionID,
				"topic", span.Topic,
				"unknown_turn_ids", unknown,
			)
			result.Skipped++
			continue
		}

		score := e.scorer.Score(candidate.Certainty, candidate.Impact, candidate.Actionability, candidate.Relevance)
		if score.Composite < e.threshold {
			result.Skipped++
			continue
		}

		fact := &memory.Fact{
			FactID:    "fact_" + uuid.NewString(),
			SessionID: sessionID,
			Content:   candidate.Content,
			Score: memory.CIARScore{
				Certainty:     score.Certainty,
				Impact:        score.Impact,
				Actionability: score.Actionability,
				Relevance:     score.Relevance,
				Composite:     score.Composite,
			},
			Justification: candidate.Justification,
			SourceTurnIDs: candidate.SourceTurnIDs,
			CreatedAt:     time.Now().UTC(),
		}

		if _, err := e.workingTier.Store(ctx, fact); err != nil {
			if errors.Is(err, memory.ErrDuplicateFact) {
				result.Skipped++
				continue
			}
			result.Fail(fact.FactID, err)
			continue
		}
		result.Processed++
	}

	return result
}

// unknownTurns returns the cited turn IDs absent from the claimed set.
func unknownTurns(cited []string, claimed map[string]struct{}) []string {
	var unknown []string
	for _, id := range cited {
		if _, ok := claimed[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	return unknown
}

func (e *Engine) emitCompleted(sessionID string, result engine.BatchResult) {
	e.events.Emit(telemetry.NewEvent(telemetry.EventPromotionCompleted, sessionID, map[string]any{
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}))
}
