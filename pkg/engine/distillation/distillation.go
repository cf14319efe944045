// Package distillation implements the L3→L4 engine: group a session's
// episodes by topic, synthesize each topic's episodes (plus the topic's
// current knowledge document) into a new document, and store it so the
// old document is superseded, never edited.
//
// Contradictions between sources are carried on the document; the engine
// never picks a winner. A topic whose document already covers every
// known episode is skipped, which makes re-runs cheap and idempotent.
package distillation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/strata/pkg/engine"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/synth"
	"github.com/papercomputeco/strata/pkg/telemetry"
	"github.com/papercomputeco/strata/pkg/tier/episodic"
	"github.com/papercomputeco/strata/pkg/tier/semantic"
)

// DefaultMaxEpisodes caps how many episodes one run scans per session.
const DefaultMaxEpisodes = 200

// Config tunes one distillation engine.
type Config struct {
	// MaxEpisodes caps the per-session episode scan. Zero means
	// DefaultMaxEpisodes.
	MaxEpisodes int
}

// Engine distills episodes into knowledge documents.
type Engine struct {
	episodicTier *episodic.Tier
	semanticTier *semantic.Tier
	invoker      synth.Invoker
	maxEpisodes  int
	logger       *slog.Logger
	events       *telemetry.Emitter
}

// New creates the engine. Zero config fields fall back to defaults.
func New(episodicTier *episodic.Tier, semanticTier *semantic.Tier, invoker synth.Invoker, c Config, logger *slog.Logger, events *telemetry.Emitter) *Engine {
	if c.MaxEpisodes <= 0 {
		c.MaxEpisodes = DefaultMaxEpisodes
	}

	return &Engine{
		episodicTier: episodicTier,
		semanticTier: semanticTier,
		invoker:      invoker,
		maxEpisodes:  c.MaxEpisodes,
		logger:       logger,
		events:       events,
	}
}

// Run executes one distillation pass for a session. Each topic is one
// item in the result.
func (e *Engine) Run(ctx context.Context, sessionID string) (engine.BatchResult, error) {
	var result engine.BatchResult

	e.events.Emit(telemetry.NewEvent(telemetry.EventDistillationStarted, sessionID, nil))

	episodes, err := e.episodicTier.BySession(ctx, sessionID, e.maxEpisodes)
	if err != nil {
		return result, fmt.Errorf("listing episodes: %w", err)
	}
	if len(episodes) == 0 {
		e.emitCompleted(sessionID, result)
		return result, nil
	}

	for _, topic := range topics(episodes) {
		outcome, err := e.distillTopic(ctx, sessionID, topic.name, topic.episodes)
		if err != nil {
			e.logger.Warn("topic distillation failed",
				"session_id", sessionID,
				"topic", topic.name,
				"error", err,
			)
			result.Fail(topic.name, err)
			continue
		}
		if outcome == outcomeSkipped {
			result.Skipped++
			continue
		}
		result.Processed++
	}

	e.logger.Info("distillation run complete",
		"session_id", sessionID,
		"episodes", len(episodes),
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	e.emitCompleted(sessionID, result)

	return result, nil
}

type topicGroup struct {
	name     string
	episodes []memory.Episode
}

// topics groups episodes by their topic entity edges, sorted by name for
// a stable run order. An episode with several topic edges feeds several
// groups; episodes with none are not distillable.
func topics(episodes []memory.Episode) []topicGroup {
	grouped := make(map[string][]memory.Episode)
	for _, ep := range episodes {
		for _, edge := range ep.EntityEdges {
			if edge.Relation != memory.RelationTopic || edge.Source == "" {
				continue
			}
			grouped[edge.Source] = append(grouped[edge.Source], ep)
		}
	}

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]topicGroup, 0, len(names))
	for _, name := range names {
		groups = append(groups, topicGroup{name: name, episodes: grouped[name]})
	}

	return groups
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
)

func (e *Engine) distillTopic(ctx context.Context, sessionID, topic string, episodes []memory.Episode) (outcome, error) {
	prior, err := e.semanticTier.Latest(ctx, topic)
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		return outcomeSkipped, fmt.Errorf("looking up prior document: %w", err)
	}

	if prior != nil && coversAll(prior.SourceEpisodeIDs, episodes) {
		return outcomeSkipped, nil
	}

	out, err := synth.Synthesize(ctx, e.invoker, synth.SynthesizeInput{
		Topic:    topic,
		Episodes: episodes,
		Prior:    prior,
	})
	if err != nil {
		return outcomeSkipped, fmt.Errorf("synthesizing %d episodes: %w", len(episodes), err)
	}

	episodeIDs := make([]string, 0, len(episodes))
	for _, ep := range episodes {
		episodeIDs = append(episodeIDs, ep.EpisodeID)
	}

	doc := &memory.KnowledgeDocument{
		DocumentID:       "doc_" + uuid.NewString(),
		Topic:            topic,
		Body:             out.Body,
		SourceEpisodeIDs: episodeIDs,
		Contradictions:   out.Contradictions,
		CreatedAt:        time.Now().UTC(),
	}

	if err := e.semanticTier.Store(ctx, sessionID, doc); err != nil {
		return outcomeSkipped, fmt.Errorf("storing document: %w", err)
	}

	return outcomeProcessed, nil
}

// coversAll reports whether every episode ID is already among the prior
// document's sources.
func coversAll(sourceIDs []string, episodes []memory.Episode) bool {
	known := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		known[id] = struct{}{}
	}
	for _, ep := range episodes {
		if _, ok := known[ep.EpisodeID]; !ok {
			return false
		}
	}
	return true
}

func (e *Engine) emitCompleted(sessionID string, result engine.BatchResult) {
	e.events.Emit(telemetry.NewEvent(telemetry.EventDistillationCompleted, sessionID, map[string]any{
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}))
}
