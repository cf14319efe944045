// Package episodic implements the L3 tier: consolidated episodes held in
// two backends at once, a vector index for similarity search and a graph
// store for relationship traversal.
//
// Store treats the pair as a unit. The vector write lands first; the
// graph write then gets a bounded retry budget, and if it never lands
// the vector write is rolled back and the episode is surfaced as
// stalled. An episode is never left visible in one backend only.
package episodic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/strata/pkg/embeddings"
	"github.com/papercomputeco/strata/pkg/graph"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/telemetry"
	"github.com/papercomputeco/strata/pkg/vector"
)

const (
	// DefaultGraphRetries is how many times the graph write is retried
	// after the vector write succeeded.
	DefaultGraphRetries = 3

	// DefaultRetryBackoff is the pause between graph retries.
	DefaultRetryBackoff = 200 * time.Millisecond
)

// Config holds dual-write retry tuning.
type Config struct {
	GraphRetries int
	RetryBackoff time.Duration
}

// Tier is the L3 episodic memory.
type Tier struct {
	vectors  vector.Driver
	graphs   graph.Driver
	embedder embeddings.Embedder
	retries  int
	backoff  time.Duration
	logger   *slog.Logger
	events   *telemetry.Emitter
}

// New creates the tier. Zero config fields fall back to defaults.
func New(vectors vector.Driver, graphs graph.Driver, embedder embeddings.Embedder, c Config, logger *slog.Logger, events *telemetry.Emitter) *Tier {
	if c.GraphRetries <= 0 {
		c.GraphRetries = DefaultGraphRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}

	return &Tier{
		vectors:  vectors,
		graphs:   graphs,
		embedder: embedder,
		retries:  c.GraphRetries,
		backoff:  c.RetryBackoff,
		logger:   logger,
		events:   events,
	}
}

// Store writes an episode to both backends. The returned error is a
// *memory.PartialTierFailure when the graph write never landed; the
// vector write has been rolled back by then and the episode can be
// retried as a unit.
func (t *Tier) Store(ctx context.Context, episode *memory.Episode) error {
	if episode.EpisodeID == "" {
		return fmt.Errorf("episode has no episode_id")
	}

	embedding := episode.Embedding
	if len(embedding) == 0 {
		var err error
		embedding, err = t.embedder.Embed(ctx, episode.Summary)
		if err != nil {
			return fmt.Errorf("embedding episode %s: %w", episode.EpisodeID, err)
		}
		episode.Embedding = embedding
	}

	payload, err := json.Marshal(episode)
	if err != nil {
		return fmt.Errorf("encoding episode %s: %w", episode.EpisodeID, err)
	}

	if err := t.vectors.Add(ctx, []vector.Document{{
		ID:        episode.EpisodeID,
		SessionID: episode.SessionID,
		Embedding: embedding,
		Payload:   string(payload),
	}}); err != nil {
		return fmt.Errorf("vector write for episode %s: %w", episode.EpisodeID, err)
	}

	var graphErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				graphErr = ctx.Err()
			case <-time.After(t.backoff):
			}
			if graphErr != nil {
				break
			}
		}
		if graphErr = t.graphs.UpsertEpisode(ctx, episode); graphErr == nil {
			break
		}
		t.logger.Warn("graph write failed",
			"episode_id", episode.EpisodeID,
			"attempt", attempt+1,
			"error", graphErr,
		)
	}

	if graphErr != nil {
		// Roll back so the episode is not visible in one backend only.
		// A failed rollback is logged; the retry of the whole unit will
		// overwrite the orphan.
		if rbErr := t.vectors.Delete(ctx, []string{episode.EpisodeID}); rbErr != nil {
			t.logger.Error("vector rollback failed",
				"episode_id", episode.EpisodeID,
				"error", rbErr,
			)
		}

		t.events.Emit(telemetry.NewEvent(telemetry.EventEpisodeStalled, episode.SessionID, map[string]any{
			"episode_id": episode.EpisodeID,
			"error":      graphErr.Error(),
		}))

		return &memory.PartialTierFailure{
			EpisodeID: episode.EpisodeID,
			Succeeded: "vector",
			Failed:    "graph",
			Err:       graphErr,
		}
	}

	t.logger.Debug("episode stored",
		"session_id", episode.SessionID,
		"episode_id", episode.EpisodeID,
		"member_facts", len(episode.MemberFactIDs),
	)
	t.events.Emit(telemetry.NewEvent(telemetry.EventEpisodeStored, episode.SessionID, map[string]any{
		"episode_id":   episode.EpisodeID,
		"member_facts": len(episode.MemberFactIDs),
	}))

	return nil
}

// SimilarResult is one similarity hit.
type SimilarResult struct {
	Episode memory.Episode
	Score   float32
}

// SearchSimilar embeds the query and returns the topK most similar
// episodes. A non-empty sessionID restricts results to that session.
func (t *Tier) SearchSimilar(ctx context.Context, query string, topK int, sessionID string) ([]SimilarResult, error) {
	embedding, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := t.vectors.Query(ctx, embedding, topK, sessionID)
	if err != nil {
		return nil, fmt.Errorf("searching episodes: %w", err)
	}

	results := make([]SimilarResult, 0, len(hits))
	for _, hit := range hits {
		episode, err := decodeEpisode(hit.Payload)
		if err != nil {
			t.logger.Warn("skipping undecodable episode payload", "episode_id", hit.ID, "error", err)
			continue
		}
		results = append(results, SimilarResult{Episode: episode, Score: hit.Score})
	}

	return results, nil
}

// Get returns episodes by ID. Missing IDs are skipped.
func (t *Tier) Get(ctx context.Context, episodeIDs []string) ([]memory.Episode, error) {
	docs, err := t.vectors.Get(ctx, episodeIDs)
	if err != nil {
		return nil, fmt.Errorf("getting %d episodes: %w", len(episodeIDs), err)
	}
	return decodeEpisodes(docs, t.logger)
}

// BySession returns up to limit episodes for a session.
func (t *Tier) BySession(ctx context.Context, sessionID string, limit int) ([]memory.Episode, error) {
	docs, err := t.vectors.List(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing episodes for %s: %w", sessionID, err)
	}
	return decodeEpisodes(docs, t.logger)
}

// Traverse runs a registered graph traversal template.
func (t *Tier) Traverse(ctx context.Context, template string, params map[string]any) ([]graph.Row, error) {
	return t.graphs.Traverse(ctx, template, params)
}

// HealthCheck verifies both backends are reachable.
func (t *Tier) HealthCheck(ctx context.Context) error {
	if err := t.vectors.HealthCheck(ctx); err != nil {
		return err
	}
	return t.graphs.HealthCheck(ctx)
}

func decodeEpisode(payload string) (memory.Episode, error) {
	var episode memory.Episode
	if err := json.Unmarshal([]byte(payload), &episode); err != nil {
		return memory.Episode{}, fmt.Errorf("decoding episode: %w", err)
	}
	return episode, nil
}

func decodeEpisodes(docs []vector.Document, logger *slog.Logger) ([]memory.Episode, error) {
	episodes := make([]memory.Episode, 0, len(docs))
	for _, doc := range docs {
		episode, err := decodeEpisode(doc.Payload)
		if err != nil {
			logger.Warn("skipping undecodable episode payload", "episode_id", doc.ID, "error", err)
			continue
		}
		episodes = append(episodes, episode)
	}
	return episodes, nil
}
