// Package consolidation implements the L2→L3 engine: gather
// unconsolidated facts into fixed-width time buckets, summarize each
// bucket into an episode, and store the episode in the dual episodic
// backends.
//
// Episode IDs derive deterministically from the session and bucket
// start, so a re-run after a crash overwrites its own partial output
// instead of duplicating episodes. Facts only get their consolidation
// stamp after the episode landed in both backends; a stalled episode
// leaves its facts eligible for the next run.
package consolidation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/strata/pkg/engine"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/synth"
	"github.com/papercomputeco/strata/pkg/telemetry"
	"github.com/papercomputeco/strata/pkg/tier/episodic"
	"github.com/papercomputeco/strata/pkg/tier/working"
)

const (
	// DefaultBucketWidth groups facts into hourly episodes.
	DefaultBucketWidth = time.Hour

	// DefaultLookback bounds how far back one run scans.
	DefaultLookback = 24 * time.Hour

	// DefaultMinFacts skips buckets too thin to summarize.
	DefaultMinFacts = 1

	// DefaultSummarizeRetries is how many summarization attempts a
	// bucket gets before it is reported stalled.
	DefaultSummarizeRetries = 3

	// DefaultRetryBackoff is the pause between summarization attempts.
	DefaultRetryBackoff = 200 * time.Millisecond
)

// Config tunes one consolidation engine.
type Config struct {
	// BucketWidth is the episode time window. Zero means
	// DefaultBucketWidth.
	BucketWidth time.Duration

	// Lookback is how far back the run scans for unconsolidated facts.
	// Zero means DefaultLookback.
	Lookback time.Duration

	// MinFacts is the minimum bucket size worth an episode. Zero means
	// DefaultMinFacts.
	MinFacts int

	// SummarizeRetries caps summarization attempts per bucket. Zero
	// means DefaultSummarizeRetries.
	SummarizeRetries int

	// RetryBackoff is the pause between summarization attempts. Zero
	// means DefaultRetryBackoff.
	RetryBackoff time.Duration
}

// Engine consolidates facts into episodes.
type Engine struct {
	workingTier  *working.Tier
	episodicTier *episodic.Tier
	invoker      synth.Invoker
	bucketWidth  time.Duration
	lookback     time.Duration
	minFacts     int
	retries      int
	backoff      time.Duration
	logger       *slog.Logger
	events       *telemetry.Emitter

	// now is a test hook.
	now func() time.Time
}

// New creates the engine. Zero config fields fall back to defaults.
func New(workingTier *working.Tier, episodicTier *episodic.Tier, invoker synth.Invoker, c Config, logger *slog.Logger, events *telemetry.Emitter) *Engine {
	if c.BucketWidth <= 0 {
		c.BucketWidth = DefaultBucketWidth
	}
	if c.Lookback <= 0 {
		c.Lookback = DefaultLookback
	}
	if c.MinFacts <= 0 {
		c.MinFacts = DefaultMinFacts
	}
	if c.SummarizeRetries <= 0 {
		c.SummarizeRetries = DefaultSummarizeRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}

	return &Engine{
		workingTier:  workingTier,
		episodicTier: episodicTier,
		invoker:      invoker,
		bucketWidth:  c.BucketWidth,
		lookback:     c.Lookback,
		minFacts:     c.MinFacts,
		retries:      c.SummarizeRetries,
		backoff:      c.RetryBackoff,
		logger:       logger,
		events:       events,
		now:          time.Now,
	}
}

// SetClock overrides the time source for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// EpisodeID derives the deterministic episode ID for a session bucket.
func EpisodeID(sessionID string, bucketStart time.Time) string {
	seed := fmt.Sprintf("%s/%d", sessionID, bucketStart.Unix())
	return "ep_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

// Run executes one consolidation pass for a session. Each bucket is one
// item in the result: processed when its episode landed, skipped when
// too thin, failed when summarization or the dual write did not land.
func (e *Engine) Run(ctx context.Context, sessionID string) (engine.BatchResult, error) {
	var result engine.BatchResult

	e.events.Emit(telemetry.NewEvent(telemetry.EventConsolidationStarted, sessionID, nil))

	until := e.now().UTC()
	since := until.Add(-e.lookback)

	facts, err := e.workingTier.Unconsolidated(ctx, sessionID, since, until)
	if err != nil {
		return result, fmt.Errorf("listing unconsolidated facts: %w", err)
	}
	if len(facts) == 0 {
		e.emitCompleted(sessionID, result)
		return result, nil
	}

	for _, bucket := range bucketize(facts, e.bucketWidth) {
		if len(bucket.facts) < e.minFacts {
			result.Skipped++
			continue
		}

		if err := e.consolidateBucket(ctx, sessionID, bucket); err != nil {
			e.logger.Warn("bucket consolidation failed",
				"session_id", sessionID,
				"bucket_start", bucket.start,
				"error", err,
			)
			result.Fail(bucket.start.Format(time.RFC3339), err)
			continue
		}
		result.Processed++
	}

	e.logger.Info("consolidation run complete",
		"session_id", sessionID,
		"facts", len(facts),
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	e.emitCompleted(sessionID, result)

	return result, nil
}

type bucket struct {
	start time.Time
	end   time.Time
	facts []memory.Fact
}

// bucketize groups facts by fixed-width creation-time windows. Input is
// oldest first; output preserves that order.
func bucketize(facts []memory.Fact, width time.Duration) []bucket {
	var buckets []bucket
	index := make(map[int64]int)

	for _, fact := range facts {
		start := fact.CreatedAt.Truncate(width)
		i, ok := index[start.Unix()]
		if !ok {
			i = len(buckets)
			index[start.Unix()] = i
			buckets = append(buckets, bucket{start: start, end: start.Add(width)})
		}
		buckets[i].facts = append(buckets[i].facts, fact)
	}

	return buckets
}

func (e *Engine) consolidateBucket(ctx context.Context, sessionID string, b bucket) error {
	summary, err := e.summarizeBucket(ctx, b)
	if err != nil {
		e.events.Emit(telemetry.NewEvent(telemetry.EventClusterStalled, sessionID, map[string]any{
			"bucket_start": b.start.Format(time.RFC3339),
			"facts":        len(b.facts),
			"attempts":     e.retries,
		}))
		return fmt.Errorf("summarizing %d facts after %d attempts: %w", len(b.facts), e.retries, err)
	}

	factIDs := make([]string, 0, len(b.facts))
	for _, fact := range b.facts {
		factIDs = append(factIDs, fact.FactID)
	}

	episode := &memory.Episode{
		EpisodeID:     EpisodeID(sessionID, b.start),
		SessionID:     sessionID,
		Summary:       summary.Summary,
		MemberFactIDs: factIDs,
		EntityEdges:   summary.EntityEdges,
		TimeRange:     memory.TimeRange{Start: b.start, End: b.end},
		CreatedAt:     e.now().UTC(),
	}

	if err := e.episodicTier.Store(ctx, episode); err != nil {
		// Facts stay unconsolidated; the next run retries the bucket as
		// a unit.
		return err
	}

	if err := e.workingTier.MarkConsolidated(ctx, factIDs, episode.EpisodeID); err != nil {
		return fmt.Errorf("marking %d facts consolidated: %w", len(factIDs), err)
	}

	return nil
}

// summarizeBucket retries summarization up to the configured budget.
// Facts stay unconsolidated when the budget runs out, so the next run
// gets the bucket back.
func (e *Engine) summarizeBucket(ctx context.Context, b bucket) (synth.SummarizeOutput, error) {
	var lastErr error

	for attempt := 0; attempt < e.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return synth.SummarizeOutput{}, ctx.Err()
			case <-time.After(e.backoff):
			}
		}

		out, err := synth.Summarize(ctx, e.invoker, synth.SummarizeInput{Facts: b.facts})
		if err == nil {
			return out, nil
		}
		lastErr = err
		e.logger.Warn("bucket summarization attempt failed",
			"bucket_start", b.start,
			"attempt", attempt+1,
			"error", err,
		)
	}

	return synth.SummarizeOutput{}, lastErr
}

func (e *Engine) emitCompleted(sessionID string, result engine.BatchResult) {
	e.events.Emit(telemetry.NewEvent(telemetry.EventConsolidationCompleted, sessionID, map[string]any{
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}))
}
