package consolidation_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/embeddings/static"
	"github.com/papercomputeco/strata/pkg/engine/consolidation"
	factsmem "github.com/papercomputeco/strata/pkg/facts/inmemory"
	graphmem "github.com/papercomputeco/strata/pkg/graph/inmemory"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/synth"
	synthstatic "github.com/papercomputeco/strata/pkg/synth/static"
	"github.com/papercomputeco/strata/pkg/telemetry"
	"github.com/papercomputeco/strata/pkg/tier/episodic"
	"github.com/papercomputeco/strata/pkg/tier/working"
	vecmem "github.com/papercomputeco/strata/pkg/vector/inmemory"
)

// failingGraph always fails, simulating a down graph backend.
type failingGraph struct {
	*graphmem.Driver
}

func (f *failingGraph) UpsertEpisode(context.Context, *memory.Episode) error {
	return errors.New("graph backend down")
}

var _ = Describe("Engine", func() {
	var (
		ctx          context.Context
		workingTier  *working.Tier
		episodicTier *episodic.Tier
		invoker      *synthstatic.Invoker
		eng          *consolidation.Engine
		base         time.Time
	)

	nop := logger.Nop()

	storeFact := func(id string, at time.Time) {
		_, err := workingTier.Store(ctx, &memory.Fact{
			FactID:        id,
			SessionID:     "sess_1",
			Content:       "fact content " + id,
			Score:         memory.CIARScore{Composite: 0.8},
			SourceTurnIDs: []string{"turn_" + id},
			CreatedAt:     at,
		})
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
		workingTier = working.New(factsmem.NewDriver(), nop, telemetry.NewEmitter(nil, nop))
		episodicTier = episodic.New(vecmem.NewDriver(), graphmem.NewDriver(), static.NewEmbedder(0),
			episodic.Config{RetryBackoff: time.Millisecond}, nop, telemetry.NewEmitter(nil, nop))
		invoker = synthstatic.NewInvoker()
		eng = consolidation.New(workingTier, episodicTier, invoker,
			consolidation.Config{BucketWidth: time.Hour}, nop, telemetry.NewEmitter(nil, nop))
		eng.SetClock(func() time.Time { return base.Add(3 * time.Hour) })
	})

	It("creates one episode for one occupied bucket and nothing for empty ones", func() {
		// Four facts in the 09:00 bucket; the 10:00 bucket stays empty.
		for i := 0; i < 4; i++ {
			storeFact(fmt.Sprintf("f%d", i+1), base.Add(time.Duration(i)*10*time.Minute))
		}

		result, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Processed).To(Equal(1))
		Expect(result.Failed).To(BeZero())

		episodes, err := episodicTier.BySession(ctx, "sess_1", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(episodes).To(HaveLen(1))
		Expect(episodes[0].MemberFactIDs).To(ConsistOf("f1", "f2", "f3", "f4"))
		Expect(episodes[0].TimeRange.Start).To(Equal(base))
	})

	It("splits facts across bucket boundaries", func() {
		storeFact("f1", base.Add(10*time.Minute))
		storeFact("f2", base.Add(70*time.Minute))

		result, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Processed).To(Equal(2))

		episodes, err := episodicTier.BySession(ctx, "sess_1", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(episodes).To(HaveLen(2))
	})

	It("does not re-consolidate already consolidated facts", func() {
		storeFact("f1", base.Add(10*time.Minute))

		first, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Processed).To(Equal(1))

		second, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Processed).To(BeZero())
	})

	It("derives the same episode ID for the same session bucket", func() {
		a := consolidation.EpisodeID("sess_1", base)
		b := consolidation.EpisodeID("sess_1", base)
		c := consolidation.EpisodeID("sess_2", base)
		Expect(a).To(Equal(b))
		Expect(a).NotTo(Equal(c))
	})

	It("retries summarization within the configured budget", func() {
		eng = consolidation.New(workingTier, episodicTier, invoker,
			consolidation.Config{BucketWidth: time.Hour, SummarizeRetries: 3, RetryBackoff: time.Millisecond},
			nop, telemetry.NewEmitter(nil, nop))
		eng.SetClock(func() time.Time { return base.Add(3 * time.Hour) })

		attempts := 0
		invoker.SummarizeFn = func(in synth.SummarizeInput) (synth.SummarizeOutput, error) {
			attempts++
			if attempts < 3 {
				return synth.SummarizeOutput{}, &memory.ProviderError{Kind: "summarize", Err: errors.New("overloaded")}
			}
			return synth.SummarizeOutput{Summary: "eventually summarized"}, nil
		}

		storeFact("f1", base.Add(10*time.Minute))

		result, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Processed).To(Equal(1))
		Expect(attempts).To(Equal(3))
	})

	It("reports a bucket stalled once the summarize budget runs out", func() {
		eng = consolidation.New(workingTier, episodicTier, invoker,
			consolidation.Config{BucketWidth: time.Hour, SummarizeRetries: 2, RetryBackoff: time.Millisecond},
			nop, telemetry.NewEmitter(nil, nop))
		eng.SetClock(func() time.Time { return base.Add(3 * time.Hour) })

		attempts := 0
		invoker.SummarizeFn = func(in synth.SummarizeInput) (synth.SummarizeOutput, error) {
			attempts++
			return synth.SummarizeOutput{}, &memory.ProviderError{Kind: "summarize", Err: errors.New("down")}
		}

		storeFact("f1", base.Add(10*time.Minute))

		result, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Failed).To(Equal(1))
		Expect(attempts).To(Equal(2))

		// The bucket stays eligible for the next run.
		pending, err := workingTier.Unconsolidated(ctx, "sess_1", base, base.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(HaveLen(1))
	})

	It("leaves facts unconsolidated when the episode stalls", func() {
		stalled := episodic.New(vecmem.NewDriver(), &failingGraph{Driver: graphmem.NewDriver()},
			static.NewEmbedder(0), episodic.Config{GraphRetries: 1, RetryBackoff: time.Millisecond},
			nop, telemetry.NewEmitter(nil, nop))
		eng = consolidation.New(workingTier, stalled, invoker,
			consolidation.Config{BucketWidth: time.Hour}, nop, telemetry.NewEmitter(nil, nop))
		eng.SetClock(func() time.Time { return base.Add(3 * time.Hour) })

		storeFact("f1", base.Add(10*time.Minute))

		result, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Failed).To(Equal(1))

		pending, err := workingTier.Unconsolidated(ctx, "sess_1", base, base.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(HaveLen(1))
	})
})
