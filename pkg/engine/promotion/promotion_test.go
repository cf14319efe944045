package promotion_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	cachemem "github.com/papercomputeco/strata/pkg/cache/inmemory"
	"github.com/papercomputeco/strata/pkg/ciar"
	"github.com/papercomputeco/strata/pkg/engine/promotion"
	"github.com/papercomputeco/strata/pkg/facts"
	factsmem "github.com/papercomputeco/strata/pkg/facts/inmemory"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/synth"
	"github.com/papercomputeco/strata/pkg/synth/static"
	"github.com/papercomputeco/strata/pkg/telemetry"
	"github.com/papercomputeco/strata/pkg/tier/active"
	"github.com/papercomputeco/strata/pkg/tier/working"
)

var _ = Describe("Engine", func() {
	var (
		ctx         context.Context
		activeTier  *active.Tier
		workingTier *working.Tier
		invoker     *static.Invoker
		eng         *promotion.Engine
	)

	nop := logger.Nop()

	newEngine := func(threshold float64) *promotion.Engine {
		scorer, err := ciar.NewScorer(ciar.DefaultWeights())
		Expect(err).NotTo(HaveOccurred())
		return promotion.New(activeTier, workingTier, invoker, scorer,
			promotion.Config{Threshold: threshold},
			nop, telemetry.NewEmitter(nil, nop))
	}

	appendTurns := func(sessionID string, n int) {
		for i := 1; i <= n; i++ {
			_, err := activeTier.Append(ctx, sessionID, memory.Turn{
				TurnID:    fmt.Sprintf("t%d", i),
				Role:      "user",
				Content:   fmt.Sprintf("substantial turn content number %d", i),
				Timestamp: time.Date(2025, 6, 1, 9, i, 0, 0, time.UTC),
			})
			Expect(err).NotTo(HaveOccurred())
		}
	}

	// candidate builds a fact candidate whose composite under equal
	// weights is the mean of its subscores.
	candidate := func(turnID string, score float64) synth.FactCandidate {
		return synth.FactCandidate{
			Content:       "fact from " + turnID,
			Justification: "test",
			Certainty:     score,
			Impact:        score,
			Actionability: score,
			Relevance:     score,
			SourceTurnIDs: []string{turnID},
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		activeTier = active.New(cachemem.NewStore(), active.Config{}, nop, telemetry.NewEmitter(nil, nop))
		workingTier = working.New(factsmem.NewDriver(), nop, telemetry.NewEmitter(nil, nop))
		invoker = static.NewInvoker()
		eng = newEngine(0.6)
	})

	It("stores candidates at or above the threshold and skips the rest", func() {
		appendTurns("sess_1", 5)

		invoker.ExtractFn = func(in synth.ExtractInput) (synth.ExtractOutput, error) {
			return synth.ExtractOutput{Facts: []synth.FactCandidate{
				candidate("t1", 0.9),
				candidate("t2", 0.7),
				candidate("t3", 0.6),
				candidate("t4", 0.5),
				candidate("t5", 0.2),
			}}, nil
		}

		result, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Processed).To(Equal(3))
		Expect(result.Skipped).To(Equal(2))
		Expect(result.Failed).To(BeZero())

		stored, err := workingTier.Query(ctx, "sess_1", facts.Query{})
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(HaveLen(3))
		Expect(stored[0].Score.Composite).To(BeNumerically(">=", 0.6))
	})

	It("claims each turn at most once across runs", func() {
		appendTurns("sess_1", 3)

		extractCalls := 0
		invoker.ExtractFn = func(in synth.ExtractInput) (synth.ExtractOutput, error) {
			extractCalls++
			out := synth.ExtractOutput{}
			for _, turn := range in.Turns {
				out.Facts = append(out.Facts, candidate(turn.TurnID, 0.9))
			}
			return out, nil
		}

		first, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Processed).To(Equal(3))

		second, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Processed).To(BeZero())
		Expect(extractCalls).To(Equal(1))
	})

	It("skips duplicate facts when the source turn is already indexed", func() {
		appendTurns("sess_1", 2)

		_, err := workingTier.Store(ctx, &memory.Fact{
			FactID:        "fact_existing",
			SessionID:     "sess_1",
			Content:       "already promoted",
			Score:         memory.CIARScore{Composite: 0.9},
			SourceTurnIDs: []string{"t1"},
			CreatedAt:     time.Now().UTC(),
		})
		Expect(err).NotTo(HaveOccurred())

		invoker.ExtractFn = func(in synth.ExtractInput) (synth.ExtractOutput, error) {
			return synth.ExtractOutput{Facts: []synth.FactCandidate{
				candidate("t1", 0.9),
				candidate("t2", 0.9),
			}}, nil
		}

		result, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Processed).To(Equal(1))
		Expect(result.Skipped).To(Equal(1))
	})

	It("skips candidates citing turns outside the claimed window", func() {
		appendTurns("sess_1", 2)

		invoker.ExtractFn = func(in synth.ExtractInput) (synth.ExtractOutput, error) {
			return synth.ExtractOutput{Facts: []synth.FactCandidate{
				candidate("t1", 0.9),
				candidate("t_ghost", 0.9),
			}}, nil
		}

		result, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Processed).To(Equal(1))
		Expect(result.Skipped).To(Equal(1))

		stored, err := workingTier.Query(ctx, "sess_1", facts.Query{})
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(HaveLen(1))
		Expect(stored[0].SourceTurnIDs).To(ConsistOf("t1"))
	})

	It("skips a span whose extraction output fails validation", func() {
		appendTurns("sess_1", 2)

		invoker.ExtractFn = func(in synth.ExtractInput) (synth.ExtractOutput, error) {
			return synth.ExtractOutput{}, &memory.SchemaError{Kind: "extract", Detail: "malformed json"}
		}

		result, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Processed).To(BeZero())
		Expect(result.Skipped).To(Equal(2))
		Expect(result.Failed).To(BeZero())
	})

	It("reports provider failures per span without storing anything", func() {
		appendTurns("sess_1", 2)

		invoker.ExtractFn = func(in synth.ExtractInput) (synth.ExtractOutput, error) {
			return synth.ExtractOutput{}, &memory.ProviderError{Kind: "extract", Err: fmt.Errorf("rate limited")}
		}

		result, err := eng.Run(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Failed).To(Equal(1))
		Expect(result.Failures).To(HaveLen(1))

		stored, err := workingTier.Query(ctx, "sess_1", facts.Query{})
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(BeEmpty())
	})

	It("does nothing for an empty session", func() {
		result, err := eng.Run(ctx, "sess_empty")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Processed).To(BeZero())
		Expect(result.Skipped).To(BeZero())
		Expect(result.Failed).To(BeZero())
	})
})
