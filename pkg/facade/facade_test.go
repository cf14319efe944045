package facade_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	cachemem "github.com/papercomputeco/strata/pkg/cache/inmemory"
	"github.com/papercomputeco/strata/pkg/ciar"
	staticemb "github.com/papercomputeco/strata/pkg/embeddings/static"
	"github.com/papercomputeco/strata/pkg/engine/consolidation"
	"github.com/papercomputeco/strata/pkg/engine/distillation"
	"github.com/papercomputeco/strata/pkg/engine/promotion"
	"github.com/papercomputeco/strata/pkg/facade"
	factsmem "github.com/papercomputeco/strata/pkg/facts/inmemory"
	graphmem "github.com/papercomputeco/strata/pkg/graph/inmemory"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
	searchmem "github.com/papercomputeco/strata/pkg/search/inmemory"
	"github.com/papercomputeco/strata/pkg/synth"
	synthstatic "github.com/papercomputeco/strata/pkg/synth/static"
	"github.com/papercomputeco/strata/pkg/telemetry"
	"github.com/papercomputeco/strata/pkg/tier/active"
	"github.com/papercomputeco/strata/pkg/tier/episodic"
	"github.com/papercomputeco/strata/pkg/tier/semantic"
	"github.com/papercomputeco/strata/pkg/tier/working"
	vecmem "github.com/papercomputeco/strata/pkg/vector/inmemory"
	"github.com/papercomputeco/strata/pkg/workspace"
)

// newMemory wires a fully in-memory substrate.
func newMemory(flags facade.Flags, invoker *synthstatic.Invoker) *facade.Memory {
	nop := logger.Nop()
	events := telemetry.NewEmitter(nil, nop)

	store := cachemem.NewStore()
	graphs := graphmem.NewDriver()

	activeTier := active.New(store, active.Config{}, nop, events)
	workingTier := working.New(factsmem.NewDriver(), nop, events)
	episodicTier := episodic.New(vecmem.NewDriver(), graphs, staticemb.NewEmbedder(0),
		episodic.Config{RetryBackoff: time.Millisecond}, nop, events)
	semanticTier := semantic.New(searchmem.NewDriver(), graphs, invoker, nop, events)
	workspaces := workspace.New(store, workspace.Config{}, nop, events)

	scorer, err := ciar.NewScorer(ciar.DefaultWeights())
	Expect(err).NotTo(HaveOccurred())

	engines := facade.Engines{
		Promotion:     promotion.New(activeTier, workingTier, invoker, scorer, promotion.Config{}, nop, events),
		Consolidation: consolidation.New(workingTier, episodicTier, invoker, consolidation.Config{}, nop, events),
		Distillation:  distillation.New(episodicTier, semanticTier, invoker, distillation.Config{}, nop, events),
	}

	return facade.New(activeTier, workingTier, episodicTier, semanticTier, workspaces, engines, flags, nop)
}

var _ = Describe("Memory", func() {
	var (
		ctx     context.Context
		invoker *synthstatic.Invoker
		mem     *facade.Memory
	)

	allOn := facade.Flags{Promotion: true, Consolidation: true, Distillation: true, Telemetry: true}

	BeforeEach(func() {
		ctx = context.Background()
		invoker = synthstatic.NewInvoker()
		mem = newMemory(allOn, invoker)
	})

	storeTurns := func(sessionID string, contents ...string) {
		for i, content := range contents {
			_, err := mem.StoreTurn(ctx, sessionID, memory.Turn{
				TurnID:    fmt.Sprintf("t%d", i+1),
				Role:      "user",
				Content:   content,
				Timestamp: time.Now().UTC(),
			})
			Expect(err).NotTo(HaveOccurred())
		}
	}

	It("flows a conversation through all three engines", func() {
		storeTurns("sess_1",
			"we decided the deploy pipeline will use canary releases",
			"rollbacks must always reuse the previous image tag",
		)

		promoted, err := mem.RunPromotion(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(promoted.Processed).To(BeNumerically(">", 0))

		consolidated, err := mem.RunConsolidation(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(consolidated.Processed).To(BeNumerically(">", 0))

		// The static summarizer emits participant edges only; give the
		// distiller a topic to group on.
		invoker.SummarizeFn = nil
		distilled, err := mem.RunDistillation(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(distilled.Failed).To(BeZero())
	})

	It("returns merged results from all tiers on Retrieve", func() {
		storeTurns("sess_1", "we decided the primary datastore will be postgres")

		_, err := mem.RunPromotion(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())

		result, err := mem.Retrieve(ctx, "sess_1", "primary datastore", facade.RetrieveOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Turns).NotTo(BeEmpty())
		Expect(result.Facts).NotTo(BeEmpty())
		Expect(result.Errors).To(BeEmpty())
	})

	It("restricts the fan-out to the requested tiers", func() {
		storeTurns("sess_1", "we decided the primary datastore will be postgres")

		_, err := mem.RunPromotion(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())

		result, err := mem.Retrieve(ctx, "sess_1", "primary datastore", facade.RetrieveOptions{
			Tiers: []string{"active"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Turns).NotTo(BeEmpty())
		Expect(result.Facts).To(BeEmpty())
		Expect(result.Episodes).To(BeEmpty())
		Expect(result.Documents).To(BeEmpty())
	})

	It("rejects a filter naming an unknown tier", func() {
		_, err := mem.Retrieve(ctx, "sess_1", "anything", facade.RetrieveOptions{
			Tiers: []string{"archive"},
		})
		Expect(err).To(MatchError(facade.ErrUnknownTier))
	})

	It("renders facts and turns into a context block", func() {
		storeTurns("sess_1", "we decided the primary datastore will be postgres")

		_, err := mem.RunPromotion(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())

		block, err := mem.ContextBlock(ctx, "sess_1", 0, 10, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(block).To(ContainSubstring("## Known facts"))
		Expect(block).To(ContainSubstring("## Recent conversation"))
		Expect(block).To(ContainSubstring("postgres"))
	})

	It("refuses to run disabled engines", func() {
		mem = newMemory(facade.Flags{}, invoker)

		_, err := mem.RunPromotion(ctx, "sess_1")
		Expect(err).To(MatchError(facade.ErrEngineDisabled))

		_, err = mem.RunConsolidation(ctx, "sess_1")
		Expect(err).To(MatchError(facade.ErrEngineDisabled))

		_, err = mem.RunDistillation(ctx, "sess_1")
		Expect(err).To(MatchError(facade.ErrEngineDisabled))
	})

	It("passes workspace operations through with CAS semantics", func() {
		ws, err := mem.UpdateWorkspace(ctx, "sess_1", map[string]any{"plan": "draft"}, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(ws.Version).To(Equal(int64(1)))

		_, err = mem.UpdateWorkspace(ctx, "sess_1", map[string]any{"plan": "stale"}, 0)
		Expect(err).To(MatchError(memory.ErrVersionConflict))

		read, err := mem.Workspace(ctx, "sess_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(read.Data).To(HaveKeyWithValue("plan", "draft"))
	})

	It("reports per-tier health", func() {
		health := mem.HealthCheck(ctx)
		Expect(health).To(HaveLen(5))
		for tier, err := range health {
			Expect(err).NotTo(HaveOccurred(), "tier %s", tier)
		}
	})

	Describe("synthesized answers", func() {
		It("answers from distilled knowledge", func() {
			storeTurns("sess_1", "we decided the primary datastore will be postgres")

			_, err := mem.RunPromotion(ctx, "sess_1")
			Expect(err).NotTo(HaveOccurred())

			invoker.SummarizeFn = func(in synth.SummarizeInput) (synth.SummarizeOutput, error) {
				return synth.SummarizeOutput{
					Summary: "the primary datastore decision",
					EntityEdges: []memory.EntityEdge{
						{Relation: memory.RelationTopic, Source: "storage", Weight: 0.9},
					},
				}, nil
			}

			_, err = mem.RunConsolidation(ctx, "sess_1")
			Expect(err).NotTo(HaveOccurred())

			distilled, err := mem.RunDistillation(ctx, "sess_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(distilled.Processed).To(Equal(1))

			answer, err := mem.Answer(ctx, "primary datastore decision", "storage", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(answer.Answer).NotTo(BeEmpty())
		})
	})
})
