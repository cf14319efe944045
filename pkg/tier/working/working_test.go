package working_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/facts"
	"github.com/papercomputeco/strata/pkg/facts/inmemory"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/telemetry"
	"github.com/papercomputeco/strata/pkg/tier/working"
)

var _ = Describe("Tier", func() {
	var (
		ctx  context.Context
		tier *working.Tier
		base time.Time
	)

	newFact := func(id, turnID string, composite float64) *memory.Fact {
		return &memory.Fact{
			FactID:        id,
			SessionID:     "sess_1",
			Content:       "content for " + id,
			Score:         memory.CIARScore{Composite: composite},
			SourceTurnIDs: []string{turnID},
			CreatedAt:     base,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
		tier = working.New(inmemory.NewDriver(), logger.Nop(), telemetry.NewEmitter(nil, logger.Nop()))
	})

	Describe("Store", func() {
		It("stores and surfaces duplicates as ErrDuplicateFact", func() {
			_, err := tier.Store(ctx, newFact("f1", "t1", 0.8))
			Expect(err).NotTo(HaveOccurred())

			_, err = tier.Store(ctx, newFact("f2", "t1", 0.8))
			Expect(err).To(MatchError(memory.ErrDuplicateFact))
		})
	})

	Describe("Query", func() {
		It("orders by composite score descending", func() {
			_, err := tier.Store(ctx, newFact("f1", "t1", 0.5))
			Expect(err).NotTo(HaveOccurred())
			_, err = tier.Store(ctx, newFact("f2", "t2", 0.9))
			Expect(err).NotTo(HaveOccurred())

			results, err := tier.Query(ctx, "sess_1", facts.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].FactID).To(Equal("f2"))
		})

		It("refreshes LastAccessed on matched facts", func() {
			_, err := tier.Store(ctx, newFact("f1", "t1", 0.8))
			Expect(err).NotTo(HaveOccurred())

			results, err := tier.Query(ctx, "sess_1", facts.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))

			results, err = tier.Query(ctx, "sess_1", facts.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].LastAccessed).NotTo(BeNil())
		})
	})

	Describe("consolidation marks", func() {
		It("excludes consolidated facts from Unconsolidated", func() {
			_, err := tier.Store(ctx, newFact("f1", "t1", 0.8))
			Expect(err).NotTo(HaveOccurred())
			_, err = tier.Store(ctx, newFact("f2", "t2", 0.7))
			Expect(err).NotTo(HaveOccurred())

			Expect(tier.MarkConsolidated(ctx, []string{"f1"}, "ep_1")).To(Succeed())

			pending, err := tier.Unconsolidated(ctx, "sess_1", base.Add(-time.Hour), base.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].FactID).To(Equal("f2"))
		})
	})
})
