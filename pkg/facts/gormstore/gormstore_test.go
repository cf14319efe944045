package gormstore_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/facts"
	"github.com/papercomputeco/strata/pkg/facts/gormstore"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
)

var _ = Describe("Gorm Fact Store", func() {
	var (
		store *gormstore.Store
		ctx   context.Context
		base  time.Time
	)

	BeforeEach(func() {
		var err error
		store, err = gormstore.NewStore(gormstore.Config{
			Dialect: gormstore.DialectSQLite,
			DSN:     ":memory:",
		}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()
		base = time.Unix(1735689600, 0).UTC()
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	newFact := func(id string, composite float64, createdAt time.Time, turnIDs ...string) *memory.Fact {
		return &memory.Fact{
			FactID:        id,
			SessionID:     "s1",
			Content:       "fact " + id,
			Score:         memory.CIARScore{Certainty: 0.9, Composite: composite},
			SourceTurnIDs: turnIDs,
			CreatedAt:     createdAt,
		}
	}

	It("round-trips a fact with its subscores and sources", func() {
		_, err := store.Store(ctx, newFact("f1", 0.75, base, "t1", "t2"))
		Expect(err).NotTo(HaveOccurred())

		out, err := store.Query(ctx, "s1", facts.Query{})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(1))
		Expect(out[0].Score.Certainty).To(Equal(0.9))
		Expect(out[0].Score.Composite).To(Equal(0.75))
		Expect(out[0].SourceTurnIDs).To(Equal([]string{"t1", "t2"}))
	})

	It("rejects duplicate fact IDs with ErrDuplicateFact", func() {
		_, err := store.Store(ctx, newFact("f1", 0.5, base, "t1"))
		Expect(err).NotTo(HaveOccurred())

		_, err = store.Store(ctx, newFact("f1", 0.5, base, "t9"))
		Expect(err).To(MatchError(memory.ErrDuplicateFact))
	})

	It("rejects re-promotion of an indexed source turn", func() {
		_, err := store.Store(ctx, newFact("f1", 0.5, base, "t1"))
		Expect(err).NotTo(HaveOccurred())

		_, err = store.Store(ctx, newFact("f2", 0.5, base, "t1"))
		Expect(err).To(MatchError(memory.ErrDuplicateFact))

		// The failed insert must not leave partial rows behind.
		out, err := store.Query(ctx, "s1", facts.Query{})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(1))
	})

	It("orders queries by composite desc, created_at asc", func() {
		_, err := store.Store(ctx, newFact("low", 0.2, base, "t1"))
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Store(ctx, newFact("high-late", 0.9, base.Add(time.Minute), "t2"))
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Store(ctx, newFact("high-early", 0.9, base, "t3"))
		Expect(err).NotTo(HaveOccurred())

		out, err := store.Query(ctx, "s1", facts.Query{})
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].FactID).To(Equal("high-early"))
		Expect(out[1].FactID).To(Equal("high-late"))
		Expect(out[2].FactID).To(Equal("low"))
	})

	It("marks facts consolidated exactly once", func() {
		_, err := store.Store(ctx, newFact("f1", 0.5, base, "t1"))
		Expect(err).NotTo(HaveOccurred())

		Expect(store.MarkConsolidated(ctx, []string{"f1"}, "ep1")).To(Succeed())
		Expect(store.MarkConsolidated(ctx, []string{"f1"}, "ep2")).To(Succeed())

		out, err := store.Query(ctx, "s1", facts.Query{IncludeConsolidated: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].EpisodeID).To(Equal("ep1"))
	})

	It("windows unconsolidated facts by creation time", func() {
		_, err := store.Store(ctx, newFact("f1", 0.5, base, "t1"))
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Store(ctx, newFact("f2", 0.5, base.Add(2*time.Hour), "t2"))
		Expect(err).NotTo(HaveOccurred())

		out, err := store.Unconsolidated(ctx, "s1", base, base.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(1))
		Expect(out[0].FactID).To(Equal("f1"))
	})

	It("passes its health check", func() {
		Expect(store.HealthCheck(ctx)).To(Succeed())
	})
})
