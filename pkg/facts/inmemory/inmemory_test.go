package inmemory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/facts"
	"github.com/papercomputeco/strata/pkg/facts/inmemory"
	"github.com/papercomputeco/strata/pkg/memory"
)

func newFact(id, sessionID string, composite float64, createdAt time.Time, turnIDs ...string) *memory.Fact {
	return &memory.Fact{
		FactID:        id,
		SessionID:     sessionID,
		Content:       "fact " + id,
		Score:         memory.CIARScore{Composite: composite},
		SourceTurnIDs: turnIDs,
		CreatedAt:     createdAt,
	}
}

var _ = Describe("In-Memory Fact Store", func() {
	var (
		driver *inmemory.Driver
		ctx    context.Context
		base   time.Time
	)

	BeforeEach(func() {
		driver = inmemory.NewDriver()
		ctx = context.Background()
		base = time.Unix(1735689600, 0).UTC()
	})

	Describe("Store", func() {
		It("persists a fact and returns its ID", func() {
			id, err := driver.Store(ctx, newFact("f1", "s1", 0.8, base, "t1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("f1"))
		})

		It("rejects a duplicate fact ID", func() {
			_, err := driver.Store(ctx, newFact("f1", "s1", 0.8, base, "t1"))
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.Store(ctx, newFact("f1", "s1", 0.8, base, "t2"))
			Expect(err).To(MatchError(memory.ErrDuplicateFact))
		})

		It("rejects a second fact over the same source turn", func() {
			_, err := driver.Store(ctx, newFact("f1", "s1", 0.8, base, "t1"))
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.Store(ctx, newFact("f2", "s1", 0.9, base, "t1"))
			Expect(err).To(MatchError(memory.ErrDuplicateFact))
		})

		It("allows the same turn ID in different sessions", func() {
			_, err := driver.Store(ctx, newFact("f1", "s1", 0.8, base, "t1"))
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.Store(ctx, newFact("f2", "s2", 0.8, base, "t1"))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Query", func() {
		BeforeEach(func() {
			_, err := driver.Store(ctx, newFact("low", "s1", 0.3, base, "t1"))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Store(ctx, newFact("high-late", "s1", 0.9, base.Add(time.Minute), "t2"))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Store(ctx, newFact("high-early", "s1", 0.9, base, "t3"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("orders by score descending, creation ascending", func() {
			out, err := driver.Query(ctx, "s1", facts.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(3))
			Expect(out[0].FactID).To(Equal("high-early"))
			Expect(out[1].FactID).To(Equal("high-late"))
			Expect(out[2].FactID).To(Equal("low"))
		})

		It("applies the score floor and limit", func() {
			out, err := driver.Query(ctx, "s1", facts.Query{MinScore: 0.5, Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0].FactID).To(Equal("high-early"))
		})

		It("hides consolidated facts unless asked", func() {
			Expect(driver.MarkConsolidated(ctx, []string{"low"}, "ep1")).To(Succeed())

			out, err := driver.Query(ctx, "s1", facts.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(2))

			out, err = driver.Query(ctx, "s1", facts.Query{IncludeConsolidated: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(3))
		})
	})

	Describe("consolidation marks", func() {
		BeforeEach(func() {
			_, err := driver.Store(ctx, newFact("f1", "s1", 0.5, base, "t1"))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Store(ctx, newFact("f2", "s1", 0.5, base.Add(time.Hour), "t2"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("windows unconsolidated facts by creation time, oldest first", func() {
			out, err := driver.Unconsolidated(ctx, "s1", base, base.Add(30*time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0].FactID).To(Equal("f1"))
		})

		It("does not remark already-consolidated facts", func() {
			Expect(driver.MarkConsolidated(ctx, []string{"f1"}, "ep1")).To(Succeed())
			Expect(driver.MarkConsolidated(ctx, []string{"f1"}, "ep2")).To(Succeed())

			out, err := driver.Query(ctx, "s1", facts.Query{IncludeConsolidated: true})
			Expect(err).NotTo(HaveOccurred())
			for _, fact := range out {
				if fact.FactID == "f1" {
					Expect(fact.EpisodeID).To(Equal("ep1"))
				}
			}
		})
	})

	Describe("HasSourceTurn", func() {
		It("tracks promoted source turns per session", func() {
			_, err := driver.Store(ctx, newFact("f1", "s1", 0.5, base, "t1"))
			Expect(err).NotTo(HaveOccurred())

			has, err := driver.HasSourceTurn(ctx, "s1", "t1")
			Expect(err).NotTo(HaveOccurred())
			Expect(has).To(BeTrue())

			has, err = driver.HasSourceTurn(ctx, "s2", "t1")
			Expect(err).NotTo(HaveOccurred())
			Expect(has).To(BeFalse())
		})
	})

	Describe("TouchAccessed", func() {
		It("stamps last access time", func() {
			_, err := driver.Store(ctx, newFact("f1", "s1", 0.5, base, "t1"))
			Expect(err).NotTo(HaveOccurred())

			at := base.Add(time.Hour)
			Expect(driver.TouchAccessed(ctx, []string{"f1"}, at)).To(Succeed())

			out, err := driver.Query(ctx, "s1", facts.Query{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out[0].LastAccessed).NotTo(BeNil())
			Expect(*out[0].LastAccessed).To(Equal(at))
		})
	})
})
