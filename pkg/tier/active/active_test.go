package active_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/cache/inmemory"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/telemetry"
	"github.com/papercomputeco/strata/pkg/tier/active"
)

func testTurn(i int) memory.Turn {
	role := "user"
	if i%2 == 0 {
		role = "assistant"
	}
	return memory.Turn{
		TurnID:    fmt.Sprintf("turn-%d", i),
		Role:      role,
		Content:   fmt.Sprintf("message number %d with enough content to pass the claim filter", i),
		Timestamp: time.Unix(1735689600+int64(i), 0).UTC(),
	}
}

var _ = Describe("Active Context Tier", func() {
	var (
		store *inmemory.Store
		tier  *active.Tier
		ctx   context.Context
	)

	BeforeEach(func() {
		store = inmemory.NewStore()
		tier = active.New(store, active.Config{Capacity: 20, TTL: 86400 * time.Second}, logger.Nop(), telemetry.NewEmitter(nil, logger.Nop()))
		ctx = context.Background()
	})

	Describe("Append", func() {
		It("returns the growing window length", func() {
			for i := 1; i <= 3; i++ {
				length, err := tier.Append(ctx, "s1", testTurn(i))
				Expect(err).NotTo(HaveOccurred())
				Expect(length).To(Equal(int64(i)))
			}
		})

		It("rejects turns without an ID", func() {
			_, err := tier.Append(ctx, "s1", memory.Turn{Content: "no id"})
			Expect(err).To(HaveOccurred())
		})

		It("caps the window at capacity, keeping turns 6-25 of 25", func() {
			for i := 1; i <= 25; i++ {
				_, err := tier.Append(ctx, "s1", testTurn(i))
				Expect(err).NotTo(HaveOccurred())
			}

			turns, err := tier.Recent(ctx, "s1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(20))
			Expect(turns[0].TurnID).To(Equal("turn-25"))
			Expect(turns[19].TurnID).To(Equal("turn-6"))
		})

		It("holds min(N, capacity) turns after N concurrent appends", func() {
			var wg sync.WaitGroup
			wg.Add(50)
			for i := 1; i <= 50; i++ {
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := tier.Append(ctx, "s1", testTurn(i))
					Expect(err).NotTo(HaveOccurred())
				}(i)
			}
			wg.Wait()

			turns, err := tier.Recent(ctx, "s1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(20))
		})
	})

	Describe("Recent", func() {
		BeforeEach(func() {
			for i := 1; i <= 10; i++ {
				_, err := tier.Append(ctx, "s1", testTurn(i))
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("returns most-recent-first", func() {
			turns, err := tier.Recent(ctx, "s1", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(3))
			Expect(turns[0].TurnID).To(Equal("turn-10"))
			Expect(turns[2].TurnID).To(Equal("turn-8"))
		})

		It("returns an empty window for unknown sessions", func() {
			turns, err := tier.Recent(ctx, "other", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})

		It("keeps sessions isolated", func() {
			_, err := tier.Append(ctx, "s2", testTurn(99))
			Expect(err).NotTo(HaveOccurred())

			turns, err := tier.Recent(ctx, "s2", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
		})
	})

	Describe("TTL eviction", func() {
		It("drops the whole window after inactivity", func() {
			base := time.Now()
			store.SetClock(func() time.Time { return base })

			_, err := tier.Append(ctx, "s1", testTurn(1))
			Expect(err).NotTo(HaveOccurred())

			store.SetClock(func() time.Time { return base.Add(25 * time.Hour) })

			turns, err := tier.Recent(ctx, "s1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})
	})

	Describe("ClaimForPromotion", func() {
		BeforeEach(func() {
			for i := 1; i <= 5; i++ {
				_, err := tier.Append(ctx, "s1", testTurn(i))
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("returns claimed turns oldest first", func() {
			turns, err := tier.ClaimForPromotion(ctx, "s1", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(3))
			Expect(turns[0].TurnID).To(Equal("turn-1"))
			Expect(turns[2].TurnID).To(Equal("turn-3"))
		})

		It("yields nothing on a second pass over an unchanged window", func() {
			first, err := tier.ClaimForPromotion(ctx, "s1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(HaveLen(5))

			second, err := tier.ClaimForPromotion(ctx, "s1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeEmpty())
		})

		It("claims each turn at most once across concurrent passes", func() {
			var mu sync.Mutex
			seen := map[string]int{}

			var wg sync.WaitGroup
			wg.Add(8)
			for range 8 {
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					turns, err := tier.ClaimForPromotion(ctx, "s1", 2)
					Expect(err).NotTo(HaveOccurred())
					mu.Lock()
					for _, turn := range turns {
						seen[turn.TurnID]++
					}
					mu.Unlock()
				}()
			}
			wg.Wait()

			for id, count := range seen {
				Expect(count).To(Equal(1), "turn %s claimed %d times", id, count)
			}
		})
	})

	Describe("HealthCheck", func() {
		It("passes with a reachable backend", func() {
			Expect(tier.HealthCheck(ctx)).To(Succeed())
		})
	})
})
