package inmemory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/search/inmemory"
)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		base   time.Time
	)

	newDoc := func(id, topic, body string, at time.Time) *memory.KnowledgeDocument {
		return &memory.KnowledgeDocument{
			DocumentID: id,
			Topic:      topic,
			Body:       body,
			CreatedAt:  at,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})

	Describe("Get", func() {
		It("returns ErrNotFound for unknown documents", func() {
			_, err := driver.Get(ctx, "doc_missing")
			Expect(err).To(MatchError(memory.ErrNotFound))
		})

		It("returns an indexed document", func() {
			Expect(driver.Index(ctx, newDoc("doc_1", "deployments", "blue green deploys", base))).To(Succeed())

			doc, err := driver.Get(ctx, "doc_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Topic).To(Equal("deployments"))
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			Expect(driver.Index(ctx, newDoc("doc_1", "deployments",
				"rollbacks require the previous image tag", base))).To(Succeed())
			Expect(driver.Index(ctx, newDoc("doc_2", "deployments",
				"canary deploys shift traffic gradually", base.Add(time.Minute)))).To(Succeed())
			Expect(driver.Index(ctx, newDoc("doc_3", "billing",
				"invoices are generated on the first of the month", base.Add(2*time.Minute)))).To(Succeed())
		})

		It("ranks by token overlap", func() {
			hits, err := driver.Search(ctx, "previous image tag", "", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).NotTo(BeEmpty())
			Expect(hits[0].Document.DocumentID).To(Equal("doc_1"))
		})

		It("restricts by topic", func() {
			hits, err := driver.Search(ctx, "the", "billing", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(1))
			Expect(hits[0].Document.DocumentID).To(Equal("doc_3"))
		})

		It("excludes superseded documents", func() {
			Expect(driver.MarkSuperseded(ctx, "doc_1", "doc_2")).To(Succeed())

			hits, err := driver.Search(ctx, "previous image tag", "", 10)
			Expect(err).NotTo(HaveOccurred())
			for _, hit := range hits {
				Expect(hit.Document.DocumentID).NotTo(Equal("doc_1"))
			}
		})
	})

	Describe("Latest", func() {
		It("returns the newest non-superseded document for a topic", func() {
			Expect(driver.Index(ctx, newDoc("doc_1", "deployments", "v1", base))).To(Succeed())
			Expect(driver.Index(ctx, newDoc("doc_2", "deployments", "v2", base.Add(time.Hour)))).To(Succeed())
			Expect(driver.MarkSuperseded(ctx, "doc_1", "doc_2")).To(Succeed())

			doc, err := driver.Latest(ctx, "deployments")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.DocumentID).To(Equal("doc_2"))
		})

		It("returns ErrNotFound for an empty topic", func() {
			_, err := driver.Latest(ctx, "nonexistent")
			Expect(err).To(MatchError(memory.ErrNotFound))
		})
	})

	Describe("MarkSuperseded", func() {
		It("keeps the old document readable by ID", func() {
			Expect(driver.Index(ctx, newDoc("doc_1", "deployments", "v1", base))).To(Succeed())
			Expect(driver.MarkSuperseded(ctx, "doc_1", "doc_2")).To(Succeed())

			doc, err := driver.Get(ctx, "doc_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.SupersededBy).To(Equal("doc_2"))
		})

		It("fails for unknown documents", func() {
			Expect(driver.MarkSuperseded(ctx, "doc_missing", "doc_2")).To(MatchError(memory.ErrNotFound))
		})
	})
})
