package static_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/embeddings/static"
)

var _ = Describe("Embedder", func() {
	var embedder *static.Embedder

	BeforeEach(func() {
		embedder = static.NewEmbedder(0)
	})

	It("is deterministic", func() {
		a, err := embedder.Embed(context.Background(), "the deploy failed at noon")
		Expect(err).NotTo(HaveOccurred())
		b, err := embedder.Embed(context.Background(), "the deploy failed at noon")
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(b))
	})

	It("produces distinct vectors for distinct text", func() {
		a, err := embedder.Embed(context.Background(), "alpha")
		Expect(err).NotTo(HaveOccurred())
		b, err := embedder.Embed(context.Background(), "beta")
		Expect(err).NotTo(HaveOccurred())
		Expect(a).NotTo(Equal(b))
	})

	It("honors the configured dimensionality", func() {
		e := static.NewEmbedder(16)
		vec, err := e.Embed(context.Background(), "anything")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(HaveLen(16))
		Expect(e.Dimensions()).To(Equal(16))
	})
})
