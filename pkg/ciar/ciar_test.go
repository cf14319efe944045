package ciar_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/ciar"
)

var _ = Describe("Weights", func() {
	It("defaults to equal weighting", func() {
		w := ciar.DefaultWeights()
		Expect(w.Validate()).To(Succeed())
		Expect(w.Certainty).To(Equal(0.25))
	})

	It("rejects negative weights", func() {
		w := ciar.Weights{Certainty: -0.1, Impact: 0.5, Actionability: 0.3, Relevance: 0.3}
		Expect(w.Validate()).To(HaveOccurred())
	})

	It("rejects all-zero weights", func() {
		Expect(ciar.Weights{}.Validate()).To(HaveOccurred())
	})
})

var _ = Describe("Scorer", func() {
	It("computes an equally weighted composite", func() {
		s, err := ciar.NewScorer(ciar.DefaultWeights())
		Expect(err).NotTo(HaveOccurred())

		score := s.Score(0.8, 0.6, 0.4, 0.2)
		Expect(score.Composite).To(BeNumerically("~", 0.5, 1e-9))
	})

	It("is deterministic for identical inputs", func() {
		s, err := ciar.NewScorer(ciar.DefaultWeights())
		Expect(err).NotTo(HaveOccurred())

		first := s.Score(0.9, 0.1, 0.5, 0.7)
		second := s.Score(0.9, 0.1, 0.5, 0.7)
		Expect(first).To(Equal(second))
	})

	It("clamps subscores and composite into [0,1]", func() {
		s, err := ciar.NewScorer(ciar.DefaultWeights())
		Expect(err).NotTo(HaveOccurred())

		score := s.Score(1.7, -0.3, 0.5, 2.0)
		Expect(score.Certainty).To(Equal(1.0))
		Expect(score.Impact).To(Equal(0.0))
		Expect(score.Relevance).To(Equal(1.0))
		Expect(score.Composite).To(BeNumerically(">=", 0))
		Expect(score.Composite).To(BeNumerically("<=", 1))
	})

	It("normalizes by the weight sum", func() {
		s, err := ciar.NewScorer(ciar.Weights{Certainty: 2, Impact: 1, Actionability: 1, Relevance: 0})
		Expect(err).NotTo(HaveOccurred())

		score := s.Score(1, 0, 0, 1)
		Expect(score.Composite).To(BeNumerically("~", 0.5, 1e-9))
	})

	It("rejects invalid weights at construction", func() {
		_, err := ciar.NewScorer(ciar.Weights{})
		Expect(err).To(HaveOccurred())
	})
})
