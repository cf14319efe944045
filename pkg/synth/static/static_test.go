package static_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/synth"
	"github.com/papercomputeco/strata/pkg/synth/static"
)

var _ = Describe("Invoker", func() {
	var (
		ctx     context.Context
		invoker *static.Invoker
	)

	BeforeEach(func() {
		ctx = context.Background()
		invoker = static.NewInvoker()
	})

	turn := func(id, role, content string) memory.Turn {
		return memory.Turn{
			TurnID:    id,
			SessionID: "sess_1",
			Role:      role,
			Content:   content,
			Timestamp: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		}
	}

	Describe("segment", func() {
		It("covers every turn with one span", func() {
			out, err := synth.Segment(ctx, invoker, synth.SegmentInput{
				Turns: []memory.Turn{
					turn("t1", "user", "we should talk about the deploy pipeline"),
					turn("t2", "assistant", "sure, what about it"),
					turn("t3", "user", "we decided to switch to canary releases"),
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Spans).To(HaveLen(1))
			Expect(out.Spans[0].StartIndex).To(Equal(0))
			Expect(out.Spans[0].EndIndex).To(Equal(2))
			Expect(out.Spans[0].Topic).NotTo(BeEmpty())
		})

		It("returns no spans for no turns", func() {
			out, err := synth.Segment(ctx, invoker, synth.SegmentInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Spans).To(BeEmpty())
		})
	})

	Describe("extract", func() {
		It("skips short turns and scores decision language higher", func() {
			out, err := synth.Extract(ctx, invoker, synth.ExtractInput{
				Turns: []memory.Turn{
					turn("t1", "user", "ok"),
					turn("t2", "user", "we decided to switch to canary releases"),
					turn("t3", "user", "maybe we could also look at feature flags?"),
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Facts).To(HaveLen(2))

			decision := out.Facts[0]
			Expect(decision.SourceTurnIDs).To(Equal([]string{"t2"}))
			Expect(decision.Impact).To(BeNumerically(">", 0.5))

			hedged := out.Facts[1]
			Expect(hedged.Certainty).To(BeNumerically("<", decision.Certainty))
		})
	})

	Describe("summarize", func() {
		It("emits participant edges for capitalized names", func() {
			out, err := synth.Summarize(ctx, invoker, synth.SummarizeInput{
				Facts: []memory.Fact{
					{FactID: "f1", Content: "the rollout was paused by Dana"},
					{FactID: "f2", Content: "the rollout resumed after Dana approved"},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Summary).To(ContainSubstring("rollout"))
			Expect(out.EntityEdges).To(HaveLen(1))
			Expect(out.EntityEdges[0].Source).To(Equal("Dana"))
			Expect(out.EntityEdges[0].Relation).To(Equal(memory.RelationParticipant))
		})
	})

	Describe("synthesize", func() {
		It("folds the prior document into the body", func() {
			out, err := synth.Synthesize(ctx, invoker, synth.SynthesizeInput{
				Topic: "deployments",
				Prior: &memory.KnowledgeDocument{Body: "previous knowledge"},
				Episodes: []memory.Episode{
					{EpisodeID: "ep_1", Summary: "new findings"},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Body).To(ContainSubstring("previous knowledge"))
			Expect(out.Body).To(ContainSubstring("new findings"))
		})
	})

	Describe("hooks", func() {
		It("replace the default behavior", func() {
			invoker.SynthesizeFn = func(in synth.SynthesizeInput) (synth.SynthesizeOutput, error) {
				return synth.SynthesizeOutput{
					Body: "scripted",
					Contradictions: []memory.ContradictionFlag{
						{EpisodeA: "ep_1", EpisodeB: "ep_2", ClaimA: "uses postgres", ClaimB: "uses mysql"},
					},
				}, nil
			}

			out, err := synth.Synthesize(ctx, invoker, synth.SynthesizeInput{Topic: "storage"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Body).To(Equal("scripted"))
			Expect(out.Contradictions).To(HaveLen(1))
		})
	})

	Describe("answer", func() {
		It("cites the best matching document", func() {
			out, err := synth.Answer(ctx, invoker, synth.AnswerInput{
				Query: "how do rollbacks work",
				Documents: []memory.KnowledgeDocument{
					{DocumentID: "doc_1", Body: "invoices are generated monthly"},
					{DocumentID: "doc_2", Body: "rollbacks reuse the previous image tag and how they work is automated"},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.SourceDocumentIDs).To(Equal([]string{"doc_2"}))
		})
	})

	It("rejects mismatched input types", func() {
		var out synth.SegmentOutput
		err := invoker.Invoke(ctx, synth.KindSegment, "not a segment input", &out)

		var schemaErr *memory.SchemaError
		Expect(err).To(BeAssignableToTypeOf(schemaErr))
	})
})
