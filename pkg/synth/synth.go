// Package synth defines the synthesis provider contract behind the
// lifecycle engines. Every engine step that needs language understanding
// — segmenting conversation, extracting facts, summarizing fact
// clusters, synthesizing knowledge documents, answering queries —
// goes through a single Invoker with a typed input/output pair per kind.
//
// Providers return structured JSON. Transport failures surface as
// *memory.ProviderError; well-formed responses that fail to match the
// expected shape surface as *memory.SchemaError, so callers can tell
// "retry later" from "the model misbehaved".
package synth

import (
	"context"

	"github.com/papercomputeco/strata/pkg/memory"
)

// Kind names one synthesis operation.
type Kind string

const (
	// KindSegment splits a run of turns into topical spans.
	KindSegment Kind = "segment"

	// KindExtract pulls fact candidates with significance subscores out
	// of a span.
	KindExtract Kind = "extract"

	// KindSummarize compresses a fact cluster into an episode summary
	// with entity edges.
	KindSummarize Kind = "summarize"

	// KindSynthesize merges episodes into a topic knowledge document,
	// surfacing contradictions.
	KindSynthesize Kind = "synthesize"

	// KindAnswer answers a query from knowledge documents.
	KindAnswer Kind = "answer"
)

// SegmentInput is the input for KindSegment.
type SegmentInput struct {
	Turns []memory.Turn `json:"turns"`
}

// Span is one topical slice of the segmented turns, by index into the
// input.
type Span struct {
	StartIndex    int    `json:"start_index"`
	EndIndex      int    `json:"end_index"`
	Topic         string `json:"topic"`
	Justification string `json:"justification"`
}

// SegmentOutput is the output for KindSegment.
type SegmentOutput struct {
	Spans []Span `json:"spans"`
}

// ExtractInput is the input for KindExtract.
type ExtractInput struct {
	Turns []memory.Turn `json:"turns"`
	Topic string        `json:"topic"`
}

// FactCandidate is one extracted fact with raw significance subscores
// in [0,1]. The engine computes the composite; providers never do.
type FactCandidate struct {
	Content       string   `json:"content"`
	Justification string   `json:"justification"`
	Certainty     float64  `json:"certainty"`
	Impact        float64  `json:"impact"`
	Actionability float64  `json:"actionability"`
	Relevance     float64  `json:"relevance"`
	SourceTurnIDs []string `json:"source_turn_ids"`
}

// ExtractOutput is the output for KindExtract.
type ExtractOutput struct {
	Facts []FactCandidate `json:"facts"`
}

// SummarizeInput is the input for KindSummarize.
type SummarizeInput struct {
	Facts []memory.Fact `json:"facts"`
}

// SummarizeOutput is the output for KindSummarize.
type SummarizeOutput struct {
	Summary     string              `json:"summary"`
	EntityEdges []memory.EntityEdge `json:"entity_edges"`
}

// SynthesizeInput is the input for KindSynthesize. Prior is the topic's
// current document, nil for a new topic.
type SynthesizeInput struct {
	Topic    string                    `json:"topic"`
	Episodes []memory.Episode          `json:"episodes"`
	Prior    *memory.KnowledgeDocument `json:"prior,omitempty"`
}

// SynthesizeOutput is the output for KindSynthesize. Contradictions are
// carried on the document, never silently resolved.
type SynthesizeOutput struct {
	Body           string                     `json:"body"`
	Contradictions []memory.ContradictionFlag `json:"contradictions"`
}

// AnswerInput is the input for KindAnswer.
type AnswerInput struct {
	Query     string                     `json:"query"`
	Documents []memory.KnowledgeDocument `json:"documents"`
}

// AnswerOutput is the output for KindAnswer.
type AnswerOutput struct {
	Answer            string   `json:"answer"`
	SourceDocumentIDs []string `json:"source_document_ids"`
}

// Invoker runs one synthesis operation. in and out are the typed pair
// for the kind; out must be a pointer.
type Invoker interface {
	Invoke(ctx context.Context, kind Kind, in any, out any) error
	Close() error
}

// Segment runs KindSegment through an invoker.
func Segment(ctx context.Context, inv Invoker, in SegmentInput) (SegmentOutput, error) {
	var out SegmentOutput
	err := inv.Invoke(ctx, KindSegment, in, &out)
	return out, err
}

// Extract runs KindExtract through an invoker.
func Extract(ctx context.Context, inv Invoker, in ExtractInput) (ExtractOutput, error) {
	var out ExtractOutput
	err := inv.Invoke(ctx, KindExtract, in, &out)
	return out, err
}

// Summarize runs KindSummarize through an invoker.
func Summarize(ctx context.Context, inv Invoker, in SummarizeInput) (SummarizeOutput, error) {
	var out SummarizeOutput
	err := inv.Invoke(ctx, KindSummarize, in, &out)
	return out, err
}

// Synthesize runs KindSynthesize through an invoker.
func Synthesize(ctx context.Context, inv Invoker, in SynthesizeInput) (SynthesizeOutput, error) {
	var out SynthesizeOutput
	err := inv.Invoke(ctx, KindSynthesize, in, &out)
	return out, err
}

// Answer runs KindAnswer through an invoker.
func Answer(ctx context.Context, inv Invoker, in AnswerInput) (AnswerOutput, error) {
	var out AnswerOutput
	err := inv.Invoke(ctx, KindAnswer, in, &out)
	return out, err
}
