// Package static implements a deterministic, rule-based synth.Invoker
// with no external service. It backs tests and deployments that run the
// lifecycle engines without a language model; per-kind hooks let tests
// script exact outputs.
package static

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/synth"
)

// minFactLen filters out turns too short to carry a durable fact.
const minFactLen = 12

// Invoker implements synth.Invoker with deterministic rules. Any of
// the hook fields, when set, replaces the default behavior for that
// kind.
type Invoker struct {
	SegmentFn    func(synth.SegmentInput) (synth.SegmentOutput, error)
	ExtractFn    func(synth.ExtractInput) (synth.ExtractOutput, error)
	SummarizeFn  func(synth.SummarizeInput) (synth.SummarizeOutput, error)
	SynthesizeFn func(synth.SynthesizeInput) (synth.SynthesizeOutput, error)
	AnswerFn     func(synth.AnswerInput) (synth.AnswerOutput, error)
}

// NewInvoker returns an invoker with the default rules.
func NewInvoker() *Invoker {
	return &Invoker{}
}

func (s *Invoker) Invoke(_ context.Context, kind synth.Kind, in any, out any) error {
	switch kind {
	case synth.KindSegment:
		input, ok := in.(synth.SegmentInput)
		if !ok {
			return &memory.SchemaError{Kind: string(kind), Detail: fmt.Sprintf("unexpected input type %T", in)}
		}
		result, err := s.segment(input)
		if err != nil {
			return err
		}
		*out.(*synth.SegmentOutput) = result

	case synth.KindExtract:
		input, ok := in.(synth.ExtractInput)
		if !ok {
			return &memory.SchemaError{Kind: string(kind), Detail: fmt.Sprintf("unexpected input type %T", in)}
		}
		result, err := s.extract(input)
		if err != nil {
			return err
		}
		*out.(*synth.ExtractOutput) = result

	case synth.KindSummarize:
		input, ok := in.(synth.SummarizeInput)
		if !ok {
			return &memory.SchemaError{Kind: string(kind), Detail: fmt.Sprintf("unexpected input type %T", in)}
		}
		result, err := s.summarize(input)
		if err != nil {
			return err
		}
		*out.(*synth.SummarizeOutput) = result

	case synth.KindSynthesize:
		input, ok := in.(synth.SynthesizeInput)
		if !ok {
			return &memory.SchemaError{Kind: string(kind), Detail: fmt.Sprintf("unexpected input type %T", in)}
		}
		result, err := s.synthesize(input)
		if err != nil {
			return err
		}
		*out.(*synth.SynthesizeOutput) = result

	case synth.KindAnswer:
		input, ok := in.(synth.AnswerInput)
		if !ok {
			return &memory.SchemaError{Kind: string(kind), Detail: fmt.Sprintf("unexpected input type %T", in)}
		}
		result, err := s.answer(input)
		if err != nil {
			return err
		}
		*out.(*synth.AnswerOutput) = result

	default:
		return &memory.SchemaError{Kind: string(kind), Detail: "unknown synthesis kind"}
	}

	return nil
}

// segment emits a single span covering all turns, labeled by the first
// few words of the first turn.
func (s *Invoker) segment(in synth.SegmentInput) (synth.SegmentOutput, error) {
	if s.SegmentFn != nil {
		return s.SegmentFn(in)
	}

	if len(in.Turns) == 0 {
		return synth.SegmentOutput{}, nil
	}

	topic := firstWords(in.Turns[0].Content, 4)
	return synth.SegmentOutput{
		Spans: []synth.Span{{
			StartIndex:    0,
			EndIndex:      len(in.Turns) - 1,
			Topic:         topic,
			Justification: "single contiguous exchange",
		}},
	}, nil
}

// extract turns each substantial turn into one fact candidate, with
// keyword-driven subscores.
func (s *Invoker) extract(in synth.ExtractInput) (synth.ExtractOutput, error) {
	if s.ExtractFn != nil {
		return s.ExtractFn(in)
	}

	var out synth.ExtractOutput
	for _, turn := range in.Turns {
		content := strings.TrimSpace(turn.Content)
		if len(content) < minFactLen {
			continue
		}

		lower := strings.ToLower(content)

		certainty := 0.8
		if strings.Contains(lower, "maybe") || strings.Contains(lower, "might") || strings.HasSuffix(content, "?") {
			certainty = 0.4
		}

		impact := 0.5
		actionability := 0.4
		for _, kw := range []string{"decided", "must", "will", "always", "never", "prefer"} {
			if strings.Contains(lower, kw) {
				impact = 0.8
				actionability = 0.8
				break
			}
		}

		out.Facts = append(out.Facts, synth.FactCandidate{
			Content:       content,
			Justification: "stated directly in the turn",
			Certainty:     certainty,
			Impact:        impact,
			Actionability: actionability,
			Relevance:     0.7,
			SourceTurnIDs: []string{turn.TurnID},
		})
	}

	return out, nil
}

// summarize joins fact contents and surfaces capitalized tokens as
// participant entities.
func (s *Invoker) summarize(in synth.SummarizeInput) (synth.SummarizeOutput, error) {
	if s.SummarizeFn != nil {
		return s.SummarizeFn(in)
	}

	if len(in.Facts) == 0 {
		return synth.SummarizeOutput{Summary: "no facts recorded"}, nil
	}

	summary := in.Facts[0].Content
	if len(in.Facts) > 1 {
		summary = fmt.Sprintf("%s (and %d related facts)", summary, len(in.Facts)-1)
	}

	seen := make(map[string]struct{})
	var edges []memory.EntityEdge
	for _, fact := range in.Facts {
		for _, name := range capitalizedTokens(fact.Content) {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			edges = append(edges, memory.EntityEdge{
				Relation: memory.RelationParticipant,
				Source:   name,
				Weight:   0.5,
			})
		}
	}

	return synth.SummarizeOutput{Summary: summary, EntityEdges: edges}, nil
}

// synthesize concatenates episode summaries into the document body.
// Contradiction detection needs a model; the default emits none.
func (s *Invoker) synthesize(in synth.SynthesizeInput) (synth.SynthesizeOutput, error) {
	if s.SynthesizeFn != nil {
		return s.SynthesizeFn(in)
	}

	var parts []string
	if in.Prior != nil {
		parts = append(parts, in.Prior.Body)
	}
	for _, ep := range in.Episodes {
		if ep.Summary != "" {
			parts = append(parts, ep.Summary)
		}
	}

	return synth.SynthesizeOutput{Body: strings.Join(parts, "\n\n")}, nil
}

// answer returns the best token-overlap document body.
func (s *Invoker) answer(in synth.AnswerInput) (synth.AnswerOutput, error) {
	if s.AnswerFn != nil {
		return s.AnswerFn(in)
	}

	if len(in.Documents) == 0 {
		return synth.AnswerOutput{Answer: "no stored knowledge matches the question"}, nil
	}

	queryTokens := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(in.Query)) {
		queryTokens[t] = struct{}{}
	}

	best := 0
	bestOverlap := -1
	for i, doc := range in.Documents {
		overlap := 0
		for _, t := range strings.Fields(strings.ToLower(doc.Body)) {
			if _, ok := queryTokens[t]; ok {
				overlap++
			}
		}
		if overlap > bestOverlap {
			best = i
			bestOverlap = overlap
		}
	}

	return synth.AnswerOutput{
		Answer:            in.Documents[best].Body,
		SourceDocumentIDs: []string{in.Documents[best].DocumentID},
	}, nil
}

func (s *Invoker) Close() error {
	return nil
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.ToLower(strings.Join(words, " "))
}

// capitalizedTokens returns mid-sentence capitalized words, a cheap
// stand-in for named entity recognition.
func capitalizedTokens(s string) []string {
	var names []string
	words := strings.Fields(s)
	for i, w := range words {
		if i == 0 {
			continue
		}
		trimmed := strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
		if trimmed == "" {
			continue
		}
		runes := []rune(trimmed)
		if unicode.IsUpper(runes[0]) {
			names = append(names, trimmed)
		}
	}
	return names
}

var _ synth.Invoker = (*Invoker)(nil)
