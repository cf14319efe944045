// Package semantic implements the L4 tier: topic-level knowledge
// documents indexed for full-text search and linked in the graph to the
// episodes they were distilled from.
//
// A topic has at most one current document. Storing a new document for a
// topic supersedes the old one rather than editing it: the old document
// stays readable by ID with a pointer to its replacement.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/strata/pkg/graph"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/search"
	"github.com/papercomputeco/strata/pkg/synth"
	"github.com/papercomputeco/strata/pkg/telemetry"
)

// DefaultAnswerSources caps how many documents feed an answer.
const DefaultAnswerSources = 5

// Tier is the L4 semantic memory.
type Tier struct {
	store   search.Driver
	graphs  graph.Driver
	invoker synth.Invoker
	logger  *slog.Logger
	events  *telemetry.Emitter
}

// New creates the tier.
func New(store search.Driver, graphs graph.Driver, invoker synth.Invoker, logger *slog.Logger, events *telemetry.Emitter) *Tier {
	return &Tier{
		store:   store,
		graphs:  graphs,
		invoker: invoker,
		logger:  logger,
		events:  events,
	}
}

// Store indexes a knowledge document, links its provenance in the graph,
// and supersedes the topic's previous document if one exists. The
// sessionID only scopes the telemetry events; documents are global.
func (t *Tier) Store(ctx context.Context, sessionID string, doc *memory.KnowledgeDocument) error {
	if doc.DocumentID == "" {
		return fmt.Errorf("document has no document_id")
	}
	if doc.Topic == "" {
		return fmt.Errorf("document %s has no topic", doc.DocumentID)
	}

	prior, err := t.store.Latest(ctx, doc.Topic)
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		return fmt.Errorf("looking up prior document for topic %q: %w", doc.Topic, err)
	}

	if err := t.store.Index(ctx, doc); err != nil {
		return fmt.Errorf("indexing document %s: %w", doc.DocumentID, err)
	}

	if err := t.graphs.LinkDocument(ctx, doc); err != nil {
		return fmt.Errorf("linking document %s: %w", doc.DocumentID, err)
	}

	t.logger.Debug("document stored",
		"document_id", doc.DocumentID,
		"topic", doc.Topic,
		"source_episodes", len(doc.SourceEpisodeIDs),
		"contradictions", len(doc.Contradictions),
	)
	t.events.Emit(telemetry.NewEvent(telemetry.EventDocumentStored, sessionID, map[string]any{
		"document_id":    doc.DocumentID,
		"topic":          doc.Topic,
		"contradictions": len(doc.Contradictions),
	}))

	if prior != nil && prior.DocumentID != doc.DocumentID {
		if err := t.store.MarkSuperseded(ctx, prior.DocumentID, doc.DocumentID); err != nil {
			return fmt.Errorf("superseding document %s: %w", prior.DocumentID, err)
		}
		t.events.Emit(telemetry.NewEvent(telemetry.EventDocumentSuperseded, sessionID, map[string]any{
			"document_id":   prior.DocumentID,
			"superseded_by": doc.DocumentID,
			"topic":         doc.Topic,
		}))
	}

	return nil
}

// Get returns a document by ID, superseded or not.
func (t *Tier) Get(ctx context.Context, documentID string) (*memory.KnowledgeDocument, error) {
	return t.store.Get(ctx, documentID)
}

// Latest returns the current document for a topic.
func (t *Tier) Latest(ctx context.Context, topic string) (*memory.KnowledgeDocument, error) {
	return t.store.Latest(ctx, topic)
}

// Search runs a full-text query over current documents.
func (t *Tier) Search(ctx context.Context, query, topic string, limit int) ([]search.Hit, error) {
	return t.store.Search(ctx, query, topic, limit)
}

// Provenance returns the episodes a document was derived from.
func (t *Tier) Provenance(ctx context.Context, documentID string) ([]graph.Row, error) {
	return t.graphs.Traverse(ctx, graph.TemplateDocumentProvenance, map[string]any{
		"document_id": documentID,
	})
}

// Answer is a synthesized response with its supporting documents.
type Answer struct {
	Answer         string
	Sources        []memory.KnowledgeDocument
	Contradictions []memory.ContradictionFlag
}

// Answer retrieves the documents most relevant to the query and asks the
// synthesis provider for an answer grounded in them. Contradictions
// carried by any source document are surfaced on the answer, never
// hidden.
func (t *Tier) Answer(ctx context.Context, query, topic string, maxSources int) (*Answer, error) {
	if maxSources <= 0 {
		maxSources = DefaultAnswerSources
	}

	hits, err := t.store.Search(ctx, query, topic, maxSources)
	if err != nil {
		return nil, fmt.Errorf("searching documents for %q: %w", query, err)
	}

	docs := make([]memory.KnowledgeDocument, 0, len(hits))
	var contradictions []memory.ContradictionFlag
	for _, hit := range hits {
		docs = append(docs, hit.Document)
		contradictions = append(contradictions, hit.Document.Contradictions...)
	}

	out, err := synth.Answer(ctx, t.invoker, synth.AnswerInput{Query: query, Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("synthesizing answer for %q: %w", query, err)
	}

	cited := make(map[string]struct{}, len(out.SourceDocumentIDs))
	for _, id := range out.SourceDocumentIDs {
		cited[id] = struct{}{}
	}

	sources := make([]memory.KnowledgeDocument, 0, len(docs))
	for _, doc := range docs {
		if _, ok := cited[doc.DocumentID]; ok {
			sources = append(sources, doc)
		}
	}

	return &Answer{
		Answer:         out.Answer,
		Sources:        sources,
		Contradictions: contradictions,
	}, nil
}

// HealthCheck verifies both backends are reachable.
func (t *Tier) HealthCheck(ctx context.Context) error {
	if err := t.store.HealthCheck(ctx); err != nil {
		return err
	}
	return t.graphs.HealthCheck(ctx)
}
