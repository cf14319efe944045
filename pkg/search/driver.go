// Package search provides the full-text document store behind the L4
// semantic tier. Knowledge documents are indexed by topic and body;
// superseded documents stay retrievable but are excluded from topic
// lookups by default.
package search

import (
	"context"

	"github.com/papercomputeco/strata/pkg/memory"
)

// Hit is one search result with its relevance score.
type Hit struct {
	Document memory.KnowledgeDocument
	Score    float64
}

// Driver is the full-text storage contract.
type Driver interface {
	// Index stores or replaces a knowledge document.
	Index(ctx context.Context, doc *memory.KnowledgeDocument) error

	// Get returns a document by ID, or memory.ErrNotFound.
	Get(ctx context.Context, documentID string) (*memory.KnowledgeDocument, error)

	// Search runs a full-text query over document bodies. A non-empty
	// topic restricts the search to that topic. Superseded documents
	// are excluded.
	Search(ctx context.Context, query, topic string, limit int) ([]Hit, error)

	// Latest returns the current (non-superseded) document for a topic,
	// or memory.ErrNotFound when the topic has none.
	Latest(ctx context.Context, topic string) (*memory.KnowledgeDocument, error)

	// MarkSuperseded points an old document at its replacement. The old
	// document remains readable by ID.
	MarkSuperseded(ctx context.Context, documentID, supersededBy string) error

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases driver resources.
	Close() error
}
