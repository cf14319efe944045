// Package vector provides interfaces and implementations for the episode
// vector index behind the L3 tier.
package vector

import "context"

// Document is a stored episode embedding with its payload.
type Document struct {
	// ID is the episode ID.
	ID string

	// SessionID scopes similarity search to one session when set.
	SessionID string

	// Embedding is the vector representation of the episode summary.
	Embedding []float32

	// Payload carries the serialized episode so search results can be
	// returned without a second store round-trip.
	Payload string
}

// QueryResult is a search hit with its similarity score.
type QueryResult struct {
	Document

	// Score is cosine similarity (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of episode embeddings.
type Driver interface {
	// Add stores documents. An existing document with the same ID is
	// updated.
	Add(ctx context.Context, docs []Document) error

	// Query returns the topK most similar documents, highest first.
	// A non-empty sessionID restricts results to that session.
	Query(ctx context.Context, embedding []float32, topK int, sessionID string) ([]QueryResult, error)

	// Get retrieves documents by ID. Missing IDs are skipped.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// List returns up to limit documents for a session, insertion order.
	List(ctx context.Context, sessionID string, limit int) ([]Document, error)

	// Delete removes documents by ID.
	Delete(ctx context.Context, ids []string) error

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the driver.
	Close() error
}
