// Package graph provides the relationship store behind the L3 and L4
// tiers: episodes link to the entities they mention, knowledge documents
// link to the episodes they were derived from.
//
// Traversal is template-restricted. Callers name one of the registered
// templates and supply parameters; arbitrary query execution is
// disallowed to prevent injection and unbounded traversal cost.
package graph

import (
	"context"

	"github.com/papercomputeco/strata/pkg/memory"
)

// Traversal template names.
const (
	// TemplateEpisodesForEntity returns episodes mentioning an entity.
	// Params: "entity" (string), "limit" (int).
	TemplateEpisodesForEntity = "episodes_for_entity"

	// TemplateEntitiesForEpisode returns entities an episode mentions.
	// Params: "episode_id" (string).
	TemplateEntitiesForEpisode = "entities_for_episode"

	// TemplateSessionTimeline returns a session's episodes in time
	// order. Params: "session_id" (string), "limit" (int).
	TemplateSessionTimeline = "session_timeline"

	// TemplateDocumentProvenance returns the episodes a knowledge
	// document was derived from. Params: "document_id" (string).
	TemplateDocumentProvenance = "document_provenance"
)

// Row is one traversal result row.
type Row map[string]any

// Driver is the graph storage contract.
type Driver interface {
	// UpsertEpisode merges the episode node and its entity edges.
	// Idempotent: re-upserting the same episode changes nothing.
	UpsertEpisode(ctx context.Context, episode *memory.Episode) error

	// LinkDocument merges the document node and DERIVED_FROM edges to
	// its source episodes.
	LinkDocument(ctx context.Context, doc *memory.KnowledgeDocument) error

	// Traverse executes a registered template with parameters. Unknown
	// template names fail; results are bounded by the template.
	Traverse(ctx context.Context, template string, params map[string]any) ([]Row, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases driver resources.
	Close(ctx context.Context) error
}
