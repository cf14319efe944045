// Package memory defines the shared domain types for the strata tiered
// memory substrate.
//
// Data moves one way through four tiers: raw Turns in the active context
// window (L1) are promoted into scored Facts (L2), Facts are consolidated
// into Episodes (L3), and Episodes are distilled into KnowledgeDocuments
// (L4). Each transition compacts the representation and makes it more
// durable. The Workspace is a shared, version-guarded scratchpad that sits
// outside the tier hierarchy but follows the same concurrency discipline.
package memory

import "time"

// Turn is one conversational exchange as ingested into the active context
// window. Turns are immutable once appended and expire with the session
// window.
type Turn struct {
	TurnID    string    `json:"turn_id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// CIARScore holds the four significance subscores plus the composite used
// to gate promotion. All values are in [0,1].
type CIARScore struct {
	Certainty     float64 `json:"certainty"`
	Impact        float64 `json:"impact"`
	Actionability float64 `json:"actionability"`
	Relevance     float64 `json:"relevance"`
	Composite     float64 `json:"ciar_score"`
}

// Fact is an atomic claim extracted from one or more turns. Facts are
// immutable after creation except for LastAccessed and the consolidation
// mark (EpisodeID).
type Fact struct {
	FactID        string     `json:"fact_id"`
	SessionID     string     `json:"session_id"`
	Content       string     `json:"content"`
	Score         CIARScore  `json:"score"`
	Justification string     `json:"justification,omitempty"`
	SourceTurnIDs []string   `json:"source_turn_ids"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAccessed  *time.Time `json:"last_accessed,omitempty"`

	// EpisodeID is set when the fact has been consolidated into an
	// episode. Empty means unconsolidated.
	EpisodeID string `json:"episode_id,omitempty"`
}

// Relation classifies an entity edge.
type Relation string

// Entity edge relation kinds stored on episodes.
const (
	RelationParticipant Relation = "participant"
	RelationTopic       Relation = "topic"
	RelationCausal      Relation = "causal"
)

// EntityEdge is a graph relationship attached to an episode. Source is the
// entity name; Target is empty for participant/topic edges and names the
// effect entity for causal edges.
type EntityEdge struct {
	Relation Relation `json:"relation"`
	Source   string  `json:"source"`
	Target   string  `json:"target,omitempty"`
	Weight   float64 `json:"weight,omitempty"`
}

// TimeRange bounds a cluster of facts in time.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Episode is a time-bounded cluster of facts summarized into a single
// retrievable unit. MemberFactIDs is never empty and all members belong to
// the episode's session. Episodes are immutable after creation.
type Episode struct {
	EpisodeID     string       `json:"episode_id"`
	SessionID     string       `json:"session_id"`
	Summary       string       `json:"summary"`
	Embedding     []float32    `json:"embedding,omitempty"`
	MemberFactIDs []string     `json:"member_fact_ids"`
	EntityEdges   []EntityEdge `json:"entity_edges,omitempty"`
	TimeRange     TimeRange    `json:"time_range"`
	CreatedAt     time.Time    `json:"created_at"`
}

// ContradictionFlag records a pair of conflicting claims found across
// source episodes during distillation. Contradictions are surfaced as
// data, never resolved automatically.
type ContradictionFlag struct {
	EpisodeA string `json:"episode_a"`
	EpisodeB string `json:"episode_b"`
	ClaimA   string `json:"claim_a"`
	ClaimB   string `json:"claim_b"`
}

// KnowledgeDocument is a synthesized, cross-episode statement of a pattern
// or rule. Documents are immutable; a later document on the same topic
// supersedes an earlier one, which is retained for provenance.
type KnowledgeDocument struct {
	DocumentID       string              `json:"document_id"`
	Topic            string              `json:"topic"`
	Body             string              `json:"body"`
	SourceEpisodeIDs []string            `json:"source_episode_ids"`
	Contradictions   []ContradictionFlag `json:"contradiction_flags,omitempty"`
	SupersededBy     string              `json:"superseded_by,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// Workspace is a shared, versioned scratchpad per session. Version
// increases by exactly one on every successful compare-and-swap update.
type Workspace struct {
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data"`
	Version   int64          `json:"version"`
}
