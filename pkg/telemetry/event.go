// Package telemetry is the append-only lifecycle event log for the memory
// substrate. Every tier operation and engine phase transition emits one
// typed event. Events are transport-neutral payloads; publishers put them
// on a stream backend and consumers read the stream independently — a
// slow consumer can never stall a tier operation.
package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersionV1 is the first version of the event payload schema.
const SchemaVersionV1 = 1

// EventType enumerates every lifecycle transition the substrate emits.
type EventType string

const (
	EventTurnAppended EventType = "strata.l1.turn_appended"

	EventFactStored    EventType = "strata.l2.fact_stored"
	EventFactDuplicate EventType = "strata.l2.fact_duplicate"

	EventEpisodeStored  EventType = "strata.l3.episode_stored"
	EventEpisodeStalled EventType = "strata.l3.episode_stalled"

	EventDocumentStored     EventType = "strata.l4.document_stored"
	EventDocumentSuperseded EventType = "strata.l4.document_superseded"

	EventPromotionStarted       EventType = "strata.engine.promotion_started"
	EventPromotionCompleted     EventType = "strata.engine.promotion_completed"
	EventConsolidationStarted   EventType = "strata.engine.consolidation_started"
	EventConsolidationCompleted EventType = "strata.engine.consolidation_completed"
	EventClusterStalled         EventType = "strata.engine.cluster_stalled"
	EventDistillationStarted    EventType = "strata.engine.distillation_started"
	EventDistillationCompleted  EventType = "strata.engine.distillation_completed"

	EventWorkspaceUpdated  EventType = "strata.workspace.updated"
	EventWorkspaceConflict EventType = "strata.workspace.conflict"
)

// Event is one lifecycle transition. Append-only, never mutated.
type Event struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     EventType      `json:"event_type"`
	EventID       string         `json:"event_id"`
	SessionID     string         `json:"session_id,omitempty"`
	EmittedAt     time.Time      `json:"emitted_at"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// NewEvent builds an event with a fresh ID and the current timestamp.
func NewEvent(t EventType, sessionID string, payload map[string]any) *Event {
	return &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     t,
		EventID:       "evt_" + uuid.NewString(),
		SessionID:     sessionID,
		EmittedAt:     time.Now().UTC(),
		Payload:       payload,
	}
}
