package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateFact signals the promotion idempotency guard tripped.
	// It is a no-op signal to the caller, not a failure.
	ErrDuplicateFact = errors.New("duplicate fact")

	// ErrVersionConflict is returned by a workspace compare-and-swap when
	// the expected version is stale. Callers must re-read and retry; the
	// primitive never retries on its own.
	ErrVersionConflict = errors.New("workspace version conflict")

	// ErrNotFound is returned when a requested item does not exist.
	ErrNotFound = errors.New("not found")
)

// ProviderError wraps a transport or quota failure from the external
// extraction/summarization/synthesis function. Retryable by the caller.
type ProviderError struct {
	Kind string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider failure (%s): %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// SchemaError indicates the external function returned output that could
// not be validated against the expected schema. The offending span or
// cluster is logged and skipped.
type SchemaError struct {
	Kind   string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema validation failed (%s): %s", e.Kind, e.Detail)
}

// PartialTierFailure is returned when one of the two episodic backends
// failed to write after the other succeeded. The episode must be retried
// as a unit or surfaced as stalled, never left half-committed.
type PartialTierFailure struct {
	EpisodeID string
	Succeeded string
	Failed    string
	Err       error
}

func (e *PartialTierFailure) Error() string {
	return fmt.Sprintf("partial episodic write for %s: %s succeeded, %s failed: %v",
		e.EpisodeID, e.Succeeded, e.Failed, e.Err)
}

func (e *PartialTierFailure) Unwrap() error { return e.Err }

// BackendUnavailable is returned when a storage backend health check
// fails. Fatal to the specific tier operation, surfaced immediately.
type BackendUnavailable struct {
	Backend string
	Err     error
}

func (e *BackendUnavailable) Error() string {
	return fmt.Sprintf("backend %s unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailable) Unwrap() error { return e.Err }
