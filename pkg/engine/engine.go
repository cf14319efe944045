// Package engine defines the shared result shape for the three lifecycle
// engines. Engine runs are batch operations over many items; a run never
// reduces to a bare success flag, because partial progress is the normal
// case — some items process, some are skipped as duplicates or noise,
// some fail and stay behind for the next run.
package engine

// ItemFailure records one item the run could not process.
type ItemFailure struct {
	// Item identifies the failed unit: a turn ID, a bucket key, a topic.
	Item string `json:"item"`

	// Reason is the human-readable failure cause.
	Reason string `json:"reason"`
}

// BatchResult is the outcome of one engine run.
type BatchResult struct {
	// Processed counts items that moved to the next tier.
	Processed int `json:"processed"`

	// Skipped counts items intentionally left alone: duplicates,
	// below-threshold scores, empty buckets.
	Skipped int `json:"skipped"`

	// Failed counts items that errored and remain eligible for the next
	// run.
	Failed int `json:"failed"`

	// Failures details each failed item.
	Failures []ItemFailure `json:"failures,omitempty"`
}

// Merge folds another result into this one.
func (r *BatchResult) Merge(other BatchResult) {
	r.Processed += other.Processed
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Failures = append(r.Failures, other.Failures...)
}

// Fail records one failed item.
func (r *BatchResult) Fail(item string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, ItemFailure{Item: item, Reason: err.Error()})
}
