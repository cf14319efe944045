// Package static implements a deterministic Embedder with no external
// service. Embeddings are derived from a hash of the input text, so the
// same text always maps to the same vector. Useful for tests and for
// deployments that only need exact-ish recall, not semantic similarity.
package static

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/papercomputeco/strata/pkg/embeddings"
)

// DefaultDimensions keeps vectors small; similarity quality is not the
// point of this embedder.
const DefaultDimensions = 64

// Embedder produces hash-derived embeddings.
type Embedder struct {
	dimensions int
}

// NewEmbedder returns a deterministic embedder. A non-positive
// dimensions falls back to DefaultDimensions.
func NewEmbedder(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	// Simple xorshift off the text hash gives a stable pseudo-random
	// direction per input.
	state := seed
	var norm float64
	for i := range vec {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v := float32(int64(state%2000)-1000) / 1000
		vec[i] = v
		norm += float64(v) * float64(v)
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}

	return vec, nil
}

func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
