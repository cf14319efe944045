// Package ciar implements the significance scorer that gates promotion of
// extracted facts into working memory.
//
// CIAR stands for Certainty, Impact, Actionability, Relevance. The scorer
// is a pure function: given the four subscores and a fixed weight
// configuration it always produces the same composite. The threshold
// comparison itself lives with the caller; the scorer only computes.
package ciar

import "fmt"

// Weights holds the per-dimension weights for the composite score.
// Weights need not sum to 1; the composite is normalized by their sum.
type Weights struct {
	Certainty     float64
	Impact        float64
	Actionability float64
	Relevance     float64
}

// DefaultWeights returns equal weighting across all four dimensions.
func DefaultWeights() Weights {
	return Weights{Certainty: 0.25, Impact: 0.25, Actionability: 0.25, Relevance: 0.25}
}

// Validate rejects negative weights and all-zero weight sets.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"certainty":     w.Certainty,
		"impact":        w.Impact,
		"actionability": w.Actionability,
		"relevance":     w.Relevance,
	} {
		if v < 0 {
			return fmt.Errorf("ciar weight %s is negative: %f", name, v)
		}
	}

	if w.sum() == 0 {
		return fmt.Errorf("ciar weights sum to zero")
	}

	return nil
}

func (w Weights) sum() float64 {
	return w.Certainty + w.Impact + w.Actionability + w.Relevance
}

// Score is the output of a scoring pass: the clamped subscores plus the
// weighted composite, all in [0,1].
type Score struct {
	Certainty     float64 `json:"certainty"`
	Impact        float64 `json:"impact"`
	Actionability float64 `json:"actionability"`
	Relevance     float64 `json:"relevance"`
	Composite     float64 `json:"ciar_score"`
}

// Scorer computes composite significance scores under a fixed weight
// configuration. Scorer has no side effects and is safe for concurrent use.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights.
func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	return &Scorer{weights: w}, nil
}

// Score clamps each subscore to [0,1] and combines them into the weighted
// composite. Deterministic for identical inputs and weights.
func (s *Scorer) Score(certainty, impact, actionability, relevance float64) Score {
	c := clamp01(certainty)
	i := clamp01(impact)
	a := clamp01(actionability)
	r := clamp01(relevance)

	w := s.weights
	composite := (c*w.Certainty + i*w.Impact + a*w.Actionability + r*w.Relevance) / w.sum()

	return Score{
		Certainty:     c,
		Impact:        i,
		Actionability: a,
		Relevance:     r,
		Composite:     clamp01(composite),
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
