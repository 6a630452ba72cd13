// Package bias applies the post-hoc Neutral-class correction to model output.
package bias

import (
	"github.com/Brownie44l1/fer-inference/internal/emotion"
)

// NeutralReductionFactor is the fraction of the suppressed class's probability
// that survives correction.
const NeutralReductionFactor = 0.40

// Corrector transforms a raw probability vector. Implementations are pure and
// must return a new vector without touching their input.
type Corrector interface {
	Correct(p emotion.Vector) emotion.Vector
}

// Suppressor scales one class down by Factor and hands the removed mass to
// the other classes in proportion to their current probability.
type Suppressor struct {
	Index  int
	Factor float64
}

// NeutralSuppressor is the correction used for every prediction the service
// returns and for full evaluations.
func NeutralSuppressor() Suppressor {
	return Suppressor{Index: emotion.Neutral, Factor: NeutralReductionFactor}
}

// Correct returns the corrected copy of p. An out-of-range index is a no-op.
//
// When every other class has zero probability there is nowhere to put the
// removed mass; it is dropped and the result sums to less than the input.
// Callers rely on this exact behavior so it is kept as is.
func (s Suppressor) Correct(p emotion.Vector) emotion.Vector {
	out := p.Clone()
	if s.Index < 0 || s.Index >= len(out) {
		return out
	}

	original := out[s.Index]
	adjusted := original * s.Factor
	removed := original - adjusted

	var mass float64
	for j, v := range out {
		if j != s.Index {
			mass += v
		}
	}

	if mass > 0 {
		for j := range out {
			if j != s.Index {
				out[j] += removed * out[j] / mass
			}
		}
	}
	out[s.Index] = adjusted
	return out
}

// Identity leaves predictions untouched. Used by sampled evaluations that
// report the raw model.
type Identity struct{}

// Correct returns a copy of p.
func (Identity) Correct(p emotion.Vector) emotion.Vector {
	return p.Clone()
}

// CorrectBatch applies c to every row independently.
func CorrectBatch(c Corrector, rows []emotion.Vector) []emotion.Vector {
	out := make([]emotion.Vector, len(rows))
	for i, row := range rows {
		out[i] = c.Correct(row)
	}
	return out
}
