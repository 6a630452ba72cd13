// Package emotion holds the fixed label set of the 6-class classifier and the
// probability vector it emits.
package emotion

import "fmt"

// Class indices. The order is baked into the trained model.
const (
	Angry = iota
	Fear
	Happy
	Sad
	Surprise
	Neutral

	NumClasses
)

// Labels maps class index to label name.
var Labels = [NumClasses]string{"Angry", "Fear", "Happy", "Sad", "Surprise", "Neutral"}

// Index returns the class index for label, or false if the label is unknown.
// Matching is exact: corpus directory names must equal the label.
func Index(label string) (int, bool) {
	for i, l := range Labels {
		if l == label {
			return i, true
		}
	}
	return -1, false
}

// Label returns the label name for a class index.
func Label(idx int) (string, error) {
	if idx < 0 || idx >= NumClasses {
		return "", fmt.Errorf("class index %d out of range [0,%d)", idx, NumClasses)
	}
	return Labels[idx], nil
}

// Vector is a probability vector ordered like Labels. After bias correction it
// is non-negative but need not sum to exactly 1.
type Vector []float64

// FromFloat32 widens a model output row.
func FromFloat32(row []float32) Vector {
	v := make(Vector, len(row))
	for i, p := range row {
		v[i] = float64(p)
	}
	return v
}

// Argmax returns the index of the largest entry. Ties go to the lowest index.
// An empty vector yields -1.
func (v Vector) Argmax() int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// Sum returns the total probability mass.
func (v Vector) Sum() float64 {
	var s float64
	for _, p := range v {
		s += p
	}
	return s
}

// Map zips label names with the vector's values. Entries beyond the label set
// are dropped.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, NumClasses)
	for i, p := range v {
		if i < NumClasses {
			m[Labels[i]] = p
		}
	}
	return m
}

// Clone returns an independent copy.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}
