// Package losses holds the named loss definitions a serialized model may
// reference. They exist so artifact deserialization can resolve those names;
// inference never evaluates them.
package losses

import (
	"encoding/json"
	"math"
)

// Epsilon clips predictions away from zero before taking logs.
const Epsilon = 1e-7

// Loss is a reconstructable loss definition.
type Loss interface {
	// Name is the identifier the loss serializes under.
	Name() string
	// Compute returns the mean over samples of the per-sample loss.
	Compute(yTrue, yPred [][]float64) float64
	// Config exports the loss configuration for serialization.
	Config() json.RawMessage
}

// SimpleCrossEntropy is mean(sum(-y_true * log(clip(y_pred, 1e-7, 1)))).
type SimpleCrossEntropy struct{}

// NewSimpleCrossEntropy is the reconstruction function for SimpleCrossEntropy.
// The loss carries no configuration so raw is ignored.
func NewSimpleCrossEntropy(json.RawMessage) (Loss, error) {
	return SimpleCrossEntropy{}, nil
}

func (SimpleCrossEntropy) Name() string { return "simple_cross_entropy" }

func (SimpleCrossEntropy) Config() json.RawMessage {
	return json.RawMessage(`{"name":"simple_cross_entropy"}`)
}

func (SimpleCrossEntropy) Compute(yTrue, yPred [][]float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var total float64
	for i := range yTrue {
		var sample float64
		for j := range yTrue[i] {
			sample += -yTrue[i][j] * math.Log(clip(yPred[i][j], Epsilon, 1.0))
		}
		total += sample
	}
	return total / float64(len(yTrue))
}

func clip(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func argmax(row []float64) int {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}
