package evaluation

import (
	"github.com/Brownie44l1/fer-inference/internal/emotion"
)

// Evaluation modes.
const (
	ModeFull   = "full"
	ModeSample = "sample"
)

// ConfusionMatrix counts true label (row) against predicted label (column).
type ConfusionMatrix [emotion.NumClasses][emotion.NumClasses]int

// Add records one prediction.
func (m *ConfusionMatrix) Add(trueIdx, predIdx int) {
	m[trueIdx][predIdx]++
}

// Total is the number of recorded predictions.
func (m *ConfusionMatrix) Total() int {
	var n int
	for i := range m {
		for j := range m[i] {
			n += m[i][j]
		}
	}
	return n
}

// Correct is the trace of the matrix.
func (m *ConfusionMatrix) Correct() int {
	var n int
	for i := range m {
		n += m[i][i]
	}
	return n
}

// ClassMetrics is the score for one true label.
type ClassMetrics struct {
	Accuracy float64 `json:"accuracy"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
}

// Result is the immutable outcome of an evaluation run.
type Result struct {
	Mode               string                  `json:"mode"`
	OverallAccuracy    float64                 `json:"overall_accuracy"`
	TotalImages        int                     `json:"total_images"`
	CorrectPredictions int                     `json:"correct_predictions"`
	ClassMetrics       map[string]ClassMetrics `json:"class_metrics"`
	ConfusionMatrix    ConfusionMatrix         `json:"confusion_matrix"`
	SkippedImages      int                     `json:"skipped_images"`
	BiasCorrected      bool                    `json:"bias_corrected"`
}

func accuracy(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// accumulator collects counts across chunks. Additions commute so chunk
// order does not matter.
type accumulator struct {
	matrix  ConfusionMatrix
	present [emotion.NumClasses]bool
	skipped int
}

func (a *accumulator) add(trueIdx, predIdx int) {
	a.matrix.Add(trueIdx, predIdx)
}

func (a *accumulator) result(mode string, corrected bool) *Result {
	r := &Result{
		Mode:            mode,
		ClassMetrics:    make(map[string]ClassMetrics),
		ConfusionMatrix: a.matrix,
		SkippedImages:   a.skipped,
		BiasCorrected:   corrected,
	}

	for i, label := range emotion.Labels {
		if !a.present[i] {
			continue
		}
		var total int
		for j := range a.matrix[i] {
			total += a.matrix[i][j]
		}
		correct := a.matrix[i][i]
		r.ClassMetrics[label] = ClassMetrics{
			Accuracy: accuracy(correct, total),
			Correct:  correct,
			Total:    total,
		}
		r.TotalImages += total
		r.CorrectPredictions += correct
	}
	r.OverallAccuracy = accuracy(r.CorrectPredictions, r.TotalImages)
	return r
}
