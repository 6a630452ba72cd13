// Package inference classifies single images: preprocess, predict, correct,
// pick the top label.
package inference

import (
	"context"
	"time"

	"github.com/Brownie44l1/fer-inference/internal/bias"
	"github.com/Brownie44l1/fer-inference/internal/emotion"
	"github.com/Brownie44l1/fer-inference/internal/metrics"
	"github.com/Brownie44l1/fer-inference/internal/model"
	"github.com/Brownie44l1/fer-inference/internal/preprocess"
	"github.com/Brownie44l1/fer-inference/pkg/errors"
	"github.com/Brownie44l1/fer-inference/pkg/logger"
)

// Result is the classification of one image.
type Result struct {
	Emotion       string             `json:"emotion"`
	Probabilities map[string]float64 `json:"probabilities"`

	Index  int            `json:"-"`
	Vector emotion.Vector `json:"-"`
}

// Pipeline is safe for concurrent use as long as its Predictor is.
type Pipeline struct {
	model     model.Predictor
	pre       *preprocess.Preprocessor
	corrector bias.Corrector
	log       *logger.Logger
}

// New wires a pipeline. A nil corrector selects the Neutral suppressor.
func New(m model.Predictor, pre *preprocess.Preprocessor, corrector bias.Corrector, log *logger.Logger) *Pipeline {
	if corrector == nil {
		corrector = bias.NeutralSuppressor()
	}
	return &Pipeline{
		model:     m,
		pre:       pre,
		corrector: corrector,
		log:       log.With("component", "inference"),
	}
}

// Classify decodes imageBytes and classifies it. Decoding problems come back
// as a DomainError with CodeDecodeFailure, model problems with CodePrediction.
func (p *Pipeline) Classify(ctx context.Context, imageBytes []byte) (*Result, error) {
	start := time.Now()

	tensor, err := p.pre.FromBytes(imageBytes)
	if err != nil {
		p.log.Debugw("Image decode failed", "bytes", len(imageBytes), "error", err)
		metrics.RecordClassification("", errors.CodeDecodeFailure, time.Since(start))
		return nil, errors.NewDomainError(errors.CodeDecodeFailure, "invalid image format", err)
	}

	return p.classify(ctx, tensor, start)
}

// ClassifyTensor classifies an already normalized size×size image.
func (p *Pipeline) ClassifyTensor(ctx context.Context, data []float32) (*Result, error) {
	size := p.pre.Size
	if len(data) != size*size {
		return nil, errors.NewDomainError(errors.CodeInvalidInput,
			"wrong input length",
			errors.Wrapf(errors.ErrInvalidInput, "expected %d values, got %d", size*size, len(data)))
	}

	tensor := preprocess.NewTensor(1, size, size)
	copy(tensor.Data, data)
	return p.classify(ctx, tensor, time.Now())
}

func (p *Pipeline) classify(ctx context.Context, tensor *preprocess.Tensor, start time.Time) (*Result, error) {
	rows, err := p.model.Predict(ctx, tensor)
	if err == nil && len(rows) != 1 {
		err = errors.Newf("model returned %d rows for one image", len(rows))
	}
	if err != nil {
		// reported by the caller at the request boundary
		p.log.Warnw("Prediction failed", "error", err)
		metrics.RecordClassification("", errors.CodePrediction, time.Since(start))
		return nil, errors.NewDomainError(errors.CodePrediction, "prediction failed", errors.Join(errors.ErrPrediction, err))
	}

	corrected := p.corrector.Correct(rows[0])
	idx := corrected.Argmax()
	label, err := emotion.Label(idx)
	if err != nil {
		metrics.RecordClassification("", errors.CodePrediction, time.Since(start))
		return nil, errors.NewDomainError(errors.CodePrediction, "prediction failed", errors.Join(errors.ErrPrediction, err))
	}

	metrics.RecordClassification(label, "success", time.Since(start))
	return &Result{
		Emotion:       label,
		Probabilities: corrected.Map(),
		Index:         idx,
		Vector:        corrected,
	}, nil
}
