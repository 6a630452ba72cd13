package model

import (
	"context"
	"encoding/json"

	"github.com/Brownie44l1/fer-inference/internal/emotion"
	"github.com/Brownie44l1/fer-inference/internal/losses"
	"github.com/Brownie44l1/fer-inference/internal/preprocess"
	"github.com/Brownie44l1/fer-inference/pkg/errors"
)

// Predictor maps a batch of images to one probability vector per image.
type Predictor interface {
	Predict(ctx context.Context, batch *preprocess.Tensor) ([]emotion.Vector, error)
}

// Handle is a loaded, read-only classifier. It is created once at startup,
// shared by reference and closed at shutdown.
type Handle interface {
	Predictor
	Metadata() Metadata
	Close() error
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, batch *preprocess.Tensor) ([]emotion.Vector, error)

// Predict calls f.
func (f PredictorFunc) Predict(ctx context.Context, batch *preprocess.Tensor) ([]emotion.Vector, error) {
	return f(ctx, batch)
}

// LoadOptions controls one deserialization attempt.
type LoadOptions struct {
	// Compile reconstructs the training loss recorded in the artifact.
	Compile bool
	// Objects resolves names the artifact references.
	Objects *losses.Registry
}

// Resolve checks that every object the artifact references is available in
// opts and, when compiling, reconstructs the recorded loss. It returns the
// compiled loss or nil.
func Resolve(meta Metadata, opts LoadOptions) (losses.Loss, error) {
	for _, name := range meta.CustomObjects {
		if !opts.Objects.Has(name) {
			return nil, errors.Wrapf(losses.ErrUnknownObject, "artifact references %q", name)
		}
	}

	if !opts.Compile || meta.TrainingConfig == nil || meta.TrainingConfig.Loss == nil {
		return nil, nil
	}

	recorded := meta.TrainingConfig.Loss
	loss, err := opts.Objects.Reconstruct(recorded.ClassName, recorded.Config)
	if err != nil {
		return nil, errors.Wrap(err, "compile training loss")
	}
	return loss, nil
}

// ParseMetadata decodes a sidecar document and fills defaults.
func ParseMetadata(data []byte) (Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, errors.Wrap(err, "failed to parse metadata")
	}
	return meta.withDefaults(), nil
}
