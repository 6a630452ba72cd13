// Package loader turns configured artifact locations into a model handle by
// trying an ordered list of deserialization strategies.
package loader

import (
	"context"
	"os"
	"time"

	"github.com/Brownie44l1/fer-inference/internal/losses"
	"github.com/Brownie44l1/fer-inference/internal/metrics"
	"github.com/Brownie44l1/fer-inference/internal/model"
	"github.com/Brownie44l1/fer-inference/pkg/errors"
	"github.com/Brownie44l1/fer-inference/pkg/logger"
)

// Deserializer performs one load attempt.
type Deserializer interface {
	Deserialize(ctx context.Context, path string, opts model.LoadOptions) (model.Handle, error)
}

// Strategy is one named attempt configuration.
type Strategy struct {
	Name    string
	Options model.LoadOptions
}

// Strategy names.
const (
	StrategyPlain              = "plain"
	StrategySimpleCrossEntropy = "simple_cross_entropy"
	StrategyWeightedFocalLoss  = "weighted_focal_loss"
)

// DefaultStrategies returns the fixed attempt order: no loss, then the simple
// cross entropy under the generic loss name, then the weighted focal loss
// built with the default class weights.
func DefaultStrategies() []Strategy {
	focal := losses.NewWeightedFocalLoss(losses.DefaultClassWeights())
	return []Strategy{
		{
			Name:    StrategyPlain,
			Options: model.LoadOptions{Compile: false},
		},
		{
			Name: StrategySimpleCrossEntropy,
			Options: model.LoadOptions{
				Compile: true,
				Objects: losses.NewRegistry().Register(losses.ObjectLoss, losses.NewSimpleCrossEntropy),
			},
		},
		{
			Name: StrategyWeightedFocalLoss,
			Options: model.LoadOptions{
				Compile: false,
				Objects: losses.NewRegistry().Register(losses.ObjectWeightedFocalLoss, losses.Instance(focal)),
			},
		},
	}
}

// Loaded is the outcome of a successful load.
type Loaded struct {
	Handle   model.Handle
	Path     string
	Strategy string
}

// Loader tries strategies in order against candidate artifact locations.
type Loader struct {
	deserializer Deserializer
	strategies   []Strategy
	log          *logger.Logger
}

// New creates a loader. A nil strategies slice selects DefaultStrategies.
func New(d Deserializer, strategies []Strategy, log *logger.Logger) *Loader {
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	return &Loader{
		deserializer: d,
		strategies:   strategies,
		log:          log.With("component", "loader"),
	}
}

// Load walks candidates in order. Locations that do not exist are skipped;
// if none exists the result wraps errors.ErrArtifactNotFound and no strategy
// runs. For each existing location every strategy is tried in order and the
// first success wins. If all strategies fail for all locations the result
// wraps errors.ErrLoadFailure. Neither outcome is meant to be retried.
func (l *Loader) Load(ctx context.Context, candidates ...string) (*Loaded, error) {
	failures := &errors.MultiError{}
	existing := 0

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			l.log.Warnw("Model artifact unavailable", "path", path, "error", err)
			continue
		}
		existing++

		for _, s := range l.strategies {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			start := time.Now()
			handle, err := l.deserializer.Deserialize(ctx, path, s.Options)
			metrics.RecordLoadAttempt(s.Name, time.Since(start), err)
			if err != nil {
				l.log.Warnw("Model load strategy failed", "path", path, "strategy", s.Name, "error", err)
				failures.Add(errors.Wrapf(err, "%s (%s)", path, s.Name))
				continue
			}

			l.log.Infow("Model loaded", "path", path, "strategy", s.Name, "elapsed", time.Since(start))
			return &Loaded{Handle: handle, Path: path, Strategy: s.Name}, nil
		}
	}

	if existing == 0 {
		return nil, errors.NewDomainError(errors.CodeArtifactNotFound,
			"no model artifact at any configured location",
			errors.Wrapf(errors.ErrArtifactNotFound, "%v", candidates))
	}
	return nil, errors.NewDomainError(errors.CodeLoadFailure,
		"all model loading approaches failed",
		errors.Join(errors.ErrLoadFailure, failures.ToError()))
}
