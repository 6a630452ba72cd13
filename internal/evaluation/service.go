package evaluation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Brownie44l1/fer-inference/pkg/errors"
	"github.com/Brownie44l1/fer-inference/pkg/logger"
)

// Cache stores finished results. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Set(ctx context.Context, key string, r *Result, ttl time.Duration) error
}

// ServiceConfig holds the evaluation settings the service applies to every run.
type ServiceConfig struct {
	CorpusRoot     string
	ModelPath      string
	SampleFraction float64
	SampleSeed     int64
	CacheTTL       time.Duration
}

// Service runs evaluations on behalf of callers. Identical concurrent
// requests share one run and finished results are cached.
type Service struct {
	evaluator *Evaluator
	cache     Cache
	cfg       ServiceConfig
	group     singleflight.Group
	log       *logger.Logger
}

// NewService creates a service. cache may be nil.
func NewService(e *Evaluator, cache Cache, cfg ServiceConfig, log *logger.Logger) *Service {
	return &Service{
		evaluator: e,
		cache:     cache,
		cfg:       cfg,
		log:       log.With("component", "evaluation_service"),
	}
}

// ModelPath is the artifact the evaluated model was loaded from.
func (s *Service) ModelPath() string {
	return s.cfg.ModelPath
}

// Full evaluates the whole corpus with bias correction.
func (s *Service) Full(ctx context.Context) (*Result, error) {
	return s.do(ctx, ModeFull, func(ctx context.Context) (*Result, error) {
		return s.evaluator.Evaluate(ctx, s.cfg.CorpusRoot)
	})
}

// Sample evaluates the configured random subset without bias correction.
func (s *Service) Sample(ctx context.Context) (*Result, error) {
	return s.do(ctx, ModeSample, func(ctx context.Context) (*Result, error) {
		return s.evaluator.Sample(ctx, s.cfg.CorpusRoot, s.cfg.SampleFraction, s.cfg.SampleSeed)
	})
}

func (s *Service) key(mode string) string {
	if mode == ModeSample {
		return fmt.Sprintf("fer:eval:%s:%s:%s:%g:%d", mode, s.cfg.ModelPath, s.cfg.CorpusRoot, s.cfg.SampleFraction, s.cfg.SampleSeed)
	}
	return fmt.Sprintf("fer:eval:%s:%s:%s", mode, s.cfg.ModelPath, s.cfg.CorpusRoot)
}

func (s *Service) do(ctx context.Context, mode string, run func(context.Context) (*Result, error)) (*Result, error) {
	if s.cfg.CorpusRoot == "" {
		return nil, errors.NewDomainError(errors.CodeCorpusMissing, "test directory not found",
			errors.Wrap(errors.ErrCorpusMissing, "no corpus root configured"))
	}

	key := s.key(mode)
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warnw("Evaluation cache read failed", "key", key, "error", err)
		}
		if ok {
			s.log.Debugw("Evaluation served from cache", "key", key)
			return cached, nil
		}
	}

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		r, err := run(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, r, s.cfg.CacheTTL); err != nil {
				s.log.Warnw("Evaluation cache write failed", "key", key, "error", err)
			}
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Debugw("Evaluation shared with concurrent caller", "key", key)
	}
	return v.(*Result), nil
}
