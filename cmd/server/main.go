package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/fer-inference/internal/adapters/errors/noop"
	"github.com/Brownie44l1/fer-inference/internal/adapters/errors/sentry"
	"github.com/Brownie44l1/fer-inference/internal/cache"
	"github.com/Brownie44l1/fer-inference/internal/config"
	"github.com/Brownie44l1/fer-inference/internal/evaluation"
	"github.com/Brownie44l1/fer-inference/internal/handlers"
	"github.com/Brownie44l1/fer-inference/internal/inference"
	"github.com/Brownie44l1/fer-inference/internal/loader"
	"github.com/Brownie44l1/fer-inference/internal/metrics"
	"github.com/Brownie44l1/fer-inference/internal/model"
	"github.com/Brownie44l1/fer-inference/internal/preprocess"
	"github.com/Brownie44l1/fer-inference/pkg/errors"
	"github.com/Brownie44l1/fer-inference/pkg/logger"
)

const verifySeed = 1

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)
	log = logger.Get()
	defer errorTracker.Flush(context.Background())

	metrics.Init()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Without a model there is nothing to serve.
	loaded, err := loadModel(ctx, cfg, log)
	if err != nil {
		_ = errorTracker.CaptureError(ctx, err, map[string]string{"stage": "model_load"})
		errorTracker.Flush(context.Background())
		log.Fatalf("Failed to load model: %v", err)
	}
	defer func() {
		if err := loaded.Handle.Close(); err != nil {
			log.Warnf("Failed to close model session: %v", err)
		}
		if err := model.DestroyEnvironment(); err != nil {
			log.Warnf("Failed to destroy onnxruntime environment: %v", err)
		}
	}()

	meta := loaded.Handle.Metadata()
	log.Infow("Model loaded",
		"path", loaded.Path,
		"strategy", loaded.Strategy,
		"classes", meta.Classes,
		"image_size", meta.ImageSize,
	)

	if cfg.Model.Verify {
		err := loader.Verify(ctx, loaded.Handle, meta.ImageSize, len(meta.Classes), verifySeed)
		metrics.RecordVerification(err)
		if err != nil {
			log.Warnf("Model verification failed, continuing: %v", err)
		} else {
			log.Info("Model verification passed")
		}
	}

	pre := preprocess.New(meta.ImageSize)
	pipeline := inference.New(loaded.Handle, pre, nil, log)
	evaluator := evaluation.New(loaded.Handle, pre, nil, cfg.Evaluation.ChunkSize, log)

	var (
		evalCache   evaluation.Cache
		redisClient *cache.Client
	)
	if cfg.Redis.Enabled() {
		client, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warnf("Redis unavailable, evaluation results will not be cached: %v", err)
		} else {
			defer client.Close()
			evalCache, redisClient = client, client
			log.Infow("Evaluation cache enabled", "addr", cfg.Redis.Addr)
		}
	}

	evalService := evaluation.NewService(evaluator, evalCache, evaluation.ServiceConfig{
		CorpusRoot:     cfg.Evaluation.CorpusRoot,
		ModelPath:      loaded.Path,
		SampleFraction: cfg.Evaluation.SampleFraction,
		SampleSeed:     cfg.Evaluation.SampleSeed,
		CacheTTL:       cfg.Evaluation.CacheTTL,
	}, log)

	handler := handlers.NewHandler(pipeline, evalService, handlers.ModelInfo{
		Path:     loaded.Path,
		Strategy: loaded.Strategy,
		Classes:  meta.Classes,
	}, cfg.HTTP.MaxUploadBytes, log)
	if redisClient != nil {
		handler.AddHealthCheck("redis", redisClient)
	}

	server := &http.Server{
		Addr: net.JoinHostPort("", cfg.HTTP.Port),
		Handler: handler.Router(handlers.RouterConfig{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			RateLimitRPS:   cfg.HTTP.RateLimitRPS,
			RateLimitBurst: cfg.HTTP.RateLimitBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("Server starting", "port", cfg.HTTP.Port, "origins", cfg.HTTP.AllowedOrigins)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Server failed: %v", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down...")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP shutdown: %v", err)
	}

	log.Info("Shutdown complete")
}

func loadModel(ctx context.Context, cfg *config.Config, log *logger.Logger) (*loader.Loaded, error) {
	d := &model.ONNXDeserializer{
		MetadataPath:     cfg.Model.MetadataPath,
		LibraryPath:      cfg.Model.LibraryPath,
		IntraOpThreads:   cfg.Model.IntraOpThreads,
		SerializePredict: cfg.Model.SerializePredict,
	}
	return loader.New(d, nil, log).Load(ctx, cfg.Model.Paths...)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Name)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}
