package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fer-inference/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MODEL_PATHS", "/models/fer.onnx")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"/models/fer.onnx"}, cfg.Model.Paths)
	assert.True(t, cfg.Model.SerializePredict)
	assert.True(t, cfg.Model.Verify)
	assert.Equal(t, "8000", cfg.HTTP.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, int64(10<<20), cfg.HTTP.MaxUploadBytes)
	assert.Equal(t, 100, cfg.Evaluation.ChunkSize)
	assert.InDelta(t, 0.05, cfg.Evaluation.SampleFraction, 1e-12)
	assert.Equal(t, int64(42), cfg.Evaluation.SampleSeed)
	assert.Equal(t, time.Hour, cfg.Evaluation.CacheTTL)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.ErrorTracking.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MODEL_PATHS", "a.onnx,b.onnx")
	t.Setenv("MODEL_SERIALIZE_PREDICT", "false")
	t.Setenv("EVAL_CHUNK_SIZE", "16")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("HTTP_RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"a.onnx", "b.onnx"}, cfg.Model.Paths)
	assert.False(t, cfg.Model.SerializePredict)
	assert.Equal(t, 16, cfg.Evaluation.ChunkSize)
	assert.True(t, cfg.Redis.Enabled())
	assert.InDelta(t, 2.5, cfg.HTTP.RateLimitRPS, 1e-12)
}

func TestLoadRequiresModelPaths(t *testing.T) {
	t.Setenv("MODEL_PATHS", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Model:      ModelConfig{Paths: []string{"m.onnx"}},
			Evaluation: EvaluationConfig{ChunkSize: 100, SampleFraction: 0.05},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty path", func(c *Config) { c.Model.Paths = []string{""} }, "MODEL_PATHS"},
		{"zero chunk", func(c *Config) { c.Evaluation.ChunkSize = 0 }, "EVAL_CHUNK_SIZE"},
		{"fraction above one", func(c *Config) { c.Evaluation.SampleFraction = 1.5 }, "EVAL_SAMPLE_FRACTION"},
		{"zero fraction", func(c *Config) { c.Evaluation.SampleFraction = 0 }, "EVAL_SAMPLE_FRACTION"},
		{"negative rps", func(c *Config) { c.HTTP.RateLimitRPS = -1 }, "HTTP_RATE_LIMIT_RPS"},
		{"sentry without dsn", func(c *Config) { c.ErrorTracking.Enabled = true }, "SENTRY_DSN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verr *errors.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput))
		})
	}
}
