package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Brownie44l1/fer-inference/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Model         ModelConfig
	Evaluation    EvaluationConfig
	Redis         RedisConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"fer-inference"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type HTTPConfig struct {
	Port           string   `envconfig:"HTTP_PORT" default:"8000"`
	AllowedOrigins []string `envconfig:"HTTP_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	MaxUploadBytes int64    `envconfig:"HTTP_MAX_UPLOAD_BYTES" default:"10485760"`
	// RateLimitRPS applies to classification routes; 0 disables limiting.
	RateLimitRPS    float64       `envconfig:"HTTP_RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst  int           `envconfig:"HTTP_RATE_LIMIT_BURST" default:"10"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

// ModelConfig locates the artifact. Paths are tried in order and have no
// built-in default.
type ModelConfig struct {
	Paths            []string `envconfig:"MODEL_PATHS" required:"true"`
	MetadataPath     string   `envconfig:"MODEL_METADATA_PATH"`
	LibraryPath      string   `envconfig:"ONNXRUNTIME_LIB"`
	SerializePredict bool     `envconfig:"MODEL_SERIALIZE_PREDICT" default:"true"`
	IntraOpThreads   int      `envconfig:"MODEL_INTRA_OP_THREADS" default:"0"`
	Verify           bool     `envconfig:"MODEL_VERIFY" default:"true"`
}

type EvaluationConfig struct {
	CorpusRoot     string        `envconfig:"EVAL_CORPUS_ROOT"`
	ChunkSize      int           `envconfig:"EVAL_CHUNK_SIZE" default:"100"`
	SampleFraction float64       `envconfig:"EVAL_SAMPLE_FRACTION" default:"0.05"`
	SampleSeed     int64         `envconfig:"EVAL_SAMPLE_SEED" default:"42"`
	CacheTTL       time.Duration `envconfig:"EVAL_CACHE_TTL" default:"1h"`
}

// RedisConfig enables the evaluation cache when Addr is set.
type RedisConfig struct {
	Addr           string        `envconfig:"REDIS_ADDR"`
	Password       string        `envconfig:"REDIS_PASSWORD"`
	DB             int           `envconfig:"REDIS_DB" default:"0"`
	ConnectTimeout time.Duration `envconfig:"REDIS_CONNECT_TIMEOUT" default:"10s"`
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if len(c.Model.Paths) == 0 {
		return errors.NewValidationError("MODEL_PATHS", "at least one artifact location is required", c.Model.Paths)
	}
	for _, p := range c.Model.Paths {
		if p == "" {
			return errors.NewValidationError("MODEL_PATHS", "empty artifact location", c.Model.Paths)
		}
	}
	if c.Evaluation.ChunkSize <= 0 {
		return errors.NewValidationError("EVAL_CHUNK_SIZE", "must be positive", c.Evaluation.ChunkSize)
	}
	if c.Evaluation.SampleFraction <= 0 || c.Evaluation.SampleFraction > 1 {
		return errors.NewValidationError("EVAL_SAMPLE_FRACTION", "must be in (0,1]", c.Evaluation.SampleFraction)
	}
	if c.HTTP.RateLimitRPS < 0 {
		return errors.NewValidationError("HTTP_RATE_LIMIT_RPS", "must not be negative", c.HTTP.RateLimitRPS)
	}
	if c.ErrorTracking.Enabled && c.ErrorTracking.SentryDSN == "" {
		return errors.NewValidationError("SENTRY_DSN", "required when error tracking is enabled", "")
	}
	return nil
}
