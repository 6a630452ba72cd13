package handlers

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/Brownie44l1/fer-inference/internal/metrics"
)

// RouterConfig holds the HTTP policies applied around the handlers.
type RouterConfig struct {
	AllowedOrigins []string
	// RateLimitRPS limits the classification routes; 0 disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Router mounts every route on a fresh mux.
func (h *Handler) Router(cfg RouterConfig) http.Handler {
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.instrument("/health", h.Health))
	mux.HandleFunc("/classify-emotion/", h.instrument("/classify-emotion/", h.rateLimit(limiter, h.ClassifyEmotion)))
	mux.HandleFunc("/predict", h.instrument("/predict", h.rateLimit(limiter, h.Predict)))
	mux.HandleFunc("/evaluate-test-set-v2/", h.instrument("/evaluate-test-set-v2/", h.EvaluateFull))
	mux.HandleFunc("/direct-model-test/", h.instrument("/direct-model-test/", h.DirectModelTest))
	mux.Handle("/metrics", metrics.Handler())

	return withRequestID(enableCORS(cfg.AllowedOrigins, mux))
}
