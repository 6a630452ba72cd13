package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Model loading
	ModelLoadAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fer_model_load_attempts_total",
			Help: "Model load attempts by strategy",
		},
		[]string{"strategy", "status"}, // status: success|error
	)

	ModelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fer_model_load_duration_seconds",
			Help:    "Duration of a single model load attempt",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"strategy"},
	)

	ModelVerified = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fer_model_verified",
			Help: "1 if the loaded model passed the startup probe, 0 otherwise",
		},
	)

	// Inference
	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fer_classifications_total",
			Help: "Single-image classifications by outcome",
		},
		[]string{"emotion", "status"}, // status: success|decode_failure|prediction_failure
	)

	ClassificationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fer_classification_latency_seconds",
			Help:    "Preprocess + predict + correct latency for one image",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// Evaluation
	EvaluationImages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fer_evaluation_images_total",
			Help: "Corpus images seen by evaluations",
		},
		[]string{"mode", "status"}, // status: processed|skipped
	)

	EvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fer_evaluation_duration_seconds",
			Help:    "Wall time of a full evaluation run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"mode"},
	)

	EvaluationAccuracy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fer_evaluation_accuracy",
			Help: "Accuracy of the most recent evaluation per class (label=overall for the total)",
		},
		[]string{"mode", "label"},
	)

	// HTTP
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fer_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ModelLoadAttempts)
		prometheus.MustRegister(ModelLoadDuration)
		prometheus.MustRegister(ModelVerified)

		prometheus.MustRegister(Classifications)
		prometheus.MustRegister(ClassificationLatency)

		prometheus.MustRegister(EvaluationImages)
		prometheus.MustRegister(EvaluationDuration)
		prometheus.MustRegister(EvaluationAccuracy)

		prometheus.MustRegister(HTTPRequests)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordLoadAttempt records one loader strategy attempt
func RecordLoadAttempt(strategy string, duration time.Duration, err error) {
	ModelLoadAttempts.WithLabelValues(strategy, status(err)).Inc()
	ModelLoadDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordVerification records the startup probe outcome
func RecordVerification(err error) {
	if err != nil {
		ModelVerified.Set(0)
		return
	}
	ModelVerified.Set(1)
}

// RecordClassification records one single-image classification
func RecordClassification(emotion, outcome string, latency time.Duration) {
	Classifications.WithLabelValues(emotion, outcome).Inc()
	if outcome == "success" {
		ClassificationLatency.Observe(latency.Seconds())
	}
}

// RecordEvaluation records a completed evaluation run
func RecordEvaluation(mode string, duration time.Duration, processed, skipped int, accuracy map[string]float64) {
	EvaluationImages.WithLabelValues(mode, "processed").Add(float64(processed))
	EvaluationImages.WithLabelValues(mode, "skipped").Add(float64(skipped))
	EvaluationDuration.WithLabelValues(mode).Observe(duration.Seconds())
	for label, acc := range accuracy {
		EvaluationAccuracy.WithLabelValues(mode, label).Set(acc)
	}
}

// RecordHTTPRequest records one served request
func RecordHTTPRequest(route string, code string) {
	HTTPRequests.WithLabelValues(route, code).Inc()
}
