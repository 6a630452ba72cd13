package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Brownie44l1/fer-inference/internal/emotion"
	"github.com/Brownie44l1/fer-inference/internal/evaluation"
	"github.com/Brownie44l1/fer-inference/internal/inference"
	"github.com/Brownie44l1/fer-inference/internal/model"
	"github.com/Brownie44l1/fer-inference/pkg/errors"
	"github.com/Brownie44l1/fer-inference/pkg/logger"
)

const healthCheckTimeout = 2 * time.Second

// Classifier classifies uploaded images and raw tensors.
type Classifier interface {
	Classify(ctx context.Context, imageBytes []byte) (*inference.Result, error)
	ClassifyTensor(ctx context.Context, data []float32) (*inference.Result, error)
}

// Evaluator runs the corpus evaluations.
type Evaluator interface {
	Full(ctx context.Context) (*evaluation.Result, error)
	Sample(ctx context.Context) (*evaluation.Result, error)
	ModelPath() string
}

// HealthChecker reports whether an optional dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ModelInfo describes the loaded model for the health route.
type ModelInfo struct {
	Path     string   `json:"model_path"`
	Strategy string   `json:"strategy"`
	Classes  []string `json:"classes"`
}

type Handler struct {
	classifier     Classifier
	evaluator      Evaluator
	info           ModelInfo
	maxUploadBytes int64
	checks         map[string]HealthChecker
	log            *logger.Logger
}

// NewHandler creates the HTTP handler set. Server errors are reported
// through log's error tracker.
func NewHandler(c Classifier, e Evaluator, info ModelInfo, maxUploadBytes int64, log *logger.Logger) *Handler {
	if len(info.Classes) == 0 {
		info.Classes = emotion.Labels[:]
	}
	return &Handler{
		classifier:     c,
		evaluator:      e,
		info:           info,
		maxUploadBytes: maxUploadBytes,
		checks:         make(map[string]HealthChecker),
		log:            log.With("component", "http"),
	}
}

// AddHealthCheck lists a dependency under name in the health response. A
// failing check marks the service degraded; the model itself keeps serving.
func (h *Handler) AddHealthCheck(name string, c HealthChecker) {
	h.checks[name] = c
}

type healthResponse struct {
	Status string `json:"status"`
	ModelInfo
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", ModelInfo: h.info}
	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(h.checks))
		for name, c := range h.checks {
			if err := c.Health(ctx); err != nil {
				resp.Status = "degraded"
				resp.Checks[name] = err.Error()
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClassifyEmotion accepts a multipart upload in field "file" (or "image").
func (h *Handler) ClassifyEmotion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "failed to parse form", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("image")
	}
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "no image file provided, use 'file' as the form field name", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "failed to read upload", err)
		return
	}

	h.log.Debugw("Received upload",
		"request_id", RequestIDFrom(r.Context()),
		"filename", header.Filename,
		"size", humanize.Bytes(uint64(len(data))),
	)

	result, err := h.classifier.Classify(r.Context(), data)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Predict classifies an already normalized 48x48 tensor.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	var req model.PredictionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUploadBytes)).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid JSON", err)
		return
	}

	result, err := h.classifier.ClassifyTensor(r.Context(), req.Image)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type evaluationResponse struct {
	*evaluation.Result
	Note string `json:"note"`
}

// EvaluateFull scores the whole corpus with bias correction. The run is not
// tied to the request: a client disconnect does not abort it.
func (h *Handler) EvaluateFull(w http.ResponseWriter, r *http.Request) {
	result, err := h.evaluator.Full(context.WithoutCancel(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evaluationResponse{
		Result: result,
		Note:   "neutral bias correction applied",
	})
}

type directTestResponse struct {
	Message            string                             `json:"message"`
	ModelPath          string                             `json:"model_path"`
	OverallAccuracy    float64                            `json:"overall_accuracy"`
	TotalImages        int                                `json:"total_images"`
	CorrectPredictions int                                `json:"correct_predictions"`
	ClassResults       map[string]evaluation.ClassMetrics `json:"class_results"`
	SkippedImages      int                                `json:"skipped_images"`
	Note               string                             `json:"note"`
}

// DirectModelTest scores a deterministic sample of the corpus on raw model output.
func (h *Handler) DirectModelTest(w http.ResponseWriter, r *http.Request) {
	result, err := h.evaluator.Sample(context.WithoutCancel(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, directTestResponse{
		Message:            "Direct model test results",
		ModelPath:          h.evaluator.ModelPath(),
		OverallAccuracy:    result.OverallAccuracy,
		TotalImages:        result.TotalImages,
		CorrectPredictions: result.CorrectPredictions,
		ClassResults:       result.ClassMetrics,
		SkippedImages:      result.SkippedImages,
		Note:               "sampled subset, no bias correction",
	})
}

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(err error) int {
	switch errors.CodeOf(err) {
	case errors.CodeDecodeFailure, errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeCorpusMissing:
		return http.StatusNotFound
	case errors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	msg := "internal error"
	var de *errors.DomainError
	if errors.As(err, &de) && de.Message != "" {
		msg = de.Message
	}
	h.writeError(w, r, StatusFor(err), msg, err)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	reqID := RequestIDFrom(r.Context())
	if status >= http.StatusInternalServerError {
		h.log.Capture(r.Context(), err, map[string]string{
			"path":       r.URL.Path,
			"request_id": reqID,
		}, "Request failed", "request_id", reqID, "path", r.URL.Path, "status", status)
	} else {
		h.log.Debugw("Request rejected", "request_id", reqID, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
