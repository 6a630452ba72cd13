package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fer-inference/internal/emotion"
	"github.com/Brownie44l1/fer-inference/internal/evaluation"
	"github.com/Brownie44l1/fer-inference/internal/inference"
	"github.com/Brownie44l1/fer-inference/internal/model"
	"github.com/Brownie44l1/fer-inference/internal/preprocess"
	"github.com/Brownie44l1/fer-inference/pkg/errors"
	"github.com/Brownie44l1/fer-inference/pkg/logger"
)

type fakeClassifier struct {
	result *inference.Result
	err    error
	got    []byte
	tensor []float32
}

func (f *fakeClassifier) Classify(ctx context.Context, b []byte) (*inference.Result, error) {
	f.got = b
	return f.result, f.err
}

func (f *fakeClassifier) ClassifyTensor(ctx context.Context, data []float32) (*inference.Result, error) {
	f.tensor = data
	return f.result, f.err
}

type fakeEvaluator struct {
	result    *evaluation.Result
	err       error
	cancelled atomic.Bool
}

func (f *fakeEvaluator) Full(ctx context.Context) (*evaluation.Result, error) {
	f.cancelled.Store(ctx.Err() != nil)
	return f.result, f.err
}

func (f *fakeEvaluator) Sample(ctx context.Context) (*evaluation.Result, error) {
	return f.result, f.err
}

func (f *fakeEvaluator) ModelPath() string { return "/models/fer.onnx" }

func happyResult() *inference.Result {
	return &inference.Result{
		Emotion: "Happy",
		Probabilities: map[string]float64{
			"Angry": 0.05, "Fear": 0.05, "Happy": 0.7, "Sad": 0.1, "Surprise": 0.05, "Neutral": 0.05,
		},
	}
}

func newTestHandler(c Classifier, e Evaluator) *Handler {
	return NewHandler(c, e, ModelInfo{Path: "/models/fer.onnx", Strategy: "plain"}, 1<<20, logger.Nop())
}

func multipartBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile(field, "face.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&fakeClassifier{}, &fakeEvaluator{})
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, "/models/fer.onnx", out["model_path"])
	assert.Len(t, out["classes"], 6)
}

func TestClassifyEmotion(t *testing.T) {
	for _, field := range []string{"file", "image"} {
		t.Run(field, func(t *testing.T) {
			c := &fakeClassifier{result: happyResult()}
			h := newTestHandler(c, &fakeEvaluator{})

			body, ct := multipartBody(t, field, []byte("png-bytes"))
			req := httptest.NewRequest(http.MethodPost, "/classify-emotion/", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.ClassifyEmotion(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, []byte("png-bytes"), c.got)
			out := decode(t, rec)
			assert.Equal(t, "Happy", out["emotion"])
			assert.Len(t, out["probabilities"], 6)
		})
	}
}

func TestClassifyEmotionErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{
			name:   "decode failure",
			err:    errors.NewDomainError(errors.CodeDecodeFailure, "invalid image format", errors.ErrDecodeFailure),
			status: http.StatusBadRequest,
			msg:    "invalid image format",
		},
		{
			name:   "prediction failure",
			err:    errors.NewDomainError(errors.CodePrediction, "prediction failed", errors.ErrPrediction),
			status: http.StatusInternalServerError,
			msg:    "prediction failed",
		},
		{
			name:   "bare error",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			msg:    "internal error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&fakeClassifier{err: tt.err}, &fakeEvaluator{})

			body, ct := multipartBody(t, "file", []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/classify-emotion/", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.ClassifyEmotion(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, decode(t, rec)["error"])
		})
	}
}

func TestClassifyEmotionRejectsBadRequests(t *testing.T) {
	h := newTestHandler(&fakeClassifier{result: happyResult()}, &fakeEvaluator{})

	rec := httptest.NewRecorder()
	h.ClassifyEmotion(rec, httptest.NewRequest(http.MethodGet, "/classify-emotion/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	body, ct := multipartBody(t, "photo", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/classify-emotion/", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	h.ClassifyEmotion(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredict(t *testing.T) {
	c := &fakeClassifier{result: happyResult()}
	h := newTestHandler(c, &fakeEvaluator{})

	payload, err := json.Marshal(map[string][]float32{"image": make([]float32, 48*48)})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.Predict(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(payload)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, c.tensor, 48*48)

	rec = httptest.NewRecorder()
	h.Predict(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictWrongLength(t *testing.T) {
	c := &fakeClassifier{err: errors.NewDomainError(errors.CodeInvalidInput, "wrong input length", errors.ErrInvalidInput)}
	h := newTestHandler(c, &fakeEvaluator{})

	rec := httptest.NewRecorder()
	h.Predict(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString(`{"image":[0.1,0.2]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateFull(t *testing.T) {
	e := &fakeEvaluator{result: &evaluation.Result{
		Mode:               evaluation.ModeFull,
		OverallAccuracy:    0.5,
		TotalImages:        4,
		CorrectPredictions: 2,
		ClassMetrics:       map[string]evaluation.ClassMetrics{"Happy": {Accuracy: 0.5, Correct: 2, Total: 4}},
		BiasCorrected:      true,
	}}
	h := newTestHandler(&fakeClassifier{}, e)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/evaluate-test-set-v2/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.EvaluateFull(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, e.cancelled.Load(), "evaluation must not see the request cancellation")

	out := decode(t, rec)
	assert.InDelta(t, 0.5, out["overall_accuracy"], 1e-9)
	assert.EqualValues(t, 4, out["total_images"])
	assert.Contains(t, out, "class_metrics")
	assert.Contains(t, out, "confusion_matrix")
	assert.Contains(t, out, "note")
}

func TestEvaluationErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"corpus missing", errors.NewDomainError(errors.CodeCorpusMissing, "test directory not found", errors.ErrCorpusMissing), http.StatusNotFound},
		{"no images", errors.NewDomainError(errors.CodeNoImages, "no images were successfully processed", errors.ErrNoImages), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&fakeClassifier{}, &fakeEvaluator{err: tt.err})

			rec := httptest.NewRecorder()
			h.EvaluateFull(rec, httptest.NewRequest(http.MethodGet, "/evaluate-test-set-v2/", nil))
			assert.Equal(t, tt.status, rec.Code)

			rec = httptest.NewRecorder()
			h.DirectModelTest(rec, httptest.NewRequest(http.MethodGet, "/direct-model-test/", nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestDirectModelTest(t *testing.T) {
	e := &fakeEvaluator{result: &evaluation.Result{
		Mode:               evaluation.ModeSample,
		OverallAccuracy:    1,
		TotalImages:        6,
		CorrectPredictions: 6,
		ClassMetrics:       map[string]evaluation.ClassMetrics{"Sad": {Accuracy: 1, Correct: 6, Total: 6}},
	}}
	h := newTestHandler(&fakeClassifier{}, e)

	rec := httptest.NewRecorder()
	h.DirectModelTest(rec, httptest.NewRequest(http.MethodGet, "/direct-model-test/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "Direct model test results", out["message"])
	assert.Equal(t, "/models/fer.onnx", out["model_path"])
	assert.EqualValues(t, 6, out["correct_predictions"])
	assert.Contains(t, out, "class_results")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(errors.ErrDecodeFailure))
	assert.Equal(t, http.StatusBadRequest, StatusFor(errors.Wrap(errors.ErrInvalidInput, "x")))
	assert.Equal(t, http.StatusNotFound, StatusFor(errors.ErrCorpusMissing))
	assert.Equal(t, http.StatusTooManyRequests, StatusFor(errors.ErrRateLimited))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.ErrNoImages))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("x")))
}

type stubCheck struct{ err error }

func (s stubCheck) Health(context.Context) error { return s.err }

func TestHealthChecks(t *testing.T) {
	h := newTestHandler(&fakeClassifier{}, &fakeEvaluator{})
	h.AddHealthCheck("redis", stubCheck{})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	out := decode(t, rec)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, map[string]interface{}{"redis": "ok"}, out["checks"])

	h.AddHealthCheck("redis", stubCheck{err: errors.New("connection refused")})
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	out = decode(t, rec)
	assert.Equal(t, "degraded", out["status"])
	assert.Equal(t, map[string]interface{}{"redis": "connection refused"}, out["checks"])
}

type countingTracker struct {
	mu   sync.Mutex
	errs []error
}

func (c *countingTracker) CaptureError(_ context.Context, err error, _ map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
	return nil
}

func (c *countingTracker) CaptureMessage(context.Context, string, errors.Level, map[string]string) error {
	return nil
}

func (c *countingTracker) Flush(context.Context) error { return nil }

func TestPredictionFailureReportedOnce(t *testing.T) {
	tr := &countingTracker{}
	log := logger.Nop().WithErrorTracker(tr)

	failing := model.PredictorFunc(func(context.Context, *preprocess.Tensor) ([]emotion.Vector, error) {
		return nil, errors.New("onnxruntime: run failed")
	})
	pipeline := inference.New(failing, preprocess.New(preprocess.DefaultSize), nil, log)
	h := NewHandler(pipeline, &fakeEvaluator{}, ModelInfo{}, 1<<20, log)

	img := image.NewGray(image.Rect(0, 0, 48, 48))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	body, ct := multipartBody(t, "file", buf.Bytes())
	req := httptest.NewRequest(http.MethodPost, "/classify-emotion/", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ClassifyEmotion(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, tr.errs, 1)
	assert.True(t, errors.Is(tr.errs[0], errors.ErrPrediction))
}

func TestClientErrorsNotReported(t *testing.T) {
	tr := &countingTracker{}
	c := &fakeClassifier{err: errors.NewDomainError(errors.CodeDecodeFailure, "invalid image format", errors.ErrDecodeFailure)}
	h := NewHandler(c, &fakeEvaluator{}, ModelInfo{}, 1<<20, logger.Nop().WithErrorTracker(tr))

	body, ct := multipartBody(t, "file", []byte("not an image"))
	req := httptest.NewRequest(http.MethodPost, "/classify-emotion/", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ClassifyEmotion(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, tr.errs)
}
