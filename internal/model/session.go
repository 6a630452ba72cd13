package model

import (
	"context"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/fer-inference/internal/emotion"
	"github.com/Brownie44l1/fer-inference/internal/preprocess"
	"github.com/Brownie44l1/fer-inference/pkg/errors"
)

var (
	envMu sync.Mutex
	envUp bool
)

// InitEnvironment loads the ONNX Runtime shared library once per process.
// An empty libraryPath keeps the library's platform default.
func InitEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envUp {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "failed to initialize ONNX environment")
	}
	envUp = true
	return nil
}

// DestroyEnvironment releases the ONNX Runtime environment.
func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !envUp {
		return nil
	}
	envUp = false
	return ort.DestroyEnvironment()
}

// Session is a Handle backed by an ONNX Runtime session. Input tensors are
// created per call so batches of any size share one session.
type Session struct {
	session *ort.DynamicAdvancedSession
	meta    Metadata

	// fixedBatch is the graph's static batch dimension, 0 when dynamic.
	fixedBatch int

	// serialize guards Run when the engine must not be entered concurrently.
	serialize bool
	mu        sync.Mutex
}

// Metadata returns the artifact description the session was opened with.
func (s *Session) Metadata() Metadata {
	return s.meta
}

// Predict runs the graph on batch. Graphs exported with a static batch of one
// are fed image by image.
func (s *Session) Predict(ctx context.Context, batch *preprocess.Tensor) ([]emotion.Vector, error) {
	if s.session == nil {
		return nil, errors.Wrap(errors.ErrPrediction, "model session is nil")
	}
	if batch == nil || batch.Batch == 0 {
		return nil, nil
	}
	if batch.Height*batch.Width != s.meta.InputSize() {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "expected %dx%d input, got %dx%d",
			s.meta.ImageSize, s.meta.ImageSize, batch.Height, batch.Width)
	}

	if s.fixedBatch == 0 || s.fixedBatch == batch.Batch {
		return s.run(ctx, batch.Data, batch.Batch)
	}
	if s.fixedBatch != 1 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "graph requires batch of %d, got %d", s.fixedBatch, batch.Batch)
	}

	out := make([]emotion.Vector, 0, batch.Batch)
	for i := 0; i < batch.Batch; i++ {
		rows, err := s.run(ctx, batch.Row(i), 1)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *Session) run(ctx context.Context, data []float32, n int) ([]emotion.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := int64(s.meta.ImageSize)
	input, err := ort.NewTensor(ort.NewShape(int64(n), size, size, 1), data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create input tensor")
	}
	defer input.Destroy()

	classes := len(s.meta.Classes)
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(n), int64(classes)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create output tensor")
	}
	defer output.Destroy()

	if s.serialize {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	if err := s.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, errors.Wrap(errors.ErrPrediction, err.Error())
	}

	flat := output.GetData()
	rows := make([]emotion.Vector, n)
	for i := range rows {
		rows[i] = emotion.FromFloat32(flat[i*classes : (i+1)*classes])
	}
	return rows, nil
}

// Close destroys the underlying session. The shared environment stays up
// until DestroyEnvironment.
func (s *Session) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
