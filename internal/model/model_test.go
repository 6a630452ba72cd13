package model

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fer-inference/internal/emotion"
	"github.com/Brownie44l1/fer-inference/internal/losses"
	"github.com/Brownie44l1/fer-inference/internal/preprocess"
	"github.com/Brownie44l1/fer-inference/pkg/errors"
)

func TestParseMetadataDefaults(t *testing.T) {
	meta, err := ParseMetadata([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, emotion.Labels[:], meta.Classes)
	assert.Equal(t, 48, meta.ImageSize)
	assert.Equal(t, []int64{-1, 48, 48, 1}, meta.InputShape)
	assert.Equal(t, []int64{-1, 6}, meta.OutputShape)
	assert.Equal(t, 48*48, meta.InputSize())

	_, err = ParseMetadata([]byte(`{"classes":`))
	assert.Error(t, err)
}

func TestParseMetadataTrainingConfig(t *testing.T) {
	doc := `{
		"input_name": "input_1",
		"output_name": "dense_2",
		"custom_objects": ["WeightedFocalLoss"],
		"training_config": {"loss": {"class_name": "WeightedFocalLoss", "config": {"gamma": 2.5}}}
	}`
	meta, err := ParseMetadata([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "input_1", meta.InputName)
	assert.Equal(t, []string{"WeightedFocalLoss"}, meta.CustomObjects)
	require.NotNil(t, meta.TrainingConfig)
	assert.Equal(t, "WeightedFocalLoss", meta.TrainingConfig.Loss.ClassName)
}

func TestResolve(t *testing.T) {
	focalArtifact := Metadata{
		CustomObjects: []string{losses.ObjectWeightedFocalLoss},
		TrainingConfig: &TrainingConfig{Loss: &SerializedObject{
			ClassName: losses.ObjectWeightedFocalLoss,
			Config:    json.RawMessage(`{"gamma":3}`),
		}},
	}
	lossArtifact := Metadata{
		TrainingConfig: &TrainingConfig{Loss: &SerializedObject{ClassName: losses.ObjectLoss}},
	}

	focalOnly := losses.NewRegistry().Register(losses.ObjectWeightedFocalLoss, losses.WeightedFocalLossFromConfig)
	simpleOnly := losses.NewRegistry().Register(losses.ObjectLoss, losses.NewSimpleCrossEntropy)

	tests := []struct {
		name     string
		meta     Metadata
		opts     LoadOptions
		wantErr  bool
		wantLoss string
	}{
		{"plain artifact plain load", Metadata{}, LoadOptions{}, false, ""},
		{"custom object missing", focalArtifact, LoadOptions{}, true, ""},
		{"custom object supplied, not compiled", focalArtifact, LoadOptions{Objects: focalOnly}, false, ""},
		{"custom object supplied, compiled", focalArtifact, LoadOptions{Compile: true, Objects: focalOnly}, false, "weighted_focal_loss"},
		{"compile without registry entry", lossArtifact, LoadOptions{Compile: true}, true, ""},
		{"compile with generic loss", lossArtifact, LoadOptions{Compile: true, Objects: simpleOnly}, false, "simple_cross_entropy"},
		{"not compiled ignores training config", lossArtifact, LoadOptions{}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loss, err := Resolve(tt.meta, tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, losses.ErrUnknownObject))
				return
			}
			require.NoError(t, err)
			if tt.wantLoss == "" {
				assert.Nil(t, loss)
				return
			}
			require.NotNil(t, loss)
			assert.Equal(t, tt.wantLoss, loss.Name())
		})
	}
}

func TestResolveCompiledFocalConfig(t *testing.T) {
	meta := Metadata{TrainingConfig: &TrainingConfig{Loss: &SerializedObject{
		ClassName: losses.ObjectWeightedFocalLoss,
		Config:    json.RawMessage(`{"gamma":3}`),
	}}}
	loss, err := Resolve(meta, LoadOptions{Compile: true, Objects: losses.Default()})
	require.NoError(t, err)

	focal := loss.(*losses.WeightedFocalLoss)
	assert.Equal(t, 3.0, focal.Gamma)
	assert.Equal(t, losses.DefaultAlpha, focal.Alpha)
}

func TestSidecarPath(t *testing.T) {
	d := &ONNXDeserializer{}
	assert.Equal(t, "/models/fer.json", d.SidecarPath("/models/fer.onnx"))

	d.MetadataPath = "/etc/fer/meta.json"
	assert.Equal(t, "/etc/fer/meta.json", d.SidecarPath("/models/fer.onnx"))
}

func TestReadMetadata(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "fer.onnx")

	d := &ONNXDeserializer{}
	meta, err := d.readMetadata(artifact)
	require.NoError(t, err, "missing default sidecar falls back to defaults")
	assert.Equal(t, 48, meta.ImageSize)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fer.json"), []byte(`{"image_size":64}`), 0o644))
	meta, err = d.readMetadata(artifact)
	require.NoError(t, err)
	assert.Equal(t, 64, meta.ImageSize)

	d.MetadataPath = filepath.Join(dir, "absent.json")
	_, err = d.readMetadata(artifact)
	assert.Error(t, err, "explicit sidecar must exist")
}

func TestDeserializeHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&ONNXDeserializer{}).Deserialize(ctx, "/nonexistent.onnx", LoadOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionWithoutGraph(t *testing.T) {
	s := &Session{meta: Metadata{}.withDefaults()}
	_, err := s.Predict(context.Background(), preprocess.NewTensor(1, 48, 48))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPrediction))
	assert.NoError(t, s.Close())
}

func TestPredictorFunc(t *testing.T) {
	var p Predictor = PredictorFunc(func(_ context.Context, batch *preprocess.Tensor) ([]emotion.Vector, error) {
		return make([]emotion.Vector, batch.Batch), nil
	})
	rows, err := p.Predict(context.Background(), preprocess.NewTensor(3, 48, 48))
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

// Runs against a real artifact when one is provided.
func TestONNXSession(t *testing.T) {
	modelPath := os.Getenv("FER_TEST_MODEL")
	if modelPath == "" {
		t.Skip("FER_TEST_MODEL not set, skipping ONNX session test")
	}

	d := &ONNXDeserializer{LibraryPath: os.Getenv("ONNXRUNTIME_LIB"), SerializePredict: true}
	h, err := d.Deserialize(context.Background(), modelPath, LoadOptions{Objects: losses.Default()})
	require.NoError(t, err)
	defer h.Close()

	rows, err := h.Predict(context.Background(), preprocess.NewTensor(2, 48, 48))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Len(t, row, emotion.NumClasses)
		assert.InDelta(t, 1.0, row.Sum(), 0.01)
	}
}
