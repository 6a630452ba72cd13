package model

import (
	"encoding/json"

	"github.com/Brownie44l1/fer-inference/internal/emotion"
	"github.com/Brownie44l1/fer-inference/internal/preprocess"
)

// Metadata describes an artifact. It is read from a JSON sidecar next to the
// ONNX graph; any field left empty is filled from the graph or from defaults.
type Metadata struct {
	InputName      string          `json:"input_name,omitempty"`
	OutputName     string          `json:"output_name,omitempty"`
	InputShape     []int64         `json:"input_shape,omitempty"`
	OutputShape    []int64         `json:"output_shape,omitempty"`
	Classes        []string        `json:"classes,omitempty"`
	ImageSize      int             `json:"image_size,omitempty"`
	CustomObjects  []string        `json:"custom_objects,omitempty"`
	TrainingConfig *TrainingConfig `json:"training_config,omitempty"`
}

// TrainingConfig is what a compiled graph remembers about its training setup.
type TrainingConfig struct {
	Loss *SerializedObject `json:"loss,omitempty"`
}

// SerializedObject references a named object and its exported configuration.
type SerializedObject struct {
	ClassName string          `json:"class_name"`
	Config    json.RawMessage `json:"config,omitempty"`
}

func (m Metadata) withDefaults() Metadata {
	if len(m.Classes) == 0 {
		m.Classes = emotion.Labels[:]
	}
	if m.ImageSize <= 0 {
		m.ImageSize = preprocess.DefaultSize
	}
	if len(m.InputShape) == 0 {
		m.InputShape = []int64{-1, int64(m.ImageSize), int64(m.ImageSize), 1}
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{-1, int64(len(m.Classes))}
	}
	return m
}

// InputSize is the number of floats in one input image.
func (m Metadata) InputSize() int {
	return m.ImageSize * m.ImageSize
}

// PredictionRequest is a raw, already normalized input tensor.
type PredictionRequest struct {
	Image []float32 `json:"image"`
}
