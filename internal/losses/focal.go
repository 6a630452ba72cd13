package losses

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/Brownie44l1/fer-inference/internal/emotion"
	"github.com/Brownie44l1/fer-inference/pkg/errors"
)

// Focal loss defaults applied to any field missing from a serialized config.
const (
	DefaultGamma = 2.0
	DefaultAlpha = 0.25

	focalName = "weighted_focal_loss"
)

// ClassWeights maps class index to a positive weight.
type ClassWeights map[int]float64

// DefaultClassWeights are the approximate class weights the model was trained with.
func DefaultClassWeights() ClassWeights {
	return ClassWeights{
		emotion.Angry:    1.26,
		emotion.Fear:     1.18,
		emotion.Happy:    0.57,
		emotion.Sad:      0.97,
		emotion.Surprise: 1.66,
		emotion.Neutral:  1.02,
	}
}

// WeightedFocalLoss down-weights easy examples and scales each sample by the
// weight of its true class. Alpha is carried for serialization only.
type WeightedFocalLoss struct {
	ClassWeights ClassWeights
	Gamma        float64
	Alpha        float64
}

// NewWeightedFocalLoss builds a focal loss with the given weights and the
// default gamma and alpha.
func NewWeightedFocalLoss(weights ClassWeights) *WeightedFocalLoss {
	return &WeightedFocalLoss{ClassWeights: weights, Gamma: DefaultGamma, Alpha: DefaultAlpha}
}

// focalConfig is the serialized form. Class weight keys are class indices
// ("0".."5"); label names are accepted on input.
type focalConfig struct {
	Name         string             `json:"name,omitempty"`
	Gamma        *float64           `json:"gamma,omitempty"`
	Alpha        *float64           `json:"alpha,omitempty"`
	ClassWeights map[string]float64 `json:"class_weights_dict,omitempty"`
}

func (l *WeightedFocalLoss) Name() string { return focalName }

// Config exports gamma, alpha and the class-weight mapping.
func (l *WeightedFocalLoss) Config() json.RawMessage {
	gamma, alpha := l.Gamma, l.Alpha
	cfg := focalConfig{
		Name:         focalName,
		Gamma:        &gamma,
		Alpha:        &alpha,
		ClassWeights: make(map[string]float64, len(l.ClassWeights)),
	}
	for idx, w := range l.ClassWeights {
		cfg.ClassWeights[strconv.Itoa(idx)] = w
	}
	data, _ := json.Marshal(cfg)
	return data
}

// WeightedFocalLossFromConfig reconstructs a focal loss from an exported
// configuration. Missing fields take their defaults; an empty or null raw
// config yields the default loss.
func WeightedFocalLossFromConfig(raw json.RawMessage) (Loss, error) {
	var cfg focalConfig
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, errors.Wrap(err, "decode weighted focal loss config")
		}
	}

	l := NewWeightedFocalLoss(DefaultClassWeights())
	if cfg.Gamma != nil {
		l.Gamma = *cfg.Gamma
	}
	if cfg.Alpha != nil {
		l.Alpha = *cfg.Alpha
	}
	if cfg.ClassWeights != nil {
		weights, err := parseClassWeights(cfg.ClassWeights)
		if err != nil {
			return nil, err
		}
		l.ClassWeights = weights
	}
	return l, nil
}

func parseClassWeights(raw map[string]float64) (ClassWeights, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	weights := make(ClassWeights, len(raw))
	for _, k := range keys {
		idx, err := strconv.Atoi(k)
		if err != nil {
			var ok bool
			if idx, ok = emotion.Index(k); !ok {
				return nil, fmt.Errorf("class weight key %q is neither an index nor a label", k)
			}
		}
		if raw[k] <= 0 {
			return nil, fmt.Errorf("class weight for %q must be positive, got %v", k, raw[k])
		}
		weights[idx] = raw[k]
	}
	return weights, nil
}

// Compute evaluates
//
//	mean(sum(w[argmax(y_true)] * (1-y_pred)^gamma * y_true * -y_true*log(clip(y_pred, eps, 1-eps))))
//
// A true class with no weight contributes weight 0.
func (l *WeightedFocalLoss) Compute(yTrue, yPred [][]float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var total float64
	for i := range yTrue {
		weight := l.ClassWeights[argmax(yTrue[i])]
		var sample float64
		for j := range yTrue[i] {
			pred := clip(yPred[i][j], Epsilon, 1-Epsilon)
			focal := math.Pow(1-pred, l.Gamma) * yTrue[i][j]
			crossEntropy := -yTrue[i][j] * math.Log(pred)
			sample += weight * focal * crossEntropy
		}
		total += sample
	}
	return total / float64(len(yTrue))
}
