package loader

import (
	"context"
	"math"
	"math/rand"

	"github.com/Brownie44l1/fer-inference/internal/model"
	"github.com/Brownie44l1/fer-inference/internal/preprocess"
	"github.com/Brownie44l1/fer-inference/pkg/errors"
)

// VerifyTolerance is how far the probe output may sum away from 1.
const VerifyTolerance = 0.01

// ErrVerification indicates the loaded graph does not behave like a 6-way
// softmax classifier.
var ErrVerification = errors.New("model verification failed")

// Verify feeds one random image in [-1,1] through p and checks the output is a
// single row of classes probabilities summing to 1±VerifyTolerance. A failure
// signals an artifact/graph mismatch; callers decide whether it is fatal.
func Verify(ctx context.Context, p model.Predictor, size, classes int, seed int64) error {
	r := rand.New(rand.NewSource(seed))
	probe := preprocess.NewTensor(1, size, size)
	for i := range probe.Data {
		probe.Data[i] = float32(r.Float64()*2 - 1)
	}

	rows, err := p.Predict(ctx, probe)
	if err != nil {
		return errors.Join(ErrVerification, err)
	}
	if len(rows) != 1 || len(rows[0]) != classes {
		width := 0
		if len(rows) > 0 {
			width = len(rows[0])
		}
		return errors.Wrapf(ErrVerification, "output shape (%d,%d), want (1,%d)", len(rows), width, classes)
	}
	if sum := rows[0].Sum(); math.Abs(sum-1) > VerifyTolerance {
		return errors.Wrapf(ErrVerification, "output sums to %.4f", sum)
	}
	return nil
}
