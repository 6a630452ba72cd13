package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiErrorReportsEveryError(t *testing.T) {
	m := &MultiError{}
	require.NoError(t, m.ToError())

	m.Add(New("plain rejected"))
	assert.Equal(t, "plain rejected", m.Error())

	m.Add(nil)
	m.Add(Wrap(ErrDecodeFailure, "simple_cross_entropy rejected"))
	m.Add(New("weighted_focal_loss rejected"))

	err := m.ToError()
	require.Error(t, err)
	assert.Equal(t,
		"multiple errors (3): plain rejected; simple_cross_entropy rejected: image decode failed; weighted_focal_loss rejected",
		err.Error())
	assert.True(t, Is(err, ErrDecodeFailure))
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{NewDomainError(CodeNoImages, "x", ErrPrediction), CodeNoImages},
		{Wrap(ErrArtifactNotFound, "a.onnx"), CodeArtifactNotFound},
		{Join(ErrLoadFailure, New("boom")), CodeLoadFailure},
		{NewValidationError("EVAL_CHUNK_SIZE", "must be positive", 0), CodeInvalidInput},
		{New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, CodeOf(tt.err), tt.err.Error())
	}
}
