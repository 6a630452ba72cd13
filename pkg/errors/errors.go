package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Startup errors. Both abort the process: without a model there is no service.
var (
	// ErrArtifactNotFound indicates no configured model artifact exists on disk
	ErrArtifactNotFound = errors.New("model artifact not found")

	// ErrLoadFailure indicates every load strategy failed for every artifact
	ErrLoadFailure = errors.New("all model loading strategies failed")
)

// Request and evaluation errors. These never crash the serving process.
var (
	// ErrDecodeFailure indicates an image could not be decoded
	ErrDecodeFailure = errors.New("image decode failed")

	// ErrPrediction indicates the model failed to produce probabilities
	ErrPrediction = errors.New("prediction failed")

	// ErrCorpusMissing indicates the evaluation directory does not exist
	ErrCorpusMissing = errors.New("test directory not found")

	// ErrNoImages indicates an evaluation run processed zero images
	ErrNoImages = errors.New("no images were successfully processed")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates the caller exceeded the request rate
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")
)

// Error codes carried by DomainError
const (
	CodeArtifactNotFound = "artifact_not_found"
	CodeLoadFailure      = "load_failure"
	CodeDecodeFailure    = "decode_failure"
	CodePrediction       = "prediction_failure"
	CodeCorpusMissing    = "corpus_missing"
	CodeNoImages         = "no_images"
	CodeInvalidInput     = "invalid_input"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal"
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf maps err to the code of the first sentinel it wraps.
// A DomainError anywhere in the chain wins.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	switch {
	case errors.Is(err, ErrArtifactNotFound):
		return CodeArtifactNotFound
	case errors.Is(err, ErrLoadFailure):
		return CodeLoadFailure
	case errors.Is(err, ErrDecodeFailure):
		return CodeDecodeFailure
	case errors.Is(err, ErrPrediction):
		return CodePrediction
	case errors.Is(err, ErrCorpusMissing):
		return CodeCorpusMissing
	case errors.Is(err, ErrNoImages):
		return CodeNoImages
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeInternal
	}
}

// ValidationError reports a configuration or input field that failed checks
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap lets ValidationError match ErrInvalidInput
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// MultiError wraps multiple errors
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	msgs := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("multiple errors (%d): %s", len(m.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes every collected error to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps all the given errors
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
