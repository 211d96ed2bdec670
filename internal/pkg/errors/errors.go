// Package errors provides custom error types and error handling utilities.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	// Client errors (4xx).
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidRequest = "INVALID_REQUEST"

	// Server errors (5xx).
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout     = "TIMEOUT"

	// Recommendation core errors.
	CodeInvalidFeatureRange     = "INVALID_FEATURE_RANGE"
	CodeEmbeddingDimMismatch    = "EMBEDDING_DIM_MISMATCH"
	CodeUpstreamUnavailable     = "UPSTREAM_UNAVAILABLE"
	CodeExperimentConfigInvalid = "EXPERIMENT_CONFIG_INVALID"
	CodeCrossVersionCompare     = "CROSS_VERSION_COMPARE"
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error, for the calling
// layer that shapes responses.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeInvalidRequest, CodeInvalidFeatureRange:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnavailable, CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// NotFoundError creates a not found error.
func NotFoundError(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// TimeoutError creates a timeout error for a specific operation.
func TimeoutError(operation string) *AppError {
	message := "operation timed out"
	if operation != "" {
		message = fmt.Sprintf("%s timed out", operation)
	}
	return New(CodeTimeout, message)
}

// InvalidFeatureRangeError reports a source value outside its declared
// numeric bound. It fails the single feature extraction, not the request.
func InvalidFeatureRangeError(field string, value float64) *AppError {
	return New(CodeInvalidFeatureRange,
		fmt.Sprintf("feature %s out of range: %v", field, value)).
		WithDetail("field", field)
}

// EmbeddingDimMismatchError reports a vector whose length does not match the
// configured embedding dimension.
func EmbeddingDimMismatchError(want, got int) *AppError {
	return New(CodeEmbeddingDimMismatch,
		fmt.Sprintf("embedding dimension mismatch: want %d, got %d", want, got))
}

// UpstreamUnavailableError reports an unreachable persistence or embedding
// collaborator.
func UpstreamUnavailableError(upstream string, err error) *AppError {
	return Wrap(CodeUpstreamUnavailable,
		fmt.Sprintf("upstream %s unavailable", upstream), err)
}

// ExperimentConfigInvalidError reports a malformed experiment definition.
// The assigner skips such experiments rather than failing the request.
func ExperimentConfigInvalidError(experimentID, reason string) *AppError {
	return New(CodeExperimentConfigInvalid,
		fmt.Sprintf("experiment %s invalid: %s", experimentID, reason)).
		WithDetail("experiment_id", experimentID)
}

// CrossVersionCompareError reports an attempt to compare embeddings produced
// by different encoder versions. The numeric result would be meaningless, so
// this is always a hard error.
func CrossVersionCompareError(a, b string) *AppError {
	return New(CodeCrossVersionCompare,
		fmt.Sprintf("cannot compare embeddings of version %q and %q", a, b))
}

// IsCode checks whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is a not found error.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsValidation checks if error is a validation error.
func IsValidation(err error) bool {
	return IsCode(err, CodeValidation)
}

// IsUpstreamUnavailable checks if error reports an unreachable collaborator.
func IsUpstreamUnavailable(err error) bool {
	return IsCode(err, CodeUpstreamUnavailable)
}

// IsCrossVersionCompare checks if error is a cross-version comparison error.
func IsCrossVersionCompare(err error) bool {
	return IsCode(err, CodeCrossVersionCompare)
}
