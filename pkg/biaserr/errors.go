// Package biaserr defines the error taxonomy shared by the analysis engine,
// its caches and its configuration layer.
package biaserr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotInitialized is returned by engine methods called before Open or after Close.
var ErrNotInitialized = errors.New("engine not initialized")

// ErrNotFound is returned when a cached report or analysis does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports a malformed subject, request or input value.
// It is never retried automatically.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", strings.Join(e.Fields, ", "), e.Reason)
}

// Validation builds a ValidationError.
func Validation(reason string, fields ...string) error {
	return &ValidationError{Fields: fields, Reason: reason}
}

// UpstreamAnalysisError wraps a failure of the external analysis service.
type UpstreamAnalysisError struct {
	Layer     string
	SubjectID string
	Err       error
}

func (e *UpstreamAnalysisError) Error() string {
	return fmt.Sprintf("%s analysis failed for subject %s: %v", e.Layer, e.SubjectID, e.Err)
}

func (e *UpstreamAnalysisError) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the failed call.
func (e *UpstreamAnalysisError) Retryable() bool { return true }

// ConfigurationError reports a violated configuration invariant. It is fatal
// until the configuration is fixed.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Setting, e.Reason)
}

// Configuration builds a ConfigurationError.
func Configuration(setting, format string, args ...any) error {
	return &ConfigurationError{Setting: setting, Reason: fmt.Sprintf(format, args...)}
}

// InsufficientDataError reports that a computation lacks the minimum input it needs.
type InsufficientDataError struct {
	What string
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need at least %d, got %d", e.What, e.Need, e.Got)
}

// IsRetryable reports whether err, or anything it wraps, may be retried.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
