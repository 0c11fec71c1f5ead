package services

import (
	"errors"
	"fmt"
)

// Caller-recoverable failures of the workflow operations. All of these map to
// rejected requests; none of them crash the process.
var (
	// ErrPermissionDenied means the actor lacks a required capability.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrGuardNotSatisfied means a business rule blocks the operation; the
	// submission is left unchanged.
	ErrGuardNotSatisfied = errors.New("guard not satisfied")

	// ErrDuplicateReview means the reviewer already holds a finalized review
	// for this submission and stage.
	ErrDuplicateReview = errors.New("duplicate review")
)

// ConfigurationError indicates a workflow or phase misconfiguration. It is a
// deployment bug, not a runtime condition: it must be surfaced at startup or
// on first use, never caught and ignored.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("workflow configuration error: %s", e.Reason)
}

func newConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
