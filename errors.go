package accesskit

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification with errors.Is.
var (
	// ErrConfiguration marks a programming/config bug: unknown policy id,
	// unknown tab or entity type, malformed requirement tree. Never treated
	// as a deny.
	ErrConfiguration = errors.New("configuration error")

	// ErrResolution marks an infrastructure failure (permission store or
	// ownership lookup). The whole batch fails closed.
	ErrResolution = errors.New("resolution failure")

	// ErrNotAssigned is returned when revoking a role or permission the
	// target does not hold.
	ErrNotAssigned = errors.New("not assigned")

	// ErrRoleNotFound is returned by role stores for unknown role ids.
	ErrRoleNotFound = errors.New("role not found")
)

// ConfigurationError carries the offending identifier alongside ErrConfiguration.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Detail }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Detail: fmt.Sprintf(format, args...)}
}

// ResolutionFailure wraps the underlying store/resolver error for a failed batch.
type ResolutionFailure struct {
	Op    string // "permissions", "ownership"
	Cause error
}

func (e *ResolutionFailure) Error() string {
	return fmt.Sprintf("resolution failure during %s: %v", e.Op, e.Cause)
}

func (e *ResolutionFailure) Unwrap() error { return e.Cause }

func (e *ResolutionFailure) Is(target error) bool { return target == ErrResolution }
