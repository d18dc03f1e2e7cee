package service

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested file, process, version or project was not found.
var ErrNotFound = errors.New("not found")

// ErrAccessDenied indicates a path resolved outside the workspace root.
var ErrAccessDenied = errors.New("access denied: path outside workspace")

// ErrInvalidState indicates an operation needs a resource that is not active,
// for example executing a command while no terminal is live.
var ErrInvalidState = errors.New("invalid state")

// ValidationError represents a bad-request condition (HTTP 400).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError represents a conflict condition (HTTP 409).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// UpstreamError reports a failing external step (the dependency install after
// a restore). It is surfaced to callers as a warning, the operation that
// produced it still completed.
type UpstreamError struct {
	Step     string
	ExitCode int
	Output   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Step, e.ExitCode)
}

// NotFoundf wraps ErrNotFound with context.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
