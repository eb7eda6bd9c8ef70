package program

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("program not found")
	// ErrTerminated is returned by Process.Wait after Terminate or context cancellation.
	ErrTerminated = errors.New("terminated")
	// ErrCycle is returned when a source assignment would loop a pipeline back on itself.
	ErrCycle = errors.New("pipeline cycle")
)

// NotFoundError names the requested spec that matched nothing.
type NotFoundError struct {
	Role      Role
	Spec      string
	MediaType string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("no %s matching %q", e.Role, e.Spec)
	if e.MediaType != "" {
		msg += fmt.Sprintf(" for media type %q", e.MediaType)
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// SpawnError wraps an OS-level failure to launch an executable.
type SpawnError struct {
	Program string
	Path    string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s (%s): %v", e.Program, e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ExitError records a non-zero exit of the observed process.
type ExitError struct {
	Program string
	Code    int
	Stderr  string // trailing stderr lines when captured
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Program, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}
