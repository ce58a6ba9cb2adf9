package tools

import (
	"errors"
	"fmt"
)

// ErrDuplicateTool is returned when a tool name is registered twice.
var ErrDuplicateTool = errors.New("tool already registered")

// ValidationError reports arguments that do not satisfy a tool's schema.
// It is fed back to the model as a tool result, never raised to the caller.
type ValidationError struct {
	Tool   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

// InvocationError wraps a backend failure raised while running a tool.
type InvocationError struct {
	Tool string
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// UnavailableError is returned when the model asks for a tool that is not
// registered.
type UnavailableError struct {
	Tool string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("tool %q is not available", e.Tool)
}
