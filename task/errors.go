package task

import (
	"errors"
	"fmt"
)

// Sentinel errors for the task package.
var (
	// ErrNotDone is returned by Outcome before the computation has finished.
	ErrNotDone = errors.New("task is not done")

	// ErrPanicked is returned when the task function panics.
	ErrPanicked = errors.New("task panicked")
)

// PanicError wraps a panic recovered from a task function as an error.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return "task panic: " + stringify(e.Value)
}

// Is allows errors.Is to match PanicError with ErrPanicked.
func (e *PanicError) Is(target error) bool {
	return target == ErrPanicked
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case error:
		return x.Error()
	default:
		return fmt.Sprintf("%v", x)
	}
}
