package lua

import (
	"errors"
	"fmt"
)

// Errors for script operations.
var (
	// ErrClosed is returned when operating on a closed script.
	ErrClosed = errors.New("lua script is closed")

	// ErrNotFunction is returned when the named global is missing or not
	// callable.
	ErrNotFunction = errors.New("not a lua function")

	// ErrTooManyReturns is returned when a handler function returns more
	// than one value.
	ErrTooManyReturns = errors.New("lua function returned multiple values")
)

// ScriptError wraps a Lua runtime failure with the function that raised
// it.
type ScriptError struct {
	// Fn is the global function being called.
	Fn string
	// Err is the underlying interpreter error.
	Err error
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return fmt.Sprintf("lua %s: %v", e.Fn, e.Err)
}

// Unwrap returns the interpreter error.
func (e *ScriptError) Unwrap() error {
	return e.Err
}
