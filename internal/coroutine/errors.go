package coroutine

import (
	"errors"
	"fmt"
)

// ScriptError is a runtime fault raised inside a coroutine body, either as
// a returned error or as a panic.
type ScriptError struct {
	// Function is the name of the faulting function, if known.
	Function string

	// Err is the underlying error. For panics with a non-error value it
	// wraps the formatted panic value.
	Err error

	// Panic holds the recovered panic value, nil for returned errors.
	Panic any

	// Stack is the body goroutine's stack at the time of a panic.
	Stack []byte
}

func newPanicError(fn string, r any, stack []byte) *ScriptError {
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%v", r)
	}
	return &ScriptError{Function: fn, Err: err, Panic: r, Stack: stack}
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	kind := "script error"
	if e.Panic != nil {
		kind = "script panic"
	}
	if e.Function != "" {
		return fmt.Sprintf("%s in %s: %v", kind, e.Function, e.Err)
	}
	return fmt.Sprintf("%s: %v", kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ScriptError) Unwrap() error {
	return e.Err
}

// IsScriptError reports whether err is or wraps a *ScriptError.
func IsScriptError(err error) bool {
	var se *ScriptError
	return errors.As(err, &se)
}
