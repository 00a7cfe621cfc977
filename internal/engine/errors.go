package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/scriptsched/internal/task"
	"github.com/roach88/scriptsched/internal/value"
)

// ArgumentError reports a bad argument passed to a builtin. Raised inside
// a task body, it faults that task only.
type ArgumentError struct {
	// Func is the builtin name.
	Func string

	// Index is the 1-based argument position.
	Index int

	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("bad argument #%d to '%s' (%s)", e.Index, e.Func, e.Message)
}

func badArgument(fn string, index int, expected string, got value.Value) *ArgumentError {
	return &ArgumentError{
		Func:    fn,
		Index:   index,
		Message: fmt.Sprintf("%s expected, got %s", expected, value.TypeName(got)),
	}
}

// IsArgumentError reports whether err is or wraps an *ArgumentError.
func IsArgumentError(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// IsShutdown reports whether err means the engine was closed.
func IsShutdown(err error) bool {
	return task.IsShutdown(err)
}

// IsInvalidCallable reports whether err was caused by a non-callable value.
func IsInvalidCallable(err error) bool {
	return task.IsInvalidCallable(err)
}

// IsScriptFault reports whether err is a fault raised by a task body.
func IsScriptFault(err error) bool {
	return task.IsScriptFault(err)
}
