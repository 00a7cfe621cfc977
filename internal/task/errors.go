package task

import (
	"errors"
	"fmt"

	"github.com/roach88/scriptsched/internal/coroutine"
	"github.com/roach88/scriptsched/internal/executor"
)

// RuntimeError represents a scheduling failure that is not a script fault.
//
// Script faults are reported through a task's completion unchanged, as
// the *coroutine.ScriptError raised by the body.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// TaskID identifies the affected task, if any.
	TaskID string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidCallable indicates a task was requested for a
	// non-callable value.
	ErrCodeInvalidCallable RuntimeErrorCode = "INVALID_CALLABLE"

	// ErrCodeShutdown indicates the executor was closed while the task
	// still needed to post work.
	ErrCodeShutdown RuntimeErrorCode = "SHUTDOWN"

	// ErrCodeResume indicates the coroutine primitive refused a resume.
	ErrCodeResume RuntimeErrorCode = "RESUME_FAILED"

	// ErrCodePanic indicates scheduler-side code panicked while resuming
	// the task, outside the script body.
	ErrCodePanic RuntimeErrorCode = "RESUME_PANIC"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.TaskID != "" {
		msg = fmt.Sprintf("%s (task=%s)", msg, e.TaskID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsShutdown reports whether err means the scheduler was shut down.
func IsShutdown(err error) bool {
	return executor.IsShutdown(err)
}

// IsScriptFault reports whether err is a fault raised by a script body.
func IsScriptFault(err error) bool {
	return coroutine.IsScriptError(err)
}

// IsInvalidCallable reports whether err was caused by a non-callable value.
func IsInvalidCallable(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidCallable
	}
	return errors.Is(err, coroutine.ErrInvalidArgument)
}

func newShutdownError(taskID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeShutdown,
		Message: "cannot post continuation",
		TaskID:  taskID,
		Err:     err,
	}
}
