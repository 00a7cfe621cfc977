package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrShutdown is returned by Post once the executor has been closed.
	ErrShutdown = errors.New("executor: scheduler shut down")

	// ErrAlreadyRunning is returned when Run is called a second time.
	ErrAlreadyRunning = errors.New("executor: run already called")

	// ErrNilCallback is returned when posting a work item without a callback.
	ErrNilCallback = errors.New("executor: work item has no callback")
)

// FatalError is a scheduler invariant violation such as resuming a
// coroutine off the affine thread. It is raised as a panic and never
// recovered by the executor loop.
type FatalError struct {
	Op      string
	Message string
}

func (e *FatalError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("scheduler fatal: %s: %s", e.Op, e.Message)
	}
	return "scheduler fatal: " + e.Message
}

// Fatalf panics with a *FatalError.
func Fatalf(op, format string, args ...any) {
	panic(&FatalError{Op: op, Message: fmt.Sprintf(format, args...)})
}

// IsShutdown reports whether err is or wraps ErrShutdown.
func IsShutdown(err error) bool {
	return errors.Is(err, ErrShutdown)
}
