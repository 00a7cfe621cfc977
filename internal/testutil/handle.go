package testutil

import (
	"sync/atomic"

	"github.com/roach88/scriptsched/internal/future"
	"github.com/roach88/scriptsched/internal/value"
)

// ManualAwaitable is a native async handle that tests complete by hand,
// from any goroutine.
//
// Thread-safety: all methods are safe for concurrent use.
type ManualAwaitable struct {
	f    *future.Future[any]
	subs atomic.Int64
}

// NewManualAwaitable creates a pending handle.
func NewManualAwaitable() *ManualAwaitable {
	return &ManualAwaitable{f: future.New[any]()}
}

// OnComplete implements value.Awaitable and counts subscriptions.
func (m *ManualAwaitable) OnComplete(fn func(result any, err error)) {
	m.subs.Add(1)
	m.f.OnComplete(fn)
}

// Complete resolves the handle with result.
func (m *ManualAwaitable) Complete(result any) error {
	return m.f.Resolve(result)
}

// Fail faults the handle with err.
func (m *ManualAwaitable) Fail(err error) error {
	return m.f.Reject(err)
}

// Subscribers returns how many times OnComplete was called.
func (m *ManualAwaitable) Subscribers() int64 {
	return m.subs.Load()
}

// Handle wraps m as a script value.
func (m *ManualAwaitable) Handle() *value.Handle {
	return value.NewHandle(m)
}
