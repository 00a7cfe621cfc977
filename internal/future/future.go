// Package future provides the single-assignment completion slot shared by
// scheduled tasks and native asynchronous handles.
package future

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAlreadySet is returned when a completed Future is completed again.
var ErrAlreadySet = errors.New("future: already completed")

// ErrNilFault is substituted when Reject is called with a nil error.
var ErrNilFault = errors.New("future: rejected with nil error")

// Status is the lifecycle state of a Future.
type Status int

const (
	// Pending means no result has been set yet.
	Pending Status = iota
	// Fulfilled means the Future completed with a value.
	Fulfilled
	// Faulted means the Future completed with an error.
	Faulted
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Future is a single-assignment result slot. It transitions from Pending to
// Fulfilled or Faulted exactly once and is terminal afterwards.
//
// Thread-safety: every method is safe for concurrent use. Callbacks run on
// the goroutine that completes the Future, outside the internal lock.
type Future[T any] struct {
	mu        sync.Mutex
	status    Status
	value     T
	err       error
	done      chan struct{}
	callbacks []func(T, error)
}

// New creates a pending Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future already fulfilled with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	_ = f.Resolve(v)
	return f
}

// Rejected returns a Future already faulted with err.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	_ = f.Reject(err)
	return f
}

// Resolve fulfills the Future with v.
// Returns ErrAlreadySet if the Future has already completed.
func (f *Future[T]) Resolve(v T) error {
	return f.complete(Fulfilled, v, nil)
}

// Reject faults the Future with err.
// Returns ErrAlreadySet if the Future has already completed.
func (f *Future[T]) Reject(err error) error {
	if err == nil {
		err = ErrNilFault
	}
	var zero T
	return f.complete(Faulted, zero, err)
}

func (f *Future[T]) complete(status Status, v T, err error) error {
	f.mu.Lock()
	if f.status != Pending {
		f.mu.Unlock()
		return ErrAlreadySet
	}
	f.status = status
	f.value = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	return nil
}

// Status returns the current state.
func (f *Future[T]) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Done returns a channel closed once the Future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Poll returns the result without blocking. ok is false while the Future
// is still pending.
func (f *Future[T]) Poll() (v T, ok bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.status != Pending, f.err
}

// Await blocks until the Future completes or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		v, _, err := f.Poll()
		return v, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then registers fn to run once the Future completes. If it has already
// completed, fn runs immediately on the calling goroutine.
func (f *Future[T]) Then(fn func(T, error)) {
	f.mu.Lock()
	if f.status == Pending {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	fn(v, err)
}

// OnComplete is the untyped form of Then. It lets any Future be wrapped
// as a native async handle.
func (f *Future[T]) OnComplete(fn func(result any, err error)) {
	f.Then(func(v T, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(any(v), nil)
	})
}

// After returns a timer handle that completes with no payload once d has
// elapsed.
func After(d time.Duration) *Future[any] {
	f := New[any]()
	time.AfterFunc(d, func() {
		_ = f.Resolve(nil)
	})
	return f
}
