package executor

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync/atomic"
)

// DefaultQueueCapacity is the initial capacity of the work queue.
const DefaultQueueCapacity = 64

// Observer receives notifications about work items.
// Posted may be called from any goroutine; Executed is called on the
// affine thread after the callback returns (or panics).
type Observer interface {
	Posted(item WorkItem)
	Executed(item WorkItem)
}

// Executor owns the affine thread: the one goroutine on which work items,
// and therefore coroutine resumes, are allowed to run.
//
// Thread-safety model:
//   - Post(), PostFunc(), Close(), IsAffine(), Stats(): safe from any goroutine
//   - Run(): must be called exactly once, on the goroutine that becomes affine
//
// INVARIANTS:
//   - Items execute in strict post order (FIFO), one at a time
//   - A panicking item never stops the loop, except a *FatalError
type Executor struct {
	queue      *workQueue
	logger     *slog.Logger
	observer   Observer
	lockThread bool

	loopID   atomic.Uint64
	delegate atomic.Uint64
	started  atomic.Bool
	done     chan struct{}
	posted   atomic.Int64
	executed atomic.Int64
	panics   atomic.Int64
}

// Option allows configuration of executor parameters.
type Option func(*config)

type config struct {
	logger     *slog.Logger
	observer   Observer
	capacity   int
	lockThread bool
}

// WithLogger sets the logger used for loop diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithObserver installs an observer for posted and executed items.
func WithObserver(o Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

// WithQueueCapacity sets the initial queue capacity.
//
// Default: 64 (DefaultQueueCapacity)
func WithQueueCapacity(n int) Option {
	return func(c *config) {
		c.capacity = n
	}
}

// WithLockOSThread pins the loop goroutine started by Start to one OS thread.
func WithLockOSThread(lock bool) Option {
	return func(c *config) {
		c.lockThread = lock
	}
}

// New creates an idle executor. Call Start, or call Run on a goroutine of
// your choosing, to begin processing.
func New(opts ...Option) *Executor {
	cfg := config{capacity: DefaultQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	return &Executor{
		queue:      newWorkQueue(cfg.capacity),
		logger:     cfg.logger,
		observer:   cfg.observer,
		lockThread: cfg.lockThread,
		done:       make(chan struct{}),
	}
}

// Start launches the dedicated loop goroutine. It runs until Close.
func (e *Executor) Start() {
	go func() {
		if e.lockThread {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		if err := e.Run(context.Background()); err != nil {
			e.logger.Error("executor loop exited", "error", err)
		}
	}()
}

// Post appends item to the queue.
// Thread-safe: may be called from any goroutine. Never blocks.
//
// Returns ErrShutdown if the executor has been closed.
func (e *Executor) Post(item WorkItem) error {
	if item.Callback == nil {
		return ErrNilCallback
	}
	item, ok := e.queue.Enqueue(item)
	if !ok {
		return ErrShutdown
	}
	e.posted.Add(1)
	if e.observer != nil {
		e.observer.Posted(item)
	}
	return nil
}

// PostFunc posts a payload-free callback.
func (e *Executor) PostFunc(fn func()) error {
	if fn == nil {
		return ErrNilCallback
	}
	return e.Post(WorkItem{Callback: func(any) { fn() }})
}

// Run makes the calling goroutine the affine thread and processes items
// until the executor is closed or ctx is cancelled.
//
// The blocking wait on an empty queue is the only intended blocking point.
//
// ERROR HANDLING: a panic escaping a work item is logged and the loop
// continues with the next item. A *FatalError is re-raised.
func (e *Executor) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.loopID.Store(goroutineID())
	defer close(e.done)

	e.logger.Debug("executor starting", "goroutine", e.loopID.Load())

	for {
		item, ok := e.queue.TryDequeue()
		if ok {
			e.execute(item)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Debug("executor stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue; drain before leaving.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Debug("executor stopping: queue closed")
				return nil
			}
		}
	}
}

// execute runs one item. Called only from Run.
func (e *Executor) execute(item WorkItem) {
	defer func() {
		e.executed.Add(1)
		if e.observer != nil {
			e.observer.Executed(item)
		}
	}()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if fe, ok := r.(*FatalError); ok {
			panic(fe)
		}
		e.panics.Add(1)
		e.logger.Error("work item panicked",
			"seq", item.Seq,
			"panic", r,
			"stack", string(debug.Stack()),
		)
	}()

	item.Callback(item.Payload)
}

// Close stops accepting posts. Items already queued still run, then Run
// returns. Safe to call more than once.
func (e *Executor) Close() {
	e.queue.Close()
}

// Done returns a channel closed when Run has returned.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

// Started reports whether Run has been entered.
func (e *Executor) Started() bool {
	return e.started.Load()
}

// IsAffine reports whether the caller is running on the affine thread,
// or on a goroutine the loop has handed control to (see Adopt).
func (e *Executor) IsAffine() bool {
	id := e.loopID.Load()
	if id == 0 {
		return false
	}
	gid := goroutineID()
	return gid == id || gid == e.delegate.Load()
}

// Adopt marks the calling goroutine as running on behalf of the loop.
//
// A coroutine body runs on its own goroutine while the loop is blocked in
// Resume waiting for it. The body calls Adopt when it takes control and
// Release before handing it back, so code running inside a work item is
// affine whichever goroutine carries it. At most one goroutine is adopted
// at a time.
func (e *Executor) Adopt() {
	e.delegate.Store(goroutineID())
}

// Release undoes Adopt.
func (e *Executor) Release() {
	e.delegate.Store(0)
}

// AssertAffine panics with a *FatalError when called off the affine thread.
func (e *Executor) AssertAffine(op string) {
	if !e.IsAffine() {
		Fatalf(op, "called off the affine thread (goroutine %d, loop %d)", goroutineID(), e.loopID.Load())
	}
}

// Stats is a snapshot of executor counters.
type Stats struct {
	Posted   int64
	Executed int64
	Panics   int64
	Pending  int
}

// Stats returns current counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Posted:   e.posted.Load(),
		Executed: e.executed.Load(),
		Panics:   e.panics.Load(),
		Pending:  e.queue.Len(),
	}
}

// goroutineID returns the current goroutine's ID.
// Parsed from the runtime stack header "goroutine NNN [".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
