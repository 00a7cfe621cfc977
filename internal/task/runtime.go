package task

import (
	"fmt"
	"log/slog"

	"github.com/roach88/scriptsched/internal/coroutine"
	"github.com/roach88/scriptsched/internal/executor"
	"github.com/roach88/scriptsched/internal/future"
	"github.com/roach88/scriptsched/internal/value"
)

// Scheduler is the executor surface a task needs: posting work, checking
// thread affinity, and lending that affinity to a coroutine body while it
// holds control. *executor.Executor implements it.
type Scheduler interface {
	Post(item executor.WorkItem) error
	AssertAffine(op string)
	Adopt()
	Release()
}

// Runtime creates tasks that share one scheduler, ID source, tracer and
// logger. Nested tasks inherit the runtime of the task that spawned them.
//
// Thread-safety: Runtime is immutable after construction and safe for
// concurrent use.
type Runtime struct {
	sched     Scheduler
	ids       IDGenerator
	tracer    Tracer
	logger    *slog.Logger
	autoYield int
}

// Option allows configuration of runtime parameters.
type Option func(*Runtime)

// WithIDGenerator sets the task ID source.
//
// Default: UUIDv7Generator
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Runtime) {
		r.ids = g
	}
}

// WithTracer installs a tracer for scheduling events.
func WithTracer(t Tracer) Option {
	return func(r *Runtime) {
		r.tracer = t
	}
}

// WithLogger sets the logger for task diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// WithAutoYield force-suspends every task's coroutine at every n-th
// checkpoint. n <= 0 disables forced suspension.
func WithAutoYield(n int) Option {
	return func(r *Runtime) {
		r.autoYield = n
	}
}

// NewRuntime creates a task runtime on top of sched.
func NewRuntime(sched Scheduler, opts ...Option) *Runtime {
	r := &Runtime{
		sched: sched,
		ids:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// New creates a task for fn with initial arguments args. The task is not
// scheduled.
//
// Returns a *RuntimeError with ErrCodeInvalidCallable if fn is not callable.
func (r *Runtime) New(fn value.Value, args value.Tuple) (*Task, error) {
	return r.newTask(fn, args, "")
}

// Spawn creates a task and posts its first resume.
// Thread-safe: may be called from any goroutine.
func (r *Runtime) Spawn(fn value.Value, args value.Tuple) (*Task, error) {
	t, err := r.New(fn, args)
	if err != nil {
		return nil, err
	}
	if err := t.Schedule(); err != nil {
		return nil, fmt.Errorf("schedule task %s: %w", t.id, err)
	}
	r.logger.Debug("task scheduled", "task_id", t.id, "function", t.co.Function().Name)
	return t, nil
}

func (r *Runtime) newTask(fn value.Value, args value.Tuple, parentID string) (*Task, error) {
	co, err := coroutine.Create(fn)
	if err != nil {
		return nil, &RuntimeError{
			Code:    ErrCodeInvalidCallable,
			Message: "task requires a function",
			Err:     err,
		}
	}
	co.SetAutoYield(r.autoYield)
	co.SetHandoff(r.sched.Adopt, r.sched.Release)

	return &Task{
		id:         r.ids.Generate(),
		parentID:   parentID,
		rt:         r,
		co:         co,
		pending:    args,
		completion: future.New[value.Value](),
	}, nil
}
