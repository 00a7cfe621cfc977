package engine

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"sync/atomic"

	"github.com/roach88/scriptsched/internal/config"
	"github.com/roach88/scriptsched/internal/executor"
	"github.com/roach88/scriptsched/internal/future"
	"github.com/roach88/scriptsched/internal/task"
	"github.com/roach88/scriptsched/internal/value"
)

// Engine owns one affine executor and the task runtime built on it.
//
// Thread-safety model:
//   - RunTask(), Call(), Spawn(): safe from any goroutine
//   - task bodies and scheduling decisions: affine thread only
//   - Close(): safe from any goroutine, including the affine thread
//
// INVARIANTS:
//   - the builtin table never changes after New
//   - after Close, every new task is refused with ErrShutdown
type Engine struct {
	cfg      config.Config
	logger   *slog.Logger
	exec     *executor.Executor
	rt       *task.Runtime
	builtins map[string]*value.Function
	closed   atomic.Bool
}

// Option allows configuration of engine collaborators.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	tracer   task.Tracer
	ids      task.IDGenerator
	observer executor.Observer
}

// WithLogger sets the logger. By default a text logger on stderr at the
// configured level is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracer installs a tracer for task scheduling events.
func WithTracer(t task.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithIDGenerator sets the task ID source.
//
// Default: task.UUIDv7Generator
// Use task.NewSequenceGenerator("task") for deterministic traces.
func WithIDGenerator(g task.IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithObserver installs an executor observer.
func WithObserver(obs executor.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// New validates cfg, builds the executor and task runtime, and starts the
// affine thread.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	}

	exec := executor.New(
		executor.WithLogger(o.logger),
		executor.WithObserver(o.observer),
		executor.WithQueueCapacity(cfg.QueueCapacity),
		executor.WithLockOSThread(cfg.LockOSThread),
	)

	rtOpts := []task.Option{
		task.WithLogger(o.logger),
		task.WithAutoYield(cfg.AutoYield),
	}
	if o.tracer != nil {
		rtOpts = append(rtOpts, task.WithTracer(o.tracer))
	}
	if o.ids != nil {
		rtOpts = append(rtOpts, task.WithIDGenerator(o.ids))
	}

	e := &Engine{
		cfg:      cfg,
		logger:   o.logger,
		exec:     exec,
		rt:       task.NewRuntime(exec, rtOpts...),
		builtins: newBuiltins(),
	}

	exec.Start()
	e.logger.Info("engine starting",
		"queue_capacity", cfg.QueueCapacity,
		"auto_yield", cfg.AutoYield,
		"lock_os_thread", cfg.LockOSThread,
	)
	return e, nil
}

// Spawn starts fn as a new task and returns it.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Spawn(fn value.Value, args ...value.Value) (*task.Task, error) {
	if e.closed.Load() {
		return nil, fmt.Errorf("spawn task: %w", executor.ErrShutdown)
	}
	t, err := e.rt.Spawn(fn, value.Tuple(args))
	if err != nil {
		return nil, fmt.Errorf("spawn task: %w", err)
	}
	return t, nil
}

// RunTask starts fn as a new task and returns its completion.
// Thread-safe: may be called from any goroutine.
//
// Returns an error satisfying IsInvalidCallable if fn is not a function,
// and one satisfying IsShutdown after Close.
func (e *Engine) RunTask(fn value.Value, args ...value.Value) (*future.Future[value.Value], error) {
	t, err := e.Spawn(fn, args...)
	if err != nil {
		return nil, err
	}
	return t.Completion(), nil
}

// Call converts fn and args from host values and runs them as a task.
func (e *Engine) Call(fn any, args ...any) (*future.Future[value.Value], error) {
	sfn, err := value.FromGo(fn)
	if err != nil {
		return nil, fmt.Errorf("convert function: %w", err)
	}

	sargs := make([]value.Value, len(args))
	for i, a := range args {
		v, err := value.FromGo(a)
		if err != nil {
			return nil, fmt.Errorf("convert argument #%d: %w", i+1, err)
		}
		sargs[i] = v
	}
	return e.RunTask(sfn, sargs...)
}

// Post runs fn on the affine thread after the work already queued.
// Tasks spawned from fn have their first resumes queued in call order.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Post(fn func()) error {
	if e.closed.Load() {
		return executor.ErrShutdown
	}
	return e.exec.PostFunc(fn)
}

// Globals returns a copy of the builtin function table.
func (e *Engine) Globals() map[string]*value.Function {
	return maps.Clone(e.builtins)
}

// Global returns the builtin named name.
func (e *Engine) Global(name string) (*value.Function, bool) {
	fn, ok := e.builtins[name]
	return fn, ok
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Stats returns executor counters.
func (e *Engine) Stats() executor.Stats {
	return e.exec.Stats()
}

// Close stops accepting tasks and shuts down the executor once queued work
// has run. Tasks still waiting on native handles are faulted with a
// shutdown error when their handles complete.
//
// Close blocks until the affine thread exits, unless it is called from
// inside a work item, such as a task body.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.exec.Close()
	if e.exec.IsAffine() {
		return
	}
	<-e.exec.Done()
	e.logger.Info("engine stopped", "executed", e.exec.Stats().Executed)
}
