package task

import (
	"fmt"
	"sync/atomic"

	"github.com/roach88/scriptsched/internal/coroutine"
	"github.com/roach88/scriptsched/internal/executor"
	"github.com/roach88/scriptsched/internal/future"
	"github.com/roach88/scriptsched/internal/value"
)

// Task couples one coroutine with its pending resume arguments and a
// thread-safe completion slot.
//
// CRITICAL: all mutable fields except the completion are touched only on
// the affine thread. Other goroutines interact through Completion() and
// through work items posted to the executor.
//
// INVARIANTS:
//   - completion is set at most once, by a resume that observed Dead or
//     raised an error (or by a failed post during shutdown, or a panic
//     outside the body)
//   - while completion is Pending the coroutine is not Dead
//   - a continuation arriving after completion is dropped
type Task struct {
	id       string
	parentID string
	rt       *Runtime
	co       *coroutine.Coroutine

	// pending holds the next resume arguments; nil means empty.
	pending value.Tuple

	completion *future.Future[value.Value]
	resumes    atomic.Int64
}

// ID returns the task's identifier.
func (t *Task) ID() string {
	return t.id
}

// ParentID returns the ID of the task that spawned this one, or "" for a
// top-level task.
func (t *Task) ParentID() string {
	return t.parentID
}

// Completion returns the task's completion slot.
// Thread-safe: may be awaited from any goroutine.
func (t *Task) Completion() *future.Future[value.Value] {
	return t.completion
}

// Resumes returns how many times ResumeLoop has run for this task.
func (t *Task) Resumes() int64 {
	return t.resumes.Load()
}

// State returns the coroutine's lifecycle state.
func (t *Task) State() coroutine.State {
	return t.co.State()
}

// Schedule posts the task's first resume onto the executor.
// Thread-safe: may be called from any goroutine.
func (t *Task) Schedule() error {
	return t.rt.sched.Post(executor.WorkItem{Callback: resumeItem, Payload: t})
}

func resumeItem(payload any) {
	payload.(*Task).ResumeLoop()
}

// continuation carries the resume arguments computed on a foreign
// goroutine back to the affine thread.
type continuation struct {
	task *Task
	args value.Tuple
}

func continueItem(payload any) {
	c := payload.(continuation)
	if c.task.completion.Status() != future.Pending {
		c.task.rt.logger.Debug("dropping continuation for completed task", "task_id", c.task.id)
		return
	}
	c.task.pending = c.args
	c.task.emit(Event{Kind: EventWake, Args: c.args})
	c.task.ResumeLoop()
}

// ResumeLoop resumes the coroutine once and reclassifies the result.
//
// Every outcome other than completion ends by posting exactly one work
// item (two for a spawn: the child's first resume, then the parent's
// continuation). The task is never resumed inline.
//
// CRITICAL: must run on the affine thread. Calling it anywhere else is a
// scheduler bug and panics with *executor.FatalError.
func (t *Task) ResumeLoop() {
	t.rt.sched.AssertAffine("task.ResumeLoop")
	defer t.recoverPanic()
	t.resumes.Add(1)

	args := t.pending
	if args == nil {
		args = value.Tuple{}
	}
	t.pending = nil

	t.emit(Event{Kind: EventResume, Args: args})
	state, v, err := t.co.Resume(args)
	if err != nil {
		if !coroutine.IsScriptError(err) {
			err = &RuntimeError{Code: ErrCodeResume, Message: "coroutine refused resume", TaskID: t.id, Err: err}
		}
		t.fault(err)
		return
	}

	switch state {
	case coroutine.Dead:
		t.finish(v)

	case coroutine.ForceSuspended:
		// Implicit empty yield. Round-trip through the queue so other
		// queued work runs before the task is retried.
		t.pending = nil
		t.emit(Event{Kind: EventPreempt})
		t.repost()

	case coroutine.Suspended:
		t.dispatch(classify(v))

	default:
		executor.Fatalf("task.ResumeLoop", "task %s: coroutine %s after resume", t.id, state)
	}
}

// dispatch handles a classified yield. The three shapes are handled here
// and nowhere else.
func (t *Task) dispatch(req yieldRequest) {
	switch req.kind {
	case yieldAwait:
		t.await(req.handle)

	case yieldSpawn:
		t.spawn(req.fn, req.args)

	case yieldStep:
		t.pending = argsOf(req.data)
		t.emit(Event{Kind: EventStep, Args: t.pending})
		t.repost()
	}
}

// recoverPanic faults the task when something other than the script body
// panics during a resume: a handle's OnComplete, the tracer or the ID
// generator. Script panics never get here; the coroutine reports them.
func (t *Task) recoverPanic() {
	r := recover()
	if r == nil {
		return
	}
	if fe, ok := r.(*executor.FatalError); ok {
		panic(fe)
	}

	err := &RuntimeError{
		Code:    ErrCodePanic,
		Message: fmt.Sprintf("panic during resume: %v", r),
		TaskID:  t.id,
	}
	t.rt.logger.Warn("task panicked outside script code",
		"task_id", t.id,
		"panic", r,
	)
	if t.completion.Reject(err) != nil {
		return
	}
	t.emit(Event{Kind: EventFault, Err: err})
}

// await subscribes a continuation to a native handle. The subscription
// callback only computes arguments and posts; it never touches task state.
// Handles are owned elsewhere, so only the first callback counts.
func (t *Task) await(h *value.Handle) {
	t.emit(Event{Kind: EventAwait})

	var fired atomic.Bool
	h.Awaitable.OnComplete(func(result any, err error) {
		if !fired.CompareAndSwap(false, true) {
			t.rt.logger.Debug("ignoring repeated handle completion", "task_id", t.id)
			return
		}
		args := t.continuationArgs(result, err)
		perr := t.rt.sched.Post(executor.WorkItem{
			Callback: continueItem,
			Payload:  continuation{task: t, args: args},
		})
		if perr != nil {
			t.rt.logger.Warn("dropping continuation",
				"task_id", t.id,
				"error", perr,
			)
			_ = t.completion.Reject(newShutdownError(t.id, perr))
		}
	})
}

// continuationArgs converts a native completion into resume arguments.
//
// A conversion failure is swallowed and resumes with no value. A faulted
// handle resumes with (nil, message).
func (t *Task) continuationArgs(result any, err error) value.Tuple {
	if err != nil {
		t.rt.logger.Debug("native handle faulted",
			"task_id", t.id,
			"error", err,
		)
		return value.Tuple{value.Nil{}, value.String(err.Error())}
	}
	if result == nil {
		return nil
	}

	v, cerr := value.FromGo(result)
	if cerr != nil {
		// TODO: decide whether conversion failures should fault the task;
		// they are treated as "no value" for compatibility.
		t.rt.logger.Debug("native result not representable, resuming with no value",
			"task_id", t.id,
			"error", cerr,
		)
		return nil
	}
	return argsOf(v)
}

// spawn starts a nested task for fn and resumes the parent with a handle
// to the child's completion.
func (t *Task) spawn(fn *value.Function, args value.Tuple) {
	child, err := t.rt.newTask(fn, args, t.id)
	if err != nil {
		t.fault(err)
		return
	}

	t.emit(Event{Kind: EventSpawn, ChildID: child.id, Args: args})
	if err := child.Schedule(); err != nil {
		_ = child.completion.Reject(newShutdownError(child.id, err))
		t.fault(newShutdownError(t.id, err))
		return
	}

	t.pending = value.Tuple{value.NewHandle(child.completion)}
	t.repost()
}

// repost queues the next ResumeLoop for this task.
func (t *Task) repost() {
	if err := t.Schedule(); err != nil {
		t.rt.logger.Warn("cannot repost task",
			"task_id", t.id,
			"error", err,
		)
		t.fault(newShutdownError(t.id, err))
	}
}

func (t *Task) finish(v value.Value) {
	if err := t.completion.Resolve(v); err != nil {
		executor.Fatalf("task.finish", "task %s: %v", t.id, err)
	}
	t.emit(Event{Kind: EventDone, Result: v})
	t.rt.logger.Debug("task completed", "task_id", t.id, "resumes", t.resumes.Load())
}

func (t *Task) fault(err error) {
	if cerr := t.completion.Reject(err); cerr != nil {
		executor.Fatalf("task.fault", "task %s: %v", t.id, cerr)
	}
	t.emit(Event{Kind: EventFault, Err: err})
	t.rt.logger.Debug("task faulted", "task_id", t.id, "error", err)
}

func (t *Task) emit(e Event) {
	if t.rt.tracer == nil {
		return
	}
	e.TaskID = t.id
	t.rt.tracer.TaskEvent(e)
}

// argsOf turns a yielded or completed value into resume arguments:
// a tuple resumes with its elements, anything else with itself.
func argsOf(v value.Value) value.Tuple {
	if t, ok := v.(value.Tuple); ok {
		return t
	}
	return value.Tuple{value.Normalize(v)}
}
