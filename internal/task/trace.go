package task

import (
	"fmt"

	"github.com/roach88/scriptsched/internal/value"
)

// EventKind identifies a scheduling decision.
type EventKind string

const (
	// EventResume is emitted before every coroutine resume.
	EventResume EventKind = "resume"
	// EventAwait is emitted when a task subscribes to a native handle.
	EventAwait EventKind = "await"
	// EventWake is emitted when the continuation posted by a completed
	// native handle starts running.
	EventWake EventKind = "wake"
	// EventSpawn is emitted when a task starts a nested task.
	EventSpawn EventKind = "spawn"
	// EventStep is emitted for a plain-data yield.
	EventStep EventKind = "step"
	// EventPreempt is emitted for a forced suspension.
	EventPreempt EventKind = "preempt"
	// EventDone is emitted when a task's coroutine returns.
	EventDone EventKind = "done"
	// EventFault is emitted when a task faults.
	EventFault EventKind = "fault"
)

// Event describes one scheduling decision for a task.
type Event struct {
	Kind   EventKind
	TaskID string

	// ChildID is set for EventSpawn.
	ChildID string

	// Args carries resume arguments (EventResume, EventWake, EventStep)
	// or the spawned task's initial arguments (EventSpawn).
	Args value.Tuple

	// Result is set for EventDone.
	Result value.Value

	// Err is set for EventFault.
	Err error
}

// String renders the event as a single trace line.
func (e Event) String() string {
	switch e.Kind {
	case EventSpawn:
		return fmt.Sprintf("%s %s -> %s (%s)", e.Kind, e.TaskID, e.ChildID, value.FormatArgs(e.Args))
	case EventResume, EventWake, EventStep:
		return fmt.Sprintf("%s %s (%s)", e.Kind, e.TaskID, value.FormatArgs(e.Args))
	case EventDone:
		return fmt.Sprintf("%s %s %s", e.Kind, e.TaskID, value.Format(e.Result))
	case EventFault:
		return fmt.Sprintf("%s %s %q", e.Kind, e.TaskID, e.Err.Error())
	default:
		return fmt.Sprintf("%s %s", e.Kind, e.TaskID)
	}
}

// Tracer receives task events. Events are delivered on the affine thread,
// in scheduling order.
type Tracer interface {
	TaskEvent(Event)
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(Event)

// TaskEvent implements Tracer.
func (f TracerFunc) TaskEvent(e Event) {
	f(e)
}
