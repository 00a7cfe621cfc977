package testutil

import (
	"sync"

	"github.com/roach88/scriptsched/internal/task"
)

// TraceRecorder is a task.Tracer that keeps every event for later
// inspection.
//
// Events arrive on the affine thread; tests read them from their own
// goroutine, so access is guarded by a mutex.
type TraceRecorder struct {
	mu     sync.Mutex
	events []task.Event
}

// TaskEvent implements task.Tracer.
func (r *TraceRecorder) TaskEvent(e task.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *TraceRecorder) Events() []task.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]task.Event(nil), r.events...)
}

// Lines returns the recorded events rendered as trace lines.
func (r *TraceRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := make([]string, len(r.events))
	for i, e := range r.events {
		lines[i] = e.String()
	}
	return lines
}

// Count returns how many events of kind were recorded for taskID.
// An empty taskID counts every task.
func (r *TraceRecorder) Count(kind task.EventKind, taskID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind && (taskID == "" || e.TaskID == taskID) {
			n++
		}
	}
	return n
}

// Reset discards recorded events.
func (r *TraceRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
