package harness

import (
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/scriptsched/internal/task"
)

// TraceEvent is one recorded scheduling decision.
type TraceEvent struct {
	Seq    int64
	Kind   task.EventKind
	TaskID string
	Line   string
}

// Outcome is how a top-level task completed.
type Outcome struct {
	Task   string
	TaskID string
	Value  string
	Error  string
}

func (o Outcome) String() string {
	if o.Error != "" {
		return fmt.Sprintf("%s (%s): error %q", o.Task, o.TaskID, o.Error)
	}
	return fmt.Sprintf("%s (%s): %s", o.Task, o.TaskID, o.Value)
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool

	// Trace holds every scheduling event in order.
	Trace []TraceEvent

	// Outcomes holds top-level task results in scenario order.
	Outcomes []Outcome

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcome returns the outcome of the named task.
func (r *Result) Outcome(name string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Task == name {
			return o, true
		}
	}
	return Outcome{}, false
}

// Lines returns the trace as text lines.
func (r *Result) Lines() []string {
	lines := make([]string, len(r.Trace))
	for i, ev := range r.Trace {
		lines[i] = ev.Line
	}
	return lines
}

// Snapshot renders the trace and outcomes in the golden file format.
func (r *Result) Snapshot(name string) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", name)
	buf.WriteString("trace:\n")
	for _, ev := range r.Trace {
		fmt.Fprintf(&buf, "  %s\n", ev.Line)
	}
	buf.WriteString("outcomes:\n")
	for _, o := range r.Outcomes {
		fmt.Fprintf(&buf, "  %s\n", o)
	}
	return []byte(buf.String())
}

// recorder is a task.Tracer that keeps the trace and counts live tasks.
type recorder struct {
	mu     sync.Mutex
	seq    int64
	events []TraceEvent
	live   map[string]bool
}

func newRecorder() *recorder {
	return &recorder{live: make(map[string]bool)}
}

// TaskEvent implements task.Tracer.
func (r *recorder) TaskEvent(e task.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.events = append(r.events, TraceEvent{
		Seq:    r.seq,
		Kind:   e.Kind,
		TaskID: e.TaskID,
		Line:   e.String(),
	})

	switch e.Kind {
	case task.EventResume:
		r.live[e.TaskID] = true
	case task.EventSpawn:
		r.live[e.ChildID] = true
	case task.EventDone, task.EventFault:
		delete(r.live, e.TaskID)
	}
}

// Live returns the number of tasks seen but not yet completed.
func (r *recorder) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *recorder) Events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent(nil), r.events...)
}
