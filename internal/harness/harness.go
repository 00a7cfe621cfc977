package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/scriptsched/internal/config"
	"github.com/roach88/scriptsched/internal/engine"
	"github.com/roach88/scriptsched/internal/task"
	"github.com/roach88/scriptsched/internal/value"
)

// DefaultTimeout bounds how long Run waits for a scenario's tasks.
const DefaultTimeout = 5 * time.Second

// Run executes a scenario on a fresh engine and returns the result.
//
// Task IDs come from a sequence generator ("task-1", "task-2", ...) and all
// top-level tasks are started from a single executor item, so traces are
// reproducible as long as timers in the scenario do not race each other.
//
// Execution flow:
//  1. Create an engine with a quiet logger and a trace recorder
//  2. Compile the scenario's functions against the engine's builtins
//  3. Start every task, then wait for them and any nested tasks
//  4. Check expectations and assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied deadline. Without one,
// DefaultTimeout applies.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	cfg := config.Default()
	cfg.AutoYield = scenario.AutoYield

	rec := newRecorder()
	eng, err := engine.New(cfg,
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithTracer(rec),
		engine.WithIDGenerator(task.NewSequenceGenerator("task")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()

	prog, err := compile(scenario, eng)
	if err != nil {
		return nil, err
	}

	tasks, err := startTasks(eng, prog, scenario.Tasks)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, td := range scenario.Tasks {
		t := tasks[i]
		v, err := t.Completion().Await(ctx)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("task %s did not complete: %w", td.Name, ctx.Err())
		}
		o := Outcome{Task: td.Name, TaskID: t.ID()}
		if err != nil {
			o.Error = err.Error()
		} else {
			o.Value = value.Format(v)
		}
		result.Outcomes = append(result.Outcomes, o)
	}

	if err := waitIdle(ctx, rec); err != nil {
		return nil, err
	}
	result.Trace = rec.Events()

	checkExpectations(result, scenario.Expect)
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// startTasks spawns every task from one executor item so that their first
// resumes are queued back to back.
func startTasks(eng *engine.Engine, prog *program, defs []TaskDef) ([]*task.Task, error) {
	type started struct {
		tasks []*task.Task
		err   error
	}
	ch := make(chan started, 1)

	err := eng.Post(func() {
		var s started
		for _, td := range defs {
			args, err := (&frame{}).resolveAll(td.Args)
			if err != nil {
				s.err = fmt.Errorf("task %s: %w", td.Name, err)
				break
			}
			t, err := eng.Spawn(prog.funcs[td.Function], args...)
			if err != nil {
				s.err = fmt.Errorf("task %s: %w", td.Name, err)
				break
			}
			s.tasks = append(s.tasks, t)
		}
		ch <- s
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start tasks: %w", err)
	}

	s := <-ch
	return s.tasks, s.err
}

// waitIdle waits for nested tasks that nobody awaited.
func waitIdle(ctx context.Context, rec *recorder) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for rec.Live() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("nested tasks did not complete: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// checkExpectations compares outcomes with the scenario's expect clauses,
// in task-name order for stable error output.
func checkExpectations(result *Result, expect map[string]Expectation) {
	names := make([]string, 0, len(expect))
	for name := range expect {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		exp := expect[name]
		got, ok := result.Outcome(name)
		if !ok {
			result.AddError(fmt.Sprintf("task %s: no outcome", name))
			continue
		}

		if exp.Error != "" {
			if got.Error != exp.Error {
				result.AddError(fmt.Sprintf("task %s: expected error %q, got %s", name, exp.Error, got))
			}
			continue
		}

		if got.Error != "" {
			result.AddError(fmt.Sprintf("task %s: expected result, got error %q", name, got.Error))
			continue
		}
		want, err := value.FromGo(exp.Result)
		if err != nil {
			result.AddError(fmt.Sprintf("task %s: bad expected result: %v", name, err))
			continue
		}
		if value.Format(want) != got.Value {
			result.AddError(fmt.Sprintf("task %s: expected %s, got %s", name, value.Format(want), got.Value))
		}
	}
}
