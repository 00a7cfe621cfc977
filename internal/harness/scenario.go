package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a deterministic scheduling test: a set of script functions
// built from steps, the tasks to start, and the expected outcomes.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// AutoYield force-suspends tasks every n checkpoints. 0 disables.
	AutoYield int `yaml:"auto_yield,omitempty"`

	// Functions are the script functions available to tasks.
	Functions []FunctionDef `yaml:"functions"`

	// Tasks are started together, in order, from one executor item.
	Tasks []TaskDef `yaml:"tasks"`

	// Expect maps task names to expected outcomes.
	Expect map[string]Expectation `yaml:"expect,omitempty"`

	// Assertions validate the scheduling trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// FunctionDef is a named script function made of steps.
type FunctionDef struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// TaskDef starts Function with Args as a top-level task.
type TaskDef struct {
	Name     string `yaml:"name"`
	Function string `yaml:"function"`
	Args     []any  `yaml:"args,omitempty"`
}

// Step is one action of a function body. Exactly one field is set.
//
// Values given as strings starting with "$" are references:
// "$last" is the result of the previous step, "$args" the function's
// arguments, and "$name" a handle saved with "as".
type Step struct {
	// Sleep calls sleep(ms).
	Sleep *float64 `yaml:"sleep,omitempty"`

	// Yield yields the listed values and keeps what the resume delivers.
	Yield *[]any `yaml:"yield,omitempty"`

	// Spawn calls spawn(fn, args...) and keeps the handle.
	Spawn *CallStep `yaml:"spawn,omitempty"`

	// Call runs another function inline on the same task.
	Call *CallStep `yaml:"call,omitempty"`

	// Await calls await on a reference, usually a handle saved with "as".
	Await string `yaml:"await,omitempty"`

	// Reject awaits a native handle that faults with this message.
	Reject string `yaml:"reject,omitempty"`

	// Checkpoint marks this many instruction boundaries.
	Checkpoint int `yaml:"checkpoint,omitempty"`

	// Return ends the function with a value.
	Return any `yaml:"return,omitempty"`

	// Fail ends the function with a script error.
	Fail string `yaml:"fail,omitempty"`
}

// CallStep names a function, its arguments and where to keep the result.
type CallStep struct {
	Function string `yaml:"function"`
	Args     []any  `yaml:"args,omitempty"`
	As       string `yaml:"as,omitempty"`
}

// Expectation is the expected outcome of a task: a result value, or an
// exact error message.
type Expectation struct {
	Result any    `yaml:"result,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// Assertion validates the scheduling trace.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count.
	Type string `yaml:"type"`

	// Event is an exact trace line (trace_contains).
	Event string `yaml:"event,omitempty"`

	// Events are trace lines expected in this relative order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Kind and Task select events to count; an empty Task counts every
	// task (trace_count).
	Kind  string `yaml:"kind,omitempty"`
	Task  string `yaml:"task,omitempty"`
	Count int    `yaml:"count,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is inconsistent.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that every
// reference resolves.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Tasks) == 0 {
		return fmt.Errorf("tasks list is required and must be non-empty")
	}
	if s.AutoYield < 0 {
		return fmt.Errorf("auto_yield must not be negative")
	}

	funcs := make(map[string]bool, len(s.Functions))
	for i, fn := range s.Functions {
		if fn.Name == "" {
			return fmt.Errorf("functions[%d]: name is required", i)
		}
		if funcs[fn.Name] {
			return fmt.Errorf("functions[%d]: duplicate function %q", i, fn.Name)
		}
		funcs[fn.Name] = true
	}

	for _, fn := range s.Functions {
		for i, step := range fn.Steps {
			if err := validateStep(step, funcs); err != nil {
				return fmt.Errorf("function %s step %d: %w", fn.Name, i+1, err)
			}
		}
	}

	tasks := make(map[string]bool, len(s.Tasks))
	for i, td := range s.Tasks {
		if td.Name == "" {
			return fmt.Errorf("tasks[%d]: name is required", i)
		}
		if tasks[td.Name] {
			return fmt.Errorf("tasks[%d]: duplicate task %q", i, td.Name)
		}
		tasks[td.Name] = true
		if !funcs[td.Function] {
			return fmt.Errorf("task %s: unknown function %q", td.Name, td.Function)
		}
	}

	for name := range s.Expect {
		if !tasks[name] {
			return fmt.Errorf("expect: unknown task %q", name)
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertTraceContains, AssertTraceOrder, AssertTraceCount:
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
	}

	return nil
}

func validateStep(step Step, funcs map[string]bool) error {
	set := 0
	if step.Sleep != nil {
		set++
	}
	if step.Yield != nil {
		set++
	}
	if step.Spawn != nil {
		set++
		if !funcs[step.Spawn.Function] {
			return fmt.Errorf("spawn: unknown function %q", step.Spawn.Function)
		}
	}
	if step.Call != nil {
		set++
		if !funcs[step.Call.Function] {
			return fmt.Errorf("call: unknown function %q", step.Call.Function)
		}
	}
	if step.Await != "" {
		set++
	}
	if step.Reject != "" {
		set++
	}
	if step.Checkpoint != 0 {
		set++
	}
	if step.Return != nil {
		set++
	}
	if step.Fail != "" {
		set++
	}

	if set != 1 {
		return fmt.Errorf("exactly one action required, got %d", set)
	}
	return nil
}
