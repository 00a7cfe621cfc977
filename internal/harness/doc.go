// Package harness runs scheduling scenarios described in YAML and checks
// their traces.
//
// Each scenario runs on a fresh engine with sequential task IDs, so the
// trace of scheduling decisions can be compared against a golden file.
//
// # Scenario Format
//
//	name: spawn_and_await
//	description: "Parent spawns a child and awaits it"
//	auto_yield: 0
//	functions:
//	  - name: child
//	    steps:
//	      - yield: []
//	      - return: 10
//	  - name: parent
//	    steps:
//	      - spawn: { function: child, args: [5], as: h }
//	      - await: $h
//	      - return: $last
//	tasks:
//	  - name: main
//	    function: parent
//	expect:
//	  main: { result: 10 }
//	assertions:
//	  - type: trace_count
//	    kind: wake
//	    task: task-1
//	    count: 1
//
// Steps: sleep, yield, spawn, call, await, reject, checkpoint, return, fail.
// Strings starting with "$" refer to $last, $args or a value saved with "as".
//
// # Golden Files
//
// A snapshot lists the trace lines and each top-level task's outcome:
//
//	scenario: sleep_then_return
//	trace:
//	  resume task-1 ()
//	  await task-1
//	  wake task-1 ()
//	  resume task-1 ()
//	  done task-1 42
//	outcomes:
//	  main (task-1): 42
package harness
