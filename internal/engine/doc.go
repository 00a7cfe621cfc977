// Package engine is the embedding surface of the scheduler.
//
// An Engine starts one affine executor thread and runs script functions on
// it as tasks. Hosts start tasks from any goroutine with RunTask or Call
// and wait on the returned completion; script bodies cooperate through the
// builtins:
//
//	sleep(ms)      suspend the task for at least ms milliseconds
//	await(h)       suspend until a native handle completes, return its result
//	spawn(fn, ...) start fn as a nested task, return a handle to it
//
// ARCHITECTURE:
//
// Every coroutine resume happens on the affine thread. Native completions
// arrive on arbitrary goroutines and only post continuations back to the
// executor queue, so script state is never touched concurrently.
//
// A task that faults completes with the fault; other tasks keep running.
package engine
