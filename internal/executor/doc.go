// Package executor implements the affine executor: a dedicated goroutine
// draining a FIFO queue of posted work items.
//
// ARCHITECTURE:
//
// Single Affine Thread:
// Every coroutine resume happens inside a work item, and work items only
// run on the goroutine that called Run. That goroutine is recorded at
// startup; AssertAffine lets callers fail fast when the rule is broken.
//
// Handoff:
// Coroutine bodies run on their own goroutines, never concurrently with
// the loop: while a body runs, the loop is blocked in Resume. A body
// adopts the loop's affinity for as long as it holds control (Adopt and
// Release), so IsAffine is true inside script code. WithLockOSThread pins
// the loop goroutine only; bodies are serialized by handoff, not pinned.
//
// Posting:
// Post is safe from any goroutine and never blocks. Completions produced
// elsewhere (timers, I/O, other goroutines) must Post a continuation
// rather than touch task state directly.
//
// Ordering:
// Items run in strict post order. There is no priority and no reordering.
// Each item is stamped with a logical sequence number under
// the queue lock, so Seq order equals execution order.
package executor
