package task

import "github.com/roach88/scriptsched/internal/value"

// yieldKind is the scheduling meaning of a yielded value.
type yieldKind int

const (
	// yieldStep is plain data: resume again with the same values.
	yieldStep yieldKind = iota
	// yieldAwait is a native async handle: resume when it completes.
	yieldAwait
	// yieldSpawn is a (callable, args...) tuple: start a nested task.
	yieldSpawn
)

func (k yieldKind) String() string {
	switch k {
	case yieldAwait:
		return "await"
	case yieldSpawn:
		return "spawn"
	default:
		return "step"
	}
}

// yieldRequest is a yielded value classified once per resume.
type yieldRequest struct {
	kind   yieldKind
	handle *value.Handle
	fn     *value.Function
	args   value.Tuple
	data   value.Value
}

// classify decides what a yielded value asks for, in priority order:
// native handle, then callable-first tuple, then plain data.
func classify(v value.Value) yieldRequest {
	if h, ok := value.AsHandle(v); ok {
		return yieldRequest{kind: yieldAwait, handle: h}
	}

	if fn, ok := value.AsFunction(value.ToScalar(v)); ok {
		var args value.Tuple
		if t, ok := v.(value.Tuple); ok && len(t) > 1 {
			args = append(value.Tuple(nil), t[1:]...)
		}
		return yieldRequest{kind: yieldSpawn, fn: fn, args: args}
	}

	return yieldRequest{kind: yieldStep, data: value.Normalize(v)}
}
