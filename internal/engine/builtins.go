package engine

import (
	"time"

	"github.com/roach88/scriptsched/internal/future"
	"github.com/roach88/scriptsched/internal/value"
)

// Builtin names registered in every engine.
const (
	BuiltinSleep = "sleep"
	BuiltinAwait = "await"
	BuiltinSpawn = "spawn"
)

func newBuiltins() map[string]*value.Function {
	return map[string]*value.Function{
		BuiltinSleep: value.NewFunction(BuiltinSleep, sleepBody),
		BuiltinAwait: value.NewFunction(BuiltinAwait, awaitBody),
		BuiltinSpawn: value.NewFunction(BuiltinSpawn, spawnBody),
	}
}

// sleepBody implements sleep(ms): suspend the calling task for at least ms
// milliseconds without blocking the affine thread.
func sleepBody(y value.Yielder, args value.Tuple) (value.Value, error) {
	var ms float64
	switch x := value.ToScalar(args).(type) {
	case value.Int:
		ms = float64(x)
	case value.Float:
		ms = float64(x)
	default:
		return nil, badArgument(BuiltinSleep, 1, "number", x)
	}
	if ms < 0 {
		return nil, &ArgumentError{Func: BuiltinSleep, Index: 1, Message: "duration must not be negative"}
	}

	d := time.Duration(ms * float64(time.Millisecond))
	y.Yield(value.NewHandle(future.After(d)))
	return value.Nil{}, nil
}

// awaitBody implements await(h): suspend until the handle completes and
// return its result.
func awaitBody(y value.Yielder, args value.Tuple) (value.Value, error) {
	arg := value.ToScalar(args)
	h, ok := value.AsHandle(arg)
	if !ok {
		return nil, badArgument(BuiltinAwait, 1, "handle", arg)
	}
	return y.Yield(h).Unpack(), nil
}

// spawnBody implements spawn(fn, ...): start fn as a nested task and return
// a handle to its completion.
func spawnBody(y value.Yielder, args value.Tuple) (value.Value, error) {
	arg := value.ToScalar(args)
	fn, ok := value.AsFunction(arg)
	if !ok {
		return nil, badArgument(BuiltinSpawn, 1, "function", arg)
	}

	req := make([]value.Value, 0, len(args))
	req = append(req, fn)
	if len(args) > 1 {
		req = append(req, args[1:]...)
	}
	return y.Yield(req...).Unpack(), nil
}
