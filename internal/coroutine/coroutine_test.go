package coroutine

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scriptsched/internal/value"
)

func fn(name string, body value.Body) *value.Function {
	return value.NewFunction(name, body)
}

func TestCreate_RejectsNonCallable(t *testing.T) {
	tests := []struct {
		name string
		in   value.Value
	}{
		{"nil", nil},
		{"scalar", value.Int(1)},
		{"function without body", &value.Function{Name: "empty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			co, err := Create(tt.in)
			assert.Nil(t, co)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestResume_ReturnsImmediately(t *testing.T) {
	co, err := Create(fn("add", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		return args[0].(value.Int) + args[1].(value.Int), nil
	}))
	require.NoError(t, err)
	assert.Equal(t, NotStarted, co.State())

	state, v, err := co.Resume(value.Tuple{value.Int(2), value.Int(3)})
	require.NoError(t, err)
	assert.Equal(t, Dead, state)
	assert.Equal(t, value.Int(5), v)
	assert.Equal(t, Dead, co.State())
}

func TestResume_YieldRoundTrip(t *testing.T) {
	co, err := Create(fn("echo", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		got := y.Yield(value.String("first"))
		got = y.Yield(got...)
		return got.Unpack(), nil
	}))
	require.NoError(t, err)

	state, v, err := co.Resume(nil)
	require.NoError(t, err)
	assert.Equal(t, Suspended, state)
	assert.Equal(t, value.String("first"), v)

	state, v, err = co.Resume(value.Tuple{value.Int(1), value.Int(2)})
	require.NoError(t, err)
	assert.Equal(t, Suspended, state)
	assert.Equal(t, value.Tuple{value.Int(1), value.Int(2)}, v, "multi-value yield arrives as a tuple")

	state, v, err = co.Resume(value.Tuple{value.Bool(true)})
	require.NoError(t, err)
	assert.Equal(t, Dead, state)
	assert.Equal(t, value.Bool(true), v)
}

func TestResume_EmptyYield(t *testing.T) {
	co, err := Create(fn("idle", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		y.Yield()
		return nil, nil
	}))
	require.NoError(t, err)

	state, v, err := co.Resume(nil)
	require.NoError(t, err)
	assert.Equal(t, Suspended, state)
	assert.Equal(t, value.Tuple{}, v)

	state, v, err = co.Resume(nil)
	require.NoError(t, err)
	assert.Equal(t, Dead, state)
	assert.Equal(t, value.Nil{}, v, "nil return normalizes to Nil")
}

func TestResume_ReturnedErrorIsScriptError(t *testing.T) {
	boom := errors.New("boom")
	co, err := Create(fn("fail", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		return nil, boom
	}))
	require.NoError(t, err)

	state, _, err := co.Resume(nil)
	assert.Equal(t, Dead, state)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsScriptError(err))
	assert.Equal(t, "script error in fail: boom", err.Error())
}

func TestResume_PanicIsCaptured(t *testing.T) {
	co, err := Create(fn("explode", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		panic("kaboom")
	}))
	require.NoError(t, err)

	state, _, err := co.Resume(nil)
	assert.Equal(t, Dead, state)

	var se *ScriptError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "kaboom", se.Panic)
	assert.NotEmpty(t, se.Stack)
	assert.Contains(t, err.Error(), "script panic in explode: kaboom")
}

func TestResume_GoexitIsCaptured(t *testing.T) {
	co, err := Create(fn("exit", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		runtime.Goexit()
		return nil, nil
	}))
	require.NoError(t, err)

	state, _, err := co.Resume(nil)
	assert.Equal(t, Dead, state)
	assert.ErrorIs(t, err, errGoexit)
}

func TestResume_Dead(t *testing.T) {
	co, err := Create(fn("once", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		return value.Int(1), nil
	}))
	require.NoError(t, err)

	_, _, err = co.Resume(nil)
	require.NoError(t, err)

	state, _, err := co.Resume(nil)
	assert.Equal(t, Dead, state)
	assert.ErrorIs(t, err, ErrCannotResumeDead)
}

func TestResume_FromInsideBody(t *testing.T) {
	var co *Coroutine
	var inner error
	co, err := Create(fn("self", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		_, _, inner = co.Resume(nil)
		return nil, nil
	}))
	require.NoError(t, err)

	_, _, err = co.Resume(nil)
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrAlreadyRunning)
}

func TestCheckpoint_AutoYield(t *testing.T) {
	co, err := Create(fn("loop", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		for i := 0; i < 5; i++ {
			y.Checkpoint()
		}
		return value.String("done"), nil
	}))
	require.NoError(t, err)
	co.SetAutoYield(2)

	var states []State
	for {
		state, v, err := co.Resume(nil)
		require.NoError(t, err)
		states = append(states, state)
		if state == Dead {
			assert.Equal(t, value.String("done"), v)
			break
		}
		assert.Equal(t, value.Nil{}, v)
	}

	assert.Equal(t, []State{ForceSuspended, ForceSuspended, Dead}, states)
}

func TestCheckpoint_DisabledByDefault(t *testing.T) {
	co, err := Create(fn("loop", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		for i := 0; i < 100; i++ {
			y.Checkpoint()
		}
		return nil, nil
	}))
	require.NoError(t, err)

	state, _, err := co.Resume(nil)
	require.NoError(t, err)
	assert.Equal(t, Dead, state)
}

func TestNestedCall_YieldsSuspendCaller(t *testing.T) {
	inner := fn("inner", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		return y.Yield(args...).Unpack(), nil
	})
	co, err := Create(fn("outer", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		v, err := value.Call(y, inner, value.Int(10))
		if err != nil {
			return nil, err
		}
		return v, nil
	}))
	require.NoError(t, err)

	state, v, err := co.Resume(nil)
	require.NoError(t, err)
	assert.Equal(t, Suspended, state)
	assert.Equal(t, value.Int(10), v)

	state, v, err = co.Resume(value.Tuple{value.Int(11)})
	require.NoError(t, err)
	assert.Equal(t, Dead, state)
	assert.Equal(t, value.Int(11), v)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "force_suspended", ForceSuspended.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestSetHandoff_BracketsEveryTurn(t *testing.T) {
	var log []string
	co, err := Create(fn("turns", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		log = append(log, "body")
		y.Yield()
		log = append(log, "after yield")
		y.Checkpoint()
		log = append(log, "after checkpoint")
		return value.Nil{}, nil
	}))
	require.NoError(t, err)
	co.SetAutoYield(1)
	co.SetHandoff(
		func() { log = append(log, "enter") },
		func() { log = append(log, "leave") },
	)

	for _, want := range []State{Suspended, ForceSuspended, Dead} {
		state, _, err := co.Resume(nil)
		require.NoError(t, err)
		require.Equal(t, want, state)
	}

	assert.Equal(t, []string{
		"enter", "body", "leave",
		"enter", "after yield", "leave",
		"enter", "after checkpoint", "leave",
	}, log)
}
