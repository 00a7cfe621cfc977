package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scriptsched/internal/config"
	"github.com/roach88/scriptsched/internal/coroutine"
	"github.com/roach88/scriptsched/internal/future"
	"github.com/roach88/scriptsched/internal/task"
	"github.com/roach88/scriptsched/internal/testutil"
	"github.com/roach88/scriptsched/internal/value"
)

func newTestEngine(t *testing.T, cfg config.Config, opts ...Option) (*Engine, *testutil.TraceRecorder) {
	t.Helper()
	rec := &testutil.TraceRecorder{}
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithTracer(rec),
		WithIDGenerator(task.NewSequenceGenerator("task")),
	}
	e, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, rec
}

func await(t *testing.T, f *future.Future[value.Value]) (value.Value, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "task did not complete")
	return v, err
}

func builtin(t *testing.T, e *Engine, name string) *value.Function {
	t.Helper()
	fn, ok := e.Global(name)
	require.True(t, ok, "builtin %q missing", name)
	return fn
}

func TestEngine_RunTaskImmediate(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())

	fn := value.NewFunction("main", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		return value.String("hi"), nil
	})

	f, err := e.RunTask(fn)
	require.NoError(t, err)

	v, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, value.String("hi"), v)
}

func TestEngine_SleepThenReturn(t *testing.T) {
	e, rec := newTestEngine(t, config.Default())
	sleep := builtin(t, e, BuiltinSleep)

	fn := value.NewFunction("main", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		if _, err := value.Call(y, sleep, value.Int(10)); err != nil {
			return nil, err
		}
		return value.Int(42), nil
	})

	start := time.Now()
	f, err := e.RunTask(fn)
	require.NoError(t, err)
	assert.Equal(t, future.Pending, f.Status(), "result is not ready right after scheduling")
	_, ready, _ := f.Poll()
	assert.False(t, ready)

	v, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, value.Int(42), v)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, []string{
		"resume task-1 ()",
		"await task-1",
		"wake task-1 ()",
		"resume task-1 ()",
		"done task-1 42",
	}, rec.Lines())
}

func TestEngine_SleepDoesNotBlockOtherTasks(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())
	sleep := builtin(t, e, BuiltinSleep)

	order := make(chan string, 2)
	slow := value.NewFunction("slow", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		if _, err := value.Call(y, sleep, value.Int(30)); err != nil {
			return nil, err
		}
		order <- "slow"
		return value.Nil{}, nil
	})
	fast := value.NewFunction("fast", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		order <- "fast"
		return value.Nil{}, nil
	})

	fs, err := e.RunTask(slow)
	require.NoError(t, err)
	ff, err := e.RunTask(fast)
	require.NoError(t, err)

	_, err = await(t, fs)
	require.NoError(t, err)
	_, err = await(t, ff)
	require.NoError(t, err)

	assert.Equal(t, "fast", <-order)
	assert.Equal(t, "slow", <-order)
}

func TestEngine_SpawnAndAwaitBuiltins(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())
	spawn := builtin(t, e, BuiltinSpawn)
	awaitFn := builtin(t, e, BuiltinAwait)
	sleep := builtin(t, e, BuiltinSleep)

	child := value.NewFunction("child", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		if _, err := value.Call(y, sleep, value.Int(5)); err != nil {
			return nil, err
		}
		return args[0].(value.Int) * 10, nil
	})
	parent := value.NewFunction("parent", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		h, err := value.Call(y, spawn, child, value.Int(4))
		if err != nil {
			return nil, err
		}
		return value.Call(y, awaitFn, h)
	})

	f, err := e.RunTask(parent)
	require.NoError(t, err)

	v, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, value.Int(40), v)
}

func TestEngine_AwaitFaultedChild(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())
	spawn := builtin(t, e, BuiltinSpawn)
	awaitFn := builtin(t, e, BuiltinAwait)

	child := value.NewFunction("child", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		return nil, errors.New("child broke")
	})
	parent := value.NewFunction("parent", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		h, err := value.Call(y, spawn, child)
		if err != nil {
			return nil, err
		}
		return value.Call(y, awaitFn, h)
	})

	f, err := e.RunTask(parent)
	require.NoError(t, err)

	v, err := await(t, f)
	require.NoError(t, err, "the child's fault reaches the parent as values")
	assert.Equal(t, value.Tuple{value.Nil{}, value.String("script error in child: child broke")}, v)
}

func TestEngine_BuiltinArgumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		builtin string
		args    []value.Value
		wantMsg string
	}{
		{"sleep without args", BuiltinSleep, nil, "bad argument #1 to 'sleep' (number expected, got nil)"},
		{"sleep with string", BuiltinSleep, []value.Value{value.String("10")}, "bad argument #1 to 'sleep' (number expected, got string)"},
		{"sleep negative", BuiltinSleep, []value.Value{value.Int(-1)}, "bad argument #1 to 'sleep' (duration must not be negative)"},
		{"await number", BuiltinAwait, []value.Value{value.Int(1)}, "bad argument #1 to 'await' (handle expected, got number)"},
		{"spawn string", BuiltinSpawn, []value.Value{value.String("f")}, "bad argument #1 to 'spawn' (function expected, got string)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, config.Default())

			f, err := e.RunTask(builtin(t, e, tt.builtin), tt.args...)
			require.NoError(t, err)

			_, err = await(t, f)
			require.Error(t, err)
			assert.True(t, IsScriptFault(err))
			assert.True(t, IsArgumentError(err))

			var ae *ArgumentError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.wantMsg, ae.Error())
		})
	}
}

func TestEngine_SleepAcceptsFloat(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())

	f, err := e.RunTask(builtin(t, e, BuiltinSleep), value.Float(1.5))
	require.NoError(t, err)

	v, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, value.Nil{}, v)
}

func TestEngine_Call(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())

	body := func(y value.Yielder, args value.Tuple) (value.Value, error) {
		return value.Tuple{args[1], args[0]}, nil
	}

	f, err := e.Call(body, "café", 2)
	require.NoError(t, err)

	v, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, value.Tuple{value.Int(2), value.String("café")}, v)
}

func TestEngine_CallConversionErrors(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())

	_, err := e.Call(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "convert function")

	body := func(y value.Yielder, args value.Tuple) (value.Value, error) {
		return value.Nil{}, nil
	}
	_, err = e.Call(body, 1, struct{ A int }{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "convert argument #2")

	var ce *value.ConversionError
	assert.ErrorAs(t, err, &ce)
}

func TestEngine_RunTaskNonCallable(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())

	_, err := e.RunTask(value.Int(3))
	require.Error(t, err)
	assert.True(t, IsInvalidCallable(err))
}

func TestEngine_CloseRefusesNewTasks(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())
	e.Close()
	e.Close()

	fn := value.NewFunction("late", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		return value.Nil{}, nil
	})
	_, err := e.RunTask(fn)
	require.Error(t, err)
	assert.True(t, IsShutdown(err))
}

func TestEngine_CloseFromTaskBody(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())

	fn := value.NewFunction("closer", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		e.Close()
		return value.Int(1), nil
	})

	f, err := e.RunTask(fn)
	require.NoError(t, err)

	v, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), v)

	select {
	case <-e.exec.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop after Close from a task body")
	}
	_, err = e.RunTask(fn)
	assert.True(t, IsShutdown(err))
}

func TestEngine_SpawnPanicFaultsParent(t *testing.T) {
	e, _ := newTestEngine(t, config.Default(),
		WithIDGenerator(testutil.NewFixedGenerator("main")))
	spawn := builtin(t, e, BuiltinSpawn)

	child := value.NewFunction("child", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		return value.Nil{}, nil
	})
	parent := value.NewFunction("parent", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		return value.Call(y, spawn, child)
	})

	tk, err := e.Spawn(parent)
	require.NoError(t, err)
	assert.Equal(t, "main", tk.ID())

	_, err = await(t, tk.Completion())
	require.Error(t, err)
	var re *task.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, task.ErrCodePanic, re.Code)
	assert.Contains(t, re.Message, "all ids exhausted")

	ran := make(chan struct{})
	require.NoError(t, e.Post(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("executor stopped after the panic")
	}
	assert.Equal(t, int64(0), e.Stats().Panics)
}

func TestEngine_PendingSleepAfterCloseFaultsTask(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())
	sleep := builtin(t, e, BuiltinSleep)

	fn := value.NewFunction("sleeper", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		if _, err := value.Call(y, sleep, value.Int(100)); err != nil {
			return nil, err
		}
		return value.Nil{}, nil
	})

	tk, err := e.Spawn(fn)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return tk.Resumes() == 1 }, time.Second, time.Millisecond)
	e.Close()

	_, err = await(t, tk.Completion())
	require.Error(t, err)
	assert.True(t, IsShutdown(err))
}

func TestEngine_ConcurrentRunTask(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())
	sleep := builtin(t, e, BuiltinSleep)

	fn := value.NewFunction("worker", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		if _, err := value.Call(y, sleep, value.Int(1)); err != nil {
			return nil, err
		}
		return args[0], nil
	})

	const n = 50
	var wg sync.WaitGroup
	results := make([]value.Value, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := e.RunTask(fn, value.Int(i))
			if err != nil {
				errs[i] = err
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			results[i], errs[i] = f.Await(ctx)
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, value.Int(i), results[i])
	}
}

func TestEngine_AutoYieldFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.AutoYield = 1
	e, rec := newTestEngine(t, cfg)

	fn := value.NewFunction("busy", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		y.Checkpoint()
		return value.Nil{}, nil
	})

	f, err := e.RunTask(fn)
	require.NoError(t, err)
	_, err = await(t, f)
	require.NoError(t, err)

	assert.Contains(t, rec.Lines(), "preempt task-1")
}

func TestEngine_NewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.QueueCapacity = 0

	_, err := New(cfg)
	require.Error(t, err)

	var ce *config.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "queue_capacity", ce.Field)
}

func TestEngine_Globals(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())

	g := e.Globals()
	assert.Len(t, g, 3)
	for _, name := range []string{BuiltinSleep, BuiltinAwait, BuiltinSpawn} {
		fn, ok := g[name]
		require.True(t, ok, name)
		assert.Equal(t, name, fn.Name)
	}

	delete(g, BuiltinSleep)
	_, ok := e.Global(BuiltinSleep)
	assert.True(t, ok, "Globals returns a copy")
}

func TestEngine_Stats(t *testing.T) {
	e, _ := newTestEngine(t, config.Default())

	fn := value.NewFunction("main", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		y.Yield()
		return value.Nil{}, nil
	})
	f, err := e.RunTask(fn)
	require.NoError(t, err)
	_, err = await(t, f)
	require.NoError(t, err)

	stats := e.Stats()
	assert.GreaterOrEqual(t, stats.Posted, int64(2))
	assert.Equal(t, config.Default(), e.Config())
}

func TestEngine_PostOrdersSpawnedTasks(t *testing.T) {
	e, rec := newTestEngine(t, config.Default())

	fn := func(name string) *value.Function {
		return value.NewFunction(name, func(y value.Yielder, args value.Tuple) (value.Value, error) {
			y.Yield()
			return value.String(name), nil
		})
	}

	started := make(chan []*task.Task, 1)
	require.NoError(t, e.Post(func() {
		a, _ := e.Spawn(fn("a"))
		b, _ := e.Spawn(fn("b"))
		started <- []*task.Task{a, b}
	}))

	for _, tk := range <-started {
		require.NotNil(t, tk)
		_, err := await(t, tk.Completion())
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		"resume task-1 ()",
		"step task-1 ()",
		"resume task-2 ()",
		"step task-2 ()",
		"resume task-1 ()",
		`done task-1 "a"`,
		"resume task-2 ()",
		`done task-2 "b"`,
	}, rec.Lines())
}

func TestEngine_NativeCompletionFromForeignGoroutine(t *testing.T) {
	e, rec := newTestEngine(t, config.Default())
	awaitFn := builtin(t, e, BuiltinAwait)
	native := testutil.NewManualAwaitable()

	fn := value.NewFunction("reader", func(y value.Yielder, args value.Tuple) (value.Value, error) {
		return value.Call(y, awaitFn, native.Handle())
	})

	tk, err := e.Spawn(fn)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return native.Subscribers() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, coroutine.Suspended, tk.State())

	go func() {
		_ = native.Complete([]any{"payload", 3})
	}()

	v, err := await(t, tk.Completion())
	require.NoError(t, err)
	assert.Equal(t, value.Tuple{value.String("payload"), value.Int(3)}, v)
	assert.Equal(t, int64(1), native.Subscribers())
	assert.Equal(t, 1, rec.Count(task.EventWake, tk.ID()))
}
