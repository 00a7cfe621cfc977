package future

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_ResolveOnce(t *testing.T) {
	f := New[int]()
	assert.Equal(t, Pending, f.Status())

	require.NoError(t, f.Resolve(42))
	assert.Equal(t, Fulfilled, f.Status())

	err := f.Resolve(7)
	assert.ErrorIs(t, err, ErrAlreadySet)
	err = f.Reject(errors.New("late"))
	assert.ErrorIs(t, err, ErrAlreadySet)

	v, ok, err := f.Poll()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 42, v, "first assignment wins")
}

func TestFuture_Reject(t *testing.T) {
	boom := errors.New("boom")
	f := Rejected[string](boom)

	assert.Equal(t, Faulted, f.Status())
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestFuture_RejectNil(t *testing.T) {
	f := New[int]()
	require.NoError(t, f.Reject(nil))
	_, _, err := f.Poll()
	assert.ErrorIs(t, err, ErrNilFault)
}

func TestFuture_PollPending(t *testing.T) {
	f := New[int]()
	_, ok, _ := f.Poll()
	assert.False(t, ok)
}

func TestFuture_AwaitContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFuture_ConcurrentCompletion(t *testing.T) {
	f := New[int]()

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if f.Resolve(n) == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one writer succeeds")
	select {
	case <-f.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestFuture_ThenBeforeAndAfter(t *testing.T) {
	f := New[int]()

	var got []int
	f.Then(func(v int, err error) { got = append(got, v) })
	require.NoError(t, f.Resolve(5))
	f.Then(func(v int, err error) { got = append(got, v*2) })

	assert.Equal(t, []int{5, 10}, got)
}

func TestFuture_OnComplete(t *testing.T) {
	f := Resolved(3)

	var result any
	f.OnComplete(func(r any, err error) {
		require.NoError(t, err)
		result = r
	})
	assert.Equal(t, 3, result)

	boom := errors.New("boom")
	var gotErr error
	Rejected[int](boom).OnComplete(func(r any, err error) {
		assert.Nil(t, r)
		gotErr = err
	})
	assert.ErrorIs(t, gotErr, boom)
}

func TestAfter(t *testing.T) {
	start := time.Now()
	f := After(15 * time.Millisecond)

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	v, ok, err := f.Poll()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Nil(t, v, "timers complete with no payload")
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "fulfilled", Fulfilled.String())
	assert.Equal(t, "faulted", Faulted.String())
	assert.Equal(t, "unknown", Status(9).String())
}
