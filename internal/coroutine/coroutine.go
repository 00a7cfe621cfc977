// Package coroutine implements the coroutine primitive consumed by the
// scheduler: create, resume and query-state over a script function.
//
// Each coroutine body runs on its own goroutine, but control is handed
// back and forth over unbuffered channels so that exactly one side runs
// at a time. From the resumer's point of view Resume is an ordinary
// synchronous call.
package coroutine

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/roach88/scriptsched/internal/value"
)

// State is the lifecycle state of a coroutine.
type State int32

const (
	// NotStarted means Resume has never been called.
	NotStarted State = iota
	// Running means the body is executing inside a Resume call.
	Running
	// Suspended means the body yielded and waits for the next Resume.
	Suspended
	// ForceSuspended means the body was interrupted at a checkpoint.
	ForceSuspended
	// Dead means the body returned or faulted.
	Dead
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case ForceSuspended:
		return "force_suspended"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrInvalidArgument is returned by Create for non-callable values.
	ErrInvalidArgument = errors.New("coroutine: invalid argument")

	// ErrCannotResumeDead is returned when resuming a finished coroutine.
	ErrCannotResumeDead = errors.New("coroutine: cannot resume dead coroutine")

	// ErrAlreadyRunning is returned when resuming a coroutine from inside
	// its own body or concurrently with another Resume.
	ErrAlreadyRunning = errors.New("coroutine: cannot resume running coroutine")

	errGoexit = errors.New("coroutine: body called runtime.Goexit")
)

type msgKind int

const (
	msgYield msgKind = iota
	msgForced
	msgReturn
	msgFault
)

type message struct {
	kind msgKind
	val  value.Value
	err  error
}

// Coroutine is a resumable execution of a script function.
//
// Resume must not be called concurrently; the scheduler guarantees this by
// resuming only on its affine thread.
type Coroutine struct {
	fn    *value.Function
	state atomic.Int32
	in    chan value.Tuple
	out   chan message

	autoYield atomic.Int64
	ticks     int64 // touched only by the body goroutine

	// enter and leave run on the body goroutine when it takes and gives
	// back control.
	enter func()
	leave func()
}

// Create wraps a callable in a new coroutine.
// Returns an error wrapping ErrInvalidArgument if fn is not a function.
func Create(fn value.Value) (*Coroutine, error) {
	f, ok := value.AsFunction(fn)
	if !ok {
		return nil, fmt.Errorf("%w: cannot create coroutine from %s", ErrInvalidArgument, value.TypeName(fn))
	}
	return &Coroutine{
		fn:  f,
		in:  make(chan value.Tuple),
		out: make(chan message),
	}, nil
}

// State returns the current lifecycle state.
// Thread-safe: may be called from any goroutine.
func (c *Coroutine) State() State {
	return State(c.state.Load())
}

// Function returns the callable the coroutine runs.
func (c *Coroutine) Function() *value.Function {
	return c.fn
}

// SetHandoff installs hooks run on the body goroutine each time it gains
// control from Resume (enter) and just before it hands control back
// (leave). Either may be nil. Must be called before the first Resume.
func (c *Coroutine) SetHandoff(enter, leave func()) {
	c.enter = enter
	c.leave = leave
}

// SetAutoYield makes every n-th Checkpoint force-suspend the coroutine.
// n <= 0 disables forced suspension.
func (c *Coroutine) SetAutoYield(n int) {
	c.autoYield.Store(int64(n))
}

// Resume transfers control to the body with args and blocks until it
// yields, returns, faults or is force-suspended.
//
// The returned value is the yielded value when Suspended, the return value
// when Dead, and Nil when ForceSuspended. A fault inside the body is
// returned as a *ScriptError and leaves the coroutine Dead.
func (c *Coroutine) Resume(args value.Tuple) (State, value.Value, error) {
	switch prev := c.State(); prev {
	case Dead:
		return Dead, nil, ErrCannotResumeDead
	case Running:
		return Running, nil, ErrAlreadyRunning
	case NotStarted:
		if !c.state.CompareAndSwap(int32(NotStarted), int32(Running)) {
			return c.State(), nil, ErrAlreadyRunning
		}
		go c.main()
	default:
		if !c.state.CompareAndSwap(int32(prev), int32(Running)) {
			return c.State(), nil, ErrAlreadyRunning
		}
	}

	if args == nil {
		args = value.Tuple{}
	}
	c.in <- args
	msg := <-c.out

	switch msg.kind {
	case msgYield:
		c.state.Store(int32(Suspended))
		return Suspended, value.Normalize(msg.val), nil
	case msgForced:
		c.state.Store(int32(ForceSuspended))
		return ForceSuspended, value.Nil{}, nil
	case msgReturn:
		c.state.Store(int32(Dead))
		return Dead, value.Normalize(msg.val), nil
	default:
		c.state.Store(int32(Dead))
		return Dead, nil, msg.err
	}
}

// main is the body goroutine. The final message is always delivered, even
// when the body panics or calls runtime.Goexit.
func (c *Coroutine) main() {
	args := <-c.in
	c.handIn()

	msg := message{kind: msgFault, err: &ScriptError{Function: c.fn.Name, Err: errGoexit}}
	defer func() {
		c.handOut()
		c.out <- msg
	}()
	defer func() {
		if r := recover(); r != nil {
			msg = message{kind: msgFault, err: newPanicError(c.fn.Name, r, debug.Stack())}
		}
	}()

	v, err := c.fn.Body(&yielder{c: c}, args)
	if err != nil {
		msg = message{kind: msgFault, err: &ScriptError{Function: c.fn.Name, Err: err}}
		return
	}
	msg = message{kind: msgReturn, val: v}
}

// yielder is the body-side view of a coroutine.
type yielder struct {
	c *Coroutine
}

func (y *yielder) Yield(vals ...value.Value) value.Tuple {
	var v value.Value
	switch len(vals) {
	case 0:
		v = value.Tuple{}
	case 1:
		v = value.Normalize(vals[0])
	default:
		v = value.Tuple(vals)
	}
	y.c.handOut()
	y.c.out <- message{kind: msgYield, val: v}
	args := <-y.c.in
	y.c.handIn()
	return args
}

func (y *yielder) Checkpoint() {
	c := y.c
	n := c.autoYield.Load()
	if n <= 0 {
		return
	}
	c.ticks++
	if c.ticks < n {
		return
	}
	c.ticks = 0
	c.handOut()
	c.out <- message{kind: msgForced}
	<-c.in // forced resumes carry no meaning
	c.handIn()
}

func (c *Coroutine) handIn() {
	if c.enter != nil {
		c.enter()
	}
}

func (c *Coroutine) handOut() {
	if c.leave != nil {
		c.leave()
	}
}
