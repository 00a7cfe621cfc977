package value

// Value is a sealed interface over the script value model.
// Only Nil, Bool, Int, Float, String, Tuple, *Function and *Handle implement it.
type Value interface {
	scriptValue() // Sealed - only these types implement it
}

// Nil is the absence of a value.
type Nil struct{}

func (Nil) scriptValue() {}

// Bool is a boolean scalar.
type Bool bool

func (Bool) scriptValue() {}

// Int is an integer scalar.
type Int int64

func (Int) scriptValue() {}

// Float is a floating point scalar.
type Float float64

func (Float) scriptValue() {}

// String is a string scalar.
type String string

func (String) scriptValue() {}

// Tuple is an ordered group of values, as produced by multiple returns
// or multi-value yields.
type Tuple []Value

func (Tuple) scriptValue() {}

// Unpack collapses a tuple to a single value: Nil when empty,
// the only element when it has one, the tuple itself otherwise.
func (t Tuple) Unpack() Value {
	switch len(t) {
	case 0:
		return Nil{}
	case 1:
		return Normalize(t[0])
	default:
		return t
	}
}

// Yielder is handed to a running function body. It is the body's only way
// to suspend its coroutine.
type Yielder interface {
	// Yield suspends the coroutine with vals and returns the arguments of
	// the next resume.
	Yield(vals ...Value) Tuple

	// Checkpoint marks an instruction boundary. The coroutine may be
	// force-suspended here; the body continues transparently afterwards.
	Checkpoint()
}

// Body is the executable part of a Function.
type Body func(y Yielder, args Tuple) (Value, error)

// Function is a callable script value.
type Function struct {
	Name string
	Body Body
}

func (*Function) scriptValue() {}

// NewFunction creates a named callable.
func NewFunction(name string, body Body) *Function {
	return &Function{Name: name, Body: body}
}

// Call runs fn inline on the caller's coroutine. Yields inside fn suspend
// the caller.
func Call(y Yielder, fn *Function, args ...Value) (Value, error) {
	v, err := fn.Body(y, Tuple(args))
	if err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

// Awaitable is a pending external computation. Subscribers are notified
// exactly once, on whatever goroutine completes the computation.
type Awaitable interface {
	OnComplete(fn func(result any, err error))
}

// Handle wraps a native asynchronous completion so that scripts can carry
// and yield it. The scheduler only subscribes to it.
type Handle struct {
	Awaitable Awaitable
}

func (*Handle) scriptValue() {}

// NewHandle wraps an Awaitable.
func NewHandle(a Awaitable) *Handle {
	return &Handle{Awaitable: a}
}

// Normalize maps a nil interface to Nil.
func Normalize(v Value) Value {
	if v == nil {
		return Nil{}
	}
	return v
}

// ToScalar returns the first element of a tuple (Nil for an empty tuple)
// and any other value unchanged.
func ToScalar(v Value) Value {
	if t, ok := v.(Tuple); ok {
		if len(t) == 0 {
			return Nil{}
		}
		return Normalize(t[0])
	}
	return Normalize(v)
}

// AsHandle reports whether v is, or is a single-element tuple holding,
// a usable native async handle.
func AsHandle(v Value) (*Handle, bool) {
	if t, ok := v.(Tuple); ok && len(t) == 1 {
		v = t[0]
	}
	h, ok := v.(*Handle)
	if !ok || h == nil || h.Awaitable == nil {
		return nil, false
	}
	return h, true
}

// AsFunction reports whether v is a usable callable.
func AsFunction(v Value) (*Function, bool) {
	fn, ok := v.(*Function)
	if !ok || fn == nil || fn.Body == nil {
		return nil, false
	}
	return fn, true
}

// TypeName returns the script-level type name of v.
func TypeName(v Value) string {
	switch v.(type) {
	case nil, Nil:
		return "nil"
	case Bool:
		return "boolean"
	case Int, Float:
		return "number"
	case String:
		return "string"
	case Tuple:
		return "tuple"
	case *Function:
		return "function"
	case *Handle:
		return "userdata"
	default:
		return "unknown"
	}
}
