package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ConversionError reports a host value with no script representation.
type ConversionError struct {
	GoType string
	Reason string
}

func (e *ConversionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot convert %s to a script value: %s", e.GoType, e.Reason)
	}
	return fmt.Sprintf("cannot convert %s to a script value", e.GoType)
}

// FromGo converts a host value into the script value model.
//
// Strings are NFC normalized at this boundary so that equal text always
// compares equal inside scripts.
func FromGo(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Nil{}, nil
	case Value:
		return Normalize(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(x), nil
	case int8:
		return Int(x), nil
	case int16:
		return Int(x), nil
	case int32:
		return Int(x), nil
	case int64:
		return Int(x), nil
	case uint:
		return fromUint(uint64(x), "uint")
	case uint8:
		return Int(x), nil
	case uint16:
		return Int(x), nil
	case uint32:
		return Int(x), nil
	case uint64:
		return fromUint(x, "uint64")
	case float32:
		return Float(x), nil
	case float64:
		return Float(x), nil
	case string:
		return String(norm.NFC.String(x)), nil
	case []Value:
		return Tuple(x), nil
	case []any:
		t := make(Tuple, len(x))
		for i, elem := range x {
			ev, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			t[i] = ev
		}
		return t, nil
	case Body:
		return NewFunction("", x), nil
	case func(Yielder, Tuple) (Value, error):
		return NewFunction("", x), nil
	case Awaitable:
		return NewHandle(x), nil
	default:
		return nil, &ConversionError{GoType: fmt.Sprintf("%T", v)}
	}
}

func fromUint(u uint64, typ string) (Value, error) {
	if u > math.MaxInt64 {
		return nil, &ConversionError{GoType: typ, Reason: "overflows int64"}
	}
	return Int(int64(u)), nil
}

// ToGo converts a script value back into plain host values. Functions and
// handles are returned as-is.
func ToGo(v Value) any {
	switch x := Normalize(v).(type) {
	case Nil:
		return nil
	case Bool:
		return bool(x)
	case Int:
		return int64(x)
	case Float:
		return float64(x)
	case String:
		return string(x)
	case Tuple:
		out := make([]any, len(x))
		for i, elem := range x {
			out[i] = ToGo(elem)
		}
		return out
	default:
		return x
	}
}

// Format renders v deterministically. Used for traces and diagnostics.
func Format(v Value) string {
	switch x := Normalize(v).(type) {
	case Nil:
		return "nil"
	case Bool:
		return strconv.FormatBool(bool(x))
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case Float:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case String:
		return strconv.Quote(norm.NFC.String(string(x)))
	case Tuple:
		return "(" + FormatArgs(x) + ")"
	case *Function:
		if x.Name == "" {
			return "function"
		}
		return "function: " + x.Name
	case *Handle:
		return "handle"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// FormatArgs renders the elements of t separated by ", ".
func FormatArgs(t Tuple) string {
	parts := make([]string, len(t))
	for i, elem := range t {
		parts[i] = Format(elem)
	}
	return strings.Join(parts, ", ")
}
