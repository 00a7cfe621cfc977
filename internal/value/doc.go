// Package value defines the script value model seen by the scheduler.
//
// A Value is one of: Nil, a scalar (Bool, Int, Float, String), a Tuple,
// a callable *Function, or a *Handle wrapping a native asynchronous
// completion. The set is closed; the scheduler classifies yields by
// switching over these variants.
//
// Host values cross into the model through FromGo, which is best-effort:
// anything without a representation yields a *ConversionError.
package value
