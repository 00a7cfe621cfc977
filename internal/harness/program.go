package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/scriptsched/internal/engine"
	"github.com/roach88/scriptsched/internal/future"
	"github.com/roach88/scriptsched/internal/value"
)

// program is a scenario's functions compiled against one engine's builtins.
type program struct {
	funcs map[string]*value.Function
	sleep *value.Function
	await *value.Function
	spawn *value.Function
}

// frame is the per-invocation state of a step function.
type frame struct {
	args value.Tuple
	last value.Value
	vars map[string]value.Value
}

func compile(s *Scenario, eng *engine.Engine) (*program, error) {
	p := &program{funcs: make(map[string]*value.Function, len(s.Functions))}

	var ok bool
	if p.sleep, ok = eng.Global(engine.BuiltinSleep); !ok {
		return nil, fmt.Errorf("engine has no %s builtin", engine.BuiltinSleep)
	}
	if p.await, ok = eng.Global(engine.BuiltinAwait); !ok {
		return nil, fmt.Errorf("engine has no %s builtin", engine.BuiltinAwait)
	}
	if p.spawn, ok = eng.Global(engine.BuiltinSpawn); !ok {
		return nil, fmt.Errorf("engine has no %s builtin", engine.BuiltinSpawn)
	}

	// Functions may refer to each other, so register them all before any
	// body can run.
	for _, def := range s.Functions {
		p.funcs[def.Name] = value.NewFunction(def.Name, p.body(def.Steps))
	}
	return p, nil
}

func (p *program) body(steps []Step) value.Body {
	return func(y value.Yielder, args value.Tuple) (value.Value, error) {
		fr := &frame{
			args: args,
			last: value.Nil{},
			vars: make(map[string]value.Value),
		}
		for _, step := range steps {
			ret, done, err := p.exec(y, fr, step)
			if err != nil {
				return nil, err
			}
			if done {
				return ret, nil
			}
		}
		return value.Nil{}, nil
	}
}

// exec runs one step. done reports that the function returned ret.
func (p *program) exec(y value.Yielder, fr *frame, step Step) (ret value.Value, done bool, err error) {
	switch {
	case step.Sleep != nil:
		fr.last, err = value.Call(y, p.sleep, value.Float(*step.Sleep))

	case step.Yield != nil:
		vals, cerr := fr.resolveAll(*step.Yield)
		if cerr != nil {
			return nil, false, cerr
		}
		fr.last = y.Yield(vals...).Unpack()

	case step.Spawn != nil:
		args, cerr := fr.resolveAll(step.Spawn.Args)
		if cerr != nil {
			return nil, false, cerr
		}
		callArgs := append([]value.Value{p.funcs[step.Spawn.Function]}, args...)
		fr.last, err = value.Call(y, p.spawn, callArgs...)
		fr.save(step.Spawn.As)

	case step.Call != nil:
		args, cerr := fr.resolveAll(step.Call.Args)
		if cerr != nil {
			return nil, false, cerr
		}
		fr.last, err = value.Call(y, p.funcs[step.Call.Function], args...)
		fr.save(step.Call.As)

	case step.Await != "":
		h, cerr := fr.resolve(step.Await)
		if cerr != nil {
			return nil, false, cerr
		}
		fr.last, err = value.Call(y, p.await, h)

	case step.Reject != "":
		h := value.NewHandle(future.Rejected[any](errors.New(step.Reject)))
		fr.last, err = value.Call(y, p.await, h)

	case step.Checkpoint != 0:
		for range step.Checkpoint {
			y.Checkpoint()
		}

	case step.Return != nil:
		v, cerr := fr.resolve(step.Return)
		if cerr != nil {
			return nil, false, cerr
		}
		return v, true, nil

	case step.Fail != "":
		return nil, false, errors.New(step.Fail)
	}

	return nil, false, err
}

func (fr *frame) save(name string) {
	if name != "" && fr.last != nil {
		fr.vars[name] = fr.last
	}
}

// resolve turns a YAML value into a script value, expanding references.
func (fr *frame) resolve(v any) (value.Value, error) {
	ref, ok := v.(string)
	if !ok || !strings.HasPrefix(ref, "$") {
		return value.FromGo(v)
	}

	switch name := ref[1:]; name {
	case "last":
		return fr.last, nil
	case "args":
		return fr.args, nil
	default:
		saved, ok := fr.vars[name]
		if !ok {
			return nil, fmt.Errorf("unknown reference %q", ref)
		}
		return saved, nil
	}
}

func (fr *frame) resolveAll(vs []any) ([]value.Value, error) {
	out := make([]value.Value, len(vs))
	for i, v := range vs {
		rv, err := fr.resolve(v)
		if err != nil {
			return nil, err
		}
		out[i] = rv
	}
	return out, nil
}
