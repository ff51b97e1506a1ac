// Package script loads a JavaScript trigger-declaration file into a
// supervisor.Context, the concrete instantiation of the "embedded
// expression/scripting runtime" environment described in SPEC_FULL.md §6a.
// It plays the role Tack.start()'s exec() played in the original: the
// script runs once, to completion, registering triggers via a TriggerFactory
// before the polling loop begins.
package script

import (
	"fmt"
	"os"
	"time"

	"github.com/dop251/goja"

	"github.com/tack-sh/tack/remotetask"
	"github.com/tack-sh/tack/supervisor"
)

// Load reads the script at filename, evaluates it in a fresh goja.Runtime
// with the "tack" and "TriggerFactory" global bindings bound to ctx, and
// returns once evaluation finishes. Triggers the script declared are already
// registered with ctx by the time Load returns without error; the caller
// runs ctx.Run() next. A script error (syntax, thrown exception, or a
// Factory.new fatal) is a configuration error (SPEC_FULL.md §7) and is
// returned as an error wrapped with the script's file name (a Go panic
// escaping evaluation is recovered and returned the same way) so the caller
// can abort startup.
func Load(ctx *supervisor.Context, filename string) (err error) {
	src, readErr := os.ReadFile(filename)
	if readErr != nil {
		return fmt.Errorf("read script %q: %w", filename, readErr)
	}

	rt := goja.New()
	env := &environment{
		ctx:     ctx,
		factory: supervisor.NewFactory(ctx),
		rt:      rt,
	}

	if setErr := rt.Set("tack", env.tackObject()); setErr != nil {
		return fmt.Errorf("bind tack: %w", setErr)
	}
	if setErr := rt.Set("TriggerFactory", env.triggerFactoryConstructor); setErr != nil {
		return fmt.Errorf("bind TriggerFactory: %w", setErr)
	}

	defer func() {
		if r := recover(); r != nil {
			if gojaErr, ok := r.(*goja.Exception); ok {
				err = fmt.Errorf("evaluate script %q: %w", filename, gojaErr)
				return
			}
			err = fmt.Errorf("evaluate script %q: %v", filename, r)
		}
	}()

	if _, runErr := rt.RunScript(filename, string(src)); runErr != nil {
		return fmt.Errorf("evaluate script %q: %w", filename, runErr)
	}
	return nil
}

// environment holds the Go-side state backing one script evaluation's
// "tack" and "TriggerFactory" bindings.
type environment struct {
	ctx     *supervisor.Context
	factory *supervisor.Factory
	rt      *goja.Runtime
}

// tackObject builds the JS object backing the global "tack" binding:
// scratch, requestShutdown(), and interval (read/write, seconds),
// per SPEC_FULL.md §6a.
func (e *environment) tackObject() *goja.Object {
	obj := e.rt.NewObject()

	// Context.scratch is a Go map; goja's reflection layer proxies get/set
	// directly onto it, so "tack.scratch.foo = 1" in script is visible to
	// Go code reading ctx.Scratch["foo"] and vice versa.
	_ = obj.Set("scratch", e.rt.ToValue(e.ctx.Scratch))

	_ = obj.Set("requestShutdown", func(goja.FunctionCall) goja.Value {
		e.ctx.RequestShutdown()
		return goja.Undefined()
	})

	// interval is exposed as a pair of accessor methods rather than a plain
	// property: a plain JS object property backed by a Go map (as scratch
	// is) proxies get/set automatically, but Context.interval is a
	// time.Duration field reachable only through SetInterval/Interval, so
	// script code reads/writes it explicitly.
	_ = obj.Set("interval", func(goja.FunctionCall) goja.Value {
		return e.rt.ToValue(e.ctx.Interval().Seconds())
	})
	_ = obj.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		seconds := call.Argument(0).ToFloat()
		e.ctx.SetInterval(time.Duration(seconds * float64(time.Second)))
		return goja.Undefined()
	})

	return obj
}

// triggerFactoryConstructor implements the global "TriggerFactory" binding:
// called as TriggerFactory(tack), it returns an object exposing a single
// "new(options)" method, mirroring TriggerFactory.__init__/new in the
// original (SPEC_FULL.md §4.2, §6a). The tack argument is accepted but
// ignored; this instantiation's factory is always bound to the same Context
// the script itself was loaded against.
func (e *environment) triggerFactoryConstructor(goja.FunctionCall) goja.Value {
	obj := e.rt.NewObject()
	_ = obj.Set("new", e.newTrigger)
	return obj
}

// newTrigger implements TriggerFactory.new(options): it converts the JS
// options object into supervisor.Options, resolving "handler" into the
// kind-specific Go func type Factory.New's constructors expect, then
// delegates to supervisor.Factory.New.
func (e *environment) newTrigger(call goja.FunctionCall) goja.Value {
	raw := call.Argument(0)
	obj := raw.ToObject(e.rt)
	if obj == nil {
		panic(e.rt.NewTypeError("Factory.new requires an options object"))
	}

	opts := supervisor.Options{}
	for _, k := range obj.Keys() {
		opts[k] = obj.Get(k).Export()
	}

	kind, _ := opts["kind"].(string)

	if handlerVal := obj.Get("handler"); handlerVal != nil && !goja.IsUndefined(handlerVal) {
		handler, err := e.convertHandler(kind, handlerVal)
		if err != nil {
			panic(e.rt.NewGoError(err))
		}
		opts["handler"] = handler
	}

	trig, err := e.factory.New(opts)
	if err != nil {
		panic(e.rt.NewGoError(err))
	}

	return e.rt.ToValue(trig)
}

// convertHandler resolves a script-supplied handler value into the Go func
// type the named kind's constructor expects: either a JS function (called
// directly) or a string naming a pre-registered built-in, per SPEC_FULL.md
// §6a's "named entry points... or built-in actions" note.
func (e *environment) convertHandler(kind string, v goja.Value) (any, error) {
	if fn, ok := goja.AssertFunction(v); ok {
		h := wrapJSHandler(e.rt, kind, fn)
		if h == nil {
			return nil, fmt.Errorf("no such trigger kind: %s", kind)
		}
		return h, nil
	}

	name, ok := v.Export().(string)
	if !ok {
		return nil, fmt.Errorf("handler must be a function or a built-in name, got %T", v.Export())
	}
	h, err := e.builtinHandler(kind, name)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// wrapJSHandler adapts a JS callable into the Handler func type for kind.
// Per SPEC_FULL.md §7, a handler exception (the JS function throwing)
// propagates to the supervisor loop uncaught: the call's returned error is
// re-panicked rather than swallowed.
func wrapJSHandler(rt *goja.Runtime, kind string, fn goja.Callable) any {
	switch kind {
	case "timer":
		return supervisor.TimerHandler(func(t *supervisor.Timer, now time.Time) {
			if _, err := fn(goja.Undefined(), rt.ToValue(t), rt.ToValue(now.Unix())); err != nil {
				panic(err)
			}
		})
	case "process":
		return supervisor.ProcessHandler(func(p *supervisor.Process, exitCode int) {
			if _, err := fn(goja.Undefined(), rt.ToValue(p), rt.ToValue(exitCode)); err != nil {
				panic(err)
			}
		})
	case "globus":
		return supervisor.RemoteTaskHandler(func(r *supervisor.RemoteTask, status remotetask.Status) {
			if _, err := fn(goja.Undefined(), rt.ToValue(r), rt.ToValue(string(status))); err != nil {
				panic(err)
			}
		})
	case "reader":
		return supervisor.ReaderHandler(func(r *supervisor.Reader, line string) {
			if _, err := fn(goja.Undefined(), rt.ToValue(r), rt.ToValue(line)); err != nil {
				panic(err)
			}
		})
	default:
		return nil
	}
}

// builtinHandler resolves name against the fixed set of Go-native handler
// bodies a script can select without writing JS (SPEC_FULL.md §6a: "log",
// "shutdown").
func (e *environment) builtinHandler(kind, name string) (any, error) {
	var action func(self supervisor.Trigger, args ...any)

	switch name {
	case "log":
		action = func(self supervisor.Trigger, args ...any) {
			e.ctx.Logger().Info("builtin handler", "trigger", self.String(), "args", args)
		}
	case "shutdown":
		action = func(self supervisor.Trigger, _ ...any) {
			self.RequestShutdown()
		}
	default:
		return nil, fmt.Errorf("no such built-in handler: %s", name)
	}

	h := wrapBuiltin(kind, action)
	if h == nil {
		return nil, fmt.Errorf("no such trigger kind: %s", kind)
	}
	return h, nil
}

// wrapBuiltin adapts a kind-agnostic action into the Handler func type for
// kind, boxing the kind-specific arguments as []any so one action body
// serves every kind.
func wrapBuiltin(kind string, action func(self supervisor.Trigger, args ...any)) any {
	switch kind {
	case "timer":
		return supervisor.TimerHandler(func(t *supervisor.Timer, now time.Time) {
			action(t, now)
		})
	case "process":
		return supervisor.ProcessHandler(func(p *supervisor.Process, exitCode int) {
			action(p, exitCode)
		})
	case "globus":
		return supervisor.RemoteTaskHandler(func(r *supervisor.RemoteTask, status remotetask.Status) {
			action(r, status)
		})
	case "reader":
		return supervisor.ReaderHandler(func(r *supervisor.Reader, line string) {
			action(r, line)
		})
	default:
		return nil
	}
}
