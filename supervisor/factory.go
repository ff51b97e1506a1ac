package supervisor

import (
	"fmt"

	"github.com/mitchellh/hashstructure"
)

// constructor builds a concrete Trigger from its option dictionary. It does
// not register the trigger with ctx; Factory.New does that once construction
// succeeds.
type constructor func(ctx *Context, opts Options) (Trigger, error)

// kinds is the fixed, closed registry of recognised trigger kinds
// (SPEC_FULL.md §4.2). All kind names are lowercase ASCII identifiers.
var kinds = map[string]constructor{
	"timer":   newTimerFromOptions,
	"process": newProcessFromOptions,
	"globus":  newRemoteTaskFromOptions,
	"reader":  newReaderFromOptions,
}

// Factory constructs triggers of a named kind and registers them with its
// Context, mirroring the original TriggerFactory.
type Factory struct {
	ctx *Context
}

// NewFactory returns a Factory bound to ctx.
func NewFactory(ctx *Context) *Factory {
	return &Factory{ctx: ctx}
}

// New reads "kind" from opts (required; a missing or unknown kind is a fatal
// configuration error), constructs the matching trigger, registers it with
// the Context, and returns it.
func (f *Factory) New(opts Options) (Trigger, error) {
	kindVal, ok := opts["kind"]
	if !ok {
		f.ctx.logger.Error("given trigger with no kind")
		return nil, fmt.Errorf("given trigger with no kind")
	}
	kind, ok := kindVal.(string)
	if !ok {
		f.ctx.logger.Error("kind must be a string", "got", fmt.Sprintf("%T", kindVal))
		return nil, fmt.Errorf("kind must be a string, got %T", kindVal)
	}

	ctor, ok := kinds[kind]
	if !ok {
		f.ctx.logger.Error("no such kind", "kind", kind)
		return nil, fmt.Errorf("no such kind: %s", kind)
	}

	trig, err := ctor(f.ctx, opts)
	if err != nil {
		return nil, err
	}

	f.ctx.add(trig)

	if hash, err := hashstructure.Hash(opts, nil); err == nil {
		f.ctx.logger.Info("registered trigger", "trigger", trig.String(), "kind", kind, "optionsHash", fmt.Sprintf("%x", hash))
	} else {
		f.ctx.logger.Info("registered trigger", "trigger", trig.String(), "kind", kind)
	}

	return trig, nil
}
