package supervisor

import (
	"fmt"

	log "github.com/hashicorp/go-hclog"
)

// Trigger is the capability set every concrete kind (Timer, Process,
// RemoteTask, Reader) implements. The supervisor tier only ever talks to
// triggers through this interface.
type Trigger interface {
	// ID is assigned once at construction and never changes.
	ID() uint64
	// Kind is the lowercase tag used to select a constructor in the Factory.
	Kind() string
	// Name is the caller-supplied, non-empty identifier for this trigger.
	Name() string
	// Poll is invoked once per registry snapshot per loop iteration. It must
	// never block.
	Poll()
	// Shutdown is invoked exactly once, during the broadcast that follows
	// shutdown_requested (or a host interrupt). It may block.
	Shutdown()
	// RequestShutdown asks the owning Context to stop the polling loop.
	RequestShutdown()
	fmt.Stringer
}

// Options is the option dictionary a script passes to Factory.New. Keys are
// the option names listed in the per-kind table in SPEC_FULL.md §6.
type Options map[string]any

// Base is embedded by every concrete trigger. It supplies the stringification,
// logging helpers, and option-reading contract described in SPEC_FULL.md §4.3.
type Base struct {
	ctx    *Context
	id     uint64
	kind   string
	name   string
	logger log.Logger
}

func newBase(ctx *Context, kind string, opts Options) (Base, error) {
	name, ok := opts["name"].(string)
	if !ok || name == "" {
		return Base{}, fmt.Errorf("given %s trigger with no name", kind)
	}
	b := Base{
		ctx:  ctx,
		id:   ctx.makeID(),
		kind: kind,
		name: name,
	}
	b.logger = ctx.logger.Named(b.String())
	b.logger.Info("new trigger", "kind", kind)
	return b, nil
}

func (b *Base) ID() uint64    { return b.id }
func (b *Base) Kind() string  { return b.kind }
func (b *Base) Name() string  { return b.name }
func (b *Base) String() string {
	return fmt.Sprintf("%s <%d>", b.name, b.id)
}

func (b *Base) info(msg string, args ...any)  { b.logger.Info(msg, args...) }
func (b *Base) debug(msg string, args ...any) { b.logger.Debug(msg, args...) }

// RequestShutdown delegates to the owning Context, per SPEC_FULL.md §4.1.
func (b *Base) RequestShutdown() { b.ctx.requestShutdown(b) }

// Poll and Shutdown default to no-ops that log at info level, matching the
// base Trigger class in the original implementation. Process, RemoteTask and
// Reader override both; Timer overrides only Poll and keeps the default
// Shutdown.
func (b *Base) Poll()     { b.info("default poll()") }
func (b *Base) Shutdown() { b.info("default shutdown()") }

// key reads a required or defaulted option out of opts, returning an error (translated by the caller into the fatal configuration
// path described in SPEC_FULL.md §7) when a required option is absent.
func key[T any](kind string, opts Options, name string, def ...T) (T, error) {
	raw, present := opts[name]
	if !present {
		if len(def) > 0 {
			return def[0], nil
		}
		var zero T
		return zero, fmt.Errorf("given %s trigger with no %s", kind, name)
	}
	v, ok := raw.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s trigger option %q has wrong type: %T", kind, name, raw)
	}
	return v, nil
}
