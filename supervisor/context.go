// Package supervisor implements the trigger supervisor: registration,
// polling loop, deferred removal, and shutdown broadcast described in
// SPEC_FULL.md §2-5.
package supervisor

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/hashicorp/go-hclog"
)

// DefaultInterval is the poll-loop sleep duration used when a Context is
// constructed without an explicit override (SPEC_FULL.md §3).
const DefaultInterval = 1 * time.Second

// Context is the supervisor: the sole long-lived piece of state, owning the
// monotonic id allocator, the trigger registry, and the pending-removal
// list. There is no process-global registry; nothing prevents multiple
// Contexts from coexisting.
type Context struct {
	logger log.Logger

	idCounter uint64
	triggers  map[uint64]Trigger
	order     []uint64
	removals  []uint64

	shutdownRequested bool
	interrupted       bool
	interval          time.Duration

	// Scratch is a free-form mapping exposed to user scripts for shared
	// state. It is only ever touched from the supervisor tier (handlers run
	// single-threaded), so it needs no locking.
	Scratch map[string]any
}

// New constructs a Context. logger is typically rooted at the process's
// hclog logger and named after the script file being loaded.
func New(logger log.Logger) *Context {
	if logger == nil {
		logger = log.NewNullLogger()
	}
	return &Context{
		logger:   logger,
		triggers: make(map[uint64]Trigger),
		interval: DefaultInterval,
		Scratch:  make(map[string]any),
	}
}

// SetInterval overrides the poll-loop sleep duration.
func (c *Context) SetInterval(d time.Duration) { c.interval = d }

// Interval returns the current poll-loop sleep duration.
func (c *Context) Interval() time.Duration { return c.interval }

// Interrupted reports whether the most recent Run exited because of a host
// interrupt rather than a request_shutdown call.
func (c *Context) Interrupted() bool { return c.interrupted }

// Logger returns the Context's root logger, so the script loader and
// Factory can derive named children from the same root as trigger loggers.
func (c *Context) Logger() log.Logger { return c.logger }

// Triggers returns the currently registered triggers in registration order.
func (c *Context) Triggers() []Trigger {
	out := make([]Trigger, 0, len(c.order))
	for _, id := range c.order {
		if t, ok := c.triggers[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// makeID returns a fresh unsigned integer, strictly greater than all
// previously returned ids for this Context.
func (c *Context) makeID() uint64 {
	c.idCounter++
	return c.idCounter
}

// add registers a trigger, making it appear in the registry. Called by the
// Factory immediately after construction.
func (c *Context) add(t Trigger) {
	c.triggers[t.ID()] = t
	c.order = append(c.order, t.ID())
}

// remove appends t's id to the pending-removal list. Idempotent within one
// poll cycle: actual deletion is deferred to the end of the current
// iteration (SPEC_FULL.md §4.1).
func (c *Context) remove(t Trigger) {
	c.removals = append(c.removals, t.ID())
}

// requestShutdown sets shutdown_requested. Logged at info level, naming the
// requesting trigger.
func (c *Context) requestShutdown(t Trigger) {
	c.logger.Info("shutdown requested", "by", t.String())
	c.shutdownRequested = true
}

// RequestShutdown is the script-facing equivalent of requestShutdown: there
// is no owning Trigger to name when the call originates directly from script
// code rather than from inside a handler (SPEC_FULL.md §6a).
func (c *Context) RequestShutdown() {
	c.logger.Info("shutdown requested", "by", "script")
	c.shutdownRequested = true
}

// drainRemovals deletes every pending id from the registry and empties the
// removals list. Must only be called between poll-loop iterations, never
// mid-iteration.
func (c *Context) drainRemovals() {
	if len(c.removals) == 0 {
		return
	}
	dead := make(map[uint64]bool, len(c.removals))
	for _, id := range c.removals {
		dead[id] = true
		delete(c.triggers, id)
	}
	kept := c.order[:0]
	for _, id := range c.order {
		if !dead[id] {
			kept = append(kept, id)
		}
	}
	c.order = kept
	c.removals = c.removals[:0]
}

// Run executes the polling loop described in SPEC_FULL.md §4.1 until
// shutdown_requested becomes true or a host interrupt (SIGINT/SIGTERM)
// arrives, then broadcasts shutdown to every registered trigger exactly
// once. It returns after the broadcast completes; callers decide the
// process exit code.
func (c *Context) Run() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

loop:
	for {
		snapshot := append([]uint64(nil), c.order...)
		for _, id := range snapshot {
			t, ok := c.triggers[id]
			if !ok {
				// Defensive only: removal is deferred to drainRemovals, so
				// every snapshotted id is still registered here.
				continue
			}
			c.logger.Debug("poll", "trigger", t.String())
			t.Poll()
			if c.shutdownRequested {
				break
			}
		}

		c.drainRemovals()

		if c.shutdownRequested {
			break loop
		}

		select {
		case <-time.After(c.interval):
		case <-sigCh:
			c.interrupted = true
			break loop
		}
	}

	c.broadcastShutdown()
}

// broadcastShutdown iterates the registry and invokes Shutdown on every
// trigger still present, then emits the final distinguishing log line.
func (c *Context) broadcastShutdown() {
	for _, id := range c.order {
		t, ok := c.triggers[id]
		if !ok {
			continue
		}
		t.Shutdown()
	}
	if c.interrupted {
		c.logger.Info("shutdown after interrupt")
	} else {
		c.logger.Info("normal shutdown")
	}
}
