package supervisor

import (
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"
)

// TimerHandler is the callable a Timer trigger invokes when its condition
// fires: handler(self, wall_time) in SPEC_FULL.md §3.
type TimerHandler func(t *Timer, now time.Time)

// Timer fires its handler once wall-clock time has advanced strictly more
// than interval_seconds since the last fire (SPEC_FULL.md §4.4), or — when
// configured with a cron expression instead — once per poll in which the
// schedule's next-due time has passed (SPEC_FULL.md §3 expansion).
type Timer struct {
	Base
	interval time.Duration
	cron     *cronexpr.Expression
	lastPoll time.Time
	handler  TimerHandler
}

func newTimerFromOptions(ctx *Context, opts Options) (Trigger, error) {
	base, err := newBase(ctx, "timer", opts)
	if err != nil {
		return nil, err
	}

	handler, err := key[TimerHandler]("timer", opts, "handler")
	if err != nil {
		return nil, err
	}

	t := &Timer{
		Base:     base,
		handler:  handler,
		lastPoll: time.Now(),
	}

	if cronSpec, ok := opts["cron"].(string); ok && cronSpec != "" {
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			return nil, fmt.Errorf("timer trigger %q: invalid cron expression %q: %w", t.Name(), cronSpec, err)
		}
		t.cron = expr
		t.info("new timer trigger", "cron", cronSpec)
		return t, nil
	}

	// A whole number of seconds may arrive as an integer (goja exports JS
	// integers as int64), so every numeric type is accepted.
	seconds := 0.0
	switch v := opts["interval"].(type) {
	case nil:
	case float64:
		seconds = v
	case int64:
		seconds = float64(v)
	case int:
		seconds = float64(v)
	default:
		return nil, fmt.Errorf("timer trigger option %q has wrong type: %T", "interval", v)
	}
	t.interval = time.Duration(seconds * float64(time.Second))
	t.info("new timer trigger", "interval", t.interval)
	return t, nil
}

// Poll implements Trigger.
func (t *Timer) Poll() {
	t.debug("poll()")
	now := time.Now()

	if t.cron != nil {
		if !t.cron.Next(t.lastPoll).After(now) {
			t.debug("calling handler")
			t.handler(t, now)
			t.lastPoll = now
		}
		return
	}

	if now.Sub(t.lastPoll) > t.interval {
		t.debug("calling handler")
		t.handler(t, now)
		t.lastPoll = now
	}
}
