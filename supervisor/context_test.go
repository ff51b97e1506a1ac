package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTrigger is a minimal Trigger used to exercise Context directly,
// without going through the Factory or any concrete kind.
type fakeTrigger struct {
	Base
	polls      int
	removeSelf bool
	onPoll     func(t *fakeTrigger)
}

func newFakeTrigger(ctx *Context, name string) *fakeTrigger {
	base, err := newBase(ctx, "fake", Options{"name": name})
	if err != nil {
		panic(err)
	}
	return &fakeTrigger{Base: base}
}

func (f *fakeTrigger) Poll() {
	f.polls++
	if f.onPoll != nil {
		f.onPoll(f)
	}
	if f.removeSelf {
		f.ctx.remove(f)
	}
}

func TestMakeID_MonotonicAndDistinct(t *testing.T) {
	ctx := New(nil)
	a := newFakeTrigger(ctx, "a")
	b := newFakeTrigger(ctx, "b")
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Greater(t, b.ID(), a.ID())
}

func TestRemove_IsDeferredUntilDrain(t *testing.T) {
	ctx := New(nil)
	a := newFakeTrigger(ctx, "a")
	ctx.add(a)

	ctx.remove(a)
	_, stillPresent := ctx.triggers[a.ID()]
	assert.True(t, stillPresent, "remove must not mutate the registry immediately")

	ctx.drainRemovals()
	_, present := ctx.triggers[a.ID()]
	assert.False(t, present)
}

func TestRun_SelfRemovalStopsFurtherPolls(t *testing.T) {
	ctx := New(nil)
	ctx.SetInterval(10 * time.Millisecond)

	a := newFakeTrigger(ctx, "a")
	a.removeSelf = true
	ctx.add(a)

	shutdownAfterFirstPoll := newFakeTrigger(ctx, "stopper")
	shutdownAfterFirstPoll.onPoll = func(f *fakeTrigger) {
		if f.polls == 2 {
			f.RequestShutdown()
		}
	}
	ctx.add(shutdownAfterFirstPoll)

	ctx.Run()

	assert.Equal(t, 1, a.polls, "a removes itself on its first poll")
	assert.Equal(t, 2, shutdownAfterFirstPoll.polls)
	assert.False(t, ctx.Interrupted())
}

func TestRun_EmitsShutdownBroadcastExactlyOnce(t *testing.T) {
	ctx := New(nil)
	ctx.SetInterval(5 * time.Millisecond)

	shutdownCount := 0
	a := newFakeTrigger(ctx, "a")
	a.onPoll = func(f *fakeTrigger) { f.RequestShutdown() }
	ctx.add(a)

	// Wrap Shutdown via an embedding type so we can count calls without
	// touching the fakeTrigger's Poll-driven behaviour.
	counted := &countingShutdownTrigger{fakeTrigger: newFakeTrigger(ctx, "b"), count: &shutdownCount}
	ctx.add(counted)

	ctx.Run()

	require.Equal(t, 1, shutdownCount)
}

type countingShutdownTrigger struct {
	*fakeTrigger
	count *int
}

func (c *countingShutdownTrigger) Shutdown() { *c.count++ }
