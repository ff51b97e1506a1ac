package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTimer(t *testing.T, interval time.Duration, handler TimerHandler) *Timer {
	t.Helper()
	ctx := New(nil)
	trig, err := newTimerFromOptions(ctx, Options{
		"name":     "t",
		"handler":  handler,
		"interval": interval.Seconds(),
	})
	require.NoError(t, err)
	return trig.(*Timer)
}

func TestTimer_ZeroIntervalFiresEveryPoll(t *testing.T) {
	var fires int
	tm := newTestTimer(t, 0, func(*Timer, time.Time) { fires++ })

	tm.lastPoll = time.Now().Add(-time.Millisecond)
	tm.Poll()
	time.Sleep(time.Millisecond)
	tm.Poll()
	time.Sleep(time.Millisecond)
	tm.Poll()

	assert.Equal(t, 3, fires)
}

func TestTimer_DoesNotFireBeforeIntervalElapses(t *testing.T) {
	var fires int
	tm := newTestTimer(t, 50*time.Millisecond, func(*Timer, time.Time) { fires++ })
	tm.lastPoll = time.Now()

	tm.Poll()
	assert.Equal(t, 0, fires, "must not fire before the interval strictly elapses")

	time.Sleep(60 * time.Millisecond)
	tm.Poll()
	assert.Equal(t, 1, fires)
}

func TestTimer_LastPollUpdatesOnReceiverNotLocal(t *testing.T) {
	// Regression test for the resolved Open Question in SPEC_FULL.md §9: a
	// naive port might update a local copy of last_poll instead of the
	// trigger's own field, causing every subsequent poll to fire.
	var fires int
	tm := newTestTimer(t, 10*time.Millisecond, func(*Timer, time.Time) { fires++ })
	tm.lastPoll = time.Now()

	time.Sleep(15 * time.Millisecond)
	tm.Poll()
	require.Equal(t, 1, fires)

	tm.Poll()
	assert.Equal(t, 1, fires, "last_poll must have advanced on the receiver")
}

func TestTimer_MissingHandlerIsFatal(t *testing.T) {
	ctx := New(nil)
	_, err := newTimerFromOptions(ctx, Options{"name": "t"})
	assert.Error(t, err)
}
