package remotetask

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_UnqueuedTaskIsPerpetuallyNonTerminal(t *testing.T) {
	m := NewMemory()
	status, err := m.Query(context.Background(), "u", "t", "task-1")
	require.NoError(t, err)
	assert.Equal(t, Status(""), status)
	assert.False(t, status.IsTerminal())
}

func TestMemory_ConsumesEnqueuedSequenceInOrder(t *testing.T) {
	const active Status = "ACTIVE"
	m := NewMemory()
	m.Enqueue("task-1", active, active, StatusSucceeded)

	ctx := context.Background()
	first, err := m.Query(ctx, "u", "t", "task-1")
	require.NoError(t, err)
	assert.Equal(t, active, first)

	second, err := m.Query(ctx, "u", "t", "task-1")
	require.NoError(t, err)
	assert.Equal(t, active, second)

	third, err := m.Query(ctx, "u", "t", "task-1")
	require.NoError(t, err)
	assert.True(t, third.IsTerminal())
	assert.Equal(t, StatusSucceeded, third)
}

func TestMemory_FallsBackToNonTerminalOnceExhausted(t *testing.T) {
	m := NewMemory()
	m.Enqueue("task-1", StatusFailed)

	ctx := context.Background()
	_, _ = m.Query(ctx, "u", "t", "task-1")
	status, err := m.Query(ctx, "u", "t", "task-1")
	require.NoError(t, err)
	assert.Equal(t, Status(""), status, "exhausted sequence falls back to non-terminal, not a repeat")
}

func TestMemory_IsolatesTasksByID(t *testing.T) {
	m := NewMemory()
	m.Enqueue("task-1", StatusSucceeded)

	ctx := context.Background()
	other, err := m.Query(ctx, "u", "t", "task-2")
	require.NoError(t, err)
	assert.False(t, other.IsTerminal())
}
