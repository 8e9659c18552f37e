package models

import (
	"testing"

	"github.com/aukilabs/hagall-spatial/spatial"
	"github.com/stretchr/testify/require"
)

func TestAgent(t *testing.T) {
	a := NewAgent(3, 10, 20, 2, 4)

	var e spatial.SizedElement = a
	require.Equal(t, 3, e.ID())
	require.Equal(t, spatial.NoID, a.Handle)
	require.Equal(t, spatial.Rect[float64]{Lft: 10, Top: 24, Rgt: 12, Btm: 20}, a.Rect())
	require.Equal(t, a.Rect(), spatial.ElementRect(a))
	require.Nil(t, a.Next())
}

func TestAgentStep(t *testing.T) {
	t.Run("moves by its velocity", func(t *testing.T) {
		a := NewAgent(1, 10, 10, 2, 2)
		a.VX = 1.5
		a.VY = -2

		a.Step(100, 100)
		require.Equal(t, 11.5, a.X)
		require.Equal(t, 8.0, a.Y)
	})

	t.Run("bounces off the left and bottom walls", func(t *testing.T) {
		a := NewAgent(1, 1, 2, 2, 2)
		a.VX = -3
		a.VY = -5

		a.Step(100, 100)
		require.Equal(t, 2.0, a.X)
		require.Equal(t, 3.0, a.Y)
		require.Equal(t, 3.0, a.VX)
		require.Equal(t, 5.0, a.VY)
	})

	t.Run("bounces off the right and top walls", func(t *testing.T) {
		a := NewAgent(1, 97, 96, 2, 2)
		a.VX = 3
		a.VY = 4

		a.Step(100, 100)
		require.Equal(t, 96.0, a.X)
		require.Equal(t, 96.0, a.Y)
		require.Equal(t, -3.0, a.VX)
		require.Equal(t, -4.0, a.VY)
	})
}

func TestAgentsToSnapshot(t *testing.T) {
	snapshots := AgentsToSnapshot([]*Agent{
		NewAgent(1, 1, 2, 3, 4),
		NewAgent(2, 5, 6, 7, 8),
	})

	require.Equal(t, []AgentSnapshot{
		{ID: 1, X: 1, Y: 2, W: 3, H: 4},
		{ID: 2, X: 5, Y: 6, W: 7, H: 8},
	}, snapshots)
}
