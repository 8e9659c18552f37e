package models

import (
	"github.com/aukilabs/hagall-spatial/spatial"
)

// Agent is a moving box of the simulation. It satisfies spatial.SizedElement
// so it can be stored in grids directly, and keeps the handle given by the
// quadtrees that index it by handle.
type Agent struct {
	spatial.Link

	X float64
	Y float64
	W float64
	H float64

	VX float64
	VY float64

	Handle int

	id int
}

func NewAgent(id int, x, y, w, h float64) *Agent {
	return &Agent{
		id:     id,
		X:      x,
		Y:      y,
		W:      w,
		H:      h,
		Handle: spatial.NoID,
	}
}

func (a *Agent) ID() int {
	return a.id
}

func (a *Agent) Position() (float64, float64) {
	return a.X, a.Y
}

func (a *Agent) Size() (float64, float64) {
	return a.W, a.H
}

func (a *Agent) Rect() spatial.Rect[float64] {
	return spatial.RectFromPoint(a.X, a.Y, a.W, a.H)
}

// Step moves the agent by its velocity and bounces it off the walls of a
// width x height area.
func (a *Agent) Step(width, height float64) {
	a.X += a.VX
	a.Y += a.VY

	if a.X < 0 {
		a.X = -a.X
		a.VX = -a.VX
	} else if maxX := width - a.W; a.X > maxX {
		a.X = max(2*maxX-a.X, 0)
		a.VX = -a.VX
	}

	if a.Y < 0 {
		a.Y = -a.Y
		a.VY = -a.VY
	} else if maxY := height - a.H; a.Y > maxY {
		a.Y = max(2*maxY-a.Y, 0)
		a.VY = -a.VY
	}
}

func (a *Agent) ToSnapshot() AgentSnapshot {
	return AgentSnapshot{
		ID: a.id,
		X:  a.X,
		Y:  a.Y,
		W:  a.W,
		H:  a.H,
	}
}

// AgentSnapshot is the JSON representation of an agent.
type AgentSnapshot struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	W  float64 `json:"w"`
	H  float64 `json:"h"`
}

func AgentsToSnapshot(agents []*Agent) []AgentSnapshot {
	res := make([]AgentSnapshot, len(agents))
	for i, a := range agents {
		res[i] = a.ToSnapshot()
	}
	return res
}
