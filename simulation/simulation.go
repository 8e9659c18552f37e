// Package simulation moves agents around a world and keeps them in a spatial
// index, the way a game loop would: every frame moves the agents, runs the
// maintenance pass of the index, then queries the neighbours of every agent.
package simulation

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/hagall-spatial/models"
	"github.com/aukilabs/hagall-spatial/spatial"
)

// Config is the configuration of a simulation.
type Config struct {
	// The size of the spawned agents.
	AgentSize float64

	// The largest distance an agent moves in a frame.
	Speed float64

	// The distance around an agent where other agents are its neighbours.
	QueryRadius float64

	// The seed of the random generator. Runs with the same seed are the
	// same.
	Seed int64

	BulkLoad         bool
	DisableQueries   bool
	DisableSnapshots bool
}

// Snapshot is the state of a simulation after a step.
type Snapshot struct {
	WorldID    string                 `json:"world_id"`
	Index      string                 `json:"index"`
	Frame      uint64                 `json:"frame"`
	Width      float64                `json:"width"`
	Height     float64                `json:"height"`
	Stats      Stats                  `json:"stats"`
	Neighbours int                    `json:"neighbours"`
	Nodes      []Node                 `json:"nodes,omitempty"`
	Agents     []models.AgentSnapshot `json:"agents,omitempty"`
}

// Simulation runs agents of a world in an index.
//
// Spawn, Despawn and Step are serialized so agents can be added or removed
// while the simulation runs. Snapshot can be called from any goroutine.
type Simulation struct {
	world *models.World
	index Index
	conf  Config
	rand  *rand.Rand

	stepMutex sync.Mutex
	frame     uint64

	snapshotMutex sync.RWMutex
	snapshot      Snapshot
}

func New(world *models.World, idx Index, conf Config) *Simulation {
	return &Simulation{
		world: world,
		index: idx,
		conf:  conf,
		rand:  rand.New(rand.NewSource(conf.Seed)),
		snapshot: Snapshot{
			WorldID: world.ID,
			Index:   idx.Name(),
			Width:   world.Width,
			Height:  world.Height,
		},
	}
}

// Spawn adds n agents at random positions with random velocities, then runs
// the maintenance pass of the index.
func (s *Simulation) Spawn(n int) error {
	s.stepMutex.Lock()
	defer s.stepMutex.Unlock()

	for i := 0; i < n; i++ {
		a := models.NewAgent(
			s.world.NewAgentID(),
			s.rand.Float64()*(s.world.Width-s.conf.AgentSize),
			s.rand.Float64()*(s.world.Height-s.conf.AgentSize),
			s.conf.AgentSize,
			s.conf.AgentSize,
		)

		angle := s.rand.Float64() * 2 * math.Pi
		speed := s.rand.Float64() * s.conf.Speed
		a.VX = math.Cos(angle) * speed
		a.VY = math.Sin(angle) * speed

		var err error
		if s.conf.BulkLoad {
			err = bulkInsert(s.index, a)
		} else {
			err = s.index.Insert(a)
		}
		if err != nil {
			return errors.New("spawning agent failed").
				WithTag("agent_id", a.ID()).
				Wrap(err)
		}

		s.world.AddAgent(a)
	}

	s.index.Maintain()
	s.updateSnapshot(0)
	return nil
}

// Despawn removes the agent with the given id.
func (s *Simulation) Despawn(id int) error {
	s.stepMutex.Lock()
	defer s.stepMutex.Unlock()

	a, ok := s.world.AgentByID(id)
	if !ok {
		return errors.New("agent not found").
			WithType(spatial.ErrTypeNotFound).
			WithTag("agent_id", id)
	}

	if err := s.index.Remove(a); err != nil {
		return errors.New("despawning agent failed").
			WithTag("agent_id", id).
			Wrap(err)
	}

	s.world.RemoveAgent(a)
	return nil
}

// Step runs one update cycle and returns the number of neighbours found.
func (s *Simulation) Step() (int, error) {
	s.stepMutex.Lock()
	defer s.stepMutex.Unlock()

	start := time.Now()
	agents := s.world.Agents()

	for _, a := range agents {
		fromX, fromY := a.X, a.Y
		a.Step(s.world.Width, s.world.Height)

		if err := s.index.Move(a, fromX, fromY); err != nil {
			return 0, errors.New("moving agent failed").
				WithTag("agent_id", a.ID()).
				Wrap(err)
		}
	}

	s.index.Maintain()

	neighbours := 0
	if !s.conf.DisableQueries {
		for _, a := range agents {
			r := a.Rect()
			r.Lft -= s.conf.QueryRadius
			r.Btm -= s.conf.QueryRadius
			r.Rgt += s.conf.QueryRadius
			r.Top += s.conf.QueryRadius

			neighbours += len(s.index.Query(r, a))
		}
	}

	s.frame++
	s.updateSnapshot(neighbours)

	instrumentStep(s.index.Name(), time.Since(start))
	return neighbours, nil
}

// Run steps the simulation at every frame of the world and broadcasts the
// snapshots to the world viewers until the given context is canceled.
func (s *Simulation) Run(ctx context.Context) {
	cancel := s.world.HandleFrame(func() {
		neighbours, err := s.Step()
		if err != nil {
			logs.WithTag("world_id", s.world.ID).
				WithTag("index", s.index.Name()).
				Error(err)
			return
		}

		logs.WithTag("world_id", s.world.ID).
			WithTag("frame", s.frame).
			WithTag("neighbours", neighbours).
			Debug("simulation step")

		if s.world.ViewerCount() != 0 {
			s.world.Broadcast(s.Snapshot())
		}
	})
	defer cancel()

	go s.world.StartDispatchFrames()

	<-ctx.Done()
	s.world.Close()
}

// Snapshot returns the state of the simulation after the last step.
func (s *Simulation) Snapshot() Snapshot {
	s.snapshotMutex.RLock()
	defer s.snapshotMutex.RUnlock()

	return s.snapshot
}

func (s *Simulation) updateSnapshot(neighbours int) {
	snapshot := Snapshot{
		WorldID:    s.world.ID,
		Index:      s.index.Name(),
		Frame:      s.frame,
		Width:      s.world.Width,
		Height:     s.world.Height,
		Stats:      s.index.Stats(),
		Neighbours: neighbours,
	}

	if !s.conf.DisableSnapshots {
		snapshot.Nodes = s.index.Nodes()
		snapshot.Agents = models.AgentsToSnapshot(s.world.Agents())
	}

	s.snapshotMutex.Lock()
	defer s.snapshotMutex.Unlock()

	s.snapshot = snapshot
}
