package simulation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-spatial/models"
	"github.com/aukilabs/hagall-spatial/spatial"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		AgentSize:   4,
		Speed:       3,
		QueryRadius: 10,
		Seed:        7,
	}
}

func newTestSimulation(t *testing.T, kind string, conf Config) (*Simulation, *models.World) {
	idx, err := NewIndex(testIndexConfig(kind))
	require.NoError(t, err)

	world := models.NewWorld(kind, 200, 200, time.Millisecond)
	return New(world, idx, conf), world
}

func TestSimulationSpawn(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(kind, func(t *testing.T) {
			s, world := newTestSimulation(t, kind, testConfig())
			defer world.Close()

			require.NoError(t, s.Spawn(50))
			require.Equal(t, 50, world.AgentCount())

			snapshot := s.Snapshot()
			require.Equal(t, world.ID, snapshot.WorldID)
			require.Equal(t, kind, snapshot.Index)
			require.Equal(t, 50, snapshot.Stats.Elements)
			require.Len(t, snapshot.Agents, 50)
			require.NotEmpty(t, snapshot.Nodes)

			for _, a := range world.Agents() {
				require.GreaterOrEqual(t, a.X, 0.0)
				require.LessOrEqual(t, a.X, 196.0)
				require.LessOrEqual(t, a.VX*a.VX+a.VY*a.VY, 9.0+1e-9)
			}
		})
	}

	t.Run("bulk load", func(t *testing.T) {
		conf := testConfig()
		conf.BulkLoad = true

		s, world := newTestSimulation(t, KindLooseQuadtree, conf)
		defer world.Close()

		require.NoError(t, s.Spawn(50))
		require.Equal(t, 50, s.Snapshot().Stats.Elements)

		q := world.Agents()[0]
		res := s.index.Query(q.Rect(), nil)
		require.Contains(t, agentIDs(res), q.ID())
	})
}

func TestSimulationStep(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(kind, func(t *testing.T) {
			s, world := newTestSimulation(t, kind, testConfig())
			defer world.Close()
			require.NoError(t, s.Spawn(80))

			for i := 0; i < 10; i++ {
				neighbours, err := s.Step()
				require.NoError(t, err)

				expected := 0
				agents := world.Agents()
				for _, a := range agents {
					r := a.Rect()
					r.Lft -= 10
					r.Btm -= 10
					r.Rgt += 10
					r.Top += 10

					for _, b := range agents {
						if a != b && b.Rect().Overlaps(r) {
							expected++
						}
					}
				}
				require.Equal(t, expected, neighbours)
			}

			snapshot := s.Snapshot()
			require.Equal(t, uint64(10), snapshot.Frame)
			require.Equal(t, 80, snapshot.Stats.Elements)
		})
	}

	t.Run("same seed same run", func(t *testing.T) {
		run := func() []models.AgentSnapshot {
			s, world := newTestSimulation(t, KindDoubleGrid, testConfig())
			defer world.Close()

			require.NoError(t, s.Spawn(30))
			for i := 0; i < 5; i++ {
				_, err := s.Step()
				require.NoError(t, err)
			}
			return s.Snapshot().Agents
		}

		require.Equal(t, run(), run())
	})

	t.Run("disabled queries and snapshots", func(t *testing.T) {
		conf := testConfig()
		conf.DisableQueries = true
		conf.DisableSnapshots = true

		s, world := newTestSimulation(t, KindQuadtree, conf)
		defer world.Close()
		require.NoError(t, s.Spawn(30))

		neighbours, err := s.Step()
		require.NoError(t, err)
		require.Zero(t, neighbours)

		snapshot := s.Snapshot()
		require.Empty(t, snapshot.Nodes)
		require.Empty(t, snapshot.Agents)
		require.Equal(t, 30, snapshot.Stats.Elements)
	})
}

func TestSimulationDespawn(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(kind, func(t *testing.T) {
			s, world := newTestSimulation(t, kind, testConfig())
			defer world.Close()
			require.NoError(t, s.Spawn(10))

			require.NoError(t, s.Despawn(3))
			require.Equal(t, 9, world.AgentCount())

			_, err := s.Step()
			require.NoError(t, err)
			require.Equal(t, 9, s.Snapshot().Stats.Elements)

			err = s.Despawn(3)
			require.True(t, errors.IsType(err, spatial.ErrTypeNotFound))
		})
	}
}

type snapshotRecorder struct {
	once sync.Once
	done chan struct{}
}

func (r *snapshotRecorder) SendSnapshot(v any) {
	if _, ok := v.(Snapshot); ok {
		r.once.Do(func() { close(r.done) })
	}
}

func TestSimulationRun(t *testing.T) {
	s, world := newTestSimulation(t, KindUniformGrid, testConfig())
	require.NoError(t, s.Spawn(10))

	viewer := &snapshotRecorder{done: make(chan struct{})}
	world.AddViewer(&models.Viewer{ID: "test", Sender: viewer})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	<-viewer.done
	cancel()
	<-done

	require.NotZero(t, s.Snapshot().Frame)
}

func TestSimulationDespawnWhileRunning(t *testing.T) {
	s, world := newTestSimulation(t, KindLooseQuadtree, testConfig())
	require.NoError(t, s.Spawn(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	for id := 1; id <= 10; id++ {
		require.NoError(t, s.Despawn(id))
		time.Sleep(time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return s.Snapshot().Stats.Elements == 0
	}, time.Second*2, time.Millisecond*10)
	require.Zero(t, world.AgentCount())

	cancel()
	<-done
}
