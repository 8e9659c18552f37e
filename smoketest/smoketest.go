// Package smoketest checks a spatial index against a brute force search over
// random insertions, moves and removals.
package smoketest

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"slices"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/hagall-spatial/models"
	"github.com/aukilabs/hagall-spatial/simulation"
	"github.com/aukilabs/hagall-spatial/spatial"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	defaultAgents = 100
	defaultCycles = 10
)

// Request is the body of a smoke test request.
type Request struct {
	Index  string `json:"index"`
	Agents int    `json:"agents"`
	Cycles int    `json:"cycles"`
	Seed   int64  `json:"seed"`
}

// Results are the results of a smoke test run.
type Results struct {
	ID         string  `json:"id"`
	Index      string  `json:"index"`
	Status     string  `json:"status"`
	Checks     int     `json:"checks"`
	Mismatches int     `json:"mismatches"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

type Options struct {
	// The config of the tested indexes. Its kind is replaced by the one of
	// the request.
	Config simulation.IndexConfig

	SendResult func(context.Context, Results) error
}

type testCtxKey string

var testCtxKeyValue testCtxKey = "test-context"

type testContext struct {
	context.Context
	Cancel func()
}

func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Error(errors.New("reading body failed").Wrap(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		var req Request
		if err := json.Unmarshal(b, &req); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		if !slices.Contains(simulation.Kinds(), req.Index) || req.Agents < 0 || req.Cycles < 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		go func() {
			defer func() {
				// A test context is canceled when the run is over.
				if tctx := ctx.Value(testCtxKeyValue); tctx != nil {
					testCtx := tctx.(testContext)
					if testCtx.Cancel != nil {
						testCtx.Cancel()
					}
				}
			}()

			res, err := Run(ctx, opts.Config, req)
			if err != nil {
				logs.WithTag("index", req.Index).Warn(err)
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("index", req.Index).
					WithTag("smoke_test_id", res.ID).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusOK)
	}
}

// Run runs a smoke test. Results are always returned, with a failed status
// when the run could not complete or when a query result differs from the
// brute force one.
func Run(ctx context.Context, conf simulation.IndexConfig, req Request) (Results, error) {
	start := time.Now()

	res := Results{
		ID:     uuid.NewString(),
		Index:  req.Index,
		Status: StatusFailed,
	}

	err := run(ctx, conf, req, &res)
	res.DurationMs = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		res.Error = err.Error()
		return res, errors.New("smoke test failed").
			WithTag("smoke_test_id", res.ID).
			WithTag("index", req.Index).
			Wrap(err)
	}

	if res.Mismatches == 0 {
		res.Status = StatusSuccess
	}
	return res, nil
}

func run(ctx context.Context, conf simulation.IndexConfig, req Request, res *Results) error {
	if req.Agents == 0 {
		req.Agents = defaultAgents
	}
	if req.Cycles == 0 {
		req.Cycles = defaultCycles
	}

	conf.Kind = req.Index
	idx, err := simulation.NewIndex(conf)
	if err != nil {
		return err
	}
	defer idx.Close()

	t := tester{
		rand:   rand.New(rand.NewSource(req.Seed)),
		conf:   conf,
		index:  idx,
		agents: make(map[int]*models.Agent, req.Agents),
		nextID: 1,
	}

	for i := 0; i < req.Agents; i++ {
		if err := t.insert(); err != nil {
			return err
		}
	}
	idx.Maintain()

	for cycle := 0; cycle < req.Cycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := t.cycle(); err != nil {
			return errors.New("running cycle failed").
				WithTag("cycle", cycle).
				Wrap(err)
		}

		checks, mismatches := t.check()
		res.Checks += checks
		res.Mismatches += mismatches
	}

	if n := idx.Stats().Elements; n != len(t.agents) {
		res.Mismatches++
		logs.Warn(errors.New("index element count differs from the agent count").
			WithTag("index", req.Index).
			WithTag("elements", n).
			WithTag("agents", len(t.agents)))
	}
	return nil
}

type tester struct {
	rand   *rand.Rand
	conf   simulation.IndexConfig
	index  simulation.Index
	agents map[int]*models.Agent
	nextID int
}

func (t *tester) insert() error {
	size := t.conf.AgentSize
	if size <= 0 {
		size = 1
	}

	a := models.NewAgent(
		t.nextID,
		t.rand.Float64()*(t.conf.Width-size),
		t.rand.Float64()*(t.conf.Height-size),
		size/2+t.rand.Float64()*size/2,
		size/2+t.rand.Float64()*size/2,
	)
	a.VX = t.rand.Float64()*2*size - size
	a.VY = t.rand.Float64()*2*size - size
	t.nextID++

	if err := t.index.Insert(a); err != nil {
		return err
	}
	t.agents[a.ID()] = a
	return nil
}

// cycle moves every agent, replaces a tenth of them and runs the maintenance
// pass of the index.
func (t *tester) cycle() error {
	for _, a := range t.sortedAgents() {
		fromX, fromY := a.X, a.Y
		a.Step(t.conf.Width, t.conf.Height)

		if err := t.index.Move(a, fromX, fromY); err != nil {
			return err
		}
	}

	for i := 0; i < len(t.agents)/10; i++ {
		agents := t.sortedAgents()
		a := agents[t.rand.Intn(len(agents))]
		if err := t.index.Remove(a); err != nil {
			return err
		}
		delete(t.agents, a.ID())

		if err := t.insert(); err != nil {
			return err
		}
	}

	t.index.Maintain()
	return nil
}

// check queries the surroundings of every agent and compares the results
// with a brute force search.
func (t *tester) check() (checks, mismatches int) {
	agents := t.sortedAgents()

	for _, a := range agents {
		r := a.Rect()
		r.Lft -= t.conf.AgentSize
		r.Btm -= t.conf.AgentSize
		r.Rgt += t.conf.AgentSize
		r.Top += t.conf.AgentSize

		expected := bruteForce(agents, r, a)
		got := ids(t.index.Query(r, a))

		checks++
		if !slices.Equal(expected, got) {
			mismatches++
			logs.WithTag("index", t.conf.Kind).
				WithTag("agent_id", a.ID()).
				WithTag("expected", expected).
				WithTag("got", got).
				Debug("query mismatch")
		}
	}
	return checks, mismatches
}

func (t *tester) sortedAgents() []*models.Agent {
	agents := make([]*models.Agent, 0, len(t.agents))
	for _, a := range t.agents {
		agents = append(agents, a)
	}

	slices.SortFunc(agents, func(a, b *models.Agent) int {
		return a.ID() - b.ID()
	})
	return agents
}

func bruteForce(agents []*models.Agent, r spatial.Rect[float64], omit *models.Agent) []int {
	res := []int{}
	for _, a := range agents {
		if a != omit && a.Rect().Overlaps(r) {
			res = append(res, a.ID())
		}
	}
	return res
}

func ids(agents []*models.Agent) []int {
	res := make([]int, 0, len(agents))
	for _, a := range agents {
		res = append(res, a.ID())
	}
	slices.Sort(res)
	return res
}
