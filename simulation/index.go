package simulation

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-spatial/models"
	"github.com/aukilabs/hagall-spatial/spatial"
)

// The kinds of index a simulation can run on.
const (
	KindQuadtree      = "quadtree"
	KindLooseQuadtree = "loose_quadtree"
	KindUniformGrid   = "uniform_grid"
	KindDoubleGrid    = "double_grid"
)

// Kinds returns every supported index kind.
func Kinds() []string {
	return []string{
		KindQuadtree,
		KindLooseQuadtree,
		KindUniformGrid,
		KindDoubleGrid,
	}
}

// Index is a spatial index of agents.
//
// Implementations are not safe for concurrent use. Maintain must be called
// once after a batch of mutations and before the queries that follow it.
type Index interface {
	// Returns the kind of the index.
	Name() string

	// Inserts an agent.
	Insert(a *models.Agent) error

	// Removes an agent at its current position.
	Remove(a *models.Agent) error

	// Moves an agent that was at (fromX, fromY) and already holds its new
	// position.
	Move(a *models.Agent, fromX, fromY float64) error

	// Returns the agents overlapping r, except omit which can be nil. The
	// returned slice is reused by the next call to Query.
	Query(r spatial.Rect[float64], omit *models.Agent) []*models.Agent

	// Runs the maintenance pass of the index.
	Maintain()

	// Returns the index statistics.
	Stats() Stats

	// Returns the nodes or cells of the index, parents first.
	Nodes() []Node

	// Releases the resources allocated by the index.
	Close()
}

// BulkLoader is implemented by indexes that can load agents faster when
// Maintain is called once all of them are inserted.
type BulkLoader interface {
	BulkInsert(a *models.Agent) error
}

// Stats describes an index.
type Stats struct {
	Elements int    `json:"elements"`
	Nodes    int    `json:"nodes"`
	Splits   uint64 `json:"splits,omitempty"`
	Merges   uint64 `json:"merges,omitempty"`
}

// The kinds of node reported in snapshots.
const (
	NodeBranch     = "branch"
	NodeLeaf       = "leaf"
	NodeCell       = "cell"
	NodeCoarseCell = "coarse_cell"
)

// Node is a node or a cell of an index, as shown to viewers.
type Node struct {
	Kind  string                `json:"kind"`
	Depth int                   `json:"depth"`
	Count int                   `json:"count"`
	Box   spatial.Rect[float64] `json:"box"`
}

// IndexConfig describes the index to create with NewIndex.
type IndexConfig struct {
	Kind   string
	Width  float64
	Height float64

	// The largest agent size. Uniform grids treat every agent as this big.
	AgentSize float64

	// Derives the quadtree limits from AvgEltSize instead of MaxElements
	// and MaxDepth.
	AutoConfig  bool
	AvgEltSize  int
	MaxElements int
	MaxDepth    int

	CellSize       float64
	CoarseCellSize float64
}

// NewIndex creates the index described by the given config.
func NewIndex(conf IndexConfig) (Index, error) {
	w, h := int(math.Ceil(conf.Width)), int(math.Ceil(conf.Height))

	switch conf.Kind {
	case KindQuadtree:
		if conf.AutoConfig {
			return newQuadtreeIndexAuto(w, h, conf.AvgEltSize)
		}
		return newQuadtreeIndex(w, h, conf.MaxElements, conf.MaxDepth)

	case KindLooseQuadtree:
		if conf.AutoConfig {
			return newLooseQuadtreeIndexAuto(w, h, conf.AvgEltSize)
		}
		return newLooseQuadtreeIndex(w, h, conf.MaxElements, conf.MaxDepth)

	case KindUniformGrid:
		return newUniformGridIndex(conf.AgentSize, conf.CellSize, conf.Width, conf.Height)

	case KindDoubleGrid:
		return newDoubleGridIndex(conf.CellSize, conf.CoarseCellSize, conf.Width, conf.Height)

	default:
		return nil, errors.New("unknown index kind").
			WithType(spatial.ErrTypeInvalidArgument).
			WithTag("kind", conf.Kind)
	}
}

// Quadtrees store integer rects. An agent is stored in a rect that covers it
// and keeps the same size wherever the agent is, and the candidates found by
// the covering query are filtered with the exact float rects.

func coverSize(size float64) int {
	return int(math.Ceil(size)) + 1
}

func coverPoint(x, y float64) (int, int) {
	return int(math.Floor(x)), int(math.Floor(y))
}

func coverRect(r spatial.Rect[float64]) spatial.Rect[int] {
	return spatial.Rect[int]{
		Lft: int(math.Floor(r.Lft)),
		Top: int(math.Ceil(r.Top)),
		Rgt: int(math.Ceil(r.Rgt)),
		Btm: int(math.Floor(r.Btm)),
	}
}

// filter keeps the agents whose rect overlaps r, in place.
func filter(agents []*models.Agent, r spatial.Rect[float64]) []*models.Agent {
	res := agents[:0]
	for _, a := range agents {
		if a.Rect().Overlaps(r) {
			res = append(res, a)
		}
	}
	return res
}

func omittedID(a *models.Agent) int {
	if a == nil {
		return spatial.NoID
	}
	return a.ID()
}

func omittedHandle(a *models.Agent) int {
	if a == nil {
		return spatial.NoID
	}
	return a.Handle
}

func toFloatRect(r spatial.Rect[int]) spatial.Rect[float64] {
	return spatial.Rect[float64]{
		Lft: float64(r.Lft),
		Top: float64(r.Top),
		Rgt: float64(r.Rgt),
		Btm: float64(r.Btm),
	}
}
