package simulation

import (
	"github.com/aukilabs/hagall-spatial/doublegrid"
	"github.com/aukilabs/hagall-spatial/models"
	"github.com/aukilabs/hagall-spatial/spatial"
	"github.com/aukilabs/hagall-spatial/ugrid"
)

type uniformGridIndex struct {
	grid    *ugrid.Grid
	results []*models.Agent
}

func newUniformGridIndex(agentSize, cellSize, width, height float64) (*uniformGridIndex, error) {
	grid, err := ugrid.New(agentSize, agentSize, cellSize, cellSize, width, height)
	if err != nil {
		return nil, err
	}
	return &uniformGridIndex{grid: grid}, nil
}

func (i *uniformGridIndex) Name() string {
	return KindUniformGrid
}

func (i *uniformGridIndex) Insert(a *models.Agent) error {
	i.grid.Insert(a)
	return nil
}

func (i *uniformGridIndex) Remove(a *models.Agent) error {
	i.grid.Remove(a)
	return nil
}

func (i *uniformGridIndex) Move(a *models.Agent, fromX, fromY float64) error {
	i.grid.Move(a, fromX, fromY, a.X, a.Y)
	return nil
}

// Query filters the grid results with the exact rects since the grid treats
// every agent as the largest one.
func (i *uniformGridIndex) Query(r spatial.Rect[float64], omit *models.Agent) []*models.Agent {
	i.results = i.results[:0]
	for _, e := range i.grid.Query(r, omittedID(omit)) {
		i.results = append(i.results, e.(*models.Agent))
	}
	return filter(i.results, r)
}

func (i *uniformGridIndex) Maintain() {
}

func (i *uniformGridIndex) Stats() Stats {
	s := i.grid.Stats()
	return Stats{
		Elements: s.Elements,
		Nodes:    s.Cells,
	}
}

func (i *uniformGridIndex) Nodes() []Node {
	var v uniformGridVisitor
	i.grid.Traverse(&v)
	return v.nodes
}

func (i *uniformGridIndex) Close() {
}

type uniformGridVisitor struct {
	nodes []Node
}

func (v *uniformGridVisitor) Grid(cols, rows int, cellW, cellH float64) {
	v.nodes = make([]Node, 0, cols)
}

func (v *uniformGridVisitor) Cell(col, row, count int, box spatial.Rect[float64]) {
	v.nodes = append(v.nodes, Node{
		Kind:  NodeCell,
		Count: count,
		Box:   box,
	})
}

type doubleGridIndex struct {
	grid    *doublegrid.Grid
	results []*models.Agent
}

func newDoubleGridIndex(cellSize, coarseCellSize, width, height float64) (*doubleGridIndex, error) {
	grid, err := doublegrid.New(cellSize, cellSize, coarseCellSize, coarseCellSize, width, height)
	if err != nil {
		return nil, err
	}
	return &doubleGridIndex{grid: grid}, nil
}

func (i *doubleGridIndex) Name() string {
	return KindDoubleGrid
}

func (i *doubleGridIndex) Insert(a *models.Agent) error {
	i.grid.Insert(a)
	return nil
}

func (i *doubleGridIndex) Remove(a *models.Agent) error {
	i.grid.Remove(a)
	return nil
}

func (i *doubleGridIndex) Move(a *models.Agent, fromX, fromY float64) error {
	i.grid.Move(a, fromX, fromY, a.X, a.Y)
	return nil
}

func (i *doubleGridIndex) Query(r spatial.Rect[float64], omit *models.Agent) []*models.Agent {
	i.results = i.results[:0]
	for _, e := range i.grid.Query(r, omittedID(omit)) {
		i.results = append(i.results, e.(*models.Agent))
	}
	return i.results
}

func (i *doubleGridIndex) Maintain() {
	i.grid.TightenUp()
}

func (i *doubleGridIndex) Stats() Stats {
	s := i.grid.Stats()
	return Stats{
		Elements: s.Elements,
		Nodes:    s.LooseCells,
	}
}

func (i *doubleGridIndex) Nodes() []Node {
	var v doubleGridVisitor
	i.grid.Traverse(&v)
	return v.nodes
}

func (i *doubleGridIndex) Close() {
}

// doubleGridVisitor reports coarse cells at depth 0 and non-empty loose cells
// at depth 1. Coarse cells without references are left out.
type doubleGridVisitor struct {
	nodes []Node
}

func (v *doubleGridVisitor) CoarseGrid(cols, rows int, cellW, cellH float64) {
	v.nodes = make([]Node, 0, cols*rows)
}

func (v *doubleGridVisitor) LooseGrid(cols, rows int, cellW, cellH float64) {
}

func (v *doubleGridVisitor) CoarseCell(col, row, refs int, box spatial.Rect[float64]) {
	if refs == 0 {
		return
	}

	v.nodes = append(v.nodes, Node{
		Kind:  NodeCoarseCell,
		Count: refs,
		Box:   box,
	})
}

func (v *doubleGridVisitor) LooseCell(col, row, count int, box spatial.Rect[float64]) {
	v.nodes = append(v.nodes, Node{
		Kind:  NodeCell,
		Depth: 1,
		Count: count,
		Box:   box,
	})
}
