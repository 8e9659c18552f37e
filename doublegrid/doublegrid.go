// Package doublegrid implements a loose grid of fine cells indexed by a
// coarse grid.
//
// Every fine cell keeps a loose box around its elements. Every coarse cell
// keeps references to the fine cells whose box reaches into it. Boxes only
// grow while elements are inserted and moved. TightenUp contracts them and
// rebuilds the references, and should run once per update cycle.
package doublegrid

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-spatial/freelist"
	"github.com/aukilabs/hagall-spatial/spatial"
)

type looseCell struct {
	head  spatial.SizedElement
	count int
	box   spatial.Rect[float64]

	// Range of coarse cells the cell is registered in, as column and row
	// indexes. Empty when the cell is not registered anywhere.
	reg spatial.Rect[int]

	stamp uint32
}

// Stats describes the current state of a grid.
type Stats struct {
	Elements   int
	LooseCells int
	CoarseRefs int
}

// Grid is a loose double grid. It is not safe for concurrent use.
type Grid struct {
	cellW, cellH     float64
	coarseW, coarseH float64
	cols, rows       int
	coarseCols       int
	coarseRows       int

	// Indexed by row*cols+col.
	cells []looseCell

	// Indexed by row*coarseCols+col. Values are indexes in cells.
	coarse []*freelist.FreeLinkedList[int]

	count   int
	stamp   uint32
	results []spatial.SizedElement
}

// New creates a grid covering [0, width] x [0, height] with fine cells of
// cellW x cellH and coarse cells of coarseW x coarseH. Coarse cells must be
// strictly larger than fine cells.
func New(cellW, cellH, coarseW, coarseH, width, height float64) (*Grid, error) {
	if cellW <= 0 || cellH <= 0 || coarseW <= 0 || coarseH <= 0 || width <= 0 || height <= 0 {
		return nil, errors.New("grid sizes must be greater than zero").
			WithType(spatial.ErrTypeInvalidArgument).
			WithTag("cell_width", cellW).
			WithTag("cell_height", cellH).
			WithTag("coarse_width", coarseW).
			WithTag("coarse_height", coarseH).
			WithTag("width", width).
			WithTag("height", height)
	}

	if coarseW <= cellW || coarseH <= cellH {
		return nil, errors.New("coarse cells must be larger than fine cells").
			WithType(spatial.ErrTypeInvalidArgument).
			WithTag("cell_width", cellW).
			WithTag("cell_height", cellH).
			WithTag("coarse_width", coarseW).
			WithTag("coarse_height", coarseH)
	}

	g := &Grid{
		cellW:      cellW,
		cellH:      cellH,
		coarseW:    coarseW,
		coarseH:    coarseH,
		cols:       int(width/cellW) + 1,
		rows:       int(height/cellH) + 1,
		coarseCols: int(width/coarseW) + 1,
		coarseRows: int(height/coarseH) + 1,
		results:    make([]spatial.SizedElement, 0, 16),
	}

	g.cells = make([]looseCell, g.cols*g.rows)
	for i := range g.cells {
		g.cells[i].box = spatial.EmptyRect[float64]()
		g.cells[i].reg = spatial.EmptyRect[int]()
	}

	// A coarse cell roughly spans this many fine cells.
	span := int(coarseW/cellW+1) * int(coarseH/cellH+1)

	g.coarse = make([]*freelist.FreeLinkedList[int], g.coarseCols*g.coarseRows)
	for i := range g.coarse {
		g.coarse[i] = freelist.NewLinkedList[int](span)
	}

	return g, nil
}

// Count returns the number of elements in the grid.
func (g *Grid) Count() int {
	return g.count
}

func (g *Grid) Stats() Stats {
	s := Stats{Elements: g.count}
	for i := range g.cells {
		if g.cells[i].count > 0 {
			s.LooseCells++
		}
	}
	for _, l := range g.coarse {
		s.CoarseRefs += l.Count()
	}
	return s
}

// Insert inserts e in the fine cell that contains its position and grows the
// box of that cell to fit it.
func (g *Grid) Insert(e spatial.SizedElement) {
	x, y := e.Position()
	g.insertToCell(e, g.cellIndex(x, y))
}

// Remove removes e from the fine cell that contains its position. The box of
// the cell is left as it is until the next TightenUp.
func (g *Grid) Remove(e spatial.SizedElement) {
	x, y := e.Position()
	g.removeFromCell(e, g.cellIndex(x, y))
}

// Move relocates e, which was inserted at (fromX, fromY) and must already
// report its new position (toX, toY).
func (g *Grid) Move(e spatial.SizedElement, fromX, fromY, toX, toY float64) {
	from := g.cellIndex(fromX, fromY)
	to := g.cellIndex(toX, toY)

	if from != to {
		g.removeFromCell(e, from)
		g.insertToCell(e, to)
		return
	}

	g.expand(from, spatial.ElementRect(e))
}

// Query returns the elements whose box overlaps r, except the one with the
// omit id. Pass spatial.NoID to omit nothing.
//
// The returned slice is reused by the next call to Query.
func (g *Grid) Query(r spatial.Rect[float64], omit int) []spatial.SizedElement {
	g.results = g.results[:0]
	if r.IsEmpty() {
		return g.results
	}

	stamp := g.nextStamp()
	span := g.coarseRange(r)

	for row := span.Btm; row <= span.Top; row++ {
		for col := span.Lft; col <= span.Rgt; col++ {
			refs := g.coarse[row*g.coarseCols+col]

			for ref := refs.First(); ref != freelist.Nil; ref = refs.Next(ref) {
				c := &g.cells[*refs.At(ref)]

				// A cell reaching into several coarse cells is referenced
				// by each of them.
				if c.stamp == stamp {
					continue
				}
				c.stamp = stamp

				if c.count == 0 || !c.box.Overlaps(r) {
					continue
				}

				for e := c.head; e != nil; e = next(e) {
					if e.ID() != omit && spatial.ElementRect(e).Overlaps(r) {
						g.results = append(g.results, e)
					}
				}
			}
		}
	}

	return g.results
}

// TightenUp contracts the box of every fine cell to its elements and
// registers every non-empty cell in the coarse cells its box reaches into.
func (g *Grid) TightenUp() {
	for _, refs := range g.coarse {
		refs.Clear()
	}

	for i := range g.cells {
		c := &g.cells[i]
		c.box = spatial.EmptyRect[float64]()
		c.reg = spatial.EmptyRect[int]()

		if c.count == 0 {
			continue
		}

		for e := c.head; e != nil; e = next(e) {
			c.box = c.box.Union(spatial.ElementRect(e))
		}
		g.register(i, g.coarseRange(c.box))
	}
}

// Visitor receives the cells of a grid during a traversal.
type Visitor interface {
	CoarseGrid(cols, rows int, cellW, cellH float64)
	LooseGrid(cols, rows int, cellW, cellH float64)

	// Called for every coarse cell with the number of fine cells it
	// references.
	CoarseCell(col, row, refs int, box spatial.Rect[float64])

	// Called for every non-empty fine cell with its loose box.
	LooseCell(col, row, count int, box spatial.Rect[float64])
}

// Traverse reports both grid layouts, then every coarse cell, then every
// non-empty fine cell, row by row.
func (g *Grid) Traverse(v Visitor) {
	v.CoarseGrid(g.coarseCols, g.coarseRows, g.coarseW, g.coarseH)
	v.LooseGrid(g.cols, g.rows, g.cellW, g.cellH)

	for row := 0; row < g.coarseRows; row++ {
		for col := 0; col < g.coarseCols; col++ {
			box := spatial.RectFromPoint(float64(col)*g.coarseW, float64(row)*g.coarseH, g.coarseW, g.coarseH)
			v.CoarseCell(col, row, g.coarse[row*g.coarseCols+col].Count(), box)
		}
	}

	for row := 0; row < g.rows; row++ {
		for col := 0; col < g.cols; col++ {
			c := &g.cells[row*g.cols+col]
			if c.count > 0 {
				v.LooseCell(col, row, c.count, c.box)
			}
		}
	}
}

func (g *Grid) insertToCell(e spatial.SizedElement, i int) {
	c := &g.cells[i]
	e.SetNext(c.head)
	c.head = e
	c.count++
	g.count++

	r := spatial.ElementRect(e)
	if c.count == 1 {
		// The box of an emptied cell is stale: start over from the element.
		c.box = r
		g.register(i, g.coarseRange(r))
		return
	}
	g.expand(i, r)
}

func (g *Grid) removeFromCell(e spatial.SizedElement, i int) {
	c := &g.cells[i]

	var prev spatial.SizedElement
	elt := c.head
	for {
		if elt == nil {
			panic(errors.New("element not found in cell").
				WithType(spatial.ErrTypeInvariantViolation).
				WithTag("id", e.ID()).
				WithTag("col", i%g.cols).
				WithTag("row", i/g.cols))
		}
		if elt.ID() == e.ID() {
			break
		}
		prev = elt
		elt = next(elt)
	}

	if prev == nil {
		c.head = next(elt)
	} else {
		prev.SetNext(elt.Next())
	}
	elt.SetNext(nil)

	c.count--
	g.count--
}

func (g *Grid) expand(i int, r spatial.Rect[float64]) {
	c := &g.cells[i]
	c.box = c.box.Union(r)
	g.register(i, g.coarseRange(c.box))
}

// register makes sure cell i is referenced by every coarse cell in span. The
// registered range is kept rectangular so that only the coarse cells outside
// of it need a new reference.
func (g *Grid) register(i int, span spatial.Rect[int]) {
	c := &g.cells[i]
	reg := c.reg.Union(span)

	for row := reg.Btm; row <= reg.Top; row++ {
		for col := reg.Lft; col <= reg.Rgt; col++ {
			if !c.reg.IsEmpty() &&
				col >= c.reg.Lft && col <= c.reg.Rgt &&
				row >= c.reg.Btm && row <= c.reg.Top {
				continue
			}
			g.coarse[row*g.coarseCols+col].InsertFirst(i)
		}
	}

	c.reg = reg
}

func (g *Grid) nextStamp() uint32 {
	g.stamp++
	if g.stamp == 0 {
		for i := range g.cells {
			g.cells[i].stamp = 0
		}
		g.stamp = 1
	}
	return g.stamp
}

// coarseRange returns the coarse cells overlapped by r as column and row
// indexes.
func (g *Grid) coarseRange(r spatial.Rect[float64]) spatial.Rect[int] {
	return spatial.Rect[int]{
		Lft: clamp(r.Lft, g.coarseW, g.coarseCols),
		Top: clamp(r.Top, g.coarseH, g.coarseRows),
		Rgt: clamp(r.Rgt, g.coarseW, g.coarseCols),
		Btm: clamp(r.Btm, g.coarseH, g.coarseRows),
	}
}

func (g *Grid) cellIndex(x, y float64) int {
	return clamp(y, g.cellH, g.rows)*g.cols + clamp(x, g.cellW, g.cols)
}

func clamp(pos, size float64, n int) int {
	if pos <= 0 {
		return 0
	}
	return min(int(pos/size), n-1)
}

// next returns the element following e in its cell. Every element in a cell
// was inserted as a SizedElement.
func next(e spatial.SizedElement) spatial.SizedElement {
	n, _ := e.Next().(spatial.SizedElement)
	return n
}
