// Package ugrid implements a uniform grid of elements that all share the same
// size. Each element is stored as a single point, its bottom-left corner, in
// the intrusive list of the cell that contains it.
package ugrid

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-spatial/spatial"
)

// Stats describes the current state of a grid.
type Stats struct {
	Elements int
	Cells    int
	Rows     int
	Cols     int
}

// Grid is a uniform grid. It is not safe for concurrent use.
type Grid struct {
	width, height float64
	eltW, eltH    float64
	cellW, cellH  float64
	cols, rows    int

	// Heads of the cell lists, indexed by row*cols+col.
	cells     []spatial.Element
	rowCounts []int
	count     int

	results []spatial.Element
}

// New creates a grid covering [0, width] x [0, height] that stores elements
// of eltW x eltH in cells of cellW x cellH.
func New(eltW, eltH, cellW, cellH, width, height float64) (*Grid, error) {
	if eltW <= 0 || eltH <= 0 || cellW <= 0 || cellH <= 0 || width <= 0 || height <= 0 {
		return nil, errors.New("grid sizes must be greater than zero").
			WithType(spatial.ErrTypeInvalidArgument).
			WithTag("element_width", eltW).
			WithTag("element_height", eltH).
			WithTag("cell_width", cellW).
			WithTag("cell_height", cellH).
			WithTag("width", width).
			WithTag("height", height)
	}

	cols := int(width/cellW) + 1
	rows := int(height/cellH) + 1

	return &Grid{
		width:     width,
		height:    height,
		eltW:      eltW,
		eltH:      eltH,
		cellW:     cellW,
		cellH:     cellH,
		cols:      cols,
		rows:      rows,
		cells:     make([]spatial.Element, cols*rows),
		rowCounts: make([]int, rows),
		results:   make([]spatial.Element, 0, 16),
	}, nil
}

// Count returns the number of elements in the grid.
func (g *Grid) Count() int {
	return g.count
}

func (g *Grid) Stats() Stats {
	cells := 0
	for _, c := range g.cells {
		if c != nil {
			cells++
		}
	}

	return Stats{
		Elements: g.count,
		Cells:    cells,
		Rows:     g.rows,
		Cols:     g.cols,
	}
}

// Insert inserts e in the cell that contains its position.
func (g *Grid) Insert(e spatial.Element) {
	x, y := e.Position()
	g.insertToCell(e, g.col(x), g.row(y))
}

// Remove removes e from the cell that contains its position. The position must
// not have changed since e was inserted or last moved.
func (g *Grid) Remove(e spatial.Element) {
	x, y := e.Position()
	g.removeFromCell(e, g.col(x), g.row(y))
}

// Move relocates e from (fromX, fromY), where it was inserted, to (toX, toY).
// Nothing happens when both positions are in the same cell.
func (g *Grid) Move(e spatial.Element, fromX, fromY, toX, toY float64) {
	oldCol, oldRow := g.col(fromX), g.row(fromY)
	newCol, newRow := g.col(toX), g.row(toY)

	if oldCol == newCol && oldRow == newRow {
		return
	}

	g.removeFromCell(e, oldCol, oldRow)
	g.insertToCell(e, newCol, newRow)
}

// Query returns the elements whose box overlaps r, except the one with the
// omit id. Pass spatial.NoID to omit nothing.
//
// The returned slice is reused by the next call to Query.
func (g *Grid) Query(r spatial.Rect[float64], omit int) []spatial.Element {
	g.results = g.results[:0]
	if r.IsEmpty() {
		return g.results
	}

	// Elements are points: widen the bottom-left of the query by the element
	// size to catch the ones whose box reaches into it.
	r.Lft -= g.eltW
	r.Btm -= g.eltH

	minCol, maxCol := g.col(r.Lft), g.col(r.Rgt)
	minRow, maxRow := g.row(r.Btm), g.row(r.Top)

	for row := minRow; row <= maxRow; row++ {
		if g.rowCounts[row] == 0 {
			continue
		}

		for col := minCol; col <= maxCol; col++ {
			for e := g.cells[row*g.cols+col]; e != nil; e = e.Next() {
				if e.ID() != omit && pointInRect(e, r) {
					g.results = append(g.results, e)
				}
			}
		}
	}

	return g.results
}

// Visitor receives the cells of a grid during a traversal.
type Visitor interface {
	Grid(cols, rows int, cellW, cellH float64)
	Cell(col, row, count int, box spatial.Rect[float64])
}

// Traverse reports the grid layout, then every non-empty cell row by row.
func (g *Grid) Traverse(v Visitor) {
	v.Grid(g.cols, g.rows, g.cellW, g.cellH)

	for row := 0; row < g.rows; row++ {
		if g.rowCounts[row] == 0 {
			continue
		}

		for col := 0; col < g.cols; col++ {
			head := g.cells[row*g.cols+col]
			if head == nil {
				continue
			}

			count := 0
			for e := head; e != nil; e = e.Next() {
				count++
			}

			box := spatial.RectFromPoint(float64(col)*g.cellW, float64(row)*g.cellH, g.cellW, g.cellH)
			v.Cell(col, row, count, box)
		}
	}
}

func (g *Grid) insertToCell(e spatial.Element, col, row int) {
	i := row*g.cols + col
	e.SetNext(g.cells[i])
	g.cells[i] = e
	g.rowCounts[row]++
	g.count++
}

func (g *Grid) removeFromCell(e spatial.Element, col, row int) {
	i := row*g.cols + col

	var prev spatial.Element
	elt := g.cells[i]
	for {
		if elt == nil {
			panic(errors.New("element not found in cell").
				WithType(spatial.ErrTypeInvariantViolation).
				WithTag("id", e.ID()).
				WithTag("col", col).
				WithTag("row", row))
		}
		if elt.ID() == e.ID() {
			break
		}
		prev = elt
		elt = elt.Next()
	}

	if prev == nil {
		g.cells[i] = elt.Next()
	} else {
		prev.SetNext(elt.Next())
	}
	elt.SetNext(nil)

	g.rowCounts[row]--
	g.count--
}

func (g *Grid) col(x float64) int {
	if x <= 0 {
		return 0
	}
	return min(int(x/g.cellW), g.cols-1)
}

func (g *Grid) row(y float64) int {
	if y <= 0 {
		return 0
	}
	return min(int(y/g.cellH), g.rows-1)
}

func pointInRect(e spatial.Element, r spatial.Rect[float64]) bool {
	x, y := e.Position()
	return x >= r.Lft && x <= r.Rgt && y >= r.Btm && y <= r.Top
}
