// Package loosequadtree implements a quadtree where every element lives in
// exactly one leaf, chosen from its bottom-left point. Nodes carry loose
// bounding boxes that grow on insertion and are only shrunk back by Cleanup.
package loosequadtree

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-spatial/freelist"
	"github.com/aukilabs/hagall-spatial/spatial"
)

const (
	// The number of elements per leaf used by NewTree.
	AutoMaxElements = 9

	defaultExtent      = 1000
	defaultMaxElements = 8
	defaultMaxDepth    = 6
)

type nodeKind uint8

const (
	leaf nodeKind = iota
	branch
)

// A leaf uses first as the head of its element list, a branch as the index
// of its first child.
type node struct {
	kind  nodeKind
	first int
	count int
	box   spatial.Rect[int]
}

var emptyLeaf = node{
	kind:  leaf,
	first: freelist.Nil,
	box:   spatial.EmptyRect[int](),
}

type element[T any] struct {
	obj  T
	x, y int
	w, h int
	next int
}

func (e *element[T]) rect() spatial.Rect[int] {
	return spatial.RectFromPoint(e.x, e.y, e.w, e.h)
}

// Stats describes the current state of a tree.
type Stats struct {
	Elements int
	Nodes    int
	Splits   uint64
	Merges   uint64
}

// Tree is a loose quadtree of T. It is not safe for concurrent use.
//
// The expected cycle is: any number of insertions, moves and removals, one
// call to Cleanup, then queries.
type Tree[T any] struct {
	maxElements int
	maxDepth    int
	cx, cy      int
	hx, hy      int

	elements *freelist.FreeList[element[T]]
	nodes    *freelist.Quads[node]

	stack   []int
	results []T

	splits uint64
	merges  uint64
}

// New creates a tree covering [0, width] x [0, height].
func New[T any](width, height, maxElements, maxDepth int) (*Tree[T], error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("width and height must be greater than zero").
			WithType(spatial.ErrTypeInvalidArgument).
			WithTag("width", width).
			WithTag("height", height)
	}

	if maxElements < 1 || maxDepth < 0 {
		return nil, errors.New("invalid leaf limits").
			WithType(spatial.ErrTypeInvalidArgument).
			WithTag("max_elements", maxElements).
			WithTag("max_depth", maxDepth)
	}

	t := &Tree[T]{
		maxElements: maxElements,
		maxDepth:    maxDepth,
		cx:          width / 2,
		cy:          height / 2,
		hx:          width / 2,
		hy:          height / 2,
		elements:    freelist.New[element[T]](128),
		nodes:       freelist.NewQuads(emptyLeaf),
	}

	// Handle 0 is never given out.
	t.elements.Insert(element[T]{
		x:    math.MinInt,
		y:    math.MinInt,
		next: freelist.Nil,
	})
	return t, nil
}

// NewTree creates a tree whose depth is derived from the average size of the
// elements it will hold.
func NewTree[T any](width, height, avgEltSize int) (*Tree[T], error) {
	if avgEltSize <= 0 {
		return nil, errors.New("average element size must be greater than zero").
			WithType(spatial.ErrTypeInvalidArgument).
			WithTag("avg_elt_size", avgEltSize)
	}

	n := min(width, height)
	i := 0
	for n > avgEltSize {
		i++
		n /= 2
	}
	return New[T](width, height, AutoMaxElements, max(i-1, 0))
}

// NewDefault creates a 1000x1000 tree with 8 elements per leaf and a depth
// of 6.
func NewDefault[T any]() *Tree[T] {
	t, _ := New[T](defaultExtent, defaultExtent, defaultMaxElements, defaultMaxDepth)
	return t
}

func (t *Tree[T]) MaxElements() int {
	return t.maxElements
}

func (t *Tree[T]) MaxDepth() int {
	return t.maxDepth
}

// Count returns the number of elements in the tree.
func (t *Tree[T]) Count() int {
	return t.elements.Count() - 1
}

func (t *Tree[T]) At(handle int) T {
	return t.elements.At(handle).obj
}

func (t *Tree[T]) Rect(handle int) spatial.Rect[int] {
	return t.elements.At(handle).rect()
}

func (t *Tree[T]) Stats() Stats {
	return Stats{
		Elements: t.Count(),
		Nodes:    t.nodes.Count(),
		Splits:   t.splits,
		Merges:   t.merges,
	}
}

// InsertPoint inserts obj with its bottom-left corner at (x, y) and returns
// its handle. Handles start at 1.
func (t *Tree[T]) InsertPoint(obj T, x, y, width, height int) (int, error) {
	return t.insert(obj, x, y, width, height, true)
}

// InsertRect inserts obj with the given rectangle and returns its handle.
func (t *Tree[T]) InsertRect(obj T, r spatial.Rect[int]) (int, error) {
	if !r.Valid() {
		return freelist.Nil, errors.New("width and height must be greater than zero").
			WithType(spatial.ErrTypeInvalidArgument).
			WithTag("rect", r)
	}
	return t.insert(obj, r.Lft, r.Btm, r.Width(), r.Height(), true)
}

// BulkInsertPoint inserts obj without expanding any bounding box. It is meant
// to load many elements at once: Cleanup must run before the next Query.
func (t *Tree[T]) BulkInsertPoint(obj T, x, y, width, height int) (int, error) {
	return t.insert(obj, x, y, width, height, false)
}

// Remove removes the element with the given handle. Bounding boxes are left
// as they are until the next Cleanup.
func (t *Tree[T]) Remove(handle int) error {
	if err := t.checkHandle(handle); err != nil {
		return err
	}

	t.removeIndex(handle)
	t.elements.RemoveAt(handle)
	return nil
}

// Move moves the element with the given handle by (dx, dy).
func (t *Tree[T]) Move(handle, dx, dy int) error {
	if err := t.checkHandle(handle); err != nil {
		return err
	}

	t.removeIndex(handle)

	e := t.elements.At(handle)
	e.x += dx
	e.y += dy

	leaf, depth := t.findLeaf(handle, true)
	t.leafInsert(leaf, depth, handle, true)
	return nil
}

// MoveToPoint moves the bottom-left corner of the element with the given
// handle to (x, y).
func (t *Tree[T]) MoveToPoint(handle, x, y int) error {
	if err := t.checkHandle(handle); err != nil {
		return err
	}

	t.removeIndex(handle)

	e := t.elements.At(handle)
	e.x = x
	e.y = y

	leaf, depth := t.findLeaf(handle, true)
	t.leafInsert(leaf, depth, handle, true)
	return nil
}

// Cleanup merges every branch whose four children are empty leaves and
// recomputes every bounding box from the elements it holds. It works
// bottom-up in a single pass, so calling it twice in a row changes nothing
// the second time.
func (t *Tree[T]) Cleanup() {
	type entry struct {
		index    int
		expanded bool
	}

	stack := []entry{{index: 0}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes.At(e.index)
		if n.kind == leaf {
			n.box = t.leafBox(n)
			continue
		}

		if !e.expanded {
			stack = append(stack, entry{index: e.index, expanded: true})
			for i := 0; i < 4; i++ {
				stack = append(stack, entry{index: n.first + i})
			}
			continue
		}

		empty := 0
		box := spatial.EmptyRect[int]()
		for i := 0; i < 4; i++ {
			c := t.nodes.At(n.first + i)
			if c.kind == leaf && c.count == 0 {
				empty++
			}
			box = box.Union(c.box)
		}

		if empty == 4 {
			t.nodes.Remove(n.first)
			*n = emptyLeaf
			t.merges++
			continue
		}
		n.box = box
	}
}

// Query returns the elements whose rectangle overlaps r, except the one with
// the omit handle. Pass spatial.NoID to omit nothing.
//
// The returned slice is reused by the next call to Query.
func (t *Tree[T]) Query(r spatial.Rect[int], omit int) []T {
	t.results = t.results[:0]
	t.stack = append(t.stack[:0], 0)

	for len(t.stack) > 0 {
		idx := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]

		n := t.nodes.At(idx)
		if !n.box.Overlaps(r) {
			continue
		}

		if n.kind == branch {
			t.stack = append(t.stack, n.first, n.first+1, n.first+2, n.first+3)
			continue
		}

		for elt := n.first; elt != freelist.Nil; {
			e := t.elements.At(elt)
			if elt != omit && e.rect().Overlaps(r) {
				t.results = append(t.results, e.obj)
			}
			elt = e.next
		}
	}

	return t.results
}

// Visitor receives the nodes of a tree during a traversal. Geometry is the
// loose bounding box of the node.
type Visitor interface {
	Branch(node, depth int, box spatial.Rect[int])
	Leaf(node, depth, count int, box spatial.Rect[int])
}

// Traverse visits every node depth-first, a node before its children.
func (t *Tree[T]) Traverse(v Visitor) {
	type entry struct {
		index int
		depth int
	}

	stack := []entry{{}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes.At(e.index)
		if n.kind == leaf {
			v.Leaf(e.index, e.depth, n.count, n.box)
			continue
		}

		v.Branch(e.index, e.depth, n.box)
		for i := 3; i >= 0; i-- {
			stack = append(stack, entry{index: n.first + i, depth: e.depth + 1})
		}
	}
}

func (t *Tree[T]) insert(obj T, x, y, width, height int, expand bool) (int, error) {
	if width <= 0 || height <= 0 {
		return freelist.Nil, errors.New("width and height must be greater than zero").
			WithType(spatial.ErrTypeInvalidArgument).
			WithTag("width", width).
			WithTag("height", height)
	}

	elt := t.elements.Insert(element[T]{
		obj:  obj,
		x:    x,
		y:    y,
		w:    width,
		h:    height,
		next: freelist.Nil,
	})

	leaf, depth := t.findLeaf(elt, expand)
	t.leafInsert(leaf, depth, elt, expand)
	return elt, nil
}

func (t *Tree[T]) checkHandle(handle int) error {
	if handle < 1 || !t.elements.Occupied(handle) {
		return errors.New("element index out of range").
			WithType(spatial.ErrTypeIndexOutOfRange).
			WithTag("index", handle)
	}
	return nil
}

// findLeaf descends from the root by comparing the point of the element with
// the fixed center of each node. When expand is set, the box of every branch
// on the way is grown to contain the element.
func (t *Tree[T]) findLeaf(elt int, expand bool) (int, int) {
	e := t.elements.At(elt)
	r := e.rect()

	idx, depth := 0, 0
	mx, my, sx, sy := t.cx, t.cy, t.hx, t.hy

	for {
		n := t.nodes.At(idx)
		if n.kind == leaf {
			return idx, depth
		}

		if expand {
			n.box = n.box.Union(r)
		}

		hx, hy := sx>>1, sy>>1
		child := 0
		if e.y >= my {
			my += hy
		} else {
			child = 2
			my -= hy
		}
		if e.x <= mx {
			mx -= hx
		} else {
			child++
			mx += hx
		}

		idx = n.first + child
		depth++
		sx, sy = hx, hy
	}
}

func (t *Tree[T]) leafInsert(leaf, depth, elt int, expand bool) {
	e := t.elements.At(elt)
	n := t.nodes.At(leaf)

	e.next = n.first
	n.first = elt

	if expand {
		if n.count == 0 {
			n.box = e.rect()
		} else {
			n.box = n.box.Union(e.rect())
		}
	}
	n.count++

	if n.count > t.maxElements && depth < t.maxDepth {
		t.split(leaf, expand)
	}
}

func (t *Tree[T]) split(leaf int, expand bool) {
	n := t.nodes.At(leaf)

	drained := make([]int, 0, n.count)
	for elt := n.first; elt != freelist.Nil; elt = t.elements.At(elt).next {
		drained = append(drained, elt)
	}

	first := t.nodes.Insert(emptyLeaf)
	n = t.nodes.At(leaf)
	n.kind = branch
	n.first = first
	n.count = 0
	t.splits++

	for _, elt := range drained {
		l, d := t.findLeaf(elt, expand)
		t.leafInsert(l, d, elt, expand)
	}
}

func (t *Tree[T]) removeIndex(handle int) {
	leaf, _ := t.findLeaf(handle, false)
	n := t.nodes.At(leaf)

	prev := freelist.Nil
	elt := n.first
	for elt != handle {
		if elt == freelist.Nil {
			panic(errors.New("element not found in leaf").
				WithType(spatial.ErrTypeInvariantViolation).
				WithTag("index", handle).
				WithTag("node", leaf))
		}
		prev = elt
		elt = t.elements.At(elt).next
	}

	next := t.elements.At(handle).next
	if prev == freelist.Nil {
		n.first = next
	} else {
		t.elements.At(prev).next = next
	}
	n.count--
}

func (t *Tree[T]) leafBox(n *node) spatial.Rect[int] {
	box := spatial.EmptyRect[int]()
	for elt := n.first; elt != freelist.Nil; {
		e := t.elements.At(elt)
		box = box.Union(e.rect())
		elt = e.next
	}
	return box
}
