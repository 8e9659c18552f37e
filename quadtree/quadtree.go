// Package quadtree implements a point-region quadtree over rectangles. An
// element is stored in every leaf its rectangle overlaps, so a leaf split may
// duplicate elements across several children. Node geometry is never stored:
// it is recomputed from the root extent while descending.
package quadtree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-spatial/freelist"
	"github.com/aukilabs/hagall-spatial/spatial"
)

const (
	// The number of elements per leaf used by NewTree.
	AutoMaxElements = 11
)

type nodeKind uint8

const (
	leaf nodeKind = iota
	branch
)

// A leaf uses first as the head of its element-node list, a branch as the
// index of its first child. The four children of a branch are contiguous.
type node struct {
	kind  nodeKind
	first int
	count int
}

var emptyLeaf = node{kind: leaf, first: freelist.Nil}

type element[T any] struct {
	obj  T
	rect spatial.Rect[int]
}

// elementNode is the membership of an element in one leaf.
type elementNode struct {
	next    int
	element int
}

type nodeData struct {
	index  int
	depth  int
	mx, my int
	sx, sy int
}

func (d nodeData) child(first, i int) nodeData {
	hx, hy := d.sx>>1, d.sy>>1
	c := nodeData{
		index: first + i,
		depth: d.depth + 1,
		sx:    hx,
		sy:    hy,
	}

	switch i {
	case 0:
		c.mx, c.my = d.mx-hx, d.my+hy
	case 1:
		c.mx, c.my = d.mx+hx, d.my+hy
	case 2:
		c.mx, c.my = d.mx-hx, d.my-hy
	default:
		c.mx, c.my = d.mx+hx, d.my-hy
	}
	return c
}

func (d nodeData) quad() spatial.Rect[int] {
	return spatial.Rect[int]{
		Lft: d.mx - d.sx,
		Top: d.my + d.sy,
		Rgt: d.mx + d.sx,
		Btm: d.my - d.sy,
	}
}

// Stats describes the current state of a tree.
type Stats struct {
	Elements int
	Nodes    int
	Splits   uint64
	Merges   uint64
}

// Tree is a quadtree of T. It is not safe for concurrent use.
type Tree[T any] struct {
	maxElements int
	maxDepth    int
	root        nodeData

	elements     *freelist.FreeList[element[T]]
	elementNodes *freelist.FreeList[elementNode]
	nodes        *freelist.Quads[node]

	stack   []nodeData
	leaves  []nodeData
	marks   []uint32
	stamp   uint32
	results []T

	splits uint64
	merges uint64
}

// New creates a tree covering [0, width] x [0, height]. A leaf splits when it
// holds more than maxElements and is shallower than maxDepth.
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

	return &Tree[T]{
		maxElements: maxElements,
		maxDepth:    maxDepth,
		root: nodeData{
			mx: width / 2,
			my: height / 2,
			sx: width / 2,
			sy: height / 2,
		},
		elements:     freelist.New[element[T]](128),
		elementNodes: freelist.New[elementNode](128),
		nodes:        freelist.NewQuads(emptyLeaf),
	}, nil
}

// NewTree creates a tree whose depth is derived from the average size of the
// elements it will hold.
func NewTree[T any](width, height, avgEltSize int) (*Tree[T], error) {
	if avgEltSize <= 0 {
		return nil, errors.New("average element size must be greater than zero").
			WithType(spatial.ErrTypeInvalidArgument).
			WithTag("avg_elt_size", avgEltSize)
	}

	return New[T](width, height, AutoMaxElements, AutoDepth(width, height, avgEltSize))
}

// AutoDepth returns the depth at which a node is about the size of an average
// element: the smallest extent is halved until it no longer exceeds
// avgEltSize, and the number of halvings minus one is returned.
func AutoDepth(width, height, avgEltSize int) int {
	n := min(width, height)
	i := 0
	for n > avgEltSize {
		i++
		n /= 2
	}
	return max(i-1, 0)
}

func (t *Tree[T]) MaxElements() int {
	return t.maxElements
}

func (t *Tree[T]) MaxDepth() int {
	return t.maxDepth
}

// Count returns the number of elements in the tree.
func (t *Tree[T]) Count() int {
	return t.elements.Count()
}

// At returns the value of the element with the given handle.
func (t *Tree[T]) At(handle int) T {
	return t.elements.At(handle).obj
}

// Rect returns the rectangle of the element with the given handle.
func (t *Tree[T]) Rect(handle int) spatial.Rect[int] {
	return t.elements.At(handle).rect
}

func (t *Tree[T]) Stats() Stats {
	return Stats{
		Elements: t.elements.Count(),
		Nodes:    t.nodes.Count(),
		Splits:   t.splits,
		Merges:   t.merges,
	}
}

// InsertRect inserts obj with the given rectangle and returns its handle.
func (t *Tree[T]) InsertRect(obj T, r spatial.Rect[int]) (int, error) {
	if !r.Valid() {
		return freelist.Nil, errors.New("width and height must be greater than zero").
			WithType(spatial.ErrTypeInvalidArgument).
			WithTag("rect", r)
	}

	elt := t.elements.Insert(element[T]{obj: obj, rect: r})
	t.nodeInsert(t.root, elt)
	return elt, nil
}

// InsertPoint inserts obj with a rectangle whose bottom-left corner is
// (x, y) and returns its handle.
func (t *Tree[T]) InsertPoint(obj T, x, y, width, height int) (int, error) {
	return t.InsertRect(obj, spatial.RectFromPoint(x, y, width, height))
}

// Remove removes the element with the given handle. Nodes are left in place
// until the next Cleanup.
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
	e.rect.Lft += dx
	e.rect.Rgt += dx
	e.rect.Top += dy
	e.rect.Btm += dy

	t.nodeInsert(t.root, handle)
	return nil
}

// MoveToPoint moves the bottom-left corner of the element with the given
// handle to (x, y). Its size is kept.
func (t *Tree[T]) MoveToPoint(handle, x, y int) error {
	if err := t.checkHandle(handle); err != nil {
		return err
	}

	t.removeIndex(handle)

	e := t.elements.At(handle)
	e.rect = spatial.RectFromPoint(x, y, e.rect.Width(), e.rect.Height())

	t.nodeInsert(t.root, handle)
	return nil
}

// Cleanup merges every branch whose four children are empty leaves. It
// works bottom-up so that a whole empty subtree collapses in a single call.
func (t *Tree[T]) Cleanup() {
	if t.nodes.At(0).kind != branch {
		return
	}

	type entry struct {
		index    int
		expanded bool
	}

	stack := []entry{{index: 0}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := *t.nodes.At(e.index)
		if n.kind != branch {
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
		for i := 0; i < 4; i++ {
			if c := t.nodes.At(n.first + i); c.kind == leaf && c.count == 0 {
				empty++
			}
		}

		if empty == 4 {
			t.nodes.Remove(n.first)
			*t.nodes.At(e.index) = emptyLeaf
			t.merges++
		}
	}
}

// Query returns the elements whose rectangle overlaps r, except the one with
// the omit handle. Pass spatial.NoID to omit nothing.
//
// The returned slice is reused by the next call to Query.
func (t *Tree[T]) Query(r spatial.Rect[int], omit int) []T {
	t.results = t.results[:0]
	t.nextStamp()

	t.leaves = t.findLeaves(t.root, r, t.leaves[:0])
	for _, nd := range t.leaves {
		n := t.nodes.At(nd.index)

		for en := n.first; en != freelist.Nil; {
			elementNode := t.elementNodes.At(en)
			en = elementNode.next

			elt := elementNode.element
			if t.marks[elt] == t.stamp {
				continue
			}
			t.marks[elt] = t.stamp

			if elt == omit {
				continue
			}

			if e := t.elements.At(elt); e.rect.Overlaps(r) {
				t.results = append(t.results, e.obj)
			}
		}
	}

	return t.results
}

// Visitor receives the nodes of a tree during a traversal. Geometry is the
// fixed quadrant of the node.
type Visitor interface {
	Branch(node, depth int, quad spatial.Rect[int])
	Leaf(node, depth, count int, quad spatial.Rect[int])
}

// Traverse visits every node depth-first, a node before its children.
func (t *Tree[T]) Traverse(v Visitor) {
	stack := []nodeData{t.root}

	for len(stack) > 0 {
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes.At(nd.index)
		if n.kind == leaf {
			v.Leaf(nd.index, nd.depth, n.count, nd.quad())
			continue
		}

		v.Branch(nd.index, nd.depth, nd.quad())
		for i := 3; i >= 0; i-- {
			stack = append(stack, nd.child(n.first, i))
		}
	}
}

func (t *Tree[T]) checkHandle(handle int) error {
	if !t.elements.Occupied(handle) {
		return errors.New("element index out of range").
			WithType(spatial.ErrTypeIndexOutOfRange).
			WithTag("index", handle)
	}
	return nil
}

func (t *Tree[T]) nextStamp() {
	if n := t.elements.Len(); len(t.marks) < n {
		t.marks = append(t.marks, make([]uint32, n-len(t.marks))...)
	}

	t.stamp++
	if t.stamp == 0 {
		clear(t.marks)
		t.stamp = 1
	}
}

// findLeaves appends to leaves every leaf under from whose quadrant overlaps
// r. The midline tests match the ones used to place elements.
func (t *Tree[T]) findLeaves(from nodeData, r spatial.Rect[int], leaves []nodeData) []nodeData {
	t.stack = append(t.stack[:0], from)

	for len(t.stack) > 0 {
		nd := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]

		n := t.nodes.At(nd.index)
		if n.kind == leaf {
			leaves = append(leaves, nd)
			continue
		}

		if r.Top >= nd.my {
			if r.Lft <= nd.mx {
				t.stack = append(t.stack, nd.child(n.first, 0))
			}
			if r.Rgt > nd.mx {
				t.stack = append(t.stack, nd.child(n.first, 1))
			}
		}

		if r.Btm < nd.my {
			if r.Lft <= nd.mx {
				t.stack = append(t.stack, nd.child(n.first, 2))
			}
			if r.Rgt > nd.mx {
				t.stack = append(t.stack, nd.child(n.first, 3))
			}
		}
	}

	return leaves
}

func (t *Tree[T]) nodeInsert(from nodeData, elt int) {
	leaves := t.findLeaves(from, t.elements.At(elt).rect, make([]nodeData, 0, 4))
	for _, nd := range leaves {
		t.leafInsert(nd, elt)
	}
}

func (t *Tree[T]) leafInsert(nd nodeData, elt int) {
	en := t.elementNodes.Insert(elementNode{
		next:    t.nodes.At(nd.index).first,
		element: elt,
	})

	n := t.nodes.At(nd.index)
	n.first = en
	n.count++

	if n.count > t.maxElements && nd.depth < t.maxDepth {
		t.split(nd)
	}
}

func (t *Tree[T]) split(nd nodeData) {
	n := t.nodes.At(nd.index)

	drained := make([]int, 0, n.count)
	for en := n.first; en != freelist.Nil; {
		elementNode := t.elementNodes.At(en)
		drained = append(drained, elementNode.element)

		next := elementNode.next
		t.elementNodes.RemoveAt(en)
		en = next
	}

	first := t.nodes.Insert(emptyLeaf)
	*t.nodes.At(nd.index) = node{kind: branch, first: first}
	t.splits++

	for _, elt := range drained {
		t.nodeInsert(nd, elt)
	}
}

func (t *Tree[T]) removeIndex(handle int) {
	t.leaves = t.findLeaves(t.root, t.elements.At(handle).rect, t.leaves[:0])

	for _, nd := range t.leaves {
		n := t.nodes.At(nd.index)

		prev := freelist.Nil
		en := n.first
		for en != freelist.Nil && t.elementNodes.At(en).element != handle {
			prev = en
			en = t.elementNodes.At(en).next
		}

		if en == freelist.Nil {
			panic(errors.New("element not found in leaf").
				WithType(spatial.ErrTypeInvariantViolation).
				WithTag("index", handle).
				WithTag("node", nd.index))
		}

		next := t.elementNodes.At(en).next
		if prev == freelist.Nil {
			n.first = next
		} else {
			t.elementNodes.At(prev).next = next
		}
		n.count--
		t.elementNodes.RemoveAt(en)
	}
}
