package simulation

import (
	"github.com/aukilabs/hagall-spatial/loosequadtree"
	"github.com/aukilabs/hagall-spatial/models"
	"github.com/aukilabs/hagall-spatial/quadtree"
	"github.com/aukilabs/hagall-spatial/spatial"
)

type quadtreeIndex struct {
	tree *quadtree.Tree[*models.Agent]
}

func newQuadtreeIndex(width, height, maxElements, maxDepth int) (*quadtreeIndex, error) {
	tree, err := quadtree.New[*models.Agent](width, height, maxElements, maxDepth)
	if err != nil {
		return nil, err
	}
	return &quadtreeIndex{tree: tree}, nil
}

func newQuadtreeIndexAuto(width, height, avgEltSize int) (*quadtreeIndex, error) {
	tree, err := quadtree.NewTree[*models.Agent](width, height, avgEltSize)
	if err != nil {
		return nil, err
	}
	return &quadtreeIndex{tree: tree}, nil
}

func (i *quadtreeIndex) Name() string {
	return KindQuadtree
}

func (i *quadtreeIndex) Insert(a *models.Agent) error {
	x, y := coverPoint(a.X, a.Y)
	h, err := i.tree.InsertPoint(a, x, y, coverSize(a.W), coverSize(a.H))
	if err != nil {
		return err
	}

	a.Handle = h
	return nil
}

func (i *quadtreeIndex) Remove(a *models.Agent) error {
	if err := i.tree.Remove(a.Handle); err != nil {
		return err
	}

	a.Handle = spatial.NoID
	return nil
}

func (i *quadtreeIndex) Move(a *models.Agent, fromX, fromY float64) error {
	x, y := coverPoint(a.X, a.Y)
	if fx, fy := coverPoint(fromX, fromY); fx == x && fy == y {
		return nil
	}
	return i.tree.MoveToPoint(a.Handle, x, y)
}

func (i *quadtreeIndex) Query(r spatial.Rect[float64], omit *models.Agent) []*models.Agent {
	return filter(i.tree.Query(coverRect(r), omittedHandle(omit)), r)
}

func (i *quadtreeIndex) Maintain() {
	i.tree.Cleanup()
}

func (i *quadtreeIndex) Stats() Stats {
	s := i.tree.Stats()
	return Stats{
		Elements: s.Elements,
		Nodes:    s.Nodes,
		Splits:   s.Splits,
		Merges:   s.Merges,
	}
}

func (i *quadtreeIndex) Nodes() []Node {
	var v treeVisitor
	i.tree.Traverse(&v)
	return v.nodes
}

func (i *quadtreeIndex) Close() {
}

type looseQuadtreeIndex struct {
	tree *loosequadtree.Tree[*models.Agent]
}

func newLooseQuadtreeIndex(width, height, maxElements, maxDepth int) (*looseQuadtreeIndex, error) {
	tree, err := loosequadtree.New[*models.Agent](width, height, maxElements, maxDepth)
	if err != nil {
		return nil, err
	}
	return &looseQuadtreeIndex{tree: tree}, nil
}

func newLooseQuadtreeIndexAuto(width, height, avgEltSize int) (*looseQuadtreeIndex, error) {
	tree, err := loosequadtree.NewTree[*models.Agent](width, height, avgEltSize)
	if err != nil {
		return nil, err
	}
	return &looseQuadtreeIndex{tree: tree}, nil
}

func (i *looseQuadtreeIndex) Name() string {
	return KindLooseQuadtree
}

func (i *looseQuadtreeIndex) Insert(a *models.Agent) error {
	x, y := coverPoint(a.X, a.Y)
	h, err := i.tree.InsertPoint(a, x, y, coverSize(a.W), coverSize(a.H))
	if err != nil {
		return err
	}

	a.Handle = h
	return nil
}

func (i *looseQuadtreeIndex) BulkInsert(a *models.Agent) error {
	x, y := coverPoint(a.X, a.Y)
	h, err := i.tree.BulkInsertPoint(a, x, y, coverSize(a.W), coverSize(a.H))
	if err != nil {
		return err
	}

	a.Handle = h
	return nil
}

func (i *looseQuadtreeIndex) Remove(a *models.Agent) error {
	if err := i.tree.Remove(a.Handle); err != nil {
		return err
	}

	a.Handle = spatial.NoID
	return nil
}

func (i *looseQuadtreeIndex) Move(a *models.Agent, fromX, fromY float64) error {
	x, y := coverPoint(a.X, a.Y)
	if fx, fy := coverPoint(fromX, fromY); fx == x && fy == y {
		return nil
	}
	return i.tree.MoveToPoint(a.Handle, x, y)
}

func (i *looseQuadtreeIndex) Query(r spatial.Rect[float64], omit *models.Agent) []*models.Agent {
	return filter(i.tree.Query(coverRect(r), omittedHandle(omit)), r)
}

func (i *looseQuadtreeIndex) Maintain() {
	i.tree.Cleanup()
}

func (i *looseQuadtreeIndex) Stats() Stats {
	s := i.tree.Stats()
	return Stats{
		Elements: s.Elements,
		Nodes:    s.Nodes,
		Splits:   s.Splits,
		Merges:   s.Merges,
	}
}

func (i *looseQuadtreeIndex) Nodes() []Node {
	var v treeVisitor
	i.tree.Traverse(&v)
	return v.nodes
}

func (i *looseQuadtreeIndex) Close() {
}

// treeVisitor flattens the traversal of both quadtrees.
type treeVisitor struct {
	nodes []Node
}

func (v *treeVisitor) Branch(node, depth int, box spatial.Rect[int]) {
	v.nodes = append(v.nodes, Node{
		Kind:  NodeBranch,
		Depth: depth,
		Box:   toFloatRect(box),
	})
}

func (v *treeVisitor) Leaf(node, depth, count int, box spatial.Rect[int]) {
	v.nodes = append(v.nodes, Node{
		Kind:  NodeLeaf,
		Depth: depth,
		Count: count,
		Box:   toFloatRect(box),
	})
}
