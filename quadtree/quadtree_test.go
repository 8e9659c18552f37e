package quadtree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-spatial/spatial"
	"github.com/stretchr/testify/require"
)

type visit struct {
	branch bool
	node   int
	depth  int
	count  int
	quad   spatial.Rect[int]
}

type recorder struct {
	visits []visit
}

func (r *recorder) Branch(node, depth int, quad spatial.Rect[int]) {
	r.visits = append(r.visits, visit{branch: true, node: node, depth: depth, quad: quad})
}

func (r *recorder) Leaf(node, depth, count int, quad spatial.Rect[int]) {
	r.visits = append(r.visits, visit{node: node, depth: depth, count: count, quad: quad})
}

func traverse[T any](t *Tree[T]) []visit {
	var r recorder
	t.Traverse(&r)
	return r.visits
}

func sorted(values []string) []string {
	s := append([]string(nil), values...)
	sort.Strings(s)
	return s
}

func TestNew(t *testing.T) {
	t.Run("invalid extents", func(t *testing.T) {
		_, err := New[int](0, 100, 4, 4)
		require.Error(t, err)
		require.True(t, errors.IsType(err, spatial.ErrTypeInvalidArgument))

		_, err = New[int](100, -1, 4, 4)
		require.True(t, errors.IsType(err, spatial.ErrTypeInvalidArgument))
	})

	t.Run("invalid limits", func(t *testing.T) {
		_, err := New[int](100, 100, 0, 4)
		require.True(t, errors.IsType(err, spatial.ErrTypeInvalidArgument))
	})

	t.Run("auto config", func(t *testing.T) {
		tree, err := NewTree[int](1000, 800, 2)
		require.NoError(t, err)
		require.Equal(t, AutoMaxElements, tree.MaxElements())
		require.Equal(t, 8, tree.MaxDepth())

		require.Equal(t, 0, AutoDepth(10, 10, 20))
		require.Equal(t, 1, AutoDepth(100, 100, 30))

		_, err = NewTree[int](100, 100, 0)
		require.True(t, errors.IsType(err, spatial.ErrTypeInvalidArgument))
	})
}

func TestInsert(t *testing.T) {
	tree, err := New[string](100, 100, 4, 4)
	require.NoError(t, err)

	t.Run("rect without area is rejected", func(t *testing.T) {
		_, err := tree.InsertRect("a", spatial.Rect[int]{Lft: 10, Top: 20, Rgt: 10, Btm: 10})
		require.True(t, errors.IsType(err, spatial.ErrTypeInvalidArgument))

		_, err = tree.InsertRect("a", spatial.Rect[int]{Lft: 10, Top: 10, Rgt: 20, Btm: 10})
		require.True(t, errors.IsType(err, spatial.ErrTypeInvalidArgument))

		_, err = tree.InsertPoint("a", 10, 10, 0, 5)
		require.True(t, errors.IsType(err, spatial.ErrTypeInvalidArgument))
		require.Equal(t, 0, tree.Count())
	})

	t.Run("insert returns stable handles", func(t *testing.T) {
		a, err := tree.InsertPoint("a", 10, 10, 2, 3)
		require.NoError(t, err)
		b, err := tree.InsertPoint("b", 20, 20, 2, 3)
		require.NoError(t, err)

		require.NotEqual(t, a, b)
		require.Equal(t, "a", tree.At(a))
		require.Equal(t, spatial.Rect[int]{Lft: 10, Top: 13, Rgt: 12, Btm: 10}, tree.Rect(a))
		require.Equal(t, 2, tree.Count())
	})
}

func TestSplitScenario(t *testing.T) {
	tree, err := New[string](100, 100, 4, 4)
	require.NoError(t, err)

	points := map[string][2]int{
		"bl":     {10, 10},
		"br":     {90, 10},
		"tl":     {10, 90},
		"tr":     {90, 90},
		"center": {50, 50},
	}
	for name, p := range points {
		_, err := tree.InsertPoint(name, p[0], p[1], 1, 1)
		require.NoError(t, err)
	}

	require.Equal(t, uint64(1), tree.Stats().Splits)
	require.Equal(t, 5, tree.Stats().Nodes)

	all := tree.Query(spatial.Rect[int]{Lft: 0, Top: 100, Rgt: 100, Btm: 0}, spatial.NoID)
	require.Equal(t, []string{"bl", "br", "center", "tl", "tr"}, sorted(all))

	bottomLeft := tree.Query(spatial.Rect[int]{Lft: 0, Top: 50, Rgt: 50, Btm: 0}, spatial.NoID)
	require.Equal(t, []string{"bl", "center"}, sorted(bottomLeft))
}

func TestSplitKeepsElements(t *testing.T) {
	tree, err := New[int](128, 128, 4, 6)
	require.NoError(t, err)

	for i, p := range [][2]int{{10, 10}, {100, 10}, {10, 100}, {100, 100}, {30, 30}} {
		_, err := tree.InsertPoint(i, p[0], p[1], 2, 2)
		require.NoError(t, err)
	}

	require.Equal(t, uint64(1), tree.Stats().Splits)

	res := tree.Query(spatial.Rect[int]{Lft: 0, Top: 128, Rgt: 128, Btm: 0}, spatial.NoID)
	require.ElementsMatch(t, []int{0, 1, 2, 3, 4}, res)
}

func TestQueryOmitsAndDeduplicates(t *testing.T) {
	tree, err := New[string](100, 100, 1, 3)
	require.NoError(t, err)

	big, err := tree.InsertRect("big", spatial.Rect[int]{Lft: 10, Top: 90, Rgt: 90, Btm: 10})
	require.NoError(t, err)
	_, err = tree.InsertPoint("small", 20, 20, 1, 1)
	require.NoError(t, err)

	res := tree.Query(spatial.Rect[int]{Lft: 0, Top: 100, Rgt: 100, Btm: 0}, spatial.NoID)
	require.Equal(t, []string{"big", "small"}, sorted(res))

	res = tree.Query(spatial.Rect[int]{Lft: 0, Top: 100, Rgt: 100, Btm: 0}, big)
	require.Equal(t, []string{"small"}, res)

	res = tree.Query(spatial.Rect[int]{Lft: 95, Top: 100, Rgt: 100, Btm: 95}, spatial.NoID)
	require.Empty(t, res)
}

func TestRemove(t *testing.T) {
	t.Run("insert then remove restores counts", func(t *testing.T) {
		tree, err := New[int](100, 100, 4, 4)
		require.NoError(t, err)
		for i := 0; i < 8; i++ {
			_, err := tree.InsertPoint(i, 5+i*11, 5+i*11, 3, 3)
			require.NoError(t, err)
		}

		before := traverse(tree)
		count := tree.Count()

		h, err := tree.InsertRect(42, spatial.Rect[int]{Lft: 30, Top: 70, Rgt: 45, Btm: 30})
		require.NoError(t, err)
		require.NoError(t, tree.Remove(h))

		require.Equal(t, count, tree.Count())
		require.Equal(t, before, traverse(tree))
	})

	t.Run("invalid handle", func(t *testing.T) {
		tree, err := New[int](100, 100, 4, 4)
		require.NoError(t, err)

		err = tree.Remove(3)
		require.True(t, errors.IsType(err, spatial.ErrTypeIndexOutOfRange))

		h, err := tree.InsertPoint(1, 1, 1, 1, 1)
		require.NoError(t, err)
		require.NoError(t, tree.Remove(h))

		err = tree.Remove(h)
		require.True(t, errors.IsType(err, spatial.ErrTypeIndexOutOfRange))
		err = tree.Move(h, 1, 1)
		require.True(t, errors.IsType(err, spatial.ErrTypeIndexOutOfRange))
		err = tree.MoveToPoint(-1, 1, 1)
		require.True(t, errors.IsType(err, spatial.ErrTypeIndexOutOfRange))
	})

	t.Run("stale rectangle is an invariant violation", func(t *testing.T) {
		tree, err := New[int](100, 100, 1, 4)
		require.NoError(t, err)
		a, err := tree.InsertPoint(1, 10, 10, 2, 2)
		require.NoError(t, err)
		_, err = tree.InsertPoint(2, 80, 80, 2, 2)
		require.NoError(t, err)

		tree.elements.At(a).rect = spatial.RectFromPoint(80, 10, 2, 2)

		defer func() {
			err, ok := recover().(error)
			require.True(t, ok)
			require.True(t, errors.IsType(err, spatial.ErrTypeInvariantViolation))
		}()
		tree.Remove(a)
	})
}

func TestMove(t *testing.T) {
	tree, err := New[string](100, 100, 2, 4)
	require.NoError(t, err)

	a, err := tree.InsertPoint("a", 10, 10, 4, 4)
	require.NoError(t, err)
	_, err = tree.InsertPoint("b", 12, 12, 4, 4)
	require.NoError(t, err)
	_, err = tree.InsertPoint("c", 80, 80, 4, 4)
	require.NoError(t, err)

	lowerLeft := spatial.Rect[int]{Lft: 0, Top: 40, Rgt: 40, Btm: 0}
	upperRight := spatial.Rect[int]{Lft: 60, Top: 100, Rgt: 100, Btm: 60}

	require.NoError(t, tree.Move(a, 60, 60))
	require.Equal(t, spatial.Rect[int]{Lft: 70, Top: 74, Rgt: 74, Btm: 70}, tree.Rect(a))
	require.Equal(t, []string{"b"}, tree.Query(lowerLeft, spatial.NoID))
	require.Equal(t, []string{"a", "c"}, sorted(tree.Query(upperRight, spatial.NoID)))

	require.NoError(t, tree.MoveToPoint(a, 1, 1))
	require.Equal(t, spatial.Rect[int]{Lft: 1, Top: 5, Rgt: 5, Btm: 1}, tree.Rect(a))
	require.Equal(t, []string{"a", "b"}, sorted(tree.Query(lowerLeft, spatial.NoID)))
	require.Equal(t, []string{"c"}, tree.Query(upperRight, spatial.NoID))
}

func TestCleanup(t *testing.T) {
	newTree := func(t *testing.T) (*Tree[int], []int) {
		tree, err := New[int](100, 100, 1, 4)
		require.NoError(t, err)

		var handles []int
		for i, p := range [][2]int{{10, 10}, {40, 40}} {
			h, err := tree.InsertPoint(i, p[0], p[1], 1, 1)
			require.NoError(t, err)
			handles = append(handles, h)
		}
		require.Equal(t, uint64(2), tree.Stats().Splits)
		require.Equal(t, 9, tree.Stats().Nodes)
		return tree, handles
	}

	t.Run("keeps non empty branches", func(t *testing.T) {
		tree, handles := newTree(t)
		require.NoError(t, tree.Remove(handles[0]))

		tree.Cleanup()
		require.Equal(t, 9, tree.Stats().Nodes)
		require.Equal(t, uint64(0), tree.Stats().Merges)
	})

	t.Run("collapses empty subtrees in a single pass", func(t *testing.T) {
		tree, handles := newTree(t)
		for _, h := range handles {
			require.NoError(t, tree.Remove(h))
		}

		tree.Cleanup()
		require.Equal(t, 1, tree.Stats().Nodes)
		require.Equal(t, uint64(2), tree.Stats().Merges)
		require.Equal(t, []visit{{node: 0, quad: spatial.Rect[int]{Lft: 0, Top: 100, Rgt: 100, Btm: 0}}}, traverse(tree))

		t.Run("is idempotent", func(t *testing.T) {
			tree.Cleanup()
			require.Equal(t, 1, tree.Stats().Nodes)
			require.Equal(t, uint64(2), tree.Stats().Merges)
		})
	})

	t.Run("freed nodes are reused by the next split", func(t *testing.T) {
		tree, handles := newTree(t)
		for _, h := range handles {
			require.NoError(t, tree.Remove(h))
		}
		tree.Cleanup()

		_, err := tree.InsertPoint(0, 80, 80, 1, 1)
		require.NoError(t, err)
		_, err = tree.InsertPoint(1, 10, 80, 1, 1)
		require.NoError(t, err)

		var nodes []int
		for _, v := range traverse(tree) {
			nodes = append(nodes, v.node)
		}
		require.Equal(t, []int{0, 1, 2, 3, 4}, nodes)
	})
}

func TestTraverse(t *testing.T) {
	tree, err := New[int](64, 64, 1, 2)
	require.NoError(t, err)

	_, err = tree.InsertPoint(0, 4, 4, 1, 1)
	require.NoError(t, err)
	_, err = tree.InsertPoint(1, 20, 20, 1, 1)
	require.NoError(t, err)

	visits := traverse(tree)
	require.Len(t, visits, 9)

	var nodes, depths []int
	leafElements := 0
	for _, v := range visits {
		nodes = append(nodes, v.node)
		depths = append(depths, v.depth)
		if !v.branch {
			leafElements += v.count
		}
	}
	require.Equal(t, []int{0, 1, 2, 3, 5, 6, 7, 8, 4}, nodes)
	require.Equal(t, []int{0, 1, 1, 1, 2, 2, 2, 2, 1}, depths)
	require.Equal(t, 2, leafElements)

	require.True(t, visits[0].branch)
	require.Equal(t, spatial.Rect[int]{Lft: 0, Top: 64, Rgt: 64, Btm: 0}, visits[0].quad)
	require.True(t, visits[3].branch)
	require.Equal(t, spatial.Rect[int]{Lft: 0, Top: 32, Rgt: 32, Btm: 0}, visits[3].quad)
}

func TestMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	tree, err := New[int](256, 256, 4, 6)
	require.NoError(t, err)

	rects := map[int]spatial.Rect[int]{}
	handles := map[int]int{}

	randomRect := func() spatial.Rect[int] {
		x, y := r.Intn(250), r.Intn(250)
		return spatial.RectFromPoint(x, y, 1+r.Intn(20), 1+r.Intn(20))
	}

	for id := 0; id < 300; id++ {
		rect := randomRect()
		h, err := tree.InsertRect(id, rect)
		require.NoError(t, err)
		rects[id] = rect
		handles[id] = h
	}

	for cycle := 0; cycle < 20; cycle++ {
		for id, h := range handles {
			switch r.Intn(10) {
			case 0:
				require.NoError(t, tree.Remove(h))
				delete(handles, id)
				delete(rects, id)

			case 1, 2, 3:
				dx, dy := r.Intn(21)-10, r.Intn(21)-10
				require.NoError(t, tree.Move(h, dx, dy))
				rect := rects[id]
				rects[id] = spatial.RectFromPoint(rect.Lft+dx, rect.Btm+dy, rect.Width(), rect.Height())
				require.Equal(t, rects[id], tree.Rect(h))

			case 4:
				x, y := r.Intn(250), r.Intn(250)
				require.NoError(t, tree.MoveToPoint(h, x, y))
				rect := rects[id]
				rects[id] = spatial.RectFromPoint(x, y, rect.Width(), rect.Height())
			}
		}
		tree.Cleanup()

		for q := 0; q < 20; q++ {
			query := randomRect()
			query.Rgt += 30
			query.Top += 30

			omit := spatial.NoID
			omitID := -1
			for id, h := range handles {
				omit, omitID = h, id
				break
			}

			var expected []int
			for id, rect := range rects {
				if id != omitID && rect.Overlaps(query) {
					expected = append(expected, id)
				}
			}

			got := tree.Query(query, omit)
			require.ElementsMatch(t, expected, got)
		}
	}

	require.Equal(t, len(handles), tree.Count())
}
