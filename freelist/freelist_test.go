package freelist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFreeListInsert(t *testing.T) {
	l := New[string](1)

	a := l.Insert("a")
	b := l.Insert("b")
	c := l.Insert("c")
	require.Equal(t, 0, a)
	require.Equal(t, 1, b)
	require.Equal(t, 2, c)
	require.Equal(t, 3, l.Count())
	require.Equal(t, 3, l.Len())
	require.Equal(t, 4, l.Capacity())
	require.Equal(t, "b", *l.At(b))
}

func TestFreeListRemoveAt(t *testing.T) {
	t.Run("most recently freed slot is reused first", func(t *testing.T) {
		l := New[int](4)
		for i := 0; i < 4; i++ {
			l.Insert(i * 10)
		}

		l.RemoveAt(1)
		l.RemoveAt(3)
		require.Equal(t, 2, l.Count())
		require.False(t, l.Occupied(1))
		require.False(t, l.Occupied(3))

		require.Equal(t, 3, l.Insert(42))
		require.Equal(t, 1, l.Insert(43))
		require.Equal(t, 4, l.Insert(44))
		require.Equal(t, 43, *l.At(1))
		require.Equal(t, 5, l.Count())
	})

	t.Run("releasing a free slot does nothing", func(t *testing.T) {
		l := New[int](2)
		i := l.Insert(1)
		l.RemoveAt(i)
		l.RemoveAt(i)
		l.RemoveAt(12)
		require.Equal(t, 0, l.Count())

		require.Equal(t, i, l.Insert(2))
		require.Equal(t, 1, l.Insert(3))
	})
}

func TestFreeListClear(t *testing.T) {
	l := New[int](2)
	l.Insert(1)
	l.Insert(2)
	l.RemoveAt(0)

	l.Clear()
	require.Equal(t, 0, l.Count())
	require.Equal(t, 0, l.Len())
	require.Equal(t, 0, l.Insert(3))
}

func TestQuads(t *testing.T) {
	q := NewQuads(-1)
	require.Equal(t, 1, q.Len())
	require.Equal(t, -1, *q.At(0))

	a := q.Insert(7)
	b := q.Insert(8)
	require.Equal(t, 1, a)
	require.Equal(t, 5, b)
	require.Equal(t, 9, q.Count())
	for i := b; i < b+4; i++ {
		require.Equal(t, 8, *q.At(i))
	}

	t.Run("released blocks are reused whole", func(t *testing.T) {
		q.Remove(a)
		require.Equal(t, 5, q.Count())

		c := q.Insert(9)
		require.Equal(t, a, c)
		for i := c; i < c+4; i++ {
			require.Equal(t, 9, *q.At(i))
		}
		require.Equal(t, 9, q.Len())
	})
}
