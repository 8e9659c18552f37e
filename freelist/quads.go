package freelist

// Quads allocates tree nodes by blocks of four contiguous slots. Slot 0 holds
// the root and never belongs to a block. Released blocks are reused whole,
// most recent first, so a block never has to be reassembled from single
// slots.
type Quads[T any] struct {
	items []T
	free  []int
}

func NewQuads[T any](root T) *Quads[T] {
	return &Quads[T]{
		items: []T{root},
	}
}

// Insert allocates a block, fills its four slots and returns the index of the
// first one.
func (q *Quads[T]) Insert(fill T) int {
	if n := len(q.free); n > 0 {
		first := q.free[n-1]
		q.free = q.free[:n-1]
		for i := first; i < first+4; i++ {
			q.items[i] = fill
		}
		return first
	}

	first := len(q.items)
	q.items = append(q.items, fill, fill, fill, fill)
	return first
}

// Remove releases the block starting at first.
func (q *Quads[T]) Remove(first int) {
	q.free = append(q.free, first)
}

// At returns a pointer to the slot at i. The pointer is valid until the next
// Insert.
func (q *Quads[T]) At(i int) *T {
	return &q.items[i]
}

// Len returns the number of slots ever used, live or released.
func (q *Quads[T]) Len() int {
	return len(q.items)
}

// Count returns the number of live slots, the root included.
func (q *Quads[T]) Count() int {
	return len(q.items) - 4*len(q.free)
}
