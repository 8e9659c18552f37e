// Package freelist provides arenas that hand out stable integer handles
// without relying on the garbage collector: a released slot is chained into
// an embedded free list and reused by the next insertion.
package freelist

// Nil is the handle that refers to no slot.
const Nil = -1

type slot[T any] struct {
	value    T
	nextFree int
	occupied bool
}

// FreeList is an indexed arena with O(1) insertion and removal.
type FreeList[T any] struct {
	slots     []slot[T]
	firstFree int
	count     int
}

// New returns a free list able to hold capacity values before growing.
func New[T any](capacity int) *FreeList[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &FreeList[T]{
		slots:     make([]slot[T], 0, capacity),
		firstFree: Nil,
	}
}

// Insert stores v and returns its handle. The most recently released slot
// is reused first.
func (l *FreeList[T]) Insert(v T) int {
	l.count++

	if i := l.firstFree; i != Nil {
		s := &l.slots[i]
		l.firstFree = s.nextFree
		s.value = v
		s.nextFree = Nil
		s.occupied = true
		return i
	}

	if len(l.slots) == cap(l.slots) {
		slots := make([]slot[T], len(l.slots), 2*cap(l.slots))
		copy(slots, l.slots)
		l.slots = slots
	}

	l.slots = append(l.slots, slot[T]{
		value:    v,
		nextFree: Nil,
		occupied: true,
	})
	return len(l.slots) - 1
}

// RemoveAt releases the slot at i. Releasing a free slot does nothing.
func (l *FreeList[T]) RemoveAt(i int) {
	if !l.Occupied(i) {
		return
	}

	var zero T
	s := &l.slots[i]
	s.value = zero
	s.occupied = false
	s.nextFree = l.firstFree
	l.firstFree = i
	l.count--
}

// At returns a pointer to the value at i. The pointer is valid until the
// next Insert.
func (l *FreeList[T]) At(i int) *T {
	return &l.slots[i].value
}

// Occupied reports whether i refers to a live slot.
func (l *FreeList[T]) Occupied(i int) bool {
	return i >= 0 && i < len(l.slots) && l.slots[i].occupied
}

// Len returns the number of slots ever used, live or released. Valid handles
// are in [0, Len()).
func (l *FreeList[T]) Len() int {
	return len(l.slots)
}

// Count returns the number of live slots.
func (l *FreeList[T]) Count() int {
	return l.count
}

func (l *FreeList[T]) Capacity() int {
	return cap(l.slots)
}

// Clear releases every slot and keeps the allocated memory.
func (l *FreeList[T]) Clear() {
	l.slots = l.slots[:0]
	l.firstFree = Nil
	l.count = 0
}
