package freelist

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-spatial/spatial"
)

type node[T any] struct {
	value T
	next  int
}

// FreeLinkedList is a singly-linked list whose nodes live in a FreeList, so
// that every value keeps a stable handle while the list order can change.
type FreeLinkedList[T any] struct {
	nodes *FreeList[node[T]]
	first int
}

func NewLinkedList[T any](capacity int) *FreeLinkedList[T] {
	return &FreeLinkedList[T]{
		nodes: New[node[T]](capacity),
		first: Nil,
	}
}

// InsertFirst puts v at the head of the list and returns its handle.
func (l *FreeLinkedList[T]) InsertFirst(v T) int {
	i := l.nodes.Insert(node[T]{value: v, next: l.first})
	l.first = i
	return i
}

// InsertAfter puts v right after the node at.
func (l *FreeLinkedList[T]) InsertAfter(v T, at int) (int, error) {
	if !l.nodes.Occupied(at) {
		return Nil, notFound(at)
	}

	next := l.nodes.At(at).next
	i := l.nodes.Insert(node[T]{value: v, next: next})
	l.nodes.At(at).next = i
	return i, nil
}

// InsertBefore puts v right before the node at. It walks the list from the
// head to find the predecessor of at.
func (l *FreeLinkedList[T]) InsertBefore(v T, at int) (int, error) {
	if at == l.first {
		return l.InsertFirst(v), nil
	}

	prev, err := l.predecessor(at)
	if err != nil {
		return Nil, err
	}
	return l.InsertAfter(v, prev)
}

// RemoveFirst removes the head of the list.
func (l *FreeLinkedList[T]) RemoveFirst() {
	if l.first == Nil {
		return
	}

	i := l.first
	l.first = l.nodes.At(i).next
	l.nodes.RemoveAt(i)
}

// RemoveAfter removes the node following at, if any.
func (l *FreeLinkedList[T]) RemoveAfter(at int) error {
	if !l.nodes.Occupied(at) {
		return notFound(at)
	}

	n := l.nodes.At(at)
	i := n.next
	if i == Nil {
		return nil
	}

	n.next = l.nodes.At(i).next
	l.nodes.RemoveAt(i)
	return nil
}

// Remove removes the node at. It walks the list from the head to find its
// predecessor.
func (l *FreeLinkedList[T]) Remove(at int) error {
	if !l.nodes.Occupied(at) {
		return notFound(at)
	}

	if at == l.first {
		l.RemoveFirst()
		return nil
	}

	prev, err := l.predecessor(at)
	if err != nil {
		return err
	}
	return l.RemoveAfter(prev)
}

// First returns the handle of the head of the list, or Nil.
func (l *FreeLinkedList[T]) First() int {
	return l.first
}

// Next returns the handle following i, or Nil.
func (l *FreeLinkedList[T]) Next(i int) int {
	return l.nodes.At(i).next
}

// At returns a pointer to the value at i. The pointer is valid until the next
// insertion.
func (l *FreeLinkedList[T]) At(i int) *T {
	return &l.nodes.At(i).value
}

func (l *FreeLinkedList[T]) Count() int {
	return l.nodes.Count()
}

// Clear empties the list and keeps the allocated memory.
func (l *FreeLinkedList[T]) Clear() {
	l.nodes.Clear()
	l.first = Nil
}

func (l *FreeLinkedList[T]) predecessor(at int) (int, error) {
	for i := l.first; i != Nil; i = l.nodes.At(i).next {
		if l.nodes.At(i).next == at {
			return i, nil
		}
	}

	return Nil, notFound(at)
}

func notFound(at int) error {
	return errors.New("index not found in the linked list").
		WithType(spatial.ErrTypeNotFound).
		WithTag("index", at)
}
