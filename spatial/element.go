package spatial

// NoID is passed as the omitted id of a query that should not skip anything.
const NoID = -1

// Element is a value stored in a grid. Grids keep elements in intrusive lists
// and freely overwrite the next link while the element is inserted, so an
// element must be removed before it is discarded or inserted elsewhere.
type Element interface {
	// Returns an id that is unique within the grid the element is inserted
	// in.
	ID() int

	// Returns the bottom-left corner of the element.
	Position() (x, y float64)

	Next() Element
	SetNext(Element)
}

// SizedElement is an element that carries its own size.
type SizedElement interface {
	Element

	Size() (w, h float64)
}

// ElementRect returns the bounding box of a sized element.
func ElementRect(e SizedElement) Rect[float64] {
	x, y := e.Position()
	w, h := e.Size()
	return RectFromPoint(x, y, w, h)
}

// Link implements the intrusive part of Element. Embed it to get Next and
// SetNext.
type Link struct {
	next Element
}

func (l *Link) Next() Element {
	return l.next
}

func (l *Link) SetNext(e Element) {
	l.next = e
}
