package spatial

// Number is the set of coordinate types a Rect can hold.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// Rect is an axis-aligned bounding box in a y-up space: Top is greater than
// or equal to Btm for any non-empty rect.
type Rect[N Number] struct {
	Lft N `json:"lft"`
	Top N `json:"top"`
	Rgt N `json:"rgt"`
	Btm N `json:"btm"`
}

// RectFromPoint returns the rect whose bottom-left corner is (x, y).
func RectFromPoint[N Number](x, y, w, h N) Rect[N] {
	return Rect[N]{
		Lft: x,
		Top: y + h,
		Rgt: x + w,
		Btm: y,
	}
}

// EmptyRect returns a sizeless rect. It overlaps nothing and is the identity
// of Union.
func EmptyRect[N Number]() Rect[N] {
	return Rect[N]{Lft: 1, Top: 0, Rgt: 0, Btm: 1}
}

func (r Rect[N]) IsEmpty() bool {
	return r.Rgt < r.Lft || r.Top < r.Btm
}

// Valid reports whether r has a strictly positive width and height.
func (r Rect[N]) Valid() bool {
	return r.Rgt > r.Lft && r.Top > r.Btm
}

func (r Rect[N]) Width() N {
	return r.Rgt - r.Lft
}

func (r Rect[N]) Height() N {
	return r.Top - r.Btm
}

// Overlaps reports whether r and o share at least one point. Edges count.
func (r Rect[N]) Overlaps(o Rect[N]) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}

	return o.Lft <= r.Rgt &&
		o.Rgt >= r.Lft &&
		o.Top >= r.Btm &&
		o.Btm <= r.Top
}

// Union returns the smallest rect containing both r and o.
func (r Rect[N]) Union(o Rect[N]) Rect[N] {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}

	return Rect[N]{
		Lft: min(r.Lft, o.Lft),
		Top: max(r.Top, o.Top),
		Rgt: max(r.Rgt, o.Rgt),
		Btm: min(r.Btm, o.Btm),
	}
}
