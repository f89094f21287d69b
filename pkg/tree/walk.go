package tree

// Walk control values returned from a [WalkFunc].
const (
	// Continue descends into the current element's children.
	Continue = true
	// Skip does not descend into the current element's children.
	Skip = false
)

// WalkFunc is called for every element visited by [Element.Walk].
// depth is 0 for the element Walk was called on.
type WalkFunc func(e *Element, depth int) bool

// Walk visits the element and its subtree in document order (pre-order).
// Returning [Skip] from fn prunes the subtree below the current element.
func (e *Element) Walk(fn WalkFunc) {
	e.walk(fn, 0)
}

func (e *Element) walk(fn WalkFunc, depth int) {
	if !fn(e, depth) {
		return
	}
	for _, c := range e.Children {
		c.walk(fn, depth+1)
	}
}

// FindByID returns the first element in document order stamped with id,
// or nil if there is none. Zero never matches.
func (e *Element) FindByID(id int64) *Element {
	if id == 0 {
		return nil
	}
	var found *Element
	e.Walk(func(el *Element, _ int) bool {
		if found != nil {
			return Skip
		}
		if el.ID == id {
			found = el
			return Skip
		}
		return Continue
	})
	return found
}

// Count returns the number of elements in the subtree, including e.
func (e *Element) Count() int {
	n := 0
	e.Walk(func(*Element, int) bool {
		n++
		return Continue
	})
	return n
}
