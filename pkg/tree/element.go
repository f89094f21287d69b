package tree

import "slices"

// Attribute is a single name/value pair on an [Element].
// Values are always strings; typed conversion happens in the archive.
type Attribute struct {
	Name  string
	Value string
}

// Element is a node in the format-neutral document tree.
//
// Elements sit between the archive's graph walk and a concrete text codec:
// the archive builds them bottom-up on write and consumes them on read, while
// codecs translate them to and from XML, YAML or JSON without any schema
// knowledge.
//
// The zero value is usable. Element is not safe for concurrent mutation.
type Element struct {
	Name       string      // Tag name
	ID         int64       // Identity stamped on write (0 = unset)
	IsArray    bool        // Homogeneous sequence node; children are matched by position
	Attributes []Attribute // Ordered attributes (duplicate names are allowed but unusual)
	Children   []*Element  // Ordered child elements
}

// New creates an element with the given name.
func New(name string) *Element {
	return &Element{Name: name}
}

// NewArray creates an element flagged as a homogeneous sequence.
func NewArray(name string) *Element {
	return &Element{Name: name, IsArray: true}
}

// Attr returns the value of the first attribute with the given name.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// HasAttr reports whether the element has an attribute with the given name.
func (e *Element) HasAttr(name string) bool {
	_, ok := e.Attr(name)
	return ok
}

// AddAttr appends an attribute without checking for duplicates.
func (e *Element) AddAttr(name, value string) {
	e.Attributes = append(e.Attributes, Attribute{Name: name, Value: value})
}

// SetAttr replaces the value of an existing attribute or appends a new one.
func (e *Element) SetAttr(name, value string) {
	for i := range e.Attributes {
		if e.Attributes[i].Name == name {
			e.Attributes[i].Value = value
			return
		}
	}
	e.AddAttr(name, value)
}

// RemoveAttr deletes every attribute with the given name.
func (e *Element) RemoveAttr(name string) {
	e.Attributes = slices.DeleteFunc(e.Attributes, func(a Attribute) bool { return a.Name == name })
}

// AddChild appends child and returns it.
func (e *Element) AddChild(child *Element) *Element {
	e.Children = append(e.Children, child)
	return child
}

// Child returns the first child with the given name without removing it.
func (e *Element) Child(name string) *Element {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// TakeChild removes and returns the first child with the given name,
// or nil if no child matches. Consuming children on match means repeated
// lookups for the same name walk through siblings in document order.
func (e *Element) TakeChild(name string) *Element {
	for i, c := range e.Children {
		if c.Name == name {
			e.Children = slices.Delete(e.Children, i, i+1)
			return c
		}
	}
	return nil
}

// TakeNext removes and returns the first remaining child regardless of
// its name, or nil when no children remain.
func (e *Element) TakeNext() *Element {
	if len(e.Children) == 0 {
		return nil
	}
	c := e.Children[0]
	e.Children = e.Children[1:]
	return c
}

// CountChildren returns the number of children with the given name.
// An empty name counts every child.
func (e *Element) CountChildren(name string) int {
	if name == "" {
		return len(e.Children)
	}
	n := 0
	for _, c := range e.Children {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the element and its subtree.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	c := &Element{
		Name:       e.Name,
		ID:         e.ID,
		IsArray:    e.IsArray,
		Attributes: slices.Clone(e.Attributes),
	}
	if len(e.Children) > 0 {
		c.Children = make([]*Element, len(e.Children))
		for i, child := range e.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// Equal reports whether two trees have the same names, flags, attributes
// and children. Identity stamps (ID) are ignored because they are not
// part of the serialized form.
func Equal(a, b *Element) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Name != b.Name || a.IsArray != b.IsArray {
		return false
	}
	if !slices.Equal(a.Attributes, b.Attributes) {
		return false
	}
	return slices.EqualFunc(a.Children, b.Children, Equal)
}
