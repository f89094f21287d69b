package schema

import (
	"reflect"

	"cogentcore.org/core/base/reflectx"
)

// Reserved attribute names written by the archive. Members may not use them.
const (
	// ClassAttr holds the discriminator (concrete type tag) of a polymorphic object.
	ClassAttr = "class"
	// IDAttr holds the address of an object that is referenced elsewhere.
	IDAttr = "id"
	// ValueAttr holds the value of a primitive sequence item.
	ValueAttr = "value"
	// RefAttr holds the target address of a reference sequence item.
	RefAttr = "ref"
	// NilAttr marks a nil sequence item.
	NilAttr = "nil"
)

// Default tag names for collection items.
const (
	DefaultChildName = "Item"
	DefaultEntryName = "Entry"
	DefaultKeyName   = "Key"
	DefaultValueName = "Value"
)

func reserved(name string) bool {
	switch name {
	case ClassAttr, IDAttr, ValueAttr, RefAttr, NilAttr:
		return true
	}
	return false
}

// Member describes one serializable member: a struct field, the items of a
// sequence, or the key or value of a mapping entry.
type Member struct {
	// Name is the serialized name. Empty for inline members.
	Name string
	// Kind is the serialization classification of Type.
	Kind Kind
	// Type is the declared Go type of the member.
	Type reflect.Type
	// Field is the Go field name (empty for item/key/value members).
	Field string
	// DeclaringType is the struct type that declares the field.
	DeclaringType reflect.Type
	// IsReference marks a member written as an id pointer instead of inline.
	IsReference bool
	// Inline marks a transparent member: its content is written directly
	// into the enclosing element.
	Inline bool
	// ReadOnly members are never assigned on read; complex values are
	// decoded in place into the existing value.
	ReadOnly bool

	// Element describes the items of a Sequence. Element.Name is the item tag.
	Element *Member

	// Key and Value describe the entries of a Mapping.
	Key, Value *Member
	// EntryName is the tag wrapping each key/value pair of a Mapping.
	EntryName string

	// Object is the shared structure of an Object member.
	Object *ObjectSchema

	index []int
}

// Get returns the member's field within owner, which must be a struct
// value of the declaring type (or of a type embedding it).
func (m *Member) Get(owner reflect.Value) reflect.Value {
	return owner.FieldByIndex(m.index)
}

// Set assigns v to the member's field within owner. Set is a no-op for
// read-only members.
func (m *Member) Set(owner, v reflect.Value) {
	if m.ReadOnly {
		return
	}
	m.Get(owner).Set(v)
}

// IsOrderedMap reports whether a Mapping member uses an insertion-ordered
// key list rather than a Go map.
func (m *Member) IsOrderedMap() bool {
	return m.Kind == Mapping && reflectx.NonPointerType(m.Type).Kind() == reflect.Struct
}

// ObjectSchema is the structure of an Object-kind declared type.
//
// It is a tagged union: a struct declaration has exactly one [Variant], an
// interface declaration has one variant per registered subtype implementing
// it. ObjectSchema values are shared by every member declaring the same type.
type ObjectSchema struct {
	// Type is the declared type without pointer: a struct or an interface.
	Type reflect.Type
	// Variants lists the concrete shapes an instance may take.
	Variants []*Variant
}

// Polymorphic reports whether instances carry a discriminator. This is the
// case whenever the declared type is an interface, since the concrete type
// of an instance then always differs from the declared one.
func (o *ObjectSchema) Polymorphic() bool {
	return o.Type.Kind() == reflect.Interface
}

// VariantFor returns the variant matching the concrete type t, or nil.
// For struct declarations pointer and value forms match the same variant.
func (o *ObjectSchema) VariantFor(t reflect.Type) *Variant {
	if !o.Polymorphic() {
		if reflectx.NonPointerType(t) == o.Type && len(o.Variants) == 1 {
			return o.Variants[0]
		}
		return nil
	}
	for _, v := range o.Variants {
		if v.Type == t {
			return v
		}
	}
	return nil
}

// VariantByTag returns the variant with the given discriminator, or nil.
func (o *ObjectSchema) VariantByTag(tag string) *Variant {
	for _, v := range o.Variants {
		if v.Tag == tag {
			return v
		}
	}
	return nil
}

// Members returns the union of all variant members in variant order.
// Members shared through embedding appear once.
func (o *ObjectSchema) Members() []*Member {
	type key struct {
		decl  reflect.Type
		field string
		name  string
	}
	var out []*Member
	seen := make(map[key]bool)
	for _, v := range o.Variants {
		for _, m := range v.Members {
			k := key{m.DeclaringType, m.Field, m.Name}
			if !seen[k] {
				seen[k] = true
				out = append(out, m)
			}
		}
	}
	return out
}

// Variant is one concrete shape of an [ObjectSchema].
type Variant struct {
	// Tag is the discriminator written in the class attribute.
	Tag string
	// Type is the concrete type as stored: a struct or a pointer to one.
	Type reflect.Type
	// Members are the serializable fields, base (embedded) members first.
	// Variants over the same struct type share one Members slice.
	Members []*Member
}

// Struct returns the variant's struct type.
func (v *Variant) Struct() reflect.Type {
	return reflectx.NonPointerType(v.Type)
}

// New returns a newly constructed instance of the variant: a pointer to a
// zero struct for pointer variants, an addressable zero struct otherwise.
// Instances implementing [Initializer] are initialized.
func (v *Variant) New() reflect.Value {
	p := reflect.New(v.Struct())
	Initialize(p)
	if v.Type.Kind() == reflect.Pointer {
		return p
	}
	return p.Elem()
}

// Initializer is implemented by types that need setup after default
// construction during a read, for example to allocate read-only members
// that are then decoded in place.
type Initializer interface {
	InitPersist()
}

// Initialize calls InitPersist on p, a pointer, when it implements [Initializer].
func Initialize(p reflect.Value) {
	if in, ok := p.Interface().(Initializer); ok {
		in.InitPersist()
	}
}

// Construct returns a new pointer to a zero value of struct type t,
// initialized through [Initializer] when implemented.
func Construct(t reflect.Type) reflect.Value {
	p := reflect.New(t)
	Initialize(p)
	return p
}
