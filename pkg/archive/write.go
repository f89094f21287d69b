package archive

import (
	"reflect"
	"slices"
	"strings"

	"cogentcore.org/core/base/reflectx"

	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/schema"
)

// identity distinguishes object instances by address and type, so a struct
// and its first field never collide.
type identity struct {
	addr uintptr
	typ  reflect.Type
}

// identityOf returns the identity of an object: non-nil pointers and
// addressable struct values have one.
func identityOf(v reflect.Value) (identity, bool) {
	switch {
	case v.Kind() == reflect.Pointer && !v.IsNil():
		return identity{v.Pointer(), v.Type()}, true
	case v.Kind() == reflect.Struct && v.CanAddr():
		return identity{v.Addr().Pointer(), reflect.PointerTo(v.Type())}, true
	}
	return identity{}, false
}

type encoder struct {
	out     Writer
	ids     map[identity]int64
	written map[identity]bool
	inline  map[identity]bool
	next    int64
}

func newEncoder(out Writer) *encoder {
	return &encoder{
		out:     out,
		ids:     make(map[identity]int64),
		written: make(map[identity]bool),
		inline:  make(map[identity]bool),
	}
}

// id returns the identity number of key, assigning the next one on first use.
func (e *encoder) id(key identity) int64 {
	if id, ok := e.ids[key]; ok {
		return id
	}
	e.next++
	e.ids[key] = e.next
	return e.next
}

// member writes one struct member of the current object.
func (e *encoder) member(m *schema.Member, v reflect.Value) error {
	switch m.Kind {
	case schema.Primitive:
		s, ok, err := schema.FormatValue(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeSerialization, err, "member %s", m.Name)
		}
		if ok {
			e.out.WriteValue(m.Name, s)
		}
		return nil
	case schema.Object:
		if m.IsReference {
			return e.reference(m.Name, v)
		}
		return e.object(m.Name, m.Object, v, false)
	}
	if isNil(v) {
		return nil
	}
	return e.collection(m.Name, m, v)
}

// reference writes an id pointer to v under name.
func (e *encoder) reference(name string, v reflect.Value) error {
	c := concrete(v)
	if !c.IsValid() {
		return nil
	}
	key, ok := identityOf(c)
	if !ok {
		return errors.Serialization("reference %s: %s value has no address", name, c.Type())
	}
	if e.inline[key] {
		return errors.Serialization("reference %s: %s is stored in an inline member, which carries no id", name, c.Type())
	}
	e.out.WriteReference(name, e.id(key))
	return nil
}

// object writes v as an object node named name. A pointer or interface slot
// holding an instance that was already written gets an id pointer instead,
// so each instance appears inline once, at its first occurrence.
func (e *encoder) object(name string, o *schema.ObjectSchema, v reflect.Value, item bool) error {
	c := concrete(v)
	if !c.IsValid() {
		return nil
	}
	variant := o.VariantFor(c.Type())
	if variant == nil {
		return errors.Serialization("type %s is not a registered subtype of %s", c.Type(), o.Type)
	}

	var id int64
	if key, ok := identityOf(c); ok {
		_, referenced := e.ids[key]
		switch {
		case e.inline[key]:
			return errors.Serialization("%s is stored in an inline member and cannot be written again", c.Type())
		case e.written[key] && v.Kind() == reflect.Struct:
			return errors.Serialization("%s %s was already written through a pointer; mark that pointer member ref", name, c.Type())
		case e.written[key] && name == "":
			return errors.Serialization("inline %s was already written elsewhere", c.Type())
		case e.written[key]:
			if !item {
				e.out.WriteReference(name, e.ids[key])
				return nil
			}
			e.out.BeginObject(name)
			e.out.WriteReference(schema.RefAttr, e.ids[key])
			e.out.EndObject(0)
			return nil
		case name == "" && referenced:
			return errors.Serialization("inline %s is referenced elsewhere, but inline members carry no id", c.Type())
		case name == "":
			e.inline[key] = true
		}
		e.written[key] = true
		id = e.id(key)
	}

	e.out.BeginObject(name)
	if o.Polymorphic() {
		e.out.WriteValue(schema.ClassAttr, variant.Tag)
	}
	sv := reflectx.NonPointerValue(c)
	for _, m := range variant.Members {
		if err := e.member(m, m.Get(sv)); err != nil {
			return err
		}
	}
	e.out.EndObject(id)
	return nil
}

// collection writes a sequence or mapping container named name.
func (e *encoder) collection(name string, m *schema.Member, v reflect.Value) error {
	e.out.BeginArray(name)
	if m.Kind == schema.Sequence {
		for i := range v.Len() {
			if err := e.item(m.Element, v.Index(i)); err != nil {
				return err
			}
		}
		e.out.EndObject(0)
		return nil
	}

	keys, values, err := entries(m, v)
	if err != nil {
		return err
	}
	for i := range keys {
		e.out.BeginObject(m.EntryName)
		if err := e.member(m.Key, keys[i]); err != nil {
			return err
		}
		if err := e.member(m.Value, values[i]); err != nil {
			return err
		}
		e.out.EndObject(0)
	}
	e.out.EndObject(0)
	return nil
}

// item writes one sequence item as a node named after the element member.
func (e *encoder) item(el *schema.Member, v reflect.Value) error {
	if isNil(v) {
		e.out.BeginObject(el.Name)
		e.out.WriteValue(schema.NilAttr, "true")
		e.out.EndObject(0)
		return nil
	}
	switch el.Kind {
	case schema.Primitive:
		s, _, err := schema.FormatValue(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeSerialization, err, "item %s", el.Name)
		}
		e.out.BeginObject(el.Name)
		e.out.WriteValue(schema.ValueAttr, s)
		e.out.EndObject(0)
		return nil
	case schema.Object:
		if el.IsReference {
			e.out.BeginObject(el.Name)
			err := e.reference(schema.RefAttr, v)
			e.out.EndObject(0)
			return err
		}
		return e.object(el.Name, el.Object, v, true)
	}
	return e.collection(el.Name, el, v)
}

// entries returns the keys and values of a mapping. Go maps are ordered by
// the text form of their keys; ordered maps keep insertion order.
func entries(m *schema.Member, v reflect.Value) (keys, values []reflect.Value, err error) {
	if v.Kind() == reflect.Map {
		type entry struct {
			text string
			key  reflect.Value
		}
		es := make([]entry, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			s, _, err := schema.FormatValue(iter.Key())
			if err != nil {
				return nil, nil, err
			}
			es = append(es, entry{s, iter.Key()})
		}
		slices.SortFunc(es, func(a, b entry) int { return strings.Compare(a.text, b.text) })
		for _, en := range es {
			keys = append(keys, en.key)
			values = append(values, v.MapIndex(en.key))
		}
		return keys, values, nil
	}

	list := reflectx.NonPointerValue(v)
	ks, vs := list.FieldByName("Keys"), list.FieldByName("Values")
	if ks.Len() != vs.Len() {
		return nil, nil, errors.Serialization("mapping %s has %d keys and %d values", m.Name, ks.Len(), vs.Len())
	}
	for i := range ks.Len() {
		keys = append(keys, ks.Index(i))
		values = append(values, vs.Index(i))
	}
	return keys, values, nil
}

// concrete unwraps interfaces and returns an invalid value for nil.
func concrete(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return reflect.Value{}
	}
	return v
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return v.IsNil()
	}
	return false
}
