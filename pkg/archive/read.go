package archive

import (
	"reflect"

	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/schema"
)

// decoder walks a document in one of two modes. In construct mode it
// allocates objects and fills primitives, deferring references whose
// target is not registered yet. In resolve mode it navigates the values
// built by the construct pass and only assigns references.
type decoder struct {
	in       Reader
	resolve  bool
	deferred int
}

// member reads one struct member of owner, an addressable struct.
func (d *decoder) member(m *schema.Member, owner reflect.Value) error {
	return d.slot(m, m.Get(owner))
}

// slot reads the value described by m into dst from the current node:
// primitives and references from attributes, everything else from a child.
func (d *decoder) slot(m *schema.Member, dst reflect.Value) error {
	switch m.Kind {
	case schema.Primitive:
		if d.resolve || m.ReadOnly {
			return nil
		}
		s, ok := d.in.ReadValue(m.Name)
		if !ok {
			return nil
		}
		if err := schema.ParseValue(s, dst); err != nil {
			return errors.Wrap(errors.ErrCodeSerialization, err, "member %s", m.Name)
		}
		return nil

	case schema.Object:
		if m.IsReference {
			return d.reference(m.Name, dst, m.ReadOnly)
		}
		if !d.in.BeginObject(m.Name) {
			// The instance may have been written earlier and shared here.
			return d.reference(m.Name, dst, m.ReadOnly)
		}
		inst, err := d.object(m.Object, dst, m.ReadOnly)
		if err != nil {
			return err
		}
		d.in.EndObject(inst)
		return nil
	}

	if !d.in.BeginObject(m.Name) {
		return nil
	}
	if err := d.collection(m, dst); err != nil {
		return err
	}
	d.in.EndObject(reflect.Value{})
	return nil
}

// reference assigns the instance addressed by attribute name to dst.
func (d *decoder) reference(name string, dst reflect.Value, readonly bool) error {
	id, target, err := d.in.ReadReference(name)
	if err != nil || id == 0 {
		return err
	}
	if !target.IsValid() {
		if d.resolve {
			return errors.Serialization("unresolved reference %d", id)
		}
		d.deferred++
		return nil
	}
	if readonly {
		return nil
	}
	v, ok := assignable(target, dst.Type())
	if !ok {
		return errors.Serialization("reference %d: %s cannot be assigned to %s", id, target.Type(), dst.Type())
	}
	dst.Set(v)
	return nil
}

func assignable(v reflect.Value, t reflect.Type) (reflect.Value, bool) {
	if v.Type().AssignableTo(t) {
		return v, true
	}
	if v.Kind() == reflect.Pointer && v.Elem().Type().AssignableTo(t) {
		return v.Elem(), true
	}
	return reflect.Value{}, false
}

// object reads the current node as an object into dst, a settable struct,
// pointer or interface. It returns the instance to register for the node:
// a pointer to the decoded struct, or an invalid value when nothing was read.
func (d *decoder) object(o *schema.ObjectSchema, dst reflect.Value, readonly bool) (reflect.Value, error) {
	var (
		ptr       reflect.Value
		variant   *schema.Variant
		writeBack bool
	)

	switch {
	case d.resolve || readonly || dst.Kind() == reflect.Struct:
		// Navigate the existing value.
		c := concrete(dst)
		if !c.IsValid() {
			return reflect.Value{}, nil
		}
		if variant = o.VariantFor(c.Type()); variant == nil {
			return reflect.Value{}, errors.Serialization("type %s is not a registered subtype of %s", c.Type(), o.Type)
		}
		switch {
		case c.Kind() == reflect.Pointer:
			ptr = c
		case c.CanAddr():
			ptr = c.Addr()
			if !d.resolve && dst.Kind() == reflect.Struct {
				schema.Initialize(ptr)
			}
		default:
			// Struct value held by an interface: decode a copy and store it back.
			ptr = reflect.New(c.Type())
			ptr.Elem().Set(c)
			writeBack = true
		}

	default:
		variant = o.Variants[0]
		if o.Polymorphic() {
			tag, ok := d.in.ReadValue(schema.ClassAttr)
			if !ok {
				return reflect.Value{}, errors.Serialization("missing %s attribute for %s", schema.ClassAttr, o.Type)
			}
			if variant = o.VariantByTag(tag); variant == nil {
				return reflect.Value{}, errors.Serialization("unknown %s %q for %s", schema.ClassAttr, tag, o.Type)
			}
		}
		ptr = schema.Construct(variant.Struct())
		writeBack = true
	}

	sv := ptr.Elem()
	for _, m := range variant.Members {
		if err := d.member(m, sv); err != nil {
			return reflect.Value{}, err
		}
	}

	if writeBack {
		if variant.Type.Kind() == reflect.Pointer || dst.Kind() == reflect.Pointer {
			dst.Set(ptr)
		} else {
			dst.Set(ptr.Elem())
		}
	}
	if d.resolve {
		return reflect.Value{}, nil
	}
	return ptr, nil
}

// collection reads a sequence or mapping whose container node is current.
func (d *decoder) collection(m *schema.Member, dst reflect.Value) error {
	if m.Kind == schema.Sequence {
		return d.sequence(m, dst)
	}
	if m.IsOrderedMap() {
		return d.orderedMap(m, dst)
	}
	return d.goMap(m, dst)
}

func (d *decoder) sequence(m *schema.Member, dst reflect.Value) error {
	n := d.in.ChildCount(m.Element.Name)
	seq := dst
	switch {
	case d.resolve:
	case dst.Kind() == reflect.Slice:
		seq = reflect.MakeSlice(dst.Type(), n, n)
		dst.Set(seq)
	case n > dst.Len():
		return errors.Serialization("%s holds %d items, document has %d", m.Name, dst.Len(), n)
	}

	for i := range min(n, seq.Len()) {
		if !d.in.BeginObject(m.Element.Name) {
			break
		}
		inst, err := d.item(m.Element, seq.Index(i))
		if err != nil {
			return err
		}
		d.in.EndObject(inst)
	}
	return nil
}

// item reads the current item node into dst and returns the instance to
// register for it.
func (d *decoder) item(el *schema.Member, dst reflect.Value) (reflect.Value, error) {
	if _, isNil := d.in.ReadValue(schema.NilAttr); isNil {
		return reflect.Value{}, nil
	}
	switch el.Kind {
	case schema.Primitive:
		if d.resolve {
			return reflect.Value{}, nil
		}
		s, ok := d.in.ReadValue(schema.ValueAttr)
		if !ok {
			return reflect.Value{}, nil
		}
		if err := schema.ParseValue(s, dst); err != nil {
			return reflect.Value{}, errors.Wrap(errors.ErrCodeSerialization, err, "item %s", el.Name)
		}
		return reflect.Value{}, nil
	case schema.Object:
		if _, shared := d.in.ReadValue(schema.RefAttr); shared || el.IsReference {
			return reflect.Value{}, d.reference(schema.RefAttr, dst, false)
		}
		return d.object(el.Object, dst, false)
	}
	return reflect.Value{}, d.collection(el, dst)
}

func (d *decoder) goMap(m *schema.Member, dst reflect.Value) error {
	mp := dst
	switch {
	case d.resolve || m.ReadOnly:
		if mp.IsNil() {
			return nil
		}
	default:
		mp = reflect.MakeMapWithSize(dst.Type(), d.in.ChildCount(m.EntryName))
		dst.Set(mp)
	}

	for range d.in.ChildCount(m.EntryName) {
		if !d.in.BeginObject(m.EntryName) {
			break
		}
		key, err := d.entryKey(m)
		if err != nil {
			return err
		}
		val := reflect.New(m.Value.Type).Elem()
		if d.resolve {
			if cur := mp.MapIndex(key); cur.IsValid() {
				val.Set(cur)
			}
		}
		if err := d.slot(m.Value, val); err != nil {
			return err
		}
		mp.SetMapIndex(key, val)
		d.in.EndObject(reflect.Value{})
	}
	return nil
}

func (d *decoder) orderedMap(m *schema.Member, dst reflect.Value) error {
	var list reflect.Value
	switch {
	case dst.Kind() == reflect.Pointer && dst.IsNil():
		if d.resolve || m.ReadOnly {
			return nil
		}
		dst.Set(reflect.New(dst.Type().Elem()))
		list = dst
	case dst.Kind() == reflect.Pointer:
		list = dst
		if !d.resolve && !m.ReadOnly {
			list.Elem().Set(reflect.Zero(list.Elem().Type()))
		}
	default:
		list = dst.Addr()
		if !d.resolve && !m.ReadOnly {
			dst.Set(reflect.Zero(dst.Type()))
		}
	}
	set := list.MethodByName("Set")
	keys := list.Elem().FieldByName("Keys")
	values := list.Elem().FieldByName("Values")

	for range d.in.ChildCount(m.EntryName) {
		if !d.in.BeginObject(m.EntryName) {
			break
		}
		key, err := d.entryKey(m)
		if err != nil {
			return err
		}
		if d.resolve {
			for i := range keys.Len() {
				if keys.Index(i).Equal(key) {
					if err := d.slot(m.Value, values.Index(i)); err != nil {
						return err
					}
					break
				}
			}
		} else {
			val := reflect.New(m.Value.Type).Elem()
			if err := d.slot(m.Value, val); err != nil {
				return err
			}
			set.Call([]reflect.Value{key, val})
		}
		d.in.EndObject(reflect.Value{})
	}
	return nil
}

func (d *decoder) entryKey(m *schema.Member) (reflect.Value, error) {
	key := reflect.New(m.Key.Type).Elem()
	s, ok := d.in.ReadValue(m.Key.Name)
	if !ok {
		return key, errors.Serialization("%s entry of %s has no %s", m.EntryName, m.Name, m.Key.Name)
	}
	if err := schema.ParseValue(s, key); err != nil {
		return key, errors.Wrap(errors.ErrCodeSerialization, err, "%s key", m.Name)
	}
	return key, nil
}
