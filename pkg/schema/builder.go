package schema

import (
	"cmp"
	"reflect"
	"slices"

	"cogentcore.org/core/base/reflectx"

	"github.com/matzehuels/persist/pkg/errors"
)

// builder performs a breadth-first walk over the types reachable from a
// root, producing one ObjectSchema per declared struct or interface type
// and one member list per struct type.
type builder struct {
	reg      *Registry
	subtypes []reflect.Type

	objects map[reflect.Type]*ObjectSchema
	members map[reflect.Type][]*Member
	order   []*ObjectSchema
	queue   []*ObjectSchema
}

func newBuilder(reg *Registry, subtypes []reflect.Type) *builder {
	return &builder{
		reg:      reg,
		subtypes: subtypes,
		objects:  make(map[reflect.Type]*ObjectSchema),
		members:  make(map[reflect.Type][]*Member),
	}
}

// object returns the memoized ObjectSchema for t, queueing new ones.
func (b *builder) object(t reflect.Type) *ObjectSchema {
	t = reflectx.NonPointerType(t)
	if o, ok := b.objects[t]; ok {
		return o
	}
	o := &ObjectSchema{Type: t}
	b.objects[t] = o
	b.order = append(b.order, o)
	b.queue = append(b.queue, o)
	return o
}

func (b *builder) run() error {
	for len(b.queue) > 0 {
		o := b.queue[0]
		b.queue = b.queue[1:]
		if err := b.fill(o); err != nil {
			return err
		}
	}
	return nil
}

// fill computes the variants of o.
func (b *builder) fill(o *ObjectSchema) error {
	if o.Type.Kind() != reflect.Interface {
		ms, err := b.structMembers(o.Type)
		if err != nil {
			return err
		}
		o.Variants = []*Variant{{Tag: o.Type.Name(), Type: o.Type, Members: ms}}
		return nil
	}

	tags := make(map[string]reflect.Type)
	for _, st := range b.subtypes {
		vt := st
		switch {
		case st.Implements(o.Type):
		case st.Kind() != reflect.Pointer && reflect.PointerTo(st).Implements(o.Type):
			vt = reflect.PointerTo(st)
		default:
			continue
		}
		tag := reflectx.NonPointerType(vt).Name()
		if prev, dup := tags[tag]; dup {
			return errors.Schema("subtypes %s and %s share the discriminator %q", prev, vt, tag)
		}
		tags[tag] = vt
		ms, err := b.structMembers(reflectx.NonPointerType(vt))
		if err != nil {
			return err
		}
		o.Variants = append(o.Variants, &Variant{Tag: tag, Type: vt, Members: ms})
	}
	if len(o.Variants) == 0 {
		return errors.Schema("interface %s has no registered subtypes", o.Type)
	}
	return nil
}

type collected struct {
	m     *Member
	depth int
}

// structMembers returns the shared member list of struct type t.
func (b *builder) structMembers(t reflect.Type) ([]*Member, error) {
	if ms, ok := b.members[t]; ok {
		return ms, nil
	}
	all, err := b.collect(t, nil, 0)
	if err != nil {
		return nil, err
	}

	var (
		ms     []*Member
		depths []int
		byName = make(map[string]int)
	)
	for _, c := range all {
		if c.m.Name == "" {
			ms = append(ms, c.m)
			depths = append(depths, c.depth)
			continue
		}
		j, ok := byName[c.m.Name]
		if !ok {
			byName[c.m.Name] = len(ms)
			ms = append(ms, c.m)
			depths = append(depths, c.depth)
			continue
		}
		switch {
		case c.depth < depths[j]:
			ms[j], depths[j] = c.m, c.depth
		case c.depth == depths[j]:
			return nil, errors.Schema("duplicate member name %q in %s", c.m.Name, t)
		}
	}
	b.members[t] = ms
	return ms, nil
}

// collect enumerates the members of t, flattening embedded struct values.
// Embedded members come first in declaration order, matching the layout
// of most types where the embedded base is the leading field.
func (b *builder) collect(t reflect.Type, prefix []int, depth int) ([]collected, error) {
	shadow := b.reg.shadowType(t)
	var out []collected
	for i := range t.NumField() {
		f := t.Field(i)
		tag, err := parseTag(lookupTag(f, shadow))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSchema, err, "field %s.%s", t.Name(), f.Name)
		}
		if tag.ignore {
			continue
		}
		index := append(slices.Clone(prefix), i)
		if f.Anonymous && !tag.named && f.Type.Kind() == reflect.Struct && !isText(f.Type) && !isOrderedMap(f.Type) {
			sub, err := b.collect(f.Type, index, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		if !f.IsExported() {
			continue
		}
		m, err := b.field(t, f, tag)
		if err != nil {
			return nil, err
		}
		m.index = index
		out = append(out, collected{m: m, depth: depth})
	}
	return out, nil
}

func (b *builder) field(t reflect.Type, f reflect.StructField, tag fieldTag) (*Member, error) {
	where := t.Name() + "." + f.Name
	name := f.Name
	if tag.named {
		name = tag.name
	}
	if tag.inline {
		name = ""
	}
	if reserved(name) {
		return nil, errors.Schema("member %s uses reserved name %q", where, name)
	}
	m, err := b.member(f.Type, tag, where)
	if err != nil {
		return nil, err
	}
	m.Name = name
	m.Field = f.Name
	m.DeclaringType = t
	return m, nil
}

// member classifies type t and builds the kind-specific parts of a member.
// A ref option on a collection applies to its items (or mapping values).
func (b *builder) member(t reflect.Type, tag fieldTag, where string) (*Member, error) {
	kind, err := Classify(t)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSchema, err, "member %s", where)
	}
	m := &Member{Kind: kind, Type: t, Inline: tag.inline, ReadOnly: tag.readonly}

	switch kind {
	case Primitive:
		if tag.ref {
			return nil, errors.Schema("member %s: primitive member cannot be a reference", where)
		}
		if tag.inline {
			return nil, errors.Schema("member %s: primitive member cannot be inline", where)
		}

	case Sequence:
		if tag.readonly && t.Kind() == reflect.Slice {
			return nil, errors.Schema("member %s: read-only slices cannot be filled in place, use an array", where)
		}
		el, err := b.member(t.Elem(), fieldTag{ref: tag.ref}, where+"[]")
		if err != nil {
			return nil, err
		}
		el.Name = cmp.Or(tag.child, DefaultChildName)
		m.Element = el

	case Mapping:
		kt, vt := mapTypes(t)
		key, err := b.member(kt, fieldTag{}, where+"[key]")
		if err != nil {
			return nil, err
		}
		if key.Kind != Primitive {
			return nil, errors.Schema("member %s: mapping keys must be primitive, got %s", where, kt)
		}
		val, err := b.member(vt, fieldTag{ref: tag.ref}, where+"[value]")
		if err != nil {
			return nil, err
		}
		key.Name = cmp.Or(tag.key, DefaultKeyName)
		val.Name = cmp.Or(tag.value, DefaultValueName)
		if reserved(key.Name) || reserved(val.Name) {
			return nil, errors.Schema("member %s: entry names %q/%q collide with a reserved name", where, key.Name, val.Name)
		}
		if key.Name == val.Name {
			return nil, errors.Schema("member %s: key and value share the name %q", where, key.Name)
		}
		m.Key, m.Value = key, val
		m.EntryName = cmp.Or(tag.entry, DefaultEntryName)

	case Object:
		if tag.ref && t.Kind() == reflect.Struct {
			return nil, errors.Schema("member %s: references must be pointers or interfaces, got %s", where, t)
		}
		if tag.ref && tag.inline {
			return nil, errors.Schema("member %s: inline member cannot be a reference", where)
		}
		if tag.inline && t.Kind() == reflect.Interface {
			return nil, errors.Schema("member %s: polymorphic member cannot be inline", where)
		}
		m.IsReference = tag.ref
		m.Object = b.object(t)
	}
	return m, nil
}

// mapTypes returns the key and value types of a Mapping type.
func mapTypes(t reflect.Type) (reflect.Type, reflect.Type) {
	if t.Kind() == reflect.Map {
		return t.Key(), t.Elem()
	}
	st := reflectx.NonPointerType(t)
	keys, _ := st.FieldByName("Keys")
	values, _ := st.FieldByName("Values")
	return keys.Type.Elem(), values.Type.Elem()
}
