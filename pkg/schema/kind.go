package schema

import (
	"encoding"
	"reflect"

	"cogentcore.org/core/base/keylist"

	"github.com/matzehuels/persist/pkg/errors"
)

// Kind classifies how a member is serialized.
type Kind int

const (
	// Primitive values convert directly to and from a string: numbers,
	// strings, bools, byte slices and encoding.TextMarshaler types.
	Primitive Kind = iota
	// Sequence values are ordered collections (slices and arrays).
	Sequence
	// Mapping values are key/value collections (Go maps and ordered maps).
	Mapping
	// Object values are nested structured types (structs and interfaces).
	Object
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case Primitive:
		return "primitive"
	case Sequence:
		return "sequence"
	case Mapping:
		return "mapping"
	case Object:
		return "object"
	}
	return "unknown"
}

// OrderedMap is an insertion-ordered mapping. Go maps have no stable order,
// so members that must preserve entry order across a round trip should use
// this type (or a pointer to it) instead of a map.
type OrderedMap[K comparable, V any] = keylist.List[K, V]

// NewOrderedMap returns an empty [OrderedMap].
func NewOrderedMap[K comparable, V any]() *OrderedMap[K, V] {
	return keylist.New[K, V]()
}

var (
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// isText reports whether t round-trips through encoding.TextMarshaler.
func isText(t reflect.Type) bool {
	pt := t
	if t.Kind() != reflect.Pointer {
		pt = reflect.PointerTo(t)
	}
	if !pt.Implements(textUnmarshalerType) {
		return false
	}
	return t.Implements(textMarshalerType) || pt.Implements(textMarshalerType)
}

// isOrderedMap reports whether struct type t has the shape of an ordered
// key list: exported Keys and Values slices plus a Set(K, V) method on the
// pointer receiver.
func isOrderedMap(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	keys, ok := t.FieldByName("Keys")
	if !ok || keys.Type.Kind() != reflect.Slice || !keys.IsExported() {
		return false
	}
	values, ok := t.FieldByName("Values")
	if !ok || values.Type.Kind() != reflect.Slice || !values.IsExported() {
		return false
	}
	set, ok := reflect.PointerTo(t).MethodByName("Set")
	if !ok || set.Type.NumIn() != 3 {
		return false
	}
	return set.Type.In(1) == keys.Type.Elem() && set.Type.In(2) == values.Type.Elem()
}

// Classify returns the [Kind] of a declared Go type.
//
// A single level of pointer is allowed on primitives, structs and ordered
// maps; pointers to slices, maps and other pointers are rejected along with
// channels, functions and complex numbers.
func Classify(t reflect.Type) (Kind, error) {
	if isText(t) {
		return Primitive, nil
	}
	base := t
	if t.Kind() == reflect.Pointer {
		base = t.Elem()
		if isText(base) {
			return Primitive, nil
		}
	}
	switch base.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return Primitive, nil
	case reflect.Slice:
		if base.Elem().Kind() == reflect.Uint8 {
			return Primitive, nil
		}
		if base != t {
			break
		}
		return Sequence, nil
	case reflect.Array:
		if base != t {
			break
		}
		return Sequence, nil
	case reflect.Map:
		if base != t {
			break
		}
		return Mapping, nil
	case reflect.Struct:
		if isOrderedMap(base) {
			return Mapping, nil
		}
		return Object, nil
	case reflect.Interface:
		if base != t {
			break
		}
		return Object, nil
	}
	return 0, errors.Schema("unsupported member type %s", t)
}
