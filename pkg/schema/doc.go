// Package schema compiles Go types into the serializable description used by
// the archive graph walk.
//
// # Overview
//
// A [Schema] is built once per root type and describes every member reachable
// from it. Each member has a [Kind]:
//
//   - [Primitive]: converts to and from a single string (numbers, strings, bools,
//     []byte, encoding.TextMarshaler types)
//   - [Sequence]: slices and arrays, one item element per entry
//   - [Mapping]: Go maps and [OrderedMap], one entry element per pair
//   - [Object]: structs and interfaces, one element with nested members
//
// Object members share an [ObjectSchema] per declared type. Struct declarations
// have a single [Variant]; interface declarations have one variant per
// registered subtype, selected by the class discriminator on write and read.
//
// # Annotations
//
// Members are exported struct fields. The `persist` struct tag adjusts them:
//
//	type Scene struct {
//	    Name   string            `persist:"Title"`
//	    Camera *Camera           `persist:",ref"`
//	    Props  []Prop            `persist:",child=Prop"`
//	    Lookup map[string]*Prop  `persist:",ref,key=Name,value=Target,entry=Pair"`
//	    Nodes  []*Node           `persist:",inline,child=Node"`
//	    Cache  []byte            `persist:"-"`
//	}
//
// Options:
//   - ref: write an id pointer instead of the object (items for collections)
//   - inline: write the content directly into the enclosing element
//   - readonly: never assign; decode complex values in place
//   - child, key, value, entry: item and entry element names
//
// A type may keep its annotations elsewhere by implementing [MetadataProvider]
// or through [Registry.RegisterMetadata].
//
// # Validation
//
// Building fails with a SCHEMA_ERROR when the root is not an object, a
// primitive is marked ref, a member type is unsupported, an interface has no
// registered subtype, or non-reference object members form a cycle.
//
// # Caching
//
// [Registry] caches schemas by root type and subtype list. [Default] is the
// process-wide registry behind [For]. Built schemas are read-only.
package schema
