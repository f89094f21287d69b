// Package pkg provides the core libraries for persist, a reflection-driven
// object archive.
//
// # Overview
//
// Persist saves graphs of Go values as XML, YAML or JSON documents and reads
// them back with shared instances intact. The schema is derived from struct
// types and `persist` struct tags, so types need no hand-written marshalling.
// The pkg directory is organized into three areas:
//
//  1. Engine: [schema], [tree], [archive], [codec] and the typed front end [persist]
//  2. Infrastructure: [cache], [store], [observability] and [errors]
//  3. Tooling: [convert] and [render/nodelink]
//
// # Architecture
//
// Writing a value:
//
//	Go value graph
//	     ↓
//	[schema] (types → objects, members, variants)
//	     ↓
//	[archive] (walk; shared instances get an id, later slots a ref)
//	     ↓
//	[tree] (elements and attributes)
//	     ↓
//	[codec] (XML / YAML / JSON text)
//
// Reading runs the same chain backwards: the codec builds the element tree,
// the first pass constructs objects and defers references, and the second
// pass resolves them.
//
// # Quick Start
//
//	type Point struct{ X, Y int }
//
//	type Level struct {
//	    Name   string
//	    Spawn  *Point   `persist:",ref"`
//	    Points []*Point `persist:",child=Point"`
//	}
//
//	a, err := persist.NewYAML[*Level]()
//	data, err := a.Marshal("Level", level)
//	back, err := a.Unmarshal(data)   // back.Spawn aliases one of back.Points
//
// # Main Packages
//
// [schema] - Derives object schemas from Go types: member kinds (primitive,
// sequence, mapping, object), references, inline containers, readonly
// members and polymorphic interface variants. Reports SchemaError.
//
// [tree] - The format-neutral document model: named elements with ordered
// attributes and children.
//
// [archive] - The graph walk. Writes assign ids to shared instances; reads
// run two passes so references may point forward.
//
// [codec] - XML, YAML (gopkg.in/yaml.v3) and JSON encodings of element trees.
//
// [persist] - Generic typed archives bound to a codec, with file and store
// helpers.
//
// [cache] - Conversion cache with file, Redis and no-op backends.
//
// [store] - Asset store with memory, file, SQLite and MongoDB backends and
// optimistic revisions.
//
// [convert] - Schema-free conversion between formats, batch conversion and
// graph rendering, shared by the CLI and the HTTP server.
//
// [render/nodelink] - Graphviz diagrams of documents and schemas.
//
// # Testing
//
//	go test ./...                          # All tests
//	PERSIST_TEST_REDIS=localhost:6379 \
//	PERSIST_TEST_MONGO=mongodb://localhost \
//	    go test ./pkg/cache/... ./pkg/store/...
//
// [schema]: https://pkg.go.dev/github.com/matzehuels/persist/pkg/schema
// [tree]: https://pkg.go.dev/github.com/matzehuels/persist/pkg/tree
// [archive]: https://pkg.go.dev/github.com/matzehuels/persist/pkg/archive
// [codec]: https://pkg.go.dev/github.com/matzehuels/persist/pkg/codec
// [persist]: https://pkg.go.dev/github.com/matzehuels/persist/pkg/persist
// [cache]: https://pkg.go.dev/github.com/matzehuels/persist/pkg/cache
// [store]: https://pkg.go.dev/github.com/matzehuels/persist/pkg/store
// [observability]: https://pkg.go.dev/github.com/matzehuels/persist/pkg/observability
// [errors]: https://pkg.go.dev/github.com/matzehuels/persist/pkg/errors
// [convert]: https://pkg.go.dev/github.com/matzehuels/persist/pkg/convert
// [render/nodelink]: https://pkg.go.dev/github.com/matzehuels/persist/pkg/render/nodelink
package pkg
