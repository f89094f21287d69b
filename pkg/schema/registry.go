package schema

import (
	"reflect"
	"slices"
	"sync"

	"cogentcore.org/core/base/reflectx"

	"github.com/matzehuels/persist/pkg/errors"
)

// Schema is the compiled description of a root type and everything
// reachable from it. Schemas are immutable and safe to share.
type Schema struct {
	// Type is the declared root type.
	Type reflect.Type
	// Root is the object schema of the root type.
	Root *ObjectSchema
	// Subtypes are the registered polymorphic implementations.
	Subtypes []reflect.Type

	objects []*ObjectSchema
}

// Objects returns every object schema in breadth-first discovery order,
// starting with the root.
func (s *Schema) Objects() []*ObjectSchema {
	return slices.Clone(s.objects)
}

// RootMember returns a member describing the root under the given element name.
func (s *Schema) RootMember(name string) *Member {
	return &Member{Name: name, Kind: Object, Type: s.Type, Object: s.Root}
}

// Accepts reports whether a value of dynamic type t may be written as the root.
// Struct roots accept the struct or a pointer to it; interface roots accept
// any registered subtype.
func (s *Schema) Accepts(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if s.Type.Kind() == reflect.Interface {
		return t.Implements(s.Type) && s.Root.VariantFor(t) != nil
	}
	return reflectx.NonPointerType(t) == s.Root.Type && (t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Pointer)
}

// Option configures a schema build.
type Option func(*buildConfig)

type buildConfig struct {
	subtypes []reflect.Type
}

// WithSubtypes registers polymorphic implementations from sample values.
// Pass the form stored in interfaces, for example (*Circle)(nil).
func WithSubtypes(samples ...any) Option {
	return func(c *buildConfig) {
		for _, s := range samples {
			if t := reflect.TypeOf(s); t != nil {
				c.subtypes = append(c.subtypes, t)
			}
		}
	}
}

// WithSubtypeTypes registers polymorphic implementations by type.
func WithSubtypeTypes(types ...reflect.Type) Option {
	return func(c *buildConfig) {
		c.subtypes = append(c.subtypes, types...)
	}
}

type cached struct {
	subtypes []reflect.Type
	schema   *Schema
}

// Registry builds and caches schemas. A schema is a pure function of the
// root type, the subtype list and the registered metadata, so each
// combination is built once and shared afterwards.
type Registry struct {
	mu       sync.Mutex
	schemas  map[reflect.Type][]cached
	metadata map[reflect.Type]reflect.Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas:  make(map[reflect.Type][]cached),
		metadata: make(map[reflect.Type]reflect.Type),
	}
}

// Default is the process-wide registry used by [For].
var Default = NewRegistry()

// For builds (or returns the cached) schema for T from the default registry.
func For[T any](opts ...Option) (*Schema, error) {
	return Default.Build(reflect.TypeFor[T](), opts...)
}

// RegisterMetadata makes the struct type of shadow the annotation source
// for the struct type of real. It has the same effect as real implementing
// [MetadataProvider] and clears cached schemas.
func (r *Registry) RegisterMetadata(real, shadow any) {
	rt := reflectx.NonPointerType(reflect.TypeOf(real))
	st := reflectx.NonPointerType(reflect.TypeOf(shadow))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[rt] = st
	clear(r.schemas)
}

// Build returns the schema for root with the given options.
func (r *Registry) Build(root reflect.Type, opts ...Option) (*Schema, error) {
	if root == nil {
		return nil, errors.Schema("root must be a complex type")
	}
	var cfg buildConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	for _, st := range cfg.subtypes {
		if reflectx.NonPointerType(st).Kind() != reflect.Struct || reflectx.NonPointerType(st).Name() == "" ||
			(st.Kind() == reflect.Pointer && st.Elem().Kind() == reflect.Pointer) {
			return nil, errors.Schema("subtype %s must be a named struct or a pointer to one", st)
		}
	}

	if kind, err := Classify(root); err != nil || kind != Object {
		return nil, errors.Schema("root must be a complex type, got %s", root)
	}

	r.mu.Lock()
	for _, c := range r.schemas[root] {
		if slices.Equal(c.subtypes, cfg.subtypes) {
			r.mu.Unlock()
			return c.schema, nil
		}
	}
	r.mu.Unlock()

	b := newBuilder(r, cfg.subtypes)
	rootObj := b.object(root)
	if err := b.run(); err != nil {
		return nil, err
	}
	if err := checkCycles(b.order); err != nil {
		return nil, err
	}

	s := &Schema{
		Type:     root,
		Root:     rootObj,
		Subtypes: slices.Clone(cfg.subtypes),
		objects:  b.order,
	}
	r.mu.Lock()
	r.schemas[root] = append(r.schemas[root], cached{subtypes: s.Subtypes, schema: s})
	r.mu.Unlock()
	return s, nil
}
