package archive

import (
	"reflect"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/schema"
	"github.com/matzehuels/persist/pkg/tree"
)

// Writer is the set of primitives the graph walk emits on write.
//
// BeginObject and BeginArray open a node (an array node holds homogeneous
// items). An empty name opens a transparent proxy whose content lands in the
// current node. EndObject closes the innermost node and stamps it with the
// identity of the object it holds (0 for none).
type Writer interface {
	BeginObject(name string)
	BeginArray(name string)
	EndObject(id int64)
	WriteValue(name, value string)
	WriteReference(name string, id int64)
}

// Reader is the set of primitives the graph walk consumes on read.
//
// BeginObject reports whether a node named name (or, inside an array node,
// the next node) exists and enters it. EndObject leaves the node, registering
// instance under the node's address when instance is valid. ReadReference
// returns id 0 when the attribute is absent and an invalid target when the
// id is not registered (yet).
type Reader interface {
	BeginObject(name string) bool
	EndObject(instance reflect.Value)
	ReadValue(name string) (string, bool)
	ReadReference(name string) (id int64, target reflect.Value, err error)
	ChildCount(name string) int
}

// Archive encodes and decodes object graphs of one root type.
//
// An Archive is safe for concurrent use, but calls are serialized: one Write
// or Read runs at a time. Use one Archive per goroutine for parallel work;
// they share the cached schema.
type Archive struct {
	mu     sync.Mutex
	schema *schema.Schema
	logger *log.Logger
}

// Option configures an Archive.
type Option func(*config)

type config struct {
	logger     *log.Logger
	registry   *schema.Registry
	schemaOpts []schema.Option
}

// WithLogger sets the logger used for debug events.
func WithLogger(l *log.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithRegistry builds the schema from r instead of [schema.Default].
func WithRegistry(r *schema.Registry) Option {
	return func(c *config) { c.registry = r }
}

// WithSubtypes registers polymorphic implementations from sample values.
func WithSubtypes(samples ...any) Option {
	return func(c *config) { c.schemaOpts = append(c.schemaOpts, schema.WithSubtypes(samples...)) }
}

// New builds (or fetches) the schema for root and returns an archive for it.
// It fails with a SCHEMA_ERROR when root cannot be described.
func New(root reflect.Type, opts ...Option) (*Archive, error) {
	cfg := config{logger: log.Default(), registry: schema.Default}
	for _, opt := range opts {
		opt(&cfg)
	}
	start := time.Now()
	s, err := cfg.registry.Build(root, cfg.schemaOpts...)
	if err != nil {
		return nil, err
	}
	cfg.logger.Debug("schema ready", "root", root, "objects", len(s.Objects()), "duration", time.Since(start))
	return &Archive{schema: s, logger: cfg.logger}, nil
}

// NewFromSchema returns an archive for an already built schema.
func NewFromSchema(s *schema.Schema, opts ...Option) *Archive {
	cfg := config{logger: log.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Archive{schema: s, logger: cfg.logger}
}

// Schema returns the archive's schema.
func (a *Archive) Schema() *schema.Schema {
	return a.schema
}

// Write encodes v into a new document whose root element is named name.
//
// Referenced objects receive an id attribute in a pass after the walk, so a
// reference may point at a node written earlier or later in the document.
func (a *Archive) Write(name string, v any) (*tree.Element, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tw := NewTreeWriter()
	if err := a.encode(tw, name, v); err != nil {
		return nil, err
	}
	doc, err := tw.Finish()
	if err != nil {
		return nil, err
	}
	a.logger.Debug("wrote document", "root", name, "elements", doc.Count(), "references", tw.References())
	return doc, nil
}

// WriteTo runs the graph walk against an arbitrary primitive writer.
func (a *Archive) WriteTo(w Writer, name string, v any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.encode(w, name, v)
}

func (a *Archive) encode(w Writer, name string, v any) error {
	if err := errors.ValidateName(name); err != nil {
		return errors.Wrap(errors.ErrCodeSerialization, err, "invalid root name")
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || !a.schema.Accepts(rv.Type()) || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return errors.TypeMismatch("cannot write %s as %s", typeName(rv), a.schema.Type)
	}
	if rv.Kind() == reflect.Struct {
		// Copy into addressable storage so embedded values get an identity.
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		rv = p.Elem()
	}
	e := newEncoder(w)
	return e.object(name, a.schema.Root, rv, false)
}

// Read decodes doc into a new value of the root type.
//
// The first pass constructs objects and registers addressed ones. References
// whose target was not registered yet are deferred; if there are any, a second
// pass over a fresh copy of doc assigns them. doc itself is not modified.
func (a *Archive) Read(doc *tree.Element) (any, error) {
	if doc == nil {
		return nil, errors.Serialization("document is empty")
	}
	instances := make(map[int64]reflect.Value)
	return a.ReadFrom(func() Reader {
		return NewTreeReader(doc.Clone(), instances)
	})
}

// ReadFrom runs the two-pass graph walk against primitive readers. open is
// called once per pass and must return readers positioned at the document
// root that share one instance table.
func (a *Archive) ReadFrom(open func() Reader) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	root := reflect.New(a.schema.Type).Elem()
	deferred, err := a.decode(open(), root, false)
	if err != nil {
		return nil, err
	}
	if deferred > 0 {
		a.logger.Debug("resolving deferred references", "count", deferred)
		if _, err := a.decode(open(), root, true); err != nil {
			return nil, err
		}
	}
	return root.Interface(), nil
}

func (a *Archive) decode(in Reader, root reflect.Value, resolve bool) (int, error) {
	if !in.BeginObject(a.schema.Root.Type.Name()) {
		return 0, errors.Serialization("document is empty")
	}
	d := &decoder{in: in, resolve: resolve}
	inst, err := d.object(a.schema.Root, root, false)
	if err != nil {
		return 0, err
	}
	in.EndObject(inst)
	return d.deferred, nil
}

func typeName(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return "nil " + v.Type().String()
	}
	return v.Type().String()
}
