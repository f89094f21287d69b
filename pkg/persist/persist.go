// Package persist binds an object archive to a text codec.
//
// An [Archive] is the entry point for applications: it builds the schema of
// T once, then writes values of T to XML, YAML or JSON and reads them back,
// keeping shared instances shared and polymorphic members typed.
//
// # Usage
//
//	type Level struct {
//	    Name    string
//	    Spawn   *Point   `persist:",ref"`
//	    Points  []*Point `persist:",child=Point"`
//	}
//
//	a, err := persist.NewYAML[*Level]()
//	if err != nil {
//	    return err // SCHEMA_ERROR: Level cannot be described
//	}
//	if err := a.Export("level.yaml", "Level", level); err != nil {
//	    return err
//	}
//	level, err = a.Import("level.yaml")
//
// Archives are safe for concurrent use; calls on one archive are serialized.
package persist

import (
	"bytes"
	"context"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/matzehuels/persist/pkg/archive"
	"github.com/matzehuels/persist/pkg/codec"
	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/observability"
	"github.com/matzehuels/persist/pkg/schema"
	"github.com/matzehuels/persist/pkg/store"
	"github.com/matzehuels/persist/pkg/tree"
)

// Archive reads and writes values of T in one text format.
type Archive[T any] struct {
	archive *archive.Archive
	codec   codec.Codec
}

// New returns an archive for T using c. It fails with a SCHEMA_ERROR when
// T cannot be described.
func New[T any](c codec.Codec, opts ...archive.Option) (*Archive[T], error) {
	if c == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "codec is nil")
	}
	a, err := archive.New(reflect.TypeFor[T](), opts...)
	if err != nil {
		return nil, err
	}
	return &Archive[T]{archive: a, codec: c}, nil
}

// NewXML returns an archive for T that writes compact XML.
func NewXML[T any](opts ...archive.Option) (*Archive[T], error) {
	return New[T](codec.XMLCodec{}, opts...)
}

// NewYAML returns an archive for T that writes YAML.
func NewYAML[T any](opts ...archive.Option) (*Archive[T], error) {
	return New[T](codec.YAMLCodec{}, opts...)
}

// NewJSON returns an archive for T that writes indented JSON.
func NewJSON[T any](opts ...archive.Option) (*Archive[T], error) {
	return New[T](codec.JSONCodec{Indent: "  "}, opts...)
}

// Codec returns the archive's codec.
func (a *Archive[T]) Codec() codec.Codec { return a.codec }

// Schema returns the schema of T.
func (a *Archive[T]) Schema() *schema.Schema { return a.archive.Schema() }

// Tree encodes data into an element tree whose root is named name.
func (a *Archive[T]) Tree(name string, data T) (*tree.Element, error) {
	return a.archive.Write(name, data)
}

// FromTree decodes a value from an element tree. doc is not modified.
func (a *Archive[T]) FromTree(doc *tree.Element) (T, error) {
	var zero T
	v, err := a.archive.Read(doc)
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// Write encodes data to w with a root element named name.
func (a *Archive[T]) Write(w io.Writer, name string, data T) error {
	return a.write(context.Background(), w, name, data)
}

func (a *Archive[T]) write(ctx context.Context, w io.Writer, name string, data T) (err error) {
	format := string(a.codec.Format())
	hooks := observability.Archive()
	hooks.OnWriteStart(ctx, name, format)
	start := time.Now()
	cw := &countingWriter{w: w}
	defer func() { hooks.OnWriteComplete(ctx, name, format, cw.n, time.Since(start), err) }()

	doc, err := a.archive.Write(name, data)
	if err != nil {
		return err
	}
	return a.codec.Encode(cw, doc)
}

// Read decodes a value from r.
func (a *Archive[T]) Read(r io.Reader) (T, error) {
	return a.read(context.Background(), a.codec, r)
}

func (a *Archive[T]) read(ctx context.Context, c codec.Codec, r io.Reader) (out T, err error) {
	format := string(c.Format())
	root := a.archive.Schema().Root.Type.Name()
	hooks := observability.Archive()
	hooks.OnReadStart(ctx, root, format)
	start := time.Now()
	defer func() { hooks.OnReadComplete(ctx, root, format, time.Since(start), err) }()

	doc, err := c.Decode(r)
	if err != nil {
		return out, err
	}
	return a.FromTree(doc)
}

// Marshal encodes data into a byte slice.
func (a *Archive[T]) Marshal(name string, data T) ([]byte, error) {
	var buf bytes.Buffer
	if err := a.Write(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a value from data.
func (a *Archive[T]) Unmarshal(data []byte) (T, error) {
	return a.Read(bytes.NewReader(data))
}

// Export writes data to the file at path, replacing it.
func (a *Archive[T]) Export(path, name string, data T) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "create %s", path)
	}
	if err := a.Write(f, name, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Import reads a value from the file at path.
func (a *Archive[T]) Import(path string) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		if os.IsNotExist(err) {
			return zero, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", path)
		}
		return zero, errors.Wrap(errors.ErrCodeInvalidInput, err, "open %s", path)
	}
	defer f.Close()
	return a.Read(f)
}

// Save encodes data and stores it under key. rev, when not empty, must
// match the stored revision.
func (a *Archive[T]) Save(ctx context.Context, s store.Store, key, name string, data T, rev string) (*store.Document, error) {
	var buf bytes.Buffer
	if err := a.write(ctx, &buf, name, data); err != nil {
		return nil, err
	}
	return s.Put(ctx, &store.Document{
		Key:      key,
		Format:   string(a.codec.Format()),
		Data:     buf.Bytes(),
		Revision: rev,
	})
}

// Load reads the value stored under key. The document is decoded with the
// codec of its stored format, which may differ from the archive's.
func (a *Archive[T]) Load(ctx context.Context, s store.Store, key string) (T, error) {
	var zero T
	doc, err := s.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	c, err := codec.Lookup(doc.Format)
	if err != nil {
		return zero, err
	}
	return a.read(ctx, c, bytes.NewReader(doc.Data))
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
