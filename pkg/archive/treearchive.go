package archive

import (
	"reflect"
	"slices"
	"strconv"

	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/schema"
	"github.com/matzehuels/persist/pkg/tree"
)

// frame is one entry of the element context stack. A proxy frame forwards
// to the element below it without owning a node of its own.
type frame struct {
	el    *tree.Element
	proxy bool
}

// TreeWriter implements [Writer] by building a [tree.Element] document.
type TreeWriter struct {
	root    *tree.Element
	stack   []frame
	pending map[int64]struct{}
}

// NewTreeWriter returns an empty tree writer.
func NewTreeWriter() *TreeWriter {
	return &TreeWriter{pending: make(map[int64]struct{})}
}

func (w *TreeWriter) current() *tree.Element {
	return w.stack[len(w.stack)-1].el
}

func (w *TreeWriter) begin(name string, array bool) {
	if len(w.stack) == 0 {
		w.root = &tree.Element{Name: name, IsArray: array}
		w.stack = append(w.stack, frame{el: w.root})
		return
	}
	if name == "" {
		w.stack = append(w.stack, frame{el: w.current(), proxy: true})
		return
	}
	el := w.current().AddChild(&tree.Element{Name: name, IsArray: array})
	w.stack = append(w.stack, frame{el: el})
}

// BeginObject opens a child node, or the root when nothing is open yet.
func (w *TreeWriter) BeginObject(name string) { w.begin(name, false) }

// BeginArray opens a child node flagged as a homogeneous sequence.
func (w *TreeWriter) BeginArray(name string) { w.begin(name, true) }

// EndObject closes the innermost node and stamps it with id.
func (w *TreeWriter) EndObject(id int64) {
	f := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	if !f.proxy && id != 0 {
		f.el.ID = id
	}
}

// WriteValue adds an attribute to the current node.
func (w *TreeWriter) WriteValue(name, value string) {
	w.current().AddAttr(name, value)
}

// WriteReference adds an id pointer attribute and records id as pending.
func (w *TreeWriter) WriteReference(name string, id int64) {
	w.current().AddAttr(name, strconv.FormatInt(id, 10))
	w.pending[id] = struct{}{}
}

// References returns the number of distinct referenced ids.
func (w *TreeWriter) References() int {
	return len(w.pending)
}

// Finish runs the back-reference pass and returns the document. Every node
// stamped with a referenced id gets an id attribute; a referenced id that
// no node carries is an error.
func (w *TreeWriter) Finish() (*tree.Element, error) {
	if w.root == nil {
		return nil, errors.Serialization("nothing was written")
	}
	if len(w.stack) != 0 {
		return nil, errors.New(errors.ErrCodeInternal, "%d nodes left open", len(w.stack))
	}
	if len(w.pending) == 0 {
		return w.root, nil
	}

	found := make(map[int64]bool, len(w.pending))
	w.root.Walk(func(e *tree.Element, _ int) bool {
		if e.ID == 0 {
			return tree.Continue
		}
		if _, ok := w.pending[e.ID]; ok {
			e.SetAttr(schema.IDAttr, strconv.FormatInt(e.ID, 10))
			found[e.ID] = true
		}
		return tree.Continue
	})

	ids := make([]int64, 0, len(w.pending))
	for id := range w.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if !found[id] {
			return nil, errors.Serialization("unresolved reference %d", id)
		}
	}
	return w.root, nil
}

// TreeReader implements [Reader] over a [tree.Element] document.
// Matched children are removed from their parent as they are read, so the
// document passed in is consumed.
type TreeReader struct {
	root      *tree.Element
	stack     []frame
	instances map[int64]reflect.Value
}

// NewTreeReader returns a reader over root that registers instances in
// the given table. Readers for both passes of one Read share the table.
func NewTreeReader(root *tree.Element, instances map[int64]reflect.Value) *TreeReader {
	if instances == nil {
		instances = make(map[int64]reflect.Value)
	}
	return &TreeReader{root: root, instances: instances}
}

func (r *TreeReader) current() *tree.Element {
	return r.stack[len(r.stack)-1].el
}

// BeginObject enters the next node. The first call enters the root whatever
// its name. Inside an array node children are taken in order; elsewhere the
// first remaining child named name is taken. An empty name enters a proxy
// for the current node.
func (r *TreeReader) BeginObject(name string) bool {
	if len(r.stack) == 0 {
		if r.root == nil {
			return false
		}
		r.stack = append(r.stack, frame{el: r.root})
		r.root = nil
		return true
	}
	cur := r.current()
	if name == "" {
		r.stack = append(r.stack, frame{el: cur, proxy: true})
		return true
	}
	var child *tree.Element
	if cur.IsArray {
		child = cur.TakeNext()
	} else {
		child = cur.TakeChild(name)
	}
	if child == nil {
		return false
	}
	r.stack = append(r.stack, frame{el: child})
	return true
}

// EndObject leaves the current node, registering instance under its id.
func (r *TreeReader) EndObject(instance reflect.Value) {
	f := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	if f.proxy || !instance.IsValid() {
		return
	}
	s, ok := f.el.Attr(schema.IDAttr)
	if !ok {
		return
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil && id > 0 {
		f.el.ID = id
		r.instances[id] = instance
	}
}

// ReadValue returns the attribute name of the current node.
func (r *TreeReader) ReadValue(name string) (string, bool) {
	return r.current().Attr(name)
}

// ReadReference parses the id pointer attribute name and looks it up.
func (r *TreeReader) ReadReference(name string) (int64, reflect.Value, error) {
	s, ok := r.current().Attr(name)
	if !ok {
		return 0, reflect.Value{}, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, reflect.Value{}, errors.Serialization("invalid reference %q in %s", s, r.current().Name)
	}
	return id, r.instances[id], nil
}

// ChildCount returns the number of remaining children named name, or of
// all remaining children inside an array node.
func (r *TreeReader) ChildCount(name string) int {
	cur := r.current()
	if cur.IsArray {
		return cur.CountChildren("")
	}
	return cur.CountChildren(name)
}
