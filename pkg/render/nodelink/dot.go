package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/persist/pkg/schema"
	"github.com/matzehuels/persist/pkg/tree"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed includes every attribute in node labels.
	// When false, only the element name and its class are shown.
	Detailed bool

	// GuessReferences also draws reference edges for member attributes whose
	// value is the id of another element. Without a schema a document cannot
	// tell a reference from an integer, so this may draw false edges.
	GuessReferences bool
}

// ToDOT converts a document to Graphviz DOT format.
// Containment edges are solid; reference edges are dashed and labeled with
// the attribute that holds the id. Array containers are drawn as folders.
func ToDOT(doc *tree.Element, opts Options) string {
	var buf bytes.Buffer
	writeHeader(&buf)

	names := make(map[*tree.Element]string)
	byID := make(map[string]string)
	doc.Walk(func(e *tree.Element, _ int) bool {
		name := "n" + strconv.Itoa(len(names))
		names[e] = name
		if id, ok := e.Attr(schema.IDAttr); ok {
			byID[id] = name
		}
		return tree.Continue
	})

	doc.Walk(func(e *tree.Element, _ int) bool {
		attrs := []string{fmt.Sprintf("label=%q", elementLabel(e, opts.Detailed))}
		if e.IsArray {
			attrs = append(attrs, "shape=folder", "fillcolor=\"#f0f0f0\"")
		}
		fmt.Fprintf(&buf, "  %s [%s];\n", names[e], strings.Join(attrs, ", "))
		return tree.Continue
	})

	buf.WriteString("\n")
	doc.Walk(func(e *tree.Element, _ int) bool {
		for _, c := range e.Children {
			fmt.Fprintf(&buf, "  %s -> %s;\n", names[e], names[c])
		}
		for _, a := range e.Attributes {
			if !isReference(a, opts.GuessReferences) {
				continue
			}
			if target, ok := byID[a.Value]; ok {
				fmt.Fprintf(&buf, "  %s -> %s [style=dashed, color=\"#2563eb\", label=%q];\n", names[e], target, a.Name)
			}
		}
		return tree.Continue
	})

	buf.WriteString("}\n")
	return buf.String()
}

func isReference(a tree.Attribute, guess bool) bool {
	switch a.Name {
	case schema.RefAttr:
		return true
	case schema.IDAttr, schema.ClassAttr, schema.ValueAttr, schema.NilAttr:
		return false
	}
	return guess
}

func elementLabel(e *tree.Element, detailed bool) string {
	label := e.Name
	if class, ok := e.Attr(schema.ClassAttr); ok {
		label += " : " + class
	}
	if !detailed {
		return label
	}
	var lines []string
	for _, a := range e.Attributes {
		if a.Name == schema.ClassAttr {
			continue
		}
		lines = append(lines, a.Name+" = "+a.Value)
	}
	if len(lines) == 0 {
		return label
	}
	return label + "\n" + strings.Join(lines, "\n")
}

// SchemaDOT converts the object schemas reachable from root to DOT format.
// Each object is a node listing its primitive members; member edges point at
// the objects they hold, dashed for references, and interfaces point at
// their variants with dotted edges.
func SchemaDOT(root *schema.ObjectSchema) string {
	var buf bytes.Buffer
	writeHeader(&buf)

	names := make(map[reflect.Type]string)
	var edges []string
	var visit func(t reflect.Type, label string, members []*schema.Member) string
	var visitObject func(o *schema.ObjectSchema) string

	visit = func(t reflect.Type, label string, members []*schema.Member) string {
		if name, ok := names[t]; ok {
			return name
		}
		name := "s" + strconv.Itoa(len(names))
		names[t] = name

		var lines []string
		for _, m := range members {
			if m.Kind == schema.Primitive {
				lines = append(lines, m.Name+": "+m.Type.String())
			}
		}
		full := label
		if len(lines) > 0 {
			full += "\n" + strings.Join(lines, "\n")
		}
		fmt.Fprintf(&buf, "  %s [label=%q];\n", name, full)

		for _, m := range members {
			target, suffix, ref := memberTarget(m)
			if target == nil {
				continue
			}
			to := visitObject(target)
			style := ""
			if ref {
				style = ", style=dashed"
			}
			edges = append(edges, fmt.Sprintf("  %s -> %s [label=%q%s];", name, to, m.Name+suffix, style))
		}
		return name
	}

	visitObject = func(o *schema.ObjectSchema) string {
		if !o.Polymorphic() {
			return visit(o.Type, o.Type.Name(), o.Variants[0].Members)
		}
		if name, ok := names[o.Type]; ok {
			return name
		}
		name := "s" + strconv.Itoa(len(names))
		names[o.Type] = name
		fmt.Fprintf(&buf, "  %s [label=%q, style=\"rounded,filled,dashed\", fillcolor=\"#f0f0f0\"];\n", name, o.Type.Name()+"\n«interface»")
		for _, v := range o.Variants {
			to := visit(v.Struct(), v.Tag, v.Members)
			edges = append(edges, fmt.Sprintf("  %s -> %s [style=dotted, arrowhead=empty];", name, to))
		}
		return name
	}

	visitObject(root)
	buf.WriteString("\n")
	for _, e := range edges {
		buf.WriteString(e)
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.String()
}

// memberTarget follows collections down to the object a member holds.
func memberTarget(m *schema.Member) (*schema.ObjectSchema, string, bool) {
	suffix := ""
	for {
		switch m.Kind {
		case schema.Object:
			return m.Object, suffix, m.IsReference
		case schema.Sequence:
			suffix += "[]"
			m = m.Element
		case schema.Mapping:
			suffix += "{}"
			m = m.Value
		default:
			return nil, "", false
		}
	}
}

func writeHeader(buf *bytes.Buffer) {
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=11];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root svg tag to a zero-origin viewBox with
// matching width and height, so the image scales cleanly when embedded.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}
