// Package nodelink renders documents and schemas as node-link diagrams.
//
// # Overview
//
// [ToDOT] draws an element tree: one box per element, solid edges for
// containment and dashed edges for references, so shared instances show up
// as nodes with several incoming arrows. [SchemaDOT] draws the object model
// an archive derived from Go types: objects, the members linking them, and
// the variants of polymorphic interfaces.
//
// # Usage
//
//	dot := nodelink.ToDOT(doc, nodelink.Options{Detailed: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering; no Graphviz installation is required.
package nodelink
