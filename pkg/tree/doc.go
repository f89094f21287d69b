// Package tree provides the format-neutral document model used between the
// archive graph walk and the text codecs.
//
// # Overview
//
// A document is a tree of [Element] values. Each element has a name, an ordered
// list of string attributes, an ordered list of children, an identity stamp
// and an array flag:
//
//	<Scene Name="forest">            Element{Name: "Scene",
//	  <Camera Fov="60"/>               Attributes: [{Name "forest"}],
//	  <Props>                          Children: [Camera, Props(IsArray)]}
//	    <Item class="Tree" id="3"/>
//	  </Props>
//	</Scene>
//
// The array flag marks homogeneous sequence containers. Text formats that have a
// native list type (YAML, JSON) use it to pick a sequence representation, and the
// archive reader uses it to match children by position instead of by name.
//
// # Consumption
//
// Reading is destructive: [Element.TakeChild] and [Element.TakeNext] remove the
// matched child so that what remains after a read is exactly what was not
// understood. Callers that need the original tree afterwards should [Element.Clone]
// it first.
//
// # Concurrency
//
// Elements are plain data and are not safe for concurrent mutation. A tree that
// is no longer modified can be read from multiple goroutines.
package tree
