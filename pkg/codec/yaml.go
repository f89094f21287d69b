package codec

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/tree"
)

// YAMLCodec writes the document as a single-key mapping from the root name
// to its body. A body with attributes or distinctly named children becomes
// a mapping; an array node, or a node whose children all share one name and
// which has no attributes, becomes a sequence. Names of sequence children
// are not kept.
type YAMLCodec struct{}

// Format returns YAML.
func (YAMLCodec) Format() Format { return YAML }

// Encode writes doc as YAML.
func (YAMLCodec) Encode(w io.Writer, doc *tree.Element) error {
	root, err := documentNode(doc)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return errors.Wrap(errors.ErrCodeSerialization, err, "encode yaml")
	}
	return enc.Close()
}

// Decode parses a YAML document. Aliases are followed and null values are
// treated as absent.
func (YAMLCodec) Decode(r io.Reader) (*tree.Element, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, errors.Serialization("document is empty")
		}
		return nil, errors.Wrap(errors.ErrCodeSerialization, err, "parse yaml")
	}
	return fromDocument(&doc)
}

// documentNode builds the YAML node graph shared by the YAML and JSON codecs.
func documentNode(doc *tree.Element) (*yaml.Node, error) {
	if doc == nil {
		return nil, errors.Serialization("document is empty")
	}
	body, err := bodyNode(doc)
	if err != nil {
		return nil, err
	}
	root := &yaml.Node{Kind: yaml.MappingNode}
	root.Content = append(root.Content, scalar(doc.Name), body)
	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}, nil
}

func bodyNode(e *tree.Element) (*yaml.Node, error) {
	if isSequence(e) {
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, child := range e.Children {
			n, err := bodyNode(child)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	}

	seen := make(map[string]bool, len(e.Attributes)+len(e.Children))
	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, a := range e.Attributes {
		if err := checkValue(e, a); err != nil {
			return nil, err
		}
		seen[a.Name] = true
		m.Content = append(m.Content, scalar(a.Name), scalar(a.Value))
	}
	for _, child := range e.Children {
		if seen[child.Name] {
			return nil, errors.Serialization("cannot serialize anonymous containers: <%s> mixes values with repeated <%s> children", e.Name, child.Name)
		}
		seen[child.Name] = true
		n, err := bodyNode(child)
		if err != nil {
			return nil, err
		}
		m.Content = append(m.Content, scalar(child.Name), n)
	}
	return m, nil
}

func isSequence(e *tree.Element) bool {
	if len(e.Attributes) > 0 {
		return false
	}
	if e.IsArray {
		return true
	}
	if len(e.Children) < 2 {
		return false
	}
	for _, c := range e.Children[1:] {
		if c.Name != e.Children[0].Name {
			return false
		}
	}
	return true
}

// scalar returns a plain string scalar, quoted only where a plain scalar
// would read back as null.
func scalar(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Value: s}
	switch s {
	case "", "~", "null", "Null", "NULL":
		n.Tag = "!!str"
	}
	return n
}

func fromDocument(doc *yaml.Node) (*tree.Element, error) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.Serialization("document is empty")
	}
	root := resolveAlias(doc.Content[0])
	if root.Kind != yaml.MappingNode || len(root.Content) != 2 {
		return nil, errors.Serialization("document must be a mapping with exactly one root key (line %d)", root.Line)
	}
	return fromNode(root.Content[0].Value, root.Content[1])
}

func fromNode(name string, n *yaml.Node) (*tree.Element, error) {
	n = resolveAlias(n)
	switch n.Kind {
	case yaml.SequenceNode:
		el := tree.NewArray(name)
		for _, item := range n.Content {
			child, err := fromNode(SequenceItemName, item)
			if err != nil {
				return nil, err
			}
			el.AddChild(child)
		}
		return el, nil

	case yaml.MappingNode:
		el := tree.New(name)
		seen := make(map[string]bool, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], resolveAlias(n.Content[i+1])
			if key.Kind != yaml.ScalarNode {
				return nil, errors.Serialization("line %d: mapping keys must be scalars", key.Line)
			}
			if seen[key.Value] {
				return nil, errors.Serialization("line %d: duplicate key %q", key.Line, key.Value)
			}
			seen[key.Value] = true
			switch val.Kind {
			case yaml.ScalarNode:
				switch val.ShortTag() {
				case "!!null":
					continue
				case "!!binary":
					return nil, errors.Serialization("line %d: binary value for %q is not supported", val.Line, key.Value)
				}
				el.AddAttr(key.Value, val.Value)
			default:
				child, err := fromNode(key.Value, val)
				if err != nil {
					return nil, err
				}
				el.AddChild(child)
			}
		}
		return el, nil

	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			return tree.New(name), nil
		}
		return nil, errors.Serialization("line %d: %s must be a mapping or sequence, got scalar %q", n.Line, name, n.Value)
	}
	return nil, errors.Serialization("line %d: unsupported node for %s", n.Line, name)
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}
