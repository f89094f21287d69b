package codec

import (
	"bytes"
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/tree"
)

// JSONCodec uses the same shape as [YAMLCodec]: objects for mappings,
// arrays for sequences and strings for every value. Key order follows the
// document.
type JSONCodec struct {
	// Indent is repeated once per nesting level. Empty writes compact output.
	Indent string
}

// Format returns JSON.
func (JSONCodec) Format() Format { return JSON }

// Encode writes doc as JSON.
func (c JSONCodec) Encode(w io.Writer, doc *tree.Element) error {
	root, err := documentNode(doc)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := emitJSON(&buf, root.Content[0]); err != nil {
		return err
	}
	if c.Indent != "" {
		var out bytes.Buffer
		if err := json.Indent(&out, buf.Bytes(), "", c.Indent); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "indent json")
		}
		buf = out
	}
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return err
}

func emitJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := emitJSON(buf, n.Content[i]); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := emitJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := emitJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		b, err := json.Marshal(n.Value)
		if err != nil {
			return errors.Wrap(errors.ErrCodeSerialization, err, "encode json string")
		}
		buf.Write(b)
	default:
		return errors.New(errors.ErrCodeInternal, "unexpected yaml node kind %d", n.Kind)
	}
	return nil
}

// Decode parses a JSON document. Numbers and booleans are read as their
// literal text and null values are treated as absent.
func (JSONCodec) Decode(r io.Reader) (*tree.Element, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, err, "read json")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.Serialization("document is empty")
	}
	if !json.Valid(data) {
		return nil, errors.Serialization("invalid json")
	}
	// JSON is a subset of YAML, so both codecs share one node reader.
	// Re-indenting with spaces drops tabs, which YAML rejects as indentation.
	var spaced bytes.Buffer
	if err := json.Indent(&spaced, data, "", " "); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, err, "parse json")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(spaced.Bytes(), &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, err, "parse json")
	}
	return fromDocument(&doc)
}
