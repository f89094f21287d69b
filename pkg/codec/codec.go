package codec

import (
	"bytes"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/tree"
)

// Format identifies a text encoding.
type Format string

// Supported formats.
const (
	XML  Format = "xml"
	YAML Format = "yaml"
	JSON Format = "json"
)

// SequenceItemName names the children of sequences decoded from formats
// whose lists carry no element names (YAML and JSON).
const SequenceItemName = "Item"

// Codec converts between element trees and one text format.
// Codecs hold no state between calls and are safe for concurrent use.
type Codec interface {
	Format() Format
	Encode(w io.Writer, doc *tree.Element) error
	Decode(r io.Reader) (*tree.Element, error)
}

var codecs = map[Format]Codec{
	XML:  XMLCodec{},
	YAML: YAMLCodec{},
	JSON: JSONCodec{Indent: "  "},
}

// Lookup returns the default codec for a format name. Names are case
// insensitive and "yml" is accepted for YAML.
func Lookup(name string) (Codec, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(name, ".")))
	if f == "yml" {
		f = YAML
	}
	c, ok := codecs[f]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unknown format %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return c, nil
}

// ForPath returns the codec matching the extension of path.
func ForPath(path string) (Codec, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "cannot infer format of %q: no extension", path)
	}
	return Lookup(ext)
}

// Formats returns the supported formats in name order.
func Formats() []Format {
	out := make([]Format, 0, len(codecs))
	for f := range codecs {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Names returns the supported format names in order.
func Names() []string {
	var out []string
	for _, f := range Formats() {
		out = append(out, string(f))
	}
	return out
}

// Marshal encodes doc into a byte slice.
func Marshal(c Codec, doc *tree.Element) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a document from data.
func Unmarshal(c Codec, data []byte) (*tree.Element, error) {
	return c.Decode(bytes.NewReader(data))
}

// WithIndent returns a copy of c using indent for nested levels.
// YAML always indents and is returned unchanged.
func WithIndent(c Codec, indent string) Codec {
	switch c := c.(type) {
	case XMLCodec:
		c.Indent = indent
		return c
	case JSONCodec:
		c.Indent = indent
		return c
	}
	return c
}

// checkValue rejects attribute values that would not survive encoding:
// XML and JSON replace invalid UTF-8 and YAML turns it into a binary scalar.
func checkValue(e *tree.Element, a tree.Attribute) error {
	if !utf8.ValidString(a.Value) {
		return errors.Serialization("value of %s in <%s> is not valid UTF-8", a.Name, e.Name)
	}
	return nil
}
