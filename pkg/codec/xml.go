package codec

import (
	"bufio"
	"encoding/xml"
	"io"
	"strings"
	"unicode"

	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/tree"
)

// XMLCodec maps elements to tags, attributes to XML attributes and children
// to nested tags. Elements without children are written self-closing.
type XMLCodec struct {
	// Indent is repeated once per nesting level. Empty writes compact output.
	Indent string
}

// Format returns XML.
func (XMLCodec) Format() Format { return XML }

// Encode writes doc as XML.
func (c XMLCodec) Encode(w io.Writer, doc *tree.Element) error {
	if doc == nil {
		return errors.Serialization("document is empty")
	}
	bw := bufio.NewWriter(w)
	if err := c.element(bw, doc, 0); err != nil {
		return err
	}
	if c.Indent != "" {
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func (c XMLCodec) element(w *bufio.Writer, e *tree.Element, depth int) error {
	if err := errors.ValidateName(e.Name); err != nil {
		return errors.Wrap(errors.ErrCodeSerialization, err, "xml element")
	}
	if c.Indent != "" && depth > 0 {
		w.WriteByte('\n')
		w.WriteString(strings.Repeat(c.Indent, depth))
	}
	w.WriteByte('<')
	w.WriteString(e.Name)
	for _, a := range e.Attributes {
		if err := errors.ValidateName(a.Name); err != nil {
			return errors.Wrap(errors.ErrCodeSerialization, err, "xml attribute of <%s>", e.Name)
		}
		if err := checkValue(e, a); err != nil {
			return err
		}
		w.WriteByte(' ')
		w.WriteString(a.Name)
		w.WriteString(`="`)
		if err := xml.EscapeText(w, []byte(a.Value)); err != nil {
			return err
		}
		w.WriteByte('"')
	}
	if len(e.Children) == 0 {
		w.WriteString("/>")
		return nil
	}
	w.WriteByte('>')
	for _, child := range e.Children {
		if err := c.element(w, child, depth+1); err != nil {
			return err
		}
	}
	if c.Indent != "" {
		w.WriteByte('\n')
		w.WriteString(strings.Repeat(c.Indent, depth))
	}
	w.WriteString("</")
	w.WriteString(e.Name)
	w.WriteByte('>')
	return nil
}

// Decode parses an XML document. Namespace declarations are dropped and
// prefixed names keep only their local part. Text content other than
// whitespace is rejected because elements carry data in attributes only.
func (XMLCodec) Decode(r io.Reader) (*tree.Element, error) {
	dec := xml.NewDecoder(r)

	var (
		stack      []*tree.Element
		root       *tree.Element
		rootClosed bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSerialization, err, "parse xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if rootClosed {
				return nil, errors.Serialization("unexpected element <%s> after document end", t.Name.Local)
			}
			el := tree.New(t.Name.Local)
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				el.AddAttr(a.Name.Local, a.Value)
			}
			if len(stack) > 0 {
				stack[len(stack)-1].AddChild(el)
			} else {
				root = el
			}
			stack = append(stack, el)

		case xml.EndElement:
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				rootClosed = true
			}

		case xml.CharData:
			if !isSpace(t) {
				where := "outside the root element"
				if len(stack) > 0 {
					where = "in <" + stack[len(stack)-1].Name + ">"
				}
				return nil, errors.Serialization("unexpected text %s", where)
			}
		}
	}

	if root == nil {
		return nil, errors.Serialization("document is empty")
	}
	return root, nil
}

func isSpace(data []byte) bool {
	for _, r := range string(data) {
		if r != '\uFEFF' && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
