package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/matzehuels/persist/pkg/errors"
	"github.com/matzehuels/persist/pkg/tree"
)

func node(name string, attrs ...string) *tree.Element {
	e := tree.New(name)
	for i := 0; i+1 < len(attrs); i += 2 {
		e.AddAttr(attrs[i], attrs[i+1])
	}
	return e
}

func nodeTree() *tree.Element {
	root := node("Node", "Name", "root")
	root.AddChild(node("Item", "Name", "a"))
	root.AddChild(node("Item", "Name", "b"))
	return root
}

func entriesTree() *tree.Element {
	root := tree.New("Inventory")
	order := root.AddChild(tree.NewArray("Order"))
	order.AddChild(node("Entry", "k", "b", "v", "1"))
	order.AddChild(node("Entry", "k", "a", "v", "2"))
	return root
}

func encode(t *testing.T, c Codec, doc *tree.Element) string {
	t.Helper()
	data, err := Marshal(c, doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return string(data)
}

func TestXMLEncodeCompact(t *testing.T) {
	got := encode(t, XMLCodec{}, nodeTree())
	want := `<Node Name="root"><Item Name="a"/><Item Name="b"/></Node>`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestXMLEncodeIndent(t *testing.T) {
	got := encode(t, XMLCodec{Indent: "  "}, nodeTree())
	want := "<Node Name=\"root\">\n  <Item Name=\"a\"/>\n  <Item Name=\"b\"/>\n</Node>\n"
	if got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
}

func TestXMLEscaping(t *testing.T) {
	doc := node("Note", "Text", `a "quoted" <b> & c`)
	data := encode(t, XMLCodec{}, doc)
	if strings.Contains(data, `"quoted"`) || strings.Contains(data, "<b>") {
		t.Fatalf("attribute not escaped: %s", data)
	}
	back, err := Unmarshal(XMLCodec{}, []byte(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v, _ := back.Attr("Text"); v != `a "quoted" <b> & c` {
		t.Errorf("Text = %q", v)
	}
}

func TestXMLDecode(t *testing.T) {
	input := `<?xml version="1.0"?>
<!-- scene -->
<Node xmlns="urn:x" Name="root">
  <Item Name="a"/>
  <Item Name="b"></Item>
</Node>
`
	got, err := Unmarshal(XMLCodec{}, []byte(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !tree.Equal(got, nodeTree()) {
		t.Errorf("decoded tree differs: %+v", got)
	}
}

func TestXMLDecodeByteOrderMark(t *testing.T) {
	input := "\uFEFF<Node Name=\"root\"><Item Name=\"a\"/><Item Name=\"b\"/></Node>\n"
	got, err := Unmarshal(XMLCodec{}, []byte(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !tree.Equal(got, nodeTree()) {
		t.Errorf("decoded tree differs: %+v", got)
	}
}

func TestXMLDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"text content", `<Node>hello</Node>`},
		{"two roots", `<A/><B/>`},
		{"unclosed", `<Node><Item/>`},
		{"mismatched", `<Node></Item>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(XMLCodec{}, []byte(tt.input))
			if !errors.Is(err, errors.ErrCodeSerialization) {
				t.Errorf("err = %v, want serialization error", err)
			}
		})
	}
}

func TestXMLInvalidNames(t *testing.T) {
	doc := node("Node")
	doc.AddAttr("bad name", "x")
	if _, err := Marshal(XMLCodec{}, doc); !errors.Is(err, errors.ErrCodeSerialization) {
		t.Errorf("err = %v, want serialization error", err)
	}
}

func TestYAMLEncodeEntries(t *testing.T) {
	got := encode(t, YAMLCodec{}, entriesTree())
	want := `Inventory:
  Order:
    - k: b
      v: 1
    - k: a
      v: 2
`
	if got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
}

func TestYAMLAnonymousContainer(t *testing.T) {
	_, err := Marshal(YAMLCodec{}, nodeTree())
	if !errors.Is(err, errors.ErrCodeSerialization) {
		t.Fatalf("err = %v, want serialization error", err)
	}
	if !strings.Contains(err.Error(), "cannot serialize anonymous containers") {
		t.Errorf("err = %v", err)
	}
	if _, err := Marshal(JSONCodec{}, nodeTree()); !errors.Is(err, errors.ErrCodeSerialization) {
		t.Errorf("json err = %v, want serialization error", err)
	}
}

func TestYAMLSameNameChildrenBecomeSequence(t *testing.T) {
	root := tree.New("List")
	root.AddChild(node("Item", "value", "1"))
	root.AddChild(node("Item", "value", "2"))

	got := encode(t, YAMLCodec{}, root)
	want := "List:\n  - value: 1\n  - value: 2\n"
	if got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
}

func TestYAMLDecode(t *testing.T) {
	input := `
Inventory:
  Order:
    - &first
      k: b
      v: 1
    - k: a
      v: 2
  Missing: ~
  Alias: *first
`
	got, err := Unmarshal(YAMLCodec{}, []byte(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	order := got.Child("Order")
	if order == nil || !order.IsArray || len(order.Children) != 2 {
		t.Fatalf("Order = %+v", order)
	}
	if order.Children[0].Name != SequenceItemName {
		t.Errorf("item name = %q", order.Children[0].Name)
	}
	if k, _ := order.Children[1].Attr("k"); k != "a" {
		t.Errorf("second key = %q", k)
	}
	if got.HasAttr("Missing") {
		t.Error("null value should be absent")
	}
	alias := got.Child("Alias")
	if alias == nil {
		t.Fatal("alias not followed")
	}
	if k, _ := alias.Attr("k"); k != "b" {
		t.Errorf("alias key = %q", k)
	}
}

func TestYAMLDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"two roots", "A: {}\nB: {}\n"},
		{"scalar root", "hello\n"},
		{"scalar body", "A: hello\n"},
		{"malformed", "A: [\n"},
		{"duplicate value", "A:\n  V: 1\n  V: 2\n"},
		{"duplicate child", "A:\n  B: {X: 1}\n  B: {X: 2}\n"},
		{"value shadows child", "A:\n  B: 1\n  B: {X: 2}\n"},
		{"binary value", "A:\n  V: !!binary Yf9i\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(YAMLCodec{}, []byte(tt.input))
			if !errors.Is(err, errors.ErrCodeSerialization) {
				t.Errorf("err = %v, want serialization error", err)
			}
		})
	}
}

func TestYAMLQuotesNullLikeValues(t *testing.T) {
	doc := node("Note", "Empty", "", "Tilde", "~")
	data := encode(t, YAMLCodec{}, doc)
	back, err := Unmarshal(YAMLCodec{}, []byte(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !tree.Equal(back, doc) {
		t.Errorf("round trip lost values:\n%s", data)
	}
}

func TestJSONEncode(t *testing.T) {
	got := encode(t, JSONCodec{}, entriesTree())
	want := `{"Inventory":{"Order":[{"k":"b","v":"1"},{"k":"a","v":"2"}]}}` + "\n"
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestJSONDecode(t *testing.T) {
	input := "{\n\t\"Inventory\": {\"Order\": [{\"k\": \"b\", \"v\": 1}, {\"k\": \"a\", \"v\": 2.5}], \"Flag\": true, \"Gone\": null}\n}"
	got, err := Unmarshal(JSONCodec{}, []byte(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v, _ := got.Attr("Flag"); v != "true" {
		t.Errorf("Flag = %q", v)
	}
	if got.HasAttr("Gone") {
		t.Error("null value should be absent")
	}
	order := got.Child("Order")
	if order == nil || !order.IsArray || len(order.Children) != 2 {
		t.Fatalf("Order = %+v", order)
	}
	if v, _ := order.Children[1].Attr("v"); v != "2.5" {
		t.Errorf("v = %q", v)
	}
}

func TestJSONDecodeErrors(t *testing.T) {
	for _, input := range []string{"", "{", `{"A":{}, "B":{}}`, `["x"]`, `{"A":{"k":"1","k":"2"}}`} {
		if _, err := Unmarshal(JSONCodec{}, []byte(input)); !errors.Is(err, errors.ErrCodeSerialization) {
			t.Errorf("Decode(%q) err = %v, want serialization error", input, err)
		}
	}
}

func TestInvalidUTF8Rejected(t *testing.T) {
	for _, c := range []Codec{XMLCodec{}, YAMLCodec{}, JSONCodec{}} {
		t.Run(string(c.Format()), func(t *testing.T) {
			doc := node("S", "Name", "a\xffb")
			if _, err := Marshal(c, doc); !errors.Is(err, errors.ErrCodeSerialization) {
				t.Errorf("err = %v, want serialization error", err)
			}
		})
	}
}

func TestRoundTripAllFormats(t *testing.T) {
	doc := tree.New("Library")
	doc.AddAttr("Default", "2")
	mats := doc.AddChild(tree.NewArray("Materials"))
	mats.AddChild(node("Item", "Name", "steel & <iron>", "id", "2"))
	mats.AddChild(node("Item", "Name", "ünïcode"))
	doc.AddChild(tree.NewArray("Empty"))

	for _, f := range Formats() {
		t.Run(string(f), func(t *testing.T) {
			c, err := Lookup(string(f))
			if err != nil {
				t.Fatal(err)
			}
			data := encode(t, c, doc)
			back, err := Unmarshal(c, []byte(data))
			if err != nil {
				t.Fatalf("Decode: %v\n%s", err, data)
			}
			got := back.Child("Materials")
			if got == nil || len(got.Children) != 2 {
				t.Fatalf("Materials = %+v\n%s", got, data)
			}
			if v, _ := got.Children[0].Attr("Name"); v != "steel & <iron>" {
				t.Errorf("Name = %q", v)
			}
			if v, _ := got.Children[1].Attr("Name"); v != "ünïcode" {
				t.Errorf("Name = %q", v)
			}
			if back.Child("Empty") == nil {
				t.Errorf("empty container lost\n%s", data)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"xml", XML},
		{"YAML", YAML},
		{"yml", YAML},
		{".json", JSON},
	}
	for _, tt := range tests {
		c, err := Lookup(tt.in)
		if err != nil {
			t.Errorf("Lookup(%q): %v", tt.in, err)
			continue
		}
		if c.Format() != tt.want {
			t.Errorf("Lookup(%q) = %s, want %s", tt.in, c.Format(), tt.want)
		}
	}
	if _, err := Lookup("toml"); !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("Lookup(toml) err = %v", err)
	}
}

func TestForPath(t *testing.T) {
	c, err := ForPath("scene/level.yml")
	if err != nil || c.Format() != YAML {
		t.Errorf("ForPath = %v, %v", c, err)
	}
	if _, err := ForPath("README"); err == nil {
		t.Error("expected error for path without extension")
	}
}

func TestWithIndent(t *testing.T) {
	c := WithIndent(JSONCodec{}, "\t")
	var buf bytes.Buffer
	if err := c.Encode(&buf, node("A", "x", "1")); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "{\n\t\"A\": {\n\t\t\"x\": \"1\"\n\t}\n}\n" {
		t.Errorf("got %q", buf.String())
	}
	if WithIndent(YAMLCodec{}, "    ").Format() != YAML {
		t.Error("yaml codec changed")
	}
}
