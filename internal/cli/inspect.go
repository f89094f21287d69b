package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"

	"github.com/matzehuels/persist/pkg/codec"
	"github.com/matzehuels/persist/pkg/schema"
	ptree "github.com/matzehuels/persist/pkg/tree"
)

// inspectCommand creates the inspect command.
func (c *CLI) inspectCommand() *cobra.Command {
	var (
		from  string
		depth int
	)

	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Print a document's element tree",
		Long: `Print a document's element tree with its attributes, followed by a
summary of shared instances and references. References whose id is not
defined in the document are reported as dangling.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			input, err := readInput(cmd, path)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			cd, err := detectCodec(sourceFormat(from, path), input)
			if err != nil {
				return err
			}
			doc, err := codec.Unmarshal(cd, input)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, elementTree(doc, depth))
			fmt.Fprintln(out)

			st := summarize(doc)
			printKeyValue(out, "format", string(cd.Format()))
			printKeyValue(out, "elements", strconv.Itoa(st.elements))
			printKeyValue(out, "depth", strconv.Itoa(st.depth))
			printKeyValue(out, "shared", strconv.Itoa(st.ids))
			printKeyValue(out, "references", strconv.Itoa(st.refs))
			if len(st.dangling) > 0 {
				printWarning(cmd.ErrOrStderr(), "Dangling references: %s", strings.Join(st.dangling, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&from, "from", "f", "", "source format (default: from extension or content)")
	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "maximum depth to print (0 = unlimited)")

	return cmd
}

// elementTree renders doc as a lipgloss tree. Children of elements at
// maxDepth are collapsed into a count.
func elementTree(doc *ptree.Element, maxDepth int) *tree.Tree {
	var build func(e *ptree.Element, depth int) *tree.Tree
	build = func(e *ptree.Element, depth int) *tree.Tree {
		t := tree.Root(elementLabel(e))
		if maxDepth > 0 && depth >= maxDepth && len(e.Children) > 0 {
			return t.Child(StyleDim.Render(fmt.Sprintf("… %d more", e.Count()-1)))
		}
		for _, child := range e.Children {
			if len(child.Children) == 0 {
				t.Child(elementLabel(child))
				continue
			}
			t.Child(build(child, depth+1))
		}
		return t
	}
	return build(doc, 0).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(StyleDim)
}

func elementLabel(e *ptree.Element) string {
	var b strings.Builder
	b.WriteString(styleElement.Render(e.Name))
	if e.IsArray {
		b.WriteString(StyleDim.Render("[]"))
	}
	for _, a := range e.Attributes {
		b.WriteByte(' ')
		switch a.Name {
		case schema.RefAttr:
			b.WriteString(styleRef.Render("→ #" + a.Value))
		case schema.IDAttr:
			b.WriteString(styleRef.Render("#" + a.Value))
		default:
			b.WriteString(styleAttrKey.Render(a.Name+"=") + StyleValue.Render(strconv.Quote(a.Value)))
		}
	}
	return b.String()
}

type docStats struct {
	elements int
	depth    int
	ids      int
	refs     int
	dangling []string
}

func summarize(doc *ptree.Element) docStats {
	var st docStats
	ids := make(map[string]bool)
	var refs []string
	doc.Walk(func(e *ptree.Element, depth int) bool {
		st.elements++
		st.depth = max(st.depth, depth+1)
		if id, ok := e.Attr(schema.IDAttr); ok {
			ids[id] = true
		}
		if ref, ok := e.Attr(schema.RefAttr); ok {
			refs = append(refs, ref)
		}
		return ptree.Continue
	})
	st.ids = len(ids)
	st.refs = len(refs)
	for _, r := range refs {
		if !ids[r] {
			st.dangling = append(st.dangling, "#"+r)
		}
	}
	return st
}
