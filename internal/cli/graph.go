package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/persist/pkg/convert"
	"github.com/matzehuels/persist/pkg/render/nodelink"
)

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		from    string
		format  string
		output  string
		opts    nodelink.Options
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "graph [file]",
		Short: "Render a document as a node-link diagram",
		Long: `Render a document's element tree as a Graphviz diagram. Containment is
drawn with solid edges and references with dashed edges, so shared
instances show up as nodes with several incoming arrows.`,
		Example: `  persist graph level.xml -o level.svg
  persist graph level.yaml --format dot --detailed`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			input, err := readInput(cmd, path)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			if format == "" {
				format = "svg"
				if ext := strings.TrimPrefix(filepath.Ext(output), "."); ext == "dot" || ext == "gv" {
					format = "dot"
				}
			}

			runner, err := c.newRunner(ctx, noCache)
			if err != nil {
				return err
			}
			defer runner.Cache.Close()

			toFile := output != "" && output != "-"
			var spinner *Spinner
			if toFile {
				spinner = newSpinnerWithContext(ctx, cmd.ErrOrStderr(), "Rendering graph...")
				spinner.Start()
			}
			data, err := runner.Graph(ctx, input, convert.GraphOptions{
				From:    sourceFormat(from, path),
				Format:  format,
				Options: opts,
			})
			if spinner != nil {
				if err != nil {
					spinner.StopWithError("Rendering failed")
				} else {
					spinner.Stop()
				}
			}
			if err != nil {
				return err
			}

			if err := writeOutput(cmd, output, data); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			if toFile {
				printSuccess(cmd.ErrOrStderr(), "Rendered %s", format)
				printFile(cmd.ErrOrStderr(), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&from, "from", "f", "", "source format (default: from extension or content)")
	cmd.Flags().StringVar(&format, "format", "", "output format: svg, dot (default: from --output or svg)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&opts.Detailed, "detailed", false, "show every attribute in node labels")
	cmd.Flags().BoolVar(&opts.GuessReferences, "guess", false, "draw edges for attributes that match an id")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the render cache")

	return cmd
}
