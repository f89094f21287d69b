package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/persist/pkg/convert"
)

type convertOptions struct {
	from     string
	to       string
	indent   string
	output   string
	outDir   string
	parallel int
	noCache  bool
	refresh  bool
}

// convertCommand creates the convert command.
func (c *CLI) convertCommand() *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert [file...]",
		Short: "Convert documents between XML, YAML and JSON",
		Long: `Convert documents between XML, YAML and JSON.

With no file or "-", the document is read from stdin. A single input is
written to --output (default stdout). Several inputs are converted in
parallel and written next to their source, or into --out-dir, with the
target format's extension.`,
		Example: `  persist convert level.xml --to yaml
  persist convert level.xml -o level.json
  cat level.yaml | persist convert --to xml
  persist convert levels/*.xml --to json --out-dir build/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) <= 1 {
				path := ""
				if len(args) == 1 {
					path = args[0]
				}
				return c.convertOne(cmd, path, opts)
			}
			return c.convertMany(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.from, "from", "f", "", "source format (default: from extension or content)")
	cmd.Flags().StringVarP(&opts.to, "to", "t", "", "target format: xml, yaml, json (default: from --output or config)")
	cmd.Flags().StringVar(&opts.indent, "indent", "", "indentation for XML and JSON output")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (single input only)")
	cmd.Flags().StringVar(&opts.outDir, "out-dir", "", "output directory (several inputs)")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 4, "concurrent conversions")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the conversion cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "ignore cached results")

	return cmd
}

func (c *CLI) runOptions(from, path string, opts convertOptions, output string) (convert.Options, error) {
	to, err := c.targetFormat(opts.to, output)
	if err != nil {
		return convert.Options{}, err
	}
	indent := opts.indent
	if indent == "" {
		indent = c.Config.Indent
	}
	return convert.Options{
		From:    sourceFormat(from, path),
		To:      string(to),
		Indent:  indent,
		Refresh: opts.refresh,
	}, nil
}

func (c *CLI) convertOne(cmd *cobra.Command, path string, opts convertOptions) error {
	ctx := cmd.Context()
	input, err := readInput(cmd, path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	runOpts, err := c.runOptions(opts.from, path, opts, opts.output)
	if err != nil {
		return err
	}

	runner, err := c.newRunner(ctx, opts.noCache)
	if err != nil {
		return err
	}
	defer runner.Cache.Close()

	res, err := runner.Convert(ctx, input, runOpts)
	if err != nil {
		return err
	}
	if err := writeOutput(cmd, opts.output, res.Data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if opts.output != "" && opts.output != "-" {
		w := cmd.ErrOrStderr()
		printSuccess(w, "Converted %s to %s", res.From, res.To)
		printFile(w, opts.output)
		printStats(w, res.Elements, res.CacheHit)
	}
	return nil
}

func (c *CLI) convertMany(cmd *cobra.Command, paths []string, opts convertOptions) error {
	ctx := cmd.Context()
	if opts.output != "" {
		return fmt.Errorf("--output takes a single input; use --out-dir for %d files", len(paths))
	}

	jobs := make([]convert.Job, 0, len(paths))
	for _, path := range paths {
		input, err := readInput(cmd, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		runOpts, err := c.runOptions(opts.from, path, opts, "")
		if err != nil {
			return err
		}
		jobs = append(jobs, convert.Job{Name: path, Input: input, Options: runOpts})
	}

	runner, err := c.newRunner(ctx, opts.noCache)
	if err != nil {
		return err
	}
	defer runner.Cache.Close()

	prog := newProgress(loggerFromContext(ctx))
	results, err := runner.ConvertAll(ctx, jobs, opts.parallel)
	if err != nil {
		return err
	}

	w := cmd.ErrOrStderr()
	cached := 0
	for i, res := range results {
		out := swapExt(jobs[i].Name, res.To)
		if opts.outDir != "" {
			out = filepath.Join(opts.outDir, filepath.Base(out))
		}
		if out == jobs[i].Name {
			printWarning(w, "Skipped %s: source and target are the same file", out)
			continue
		}
		if err := writeOutput(cmd, out, res.Data); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		printFile(w, out)
		if res.CacheHit {
			cached++
		}
	}
	prog.done(fmt.Sprintf("Converted %d documents, %d from cache", len(results), cached))
	return nil
}
