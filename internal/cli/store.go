package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/persist/pkg/codec"
	"github.com/matzehuels/persist/pkg/convert"
	"github.com/matzehuels/persist/pkg/store"
)

// storeCommand creates the asset store command.
func (c *CLI) storeCommand() *cobra.Command {
	var backend, dsn string

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage stored assets",
		Long: `Put, get, list and remove documents in the asset store.

The backend comes from the [store] section of the config file and defaults
to a directory under $XDG_DATA_HOME/persist. --backend and --dsn override it.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if backend != "" {
				c.Config.Store.Backend = backend
			}
			if dsn != "" {
				c.Config.Store.DSN = dsn
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&backend, "backend", "", "store backend: memory, file, sqlite, mongo")
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "directory, database path or URI for the backend")

	cmd.AddCommand(c.storePutCommand())
	cmd.AddCommand(c.storeGetCommand())
	cmd.AddCommand(c.storeListCommand())
	cmd.AddCommand(c.storeRemoveCommand())

	return cmd
}

// storePutCommand creates the "store put" subcommand.
func (c *CLI) storePutCommand() *cobra.Command {
	var from, rev string

	cmd := &cobra.Command{
		Use:   "put <key> [file]",
		Short: "Store a document under a key",
		Long: `Store a document under a key. The document must parse in its format.
With --rev the write only succeeds if the stored revision still matches.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := ""
			if len(args) == 2 {
				path = args[1]
			}
			data, err := readInput(cmd, path)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			cd, err := detectCodec(sourceFormat(from, path), data)
			if err != nil {
				return err
			}
			if _, err := codec.Unmarshal(cd, data); err != nil {
				return err
			}

			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			doc, err := st.Put(ctx, &store.Document{Key: args[0], Format: string(cd.Format()), Data: data, Revision: rev})
			if err != nil {
				return err
			}
			w := cmd.ErrOrStderr()
			printSuccess(w, "Stored %s", doc.Key)
			printDetail(w, "revision %s", doc.Revision)
			return nil
		},
	}

	cmd.Flags().StringVarP(&from, "from", "f", "", "document format (default: from extension or content)")
	cmd.Flags().StringVar(&rev, "rev", "", "expected current revision")

	return cmd
}

// storeGetCommand creates the "store get" subcommand.
func (c *CLI) storeGetCommand() *cobra.Command {
	var to, output string

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a stored document",
		Long:  `Print a stored document, optionally converted with --to.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			doc, err := st.Get(ctx, args[0])
			if err != nil {
				return err
			}
			data := doc.Data
			if to != "" && to != doc.Format {
				src, err := codec.Lookup(doc.Format)
				if err != nil {
					return err
				}
				dst, err := codec.Lookup(to)
				if err != nil {
					return err
				}
				el, err := codec.Unmarshal(src, data)
				if err != nil {
					return err
				}
				if data, err = codec.Marshal(dst, el); err != nil {
					return err
				}
			}
			return writeOutput(cmd, output, data)
		},
	}

	cmd.Flags().StringVarP(&to, "to", "t", "", "convert to this format")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	return cmd
}

// storeListCommand creates the "store ls" subcommand.
func (c *CLI) storeListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ls [prefix]",
		Aliases: []string{"list"},
		Short:   "List stored documents",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			infos, err := st.List(ctx, prefix)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				printInfo(cmd.ErrOrStderr(), "No assets")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), assetTable(infos))
			return nil
		},
	}
}

// storeRemoveCommand creates the "store rm" subcommand.
func (c *CLI) storeRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <key>...",
		Aliases: []string{"delete"},
		Short:   "Remove stored documents",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			for _, key := range args {
				if err := st.Delete(ctx, key); err != nil {
					return err
				}
				printSuccess(cmd.ErrOrStderr(), "Removed %s", key)
			}
			return nil
		},
	}
}

func assetTable(infos []store.Info) *table.Table {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.Key,
			info.Format,
			strconv.Itoa(info.Size),
			info.Revision,
			info.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Key", "Format", "Size", "Revision", "Updated").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle.Padding(0, 1)
			}
			if col == 0 {
				return StyleValue.Padding(0, 1)
			}
			return StyleDim.Padding(0, 1)
		})
}

// detectCodec returns the codec for name, or sniffs data when name is empty.
func detectCodec(name string, data []byte) (codec.Codec, error) {
	if name == "" {
		name = string(convert.Detect(data))
	}
	return codec.Lookup(name)
}
