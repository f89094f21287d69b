package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/persist/pkg/buildinfo"
	"github.com/matzehuels/persist/pkg/cache"
	"github.com/matzehuels/persist/pkg/codec"
	"github.com/matzehuels/persist/pkg/convert"
	"github.com/matzehuels/persist/pkg/store"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "persist"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Config Config

	configFile string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Config: defaultConfig(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Persist converts, inspects and stores object archives",
		Long:         `Persist works with documents written by reflection-driven object archives: it converts them between XML, YAML and JSON, draws their object graphs, and keeps them in an asset store.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.loadConfig(); err != nil {
				return err
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/persist/config.toml)")

	root.AddCommand(c.convertCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.storeCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

func (c *CLI) loadConfig() error {
	path := c.configFile
	if path == "" {
		var err error
		if path, err = configPath(); err != nil {
			return nil
		}
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	c.Config = cfg
	return nil
}

// =============================================================================
// Runner and Store Factories
// =============================================================================

// newRunner creates a conversion runner for CLI use. The caller closes the
// runner's cache.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*convert.Runner, error) {
	ch, err := c.newCache(ctx, noCache)
	if err != nil {
		return nil, err
	}
	return convert.NewRunner(ch, nil, loggerFromContext(ctx)), nil
}

func (c *CLI) newCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	if c.Config.Cache.Redis.Addr != "" {
		return cache.NewRedisCache(ctx, c.Config.Cache.Redis)
	}
	dir := c.Config.Cache.Dir
	if dir == "" {
		var err error
		if dir, err = cacheDir(); err != nil {
			return cache.NewNullCache(), nil
		}
	}
	return cache.NewFileCache(dir)
}

// openStore opens the configured asset store. The file backend defaults to
// the user's data directory.
func (c *CLI) openStore(ctx context.Context) (store.Store, error) {
	cfg := c.Config.Store
	if (cfg.Backend == "" || cfg.Backend == "file") && cfg.DSN == "" {
		dir, err := dataDir()
		if err != nil {
			return nil, fmt.Errorf("get data dir: %w", err)
		}
		cfg.Backend, cfg.DSN = "file", dir
	}
	return store.Open(ctx, cfg)
}

// =============================================================================
// Format Helpers
// =============================================================================

// targetFormat resolves the output format from a flag, an output path and
// the configured default, in that order.
func (c *CLI) targetFormat(flag, output string) (codec.Format, error) {
	if flag != "" {
		cd, err := codec.Lookup(flag)
		if err != nil {
			return "", err
		}
		return cd.Format(), nil
	}
	if output != "" && output != "-" {
		if cd, err := codec.ForPath(output); err == nil {
			return cd.Format(), nil
		}
	}
	cd, err := codec.Lookup(c.Config.Format)
	if err != nil {
		return "", err
	}
	return cd.Format(), nil
}

// sourceFormat returns the format implied by a file name, or "" to detect.
func sourceFormat(flag, path string) string {
	if flag != "" || path == "" || path == "-" {
		return flag
	}
	if cd, err := codec.ForPath(path); err == nil {
		return string(cd.Format())
	}
	return ""
}

// readInput reads a file, or stdin for "" and "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// writeOutput writes data to a file, or stdout for "" and "-".
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// swapExt replaces the extension of path with the format's.
func swapExt(path string, f codec.Format) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + string(f)
}
