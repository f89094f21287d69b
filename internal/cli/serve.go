package cli

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/matzehuels/persist/internal/server"
	"github.com/matzehuels/persist/pkg/cache"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr    string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversion and asset HTTP API",
		Long: `Serve the HTTP API until interrupted. The asset store and the cache
come from the config file.

Routes:
  GET    /healthz
  POST   /convert/{from}/{to}
  POST   /graph/{format}
  GET    /assets?prefix=...
  GET    /assets/{key}
  PUT    /assets/{key}?format=...
  DELETE /assets/{key}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = c.Config.Server.Addr
			}

			runner, err := c.newRunner(ctx, noCache)
			if err != nil {
				return err
			}
			defer runner.Cache.Close()
			runner.Keyer = cache.NewScopedKeyer(runner.Keyer, "server:")

			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			logger := loggerFromContext(ctx)
			logger.Info("asset store ready", "backend", c.Config.Store.Backend)

			err = server.New(runner, st, logger).ListenAndServe(ctx, addr)
			if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the conversion cache")

	return cmd
}
