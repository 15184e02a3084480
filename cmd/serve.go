package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/djbridge/internal/bridge"
	"github.com/conneroisu/djbridge/internal/config"
	"github.com/conneroisu/djbridge/internal/devserver"
	"github.com/conneroisu/djbridge/internal/logging"
	"github.com/conneroisu/djbridge/internal/plugins"
)

var serveCmd = &cobra.Command{
	Use:     "serve [entry...]",
	Aliases: []string{"s"},
	Short:   "Start the dev server for a Django project",
	Long: `Start the front-end dev server.

The Django settings are fetched once at startup. When the server is listening
its URL is written to the hot file, and the file is removed again on SIGINT,
SIGTERM or SIGHUP.

Examples:
  djbridge serve src/main.js              # One entry point
  djbridge serve src/main.js src/admin.js # Several entry points
  djbridge serve --reload '\.(html|py|txt)$' src/main.js`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// On a termination signal the hot file is removed first, then the
	// server shuts down gracefully.
	state := bridge.NewProcessState(bridge.WithExitFunc(func(code int) {
		logger.Info(ctx, "Shutting down", "exit_code", code)
		cancel()
	}))
	defer state.Cleanup()

	srv, err := newDevServer(ctx, cfg, args, logger, state, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	return srv.Start(ctx)
}

// newDevServer wires the bridge plugins into a plugin manager, resolves the
// host configuration for serve and creates the dev server.
func newDevServer(
	ctx context.Context,
	cfg *config.Config,
	entries []string,
	logger logging.Logger,
	state *bridge.ProcessState,
	banner io.Writer,
) (*devserver.Server, error) {
	manager, err := setupPlugins(ctx, cfg, entries, logger, bridge.WithProcessState(state), bridge.WithBannerWriter(banner))
	if err != nil {
		return nil, err
	}

	resolved, err := manager.ResolveConfig(cfg.HostConfig(), plugins.ConfigEnv{
		Command: plugins.CommandServe,
		Mode:    "development",
	})
	if err != nil {
		return nil, err
	}

	return devserver.New(resolved, manager, logger)
}

// setupPlugins builds the bridge plugins from the configuration and
// registers them with a new manager.
func setupPlugins(
	ctx context.Context,
	cfg *config.Config,
	entries []string,
	logger logging.Logger,
	extra ...bridge.Option,
) (*plugins.Manager, error) {
	opts, err := cfg.BridgeOptions(entries...)
	if err != nil {
		return nil, err
	}

	bridgeOpts := append(bridgeOptions(cfg, logger), extra...)
	ps, err := bridge.New(ctx, opts, bridgeOpts...)
	if err != nil {
		return nil, err
	}

	manager := plugins.NewManager(logger)
	if err := manager.Register(ps...); err != nil {
		return nil, err
	}

	return manager, nil
}

// bridgeOptions are the options every command passes to the bridge.
func bridgeOptions(cfg *config.Config, logger logging.Logger) []bridge.Option {
	opts := []bridge.Option{
		bridge.WithLogger(logger),
		bridge.WithRunner(bridge.CommandRunner{Command: cfg.Bridge.BackendCommand}),
	}
	if cfg.Bridge.AliasDir != "" {
		opts = append(opts, bridge.WithAliasDir(cfg.Bridge.AliasDir))
	}
	return opts
}
