package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/djbridge/internal/bridge"
	"github.com/conneroisu/djbridge/internal/plugins"
)

var (
	configMode string
	configShow string
)

var configCmd = &cobra.Command{
	Use:   "config [entry...]",
	Short: "Print the resolved configuration as YAML",
	Long: `Print the configuration the dev server or a production build would use.

--show host prints the host configuration after the bridge's config hooks
have run; --show bridge prints the bridge settings merged with what Django
reported.

Examples:
  djbridge config src/main.js               # Dev server configuration
  djbridge config --mode build src/main.js  # Build configuration
  djbridge config --show bridge src/main.js # Bridge settings`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().StringVar(&configMode, "mode", string(plugins.CommandServe), "host command to resolve for (serve, build)")
	configCmd.Flags().StringVar(&configShow, "show", "host", "what to print (host, bridge)")
}

func runConfig(cmd *cobra.Command, args []string) error {
	command := plugins.Command(configMode)
	if command != plugins.CommandServe && command != plugins.CommandBuild {
		return fmt.Errorf("unsupported mode: %s (supported: serve, build)", configMode)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	switch configShow {
	case "host":
		manager, err := setupPlugins(cmd.Context(), cfg, args, logger)
		if err != nil {
			return err
		}
		mode := "development"
		if command == plugins.CommandBuild {
			mode = "production"
		}
		resolved, err := manager.ResolveConfig(cfg.HostConfig(), plugins.ConfigEnv{Command: command, Mode: mode})
		if err != nil {
			return err
		}
		return writeYAML(cmd.OutOrStdout(), resolved)

	case "bridge":
		opts, err := cfg.BridgeOptions(args...)
		if err != nil {
			return err
		}
		resolved, err := bridge.Load(cmd.Context(), opts, bridgeOptions(cfg, logger)...)
		if err != nil {
			return err
		}
		return writeYAML(cmd.OutOrStdout(), resolved.Snapshot())

	default:
		return fmt.Errorf("unsupported value for --show: %s (supported: host, bridge)", configShow)
	}
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
