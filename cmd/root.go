// Package cmd provides the djbridge command-line interface.
//
// Configuration System:
//
//	Settings are read from several sources, highest priority first:
//	1. Command-line flags (--port, --reload, etc.)
//	2. Individual environment variables (DJBRIDGE_SERVER_PORT, etc.)
//	3. The configuration file: --config, else DJBRIDGE_CONFIG_FILE, else
//	   .djbridge.yml in the working directory
//
// Environment Variables:
//
//	DJBRIDGE_CONFIG_FILE: Path to a custom configuration file
//	DJBRIDGE_SERVER_PORT: Override the dev server port
//	DJBRIDGE_BRIDGE_RELOAD: true, false, or a pattern over changed paths
//	And the rest following the DJBRIDGE_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/djbridge/internal/config"
	"github.com/conneroisu/djbridge/internal/errors"
	"github.com/conneroisu/djbridge/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "djbridge",
	Short: "Serve front-end assets for a Django project during development",
	Long: `djbridge runs a front-end dev server next to a Django project.

It asks the Django side for its settings (through "manage.py djbridge"),
configures the dev server from them, writes the hot file Django reads to find
the dev server, and reloads the browser when templates or Python files change.

Quick Start:
  djbridge serve src/main.js      Start the dev server for an entry point
  djbridge config --mode build    Show the resolved build configuration
  djbridge aliases --write        Write jsconfig.djbridge.json for editors`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command, runs it and returns
// the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	return handleError(rootCmd.Context(), rootCmd.ErrOrStderr(), err)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .djbridge.yml, can also use DJBRIDGE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	addBridgeFlags(rootCmd.PersistentFlags())
	addServerFlags(rootCmd.PersistentFlags())
}

// initConfig selects the configuration file and enables DJBRIDGE_ environment
// overrides. A missing file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("DJBRIDGE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".djbridge")
	}

	viper.SetEnvPrefix("DJBRIDGE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the configuration and builds the logger it describes.
func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		cfgErr := errors.NewConfigError(errors.ErrCodeConfigInvalid, "failed to load configuration")
		cfgErr.Cause = err
		return nil, nil, cfgErr
	}

	lc, err := cfg.LoggerConfig()
	if err != nil {
		return nil, nil, err
	}
	lc.Component = "djbridge"

	return cfg, logging.NewLogger(lc), nil
}
