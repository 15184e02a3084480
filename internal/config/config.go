// Package config loads the djbridge configuration with Viper from
// .djbridge.yml, DJBRIDGE_ environment variables and command-line flags.
//
// The configuration has three sections: server (the dev server listener and
// its advertised origin), bridge (entry points, reload and backend settings)
// and log. Load applies defaults for anything left unset and validates the
// result; the converters turn it into the inputs of the bridge and the dev
// server host.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/djbridge/internal/bridge"
	"github.com/conneroisu/djbridge/internal/logging"
	"github.com/conneroisu/djbridge/internal/plugins"
)

// Defaults for values left unset.
const (
	DefaultHost      = plugins.DefaultHost
	DefaultPort      = plugins.DefaultPort
	DefaultReload    = "true"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Bridge BridgeConfig `mapstructure:"bridge" yaml:"bridge"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	Origin         string   `mapstructure:"origin" yaml:"origin,omitempty"`
	PublicHost     string   `mapstructure:"public_host" yaml:"public_host,omitempty"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`
	TLSCert        string   `mapstructure:"tls_cert" yaml:"tls_cert,omitempty"`
	TLSKey         string   `mapstructure:"tls_key" yaml:"tls_key,omitempty"`
}

type BridgeConfig struct {
	Input []string `mapstructure:"input" yaml:"input"`
	Root  string   `mapstructure:"root" yaml:"root,omitempty"`
	// Reload is "true", "false" or a regular expression over changed paths.
	Reload         string        `mapstructure:"reload" yaml:"reload"`
	Watch          []string      `mapstructure:"watch" yaml:"watch,omitempty"`
	Delay          time.Duration `mapstructure:"delay" yaml:"delay"`
	AddAliases     bool          `mapstructure:"add_aliases" yaml:"add_aliases"`
	AliasDir       string        `mapstructure:"alias_dir" yaml:"alias_dir,omitempty"`
	BackendCommand []string      `mapstructure:"backend_command" yaml:"backend_command"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads the configuration from the global Viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle slices set as a single comma-separated value (env vars).
	if v.IsSet("bridge.input") {
		config.Bridge.Input = splitList(v.GetStringSlice("bridge.input"))
	}
	if v.IsSet("bridge.watch") {
		config.Bridge.Watch = splitList(v.GetStringSlice("bridge.watch"))
	}
	if v.IsSet("server.allowed_origins") {
		config.Server.AllowedOrigins = splitList(v.GetStringSlice("server.allowed_origins"))
	}
	if v.IsSet("bridge.backend_command") {
		if s, ok := v.Get("bridge.backend_command").(string); ok {
			config.Bridge.BackendCommand = strings.Fields(s)
		}
	}

	// An explicit empty reload disables reloading; only a missing one defaults.
	if !v.IsSet("bridge.reload") {
		config.Bridge.Reload = DefaultReload
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if config.Server.Port == 0 {
		config.Server.Port = DefaultPort
	}
	if len(config.Bridge.BackendCommand) == 0 {
		config.Bridge.BackendCommand = slices.Clone(bridge.DefaultBackendCommand)
	}
	if config.Log.Level == "" {
		config.Log.Level = DefaultLogLevel
	}
	if config.Log.Format == "" {
		config.Log.Format = DefaultLogFormat
	}
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// BridgeOptions converts the bridge section into bridge options. Entries
// given on the command line replace the configured input.
func (c *Config) BridgeOptions(entries ...string) (bridge.Options, error) {
	reload, err := bridge.ParseReload(c.Bridge.Reload)
	if err != nil {
		return bridge.Options{}, err
	}

	input := c.Bridge.Input
	if len(entries) > 0 {
		input = entries
	}

	return bridge.Options{
		Input:      slices.Clone(input),
		Root:       c.Bridge.Root,
		Reload:     reload,
		Watch:      slices.Clone(c.Bridge.Watch),
		Delay:      c.Bridge.Delay,
		AddAliases: c.Bridge.AddAliases,
	}, nil
}

// HostConfig converts the server section into the user host configuration
// that plugins' config hooks receive.
func (c *Config) HostConfig() plugins.HostConfig {
	host := plugins.HostConfig{
		Server: plugins.ServerOptions{
			Host:           c.Server.Host,
			Port:           c.Server.Port,
			Origin:         c.Server.Origin,
			PublicHost:     c.Server.PublicHost,
			AllowedOrigins: slices.Clone(c.Server.AllowedOrigins),
		},
	}
	if c.Server.TLSCert != "" || c.Server.TLSKey != "" {
		host.Server.HTTPS = &plugins.TLSOptions{
			CertFile: c.Server.TLSCert,
			KeyFile:  c.Server.TLSKey,
		}
	}
	return host
}

// LoggerConfig converts the log section into a logger configuration.
func (c *Config) LoggerConfig() (*logging.LoggerConfig, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = c.Log.Format
	return lc, nil
}
