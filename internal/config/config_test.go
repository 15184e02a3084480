package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/djbridge/internal/bridge"
	"github.com/conneroisu/djbridge/internal/logging"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()

	config, err := Load()

	require.NoError(t, err)
	assert.Equal(t, DefaultHost, config.Server.Host)
	assert.Equal(t, DefaultPort, config.Server.Port)
	assert.Equal(t, DefaultReload, config.Bridge.Reload)
	assert.Equal(t, bridge.DefaultBackendCommand, config.Bridge.BackendCommand)
	assert.Equal(t, "info", config.Log.Level)
	assert.Equal(t, "text", config.Log.Format)
	assert.Empty(t, config.Bridge.Input)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "explicit values",
			setup: func() {
				viper.Set("server.port", 3000)
				viper.Set("server.host", "0.0.0.0")
				viper.Set("server.public_host", "dev.local")
				viper.Set("bridge.input", []string{"src/main.js", "src/admin.js"})
				viper.Set("bridge.delay", "250ms")
				viper.Set("bridge.add_aliases", true)
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 3000, c.Server.Port)
				assert.Equal(t, "0.0.0.0", c.Server.Host)
				assert.Equal(t, "dev.local", c.Server.PublicHost)
				assert.Equal(t, []string{"src/main.js", "src/admin.js"}, c.Bridge.Input)
				assert.Equal(t, 250*time.Millisecond, c.Bridge.Delay)
				assert.True(t, c.Bridge.AddAliases)
			},
		},
		{
			name: "comma separated lists",
			setup: func() {
				viper.Set("bridge.input", "a.js, b.js")
				viper.Set("server.allowed_origins", "localhost:*,example.test:*")
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, []string{"a.js", "b.js"}, c.Bridge.Input)
				assert.Equal(t, []string{"localhost:*", "example.test:*"}, c.Server.AllowedOrigins)
			},
		},
		{
			name: "backend command as a string",
			setup: func() {
				viper.Set("bridge.backend_command", "uv run manage.py djbridge")
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, []string{"uv", "run", "manage.py", "djbridge"}, c.Bridge.BackendCommand)
			},
		},
		{
			name: "explicit empty reload disables",
			setup: func() {
				viper.Set("bridge.reload", "")
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "", c.Bridge.Reload)
			},
		},
		{
			name: "invalid port type",
			setup: func() {
				viper.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
		{
			name: "invalid reload pattern",
			setup: func() {
				viper.Set("bridge.reload", "([")
			},
			expectError: true,
		},
		{
			name: "unknown log level",
			setup: func() {
				viper.Set("log.level", "loud")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			tt.setup()

			config, err := Load()

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, config)
				return
			}
			require.NoError(t, err)
			tt.check(t, config)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".djbridge.yml")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(`
server:
  port: 5174
  origin: https://assets.example.test
bridge:
  input: [src/main.ts]
  root: ../backend
  reload: '\.(html|py|txt)$'
  watch: [../shared]
  delay: 1s
log:
  level: debug
  format: json
`)), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	config, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 5174, config.Server.Port)
	assert.Equal(t, "https://assets.example.test", config.Server.Origin)
	assert.Equal(t, []string{"src/main.ts"}, config.Bridge.Input)
	assert.Equal(t, "../backend", config.Bridge.Root)
	assert.Equal(t, `\.(html|py|txt)$`, config.Bridge.Reload)
	assert.Equal(t, []string{"../shared"}, config.Bridge.Watch)
	assert.Equal(t, time.Second, config.Bridge.Delay)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, "json", config.Log.Format)
}

func TestLoadWithEnvironment(t *testing.T) {
	t.Setenv("DJBRIDGE_SERVER_PORT", "9999")
	t.Setenv("DJBRIDGE_BRIDGE_RELOAD", "false")

	viper.Reset()
	viper.SetEnvPrefix("DJBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.SetDefault("server.port", DefaultPort)
	viper.SetDefault("bridge.reload", DefaultReload)

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "false", config.Bridge.Reload)
}

func TestBridgeOptions(t *testing.T) {
	config := &Config{Bridge: BridgeConfig{
		Input:      []string{"src/main.js"},
		Root:       "backend",
		Reload:     `\.txt$`,
		Watch:      []string{"../shared"},
		Delay:      time.Second,
		AddAliases: true,
	}}

	opts, err := config.BridgeOptions()
	require.NoError(t, err)

	assert.Equal(t, []string{"src/main.js"}, opts.Input)
	assert.Equal(t, "backend", opts.Root)
	assert.Equal(t, `\.txt$`, opts.Reload.String())
	assert.True(t, opts.Reload.Predicate()("notes.txt"))
	assert.False(t, opts.Reload.Predicate()("view.py"))
	assert.Equal(t, []string{"../shared"}, opts.Watch)
	assert.Equal(t, time.Second, opts.Delay)
	assert.True(t, opts.AddAliases)

	opts, err = config.BridgeOptions("cli.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"cli.js"}, opts.Input)

	config.Bridge.Reload = "false"
	opts, err = config.BridgeOptions()
	require.NoError(t, err)
	assert.False(t, opts.Reload.Enabled())
}

func TestHostConfig(t *testing.T) {
	config := &Config{Server: ServerConfig{
		Host:           "0.0.0.0",
		Port:           5175,
		Origin:         "https://assets.test",
		PublicHost:     "dev.test",
		AllowedOrigins: []string{"dev.test:*"},
	}}

	host := config.HostConfig()
	assert.Equal(t, "0.0.0.0", host.Server.Host)
	assert.Equal(t, 5175, host.Server.Port)
	assert.Equal(t, "https://assets.test", host.Server.Origin)
	assert.Equal(t, "dev.test", host.Server.PublicHost)
	assert.Equal(t, []string{"dev.test:*"}, host.Server.AllowedOrigins)
	assert.Nil(t, host.Server.HTTPS)

	config.Server.TLSCert = "cert.pem"
	config.Server.TLSKey = "key.pem"
	host = config.HostConfig()
	require.NotNil(t, host.Server.HTTPS)
	assert.True(t, host.Server.HTTPS.Enabled())
}

func TestLoggerConfig(t *testing.T) {
	config := &Config{Log: LogConfig{Level: "warn", Format: "json"}}

	lc, err := config.LoggerConfig()
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, lc.Level)
	assert.Equal(t, "json", lc.Format)

	config.Log.Level = "nope"
	_, err = config.LoggerConfig()
	assert.Error(t, err)
}

func validConfig() *Config {
	c := &Config{Bridge: BridgeConfig{Reload: DefaultReload}}
	applyDefaults(c)
	return c
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{name: "port too large", mutate: func(c *Config) { c.Server.Port = 70000 }, field: "server.port"},
		{name: "negative port", mutate: func(c *Config) { c.Server.Port = -1 }, field: "server.port"},
		{name: "dangerous host", mutate: func(c *Config) { c.Server.Host = "localhost;rm" }, field: "server.host"},
		{name: "public host with path", mutate: func(c *Config) { c.Server.PublicHost = "dev.test/x" }, field: "server.public_host"},
		{name: "relative origin", mutate: func(c *Config) { c.Server.Origin = "assets.test" }, field: "server.origin"},
		{name: "origin pattern with scheme", mutate: func(c *Config) { c.Server.AllowedOrigins = []string{"http://x"} }, field: "server.allowed_origins"},
		{name: "cert without key", mutate: func(c *Config) { c.Server.TLSCert = "cert.pem" }, field: "server.tls_cert"},
		{name: "empty entry", mutate: func(c *Config) { c.Bridge.Input = []string{" "} }, field: "bridge.input"},
		{name: "dangerous root", mutate: func(c *Config) { c.Bridge.Root = "$(HOME)" }, field: "bridge.root"},
		{name: "negative delay", mutate: func(c *Config) { c.Bridge.Delay = -time.Second }, field: "bridge.delay"},
		{name: "empty backend command", mutate: func(c *Config) { c.Bridge.BackendCommand = []string{""} }, field: "bridge.backend_command"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, field: "log.format"},
	}

	assert.NoError(t, validateConfig(validConfig()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := validateConfig(c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidatePathAllowsParentDirectories(t *testing.T) {
	assert.NoError(t, validatePath("../backend"))
	assert.NoError(t, validatePath("/srv/app"))
	assert.Error(t, validatePath(""))
	assert.Error(t, validatePath("a\x00b"))
	assert.Error(t, validatePath("a|b"))
}
