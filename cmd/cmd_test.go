package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/djbridge/internal/bridge"
	"github.com/conneroisu/djbridge/internal/config"
	"github.com/conneroisu/djbridge/internal/logging"
	"github.com/conneroisu/djbridge/internal/plugins"
)

// fakeBackend writes a script that prints a backend configuration document
// and returns the script and the project directory.
func fakeBackend(t *testing.T) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}

	dir := t.TempDir()
	app := filepath.Join(dir, "blog")
	require.NoError(t, os.MkdirAll(app, 0o755))

	doc, err := json.Marshal(map[string]interface{}{
		"DJANGO_VERSION":   "4.2.1",
		"BUILD_URL_PREFIX": "/static/",
		"HOT_FILE":         filepath.Join(dir, "hot"),
		"APP_DIRS":         map[string]string{"blog": app},
		"BASE_DIR":         dir,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), doc, 0o644))

	script := filepath.Join(dir, "backend.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat config.json\n"), 0o755))

	return script, dir
}

// resetFlags restores every flag to its default between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	out, err = execute(t, "version", "--short")
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	_, err = execute(t, "version", "--format", "xml")
	assert.Error(t, err)
}

func TestConfigCommandHost(t *testing.T) {
	script, dir := fakeBackend(t)

	out, err := execute(t, "config", "--backend-command", script, "--root", dir, "src/main.js")
	require.NoError(t, err)

	var serve plugins.ResolvedHostConfig
	require.NoError(t, yaml.Unmarshal([]byte(out), &serve))
	assert.Equal(t, plugins.CommandServe, serve.Command)
	assert.Equal(t, bridge.PlaceholderOrigin, serve.Server.Origin)
	assert.Contains(t, serve.Resolve.Alias, plugins.Alias{Find: "@s:blog", Replacement: filepath.Join(dir, "blog", "static")})

	out, err = execute(t, "config", "--mode", "build", "--backend-command", script, "--root", dir, "src/main.js")
	require.NoError(t, err)

	var build plugins.ResolvedHostConfig
	require.NoError(t, yaml.Unmarshal([]byte(out), &build))
	assert.Equal(t, plugins.CommandBuild, build.Command)
	assert.Equal(t, "/static/", build.Base)
	assert.Equal(t, []string{"src/main.js"}, build.Build.Input)
	assert.Empty(t, build.Server.Origin)
}

func TestConfigCommandBridge(t *testing.T) {
	script, dir := fakeBackend(t)

	out, err := execute(t, "config", "--show", "bridge", "--reload", "false", "--delay", "20ms", "--backend-command", script, "--root", dir, "src/main.js")
	require.NoError(t, err)

	var snap bridge.Snapshot
	require.NoError(t, yaml.Unmarshal([]byte(out), &snap))
	assert.Equal(t, "4.2.1", snap.Backend.Version)
	assert.Equal(t, "false", snap.Reload)
	assert.Equal(t, "20ms", snap.Delay)
	assert.Contains(t, out, "delay: 20ms")
	assert.Equal(t, []string{"src/main.js"}, snap.Input)
	assert.Equal(t, dir, snap.Root)
}

func TestConfigCommandErrors(t *testing.T) {
	script, dir := fakeBackend(t)

	_, err := execute(t, "config", "--mode", "preview", "src/main.js")
	assert.Error(t, err)

	_, err = execute(t, "config", "--show", "everything", "--backend-command", script, "--root", dir, "src/main.js")
	assert.Error(t, err)

	_, err = execute(t, "config", "--backend-command", script, "--root", dir)
	assert.Error(t, err, "no entry points")

	_, err = execute(t, "config", "--reload", "([", "src/main.js")
	assert.Error(t, err, "invalid reload pattern")
}

func TestAliasesCommand(t *testing.T) {
	script, dir := fakeBackend(t)
	aliasDir := t.TempDir()

	out, err := execute(t, "aliases", "--backend-command", script, "--root", dir, "--alias-dir", aliasDir, "--write", "src/main.js")
	require.NoError(t, err)

	assert.Contains(t, out, "@s:blog")
	assert.Contains(t, out, filepath.Join(dir, "blog", "templates"))
	assert.FileExists(t, filepath.Join(aliasDir, bridge.AliasFileName))
}

func TestReloadValue(t *testing.T) {
	v := newReloadValue(config.DefaultReload)
	parsed := func() bridge.Reload {
		r, err := bridge.ParseReload(v.String())
		require.NoError(t, err)
		return r
	}
	assert.Equal(t, "reload", v.Type())
	assert.True(t, parsed().Enabled())

	require.NoError(t, v.Set(`\.txt$`))
	assert.Equal(t, `\.txt$`, v.String())
	assert.True(t, parsed().Predicate()("a.txt"))

	require.NoError(t, v.Set("false"))
	assert.False(t, parsed().Enabled())

	assert.Error(t, v.Set("(["))
	assert.Equal(t, "false", v.String())
}

func TestNewDevServer(t *testing.T) {
	script, dir := fakeBackend(t)

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 5199},
		Bridge: config.BridgeConfig{
			Input:          []string{"src/main.js"},
			Root:           dir,
			Reload:         "true",
			BackendCommand: []string{script},
		},
	}

	var banner bytes.Buffer
	state := bridge.NewProcessState()
	srv, err := newDevServer(context.Background(), cfg, nil, logging.Nop(), state, &banner)
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	assert.Equal(t, bridge.PlaceholderOrigin, srv.Config().Server.Origin)
	assert.Equal(t, "4.2.1", state.BackendVersion())

	h, err := srv.Handler()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "4.2.1")
}
