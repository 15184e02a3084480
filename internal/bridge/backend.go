package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/conneroisu/djbridge/internal/errors"
)

// DefaultBackendCommand runs the Django management command that answers
// configuration requests.
var DefaultBackendCommand = []string{"python", "manage.py", "djbridge"}

// BackendConfig is the configuration document reported by the backend.
type BackendConfig struct {
	// Version is the backend framework version, e.g. "4.2.1".
	Version string `json:"DJANGO_VERSION" yaml:"version"`

	// BuildURLPrefix is the public URL prefix of production assets.
	BuildURLPrefix string `json:"BUILD_URL_PREFIX" yaml:"build_url_prefix"`

	// HotFile is where the dev server URL is published while serving.
	HotFile string `json:"HOT_FILE" yaml:"hot_file"`

	// AppDirs maps each installed app label to its directory.
	AppDirs map[string]string `json:"APP_DIRS" yaml:"app_dirs"`

	// BaseDir is the project base directory, aliased as "@".
	BaseDir string `json:"BASE_DIR,omitempty" yaml:"base_dir,omitempty"`

	// BuildDir is the production output directory.
	BuildDir string `json:"BUILD_DIR,omitempty" yaml:"build_dir,omitempty"`
}

// Clone returns a deep copy of c.
func (c BackendConfig) Clone() BackendConfig {
	c.AppDirs = maps.Clone(c.AppDirs)
	return c
}

// Validate checks that the document carries everything the bridge needs.
func (c *BackendConfig) Validate() error {
	var verr errors.ValidationErrorCollection

	if strings.TrimSpace(c.Version) == "" {
		verr.AddField("DJANGO_VERSION", c.Version, "must not be empty")
	}
	if strings.TrimSpace(c.BuildURLPrefix) == "" {
		verr.AddField("BUILD_URL_PREFIX", c.BuildURLPrefix, "must not be empty")
	}
	if strings.TrimSpace(c.HotFile) == "" {
		verr.AddField("HOT_FILE", c.HotFile, "must not be empty")
	}
	if c.AppDirs == nil {
		verr.AddField("APP_DIRS", nil, "is required")
	}
	for label, dir := range c.AppDirs {
		if label == "" {
			verr.AddField("APP_DIRS", dir, "app label must not be empty")
			continue
		}
		if !filepath.IsAbs(dir) {
			verr.AddField("APP_DIRS."+label, dir, "must be an absolute path")
		}
	}
	if c.BaseDir != "" && !filepath.IsAbs(c.BaseDir) {
		verr.AddField("BASE_DIR", c.BaseDir, "must be an absolute path")
	}

	return verr.Err()
}

// ParseBackendConfig decodes and validates the backend's reply. The reply
// must be exactly one JSON object.
func ParseBackendConfig(data []byte) (*BackendConfig, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.NewBackendError(errors.ErrCodeBackendJSON,
			"backend reply is not a JSON object", nil).
			WithContext("output", truncate(string(trimmed), 200))
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var cfg BackendConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.NewBackendError(errors.ErrCodeBackendJSON,
			"cannot decode backend reply", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.NewBackendError(errors.ErrCodeBackendJSON,
			"backend reply has trailing data after the JSON object", nil)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.NewBackendError(errors.ErrCodeBackendSchema,
			"backend reply is missing required fields", err)
	}

	return &cfg, nil
}

// Runner executes the backend configuration command in dir with the given
// extra arguments and returns its standard output.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, dir string, args ...string) ([]byte, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	return f(ctx, dir, args...)
}

// CommandRunner runs the backend as a subprocess.
type CommandRunner struct {
	// Command is the program and its leading arguments. Defaults to
	// DefaultBackendCommand.
	Command []string

	// Env is appended to the inherited environment.
	Env []string
}

// Run implements Runner.
func (r CommandRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	command := r.Command
	if len(command) == 0 {
		command = DefaultBackendCommand
	}

	argv := append(append([]string{}, command[1:]...), args...)
	cmd := exec.CommandContext(ctx, command[0], argv...)
	cmd.Dir = dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, truncate(msg, 500))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// FetchBackendConfig asks the backend for its configuration. The serialized
// options travel as the --config argument; the command runs in opts.Root.
func FetchBackendConfig(ctx context.Context, runner Runner, opts Options) (*BackendConfig, error) {
	payload, err := json.Marshal(opts)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeBackendJSON,
			"cannot encode bridge options", err)
	}

	dir := opts.Root
	if dir == "" {
		dir = DefaultRoot
	}

	out, err := runner.Run(ctx, dir, "--action", "config", "--config", string(payload))
	if err != nil {
		return nil, errors.NewBackendError(errors.ErrCodeBackendExec,
			"backend configuration command failed", err).
			WithContext("dir", dir)
	}

	return ParseBackendConfig(out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
