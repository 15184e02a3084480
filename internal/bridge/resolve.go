package bridge

import (
	"slices"
	"time"

	"github.com/conneroisu/djbridge/internal/errors"
	"github.com/conneroisu/djbridge/internal/plugins"
)

// DefaultRoot is the project directory used when Options.Root is empty.
const DefaultRoot = "."

// Build defaults contributed to the host when the user sets nothing.
const (
	DefaultBuildDir       = "dist"
	DefaultEntryFileNames = "[name].js"
	DefaultChunkFileNames = "[name].js"
	DefaultAssetFileNames = "[name].[ext]"
)

// ResolvedConfig is the merged view of the user's options and the backend
// configuration. It is immutable; getters return copies.
type ResolvedConfig struct {
	input      []string
	root       string
	reload     Reload
	watch      []string
	delay      time.Duration
	addAliases bool
	backend    BackendConfig
}

// Snapshot is a plain-data copy of a ResolvedConfig, suitable for printing
// and comparison.
type Snapshot struct {
	Input      []string      `json:"input" yaml:"input"`
	Root       string        `json:"root" yaml:"root"`
	Reload     string        `json:"reload" yaml:"reload"`
	Watch      []string      `json:"watch" yaml:"watch"`
	Delay      string        `json:"delay" yaml:"delay"`
	AddAliases bool          `json:"add_aliases" yaml:"add_aliases"`
	Backend    BackendConfig `json:"backend" yaml:"backend"`
}

// Resolve combines the normalized input with the backend configuration.
// It is pure: identical arguments always produce equal results.
func Resolve(in Input, backend *BackendConfig) (*ResolvedConfig, error) {
	if backend == nil {
		return nil, errors.NewInternalError(errors.ErrCodeConfigInvalid,
			"backend configuration is required", nil)
	}

	opts := Normalize(in)
	if len(opts.Input) == 0 {
		return nil, errors.NewConfigError(errors.ErrCodeNoInput,
			"at least one entry point is required")
	}

	root := opts.Root
	if root == "" {
		root = DefaultRoot
	}

	delay := opts.Delay
	if delay < 0 {
		delay = 0
	}

	return &ResolvedConfig{
		input:      opts.Input,
		root:       root,
		reload:     opts.Reload,
		watch:      opts.Watch,
		delay:      delay,
		addAliases: opts.AddAliases,
		backend:    backend.Clone(),
	}, nil
}

// Input returns the entry points in order.
func (c *ResolvedConfig) Input() []string { return slices.Clone(c.input) }

// Root returns the project directory.
func (c *ResolvedConfig) Root() string { return c.root }

// Reload returns the reload setting.
func (c *ResolvedConfig) Reload() Reload { return c.reload }

// Watch returns the extra watch paths.
func (c *ResolvedConfig) Watch() []string { return slices.Clone(c.watch) }

// Delay returns the full-reload delay.
func (c *ResolvedConfig) Delay() time.Duration { return c.delay }

// AddAliases reports whether the alias file should be written.
func (c *ResolvedConfig) AddAliases() bool { return c.addAliases }

// Backend returns a copy of the backend configuration.
func (c *ResolvedConfig) Backend() BackendConfig { return c.backend.Clone() }

// HotFile returns the marker file path.
func (c *ResolvedConfig) HotFile() string { return c.backend.HotFile }

// BuildURLPrefix returns the public URL prefix of production assets.
func (c *ResolvedConfig) BuildURLPrefix() string { return c.backend.BuildURLPrefix }

// Snapshot returns a plain-data copy of c.
func (c *ResolvedConfig) Snapshot() Snapshot {
	return Snapshot{
		Input:      c.Input(),
		Root:       c.root,
		Reload:     c.reload.String(),
		Watch:      c.Watch(),
		Delay:      c.delay.String(),
		AddAliases: c.addAliases,
		Backend:    c.Backend(),
	}
}

// ResolveBuild derives the host build options. Entry points always come from
// the resolved input; for every other field an explicit user value wins over
// the defaults.
func ResolveBuild(cfg *ResolvedConfig, user plugins.BuildOptions) plugins.BuildOptions {
	outDir := cfg.backend.BuildDir
	if outDir == "" {
		outDir = DefaultBuildDir
	}

	defaults := plugins.BuildOptions{
		OutDir:      outDir,
		Sourcemap:   plugins.Bool(false),
		EmptyOutDir: plugins.Bool(true),
		Manifest:    plugins.Bool(true),
		Output: plugins.OutputOptions{
			EntryFileNames: DefaultEntryFileNames,
			ChunkFileNames: DefaultChunkFileNames,
			AssetFileNames: DefaultAssetFileNames,
		},
	}

	user.Input = nil
	merged := plugins.MergeConfig(
		plugins.HostConfig{Build: defaults},
		plugins.HostConfig{Build: user},
	).Build
	merged.Input = cfg.Input()

	return merged
}
