package plugins

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/conneroisu/djbridge/internal/logging"
)

// Host defaults applied after every Config hook has run.
const (
	DefaultRoot   = "."
	DefaultHost   = "localhost"
	DefaultPort   = 5173
	DefaultOutDir = "dist"
)

// DefaultAllowedOrigins are the websocket origin patterns accepted when the
// configuration names none.
var DefaultAllowedOrigins = []string{"localhost:*", "127.0.0.1:*", "[::1]:*"}

// Manager keeps the registered plugins in hook order and drives their
// lifecycle hooks.
type Manager struct {
	plugins  []Plugin
	names    map[string]struct{}
	resolved *ResolvedHostConfig
	logger   logging.Logger
	mu       sync.RWMutex
}

// NewManager creates an empty plugin manager.
func NewManager(logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		names:  make(map[string]struct{}),
		logger: logger.WithComponent("plugins"),
	}
}

// Register adds plugins. Names must be unique.
func (m *Manager) Register(ps ...Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range ps {
		if p == nil {
			continue
		}
		name := p.Name()
		if _, exists := m.names[name]; exists {
			return fmt.Errorf("plugin %s already registered", name)
		}
		m.names[name] = struct{}{}
		m.plugins = append(m.plugins, p)
	}

	sort.SliceStable(m.plugins, func(i, j int) bool {
		return orderOf(m.plugins[i]) < orderOf(m.plugins[j])
	})

	return nil
}

func orderOf(p Plugin) Order {
	if e, ok := p.(Enforcer); ok {
		return e.Enforce()
	}
	return OrderNormal
}

// Plugins returns the registered plugins in hook order.
func (m *Manager) Plugins() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Plugin, len(m.plugins))
	copy(out, m.plugins)
	return out
}

// Resolved returns the configuration frozen by ResolveConfig, or nil.
func (m *Manager) Resolved() *ResolvedHostConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolved
}

// ResolveConfig runs every Config hook against user, applies host defaults,
// freezes the result and hands it to every ConfigResolved hook.
func (m *Manager) ResolveConfig(user HostConfig, env ConfigEnv) (*ResolvedHostConfig, error) {
	cfg := user.Clone()

	for _, p := range m.Plugins() {
		hook, ok := p.(ConfigHook)
		if !ok {
			continue
		}
		partial, err := hook.Config(cfg.Clone(), env)
		if err != nil {
			return nil, fmt.Errorf("plugin %s config hook: %w", p.Name(), err)
		}
		cfg = MergeConfig(cfg, partial)
	}

	applyDefaults(&cfg)

	resolved := &ResolvedHostConfig{
		HostConfig: cfg,
		Command:    env.Command,
		Mode:       env.Mode,
	}

	m.mu.Lock()
	m.resolved = resolved
	m.mu.Unlock()

	for _, p := range m.Plugins() {
		if hook, ok := p.(ConfigResolvedHook); ok {
			hook.ConfigResolved(resolved)
		}
	}

	m.logger.Debug(context.Background(), "Host configuration resolved",
		"command", env.Command,
		"root", cfg.Root,
		"plugins", len(m.plugins))

	return resolved, nil
}

func applyDefaults(cfg *HostConfig) {
	setDefault(&cfg.Root, DefaultRoot)
	setDefault(&cfg.Server.Host, DefaultHost)
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = append([]string(nil), DefaultAllowedOrigins...)
	}
	setDefault(&cfg.Build.OutDir, DefaultOutDir)
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// Transform passes code through every TransformHook in order.
func (m *Manager) Transform(ctx context.Context, code, id string) (string, error) {
	for _, p := range m.Plugins() {
		hook, ok := p.(TransformHook)
		if !ok {
			continue
		}
		out, changed, err := hook.Transform(ctx, code, id)
		if err != nil {
			return "", fmt.Errorf("plugin %s failed to transform %s: %w", p.Name(), id, err)
		}
		if changed {
			code = out
		}
	}
	return code, nil
}

// ConfigureServer runs every ServerHook and returns the post callbacks in
// hook order. The caller runs them once its own handlers are installed.
func (m *Manager) ConfigureServer(srv DevServer) ([]func(), error) {
	var post []func()
	for _, p := range m.Plugins() {
		hook, ok := p.(ServerHook)
		if !ok {
			continue
		}
		fn, err := hook.ConfigureServer(srv)
		if err != nil {
			return nil, fmt.Errorf("plugin %s configure server: %w", p.Name(), err)
		}
		if fn != nil {
			post = append(post, fn)
		}
	}
	return post, nil
}
