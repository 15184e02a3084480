package bridge

import (
	"context"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/conneroisu/djbridge/internal/errors"
	"github.com/conneroisu/djbridge/internal/logging"
	"github.com/conneroisu/djbridge/internal/plugins"
	"github.com/conneroisu/djbridge/internal/version"
)

// Plugin names as registered with the host.
const (
	PluginName   = "djbridge"
	ReloaderName = "djbridge-reloader"
)

type settings struct {
	runner        Runner
	state         *ProcessState
	logger        logging.Logger
	aliasDir      string
	banner        io.Writer
	bridgeVersion string
	afterFunc     func(d time.Duration, fn func())
}

// Option configures New and Load.
type Option func(*settings)

// WithRunner sets how the backend configuration command is executed.
// Defaults to a CommandRunner for DefaultBackendCommand.
func WithRunner(r Runner) Option {
	return func(s *settings) { s.runner = r }
}

// WithProcessState shares per-process state between bridges. Without it
// each call to New gets fresh state.
func WithProcessState(state *ProcessState) Option {
	return func(s *settings) { s.state = state }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithAliasDir sets where the alias file is written. Defaults to the
// working directory.
func WithAliasDir(dir string) Option {
	return func(s *settings) { s.aliasDir = dir }
}

// WithBannerWriter sets where the startup banner goes. nil disables it.
func WithBannerWriter(w io.Writer) Option {
	return func(s *settings) { s.banner = w }
}

func withAfterFunc(fn func(d time.Duration, fn func())) Option {
	return func(s *settings) { s.afterFunc = fn }
}

func newSettings(opts []Option) *settings {
	s := &settings{
		runner:        CommandRunner{},
		logger:        logging.Nop(),
		aliasDir:      ".",
		banner:        os.Stdout,
		bridgeVersion: version.GetVersion(),
		afterFunc:     func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.state == nil {
		s.state = NewProcessState()
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	s.logger = s.logger.WithComponent("bridge")
	return s
}

// Load runs the backend configuration exchange and resolves the result
// against in, without creating plugins.
func Load(ctx context.Context, in Input, opts ...Option) (*ResolvedConfig, error) {
	return load(ctx, newSettings(opts), in)
}

func load(ctx context.Context, s *settings, in Input) (*ResolvedConfig, error) {
	options := Normalize(in)
	if len(options.Input) == 0 {
		return nil, errors.NewConfigError(errors.ErrCodeNoInput,
			"at least one entry point is required")
	}

	perf := logging.StartOperation(s.logger, "backend_config")
	backend, err := FetchBackendConfig(ctx, s.runner, options)
	if err != nil {
		perf.EndWithError(ctx, err)
		return nil, err
	}
	perf.End(ctx)

	s.state.CacheBackendVersion(backend.Version)

	return Resolve(options, backend)
}

// New fetches the backend configuration, resolves it against in and returns
// the core plugin followed by the reloader plugin. Any failure of the
// backend exchange aborts construction.
func New(ctx context.Context, in Input, opts ...Option) ([]plugins.Plugin, error) {
	s := newSettings(opts)

	cfg, err := load(ctx, s, in)
	if err != nil {
		return nil, err
	}

	aliases := AppAliases(cfg.Backend())
	if cfg.AddAliases() {
		path, err := WriteAliasFile(s.aliasDir, aliases)
		if err != nil {
			s.logger.Warn(ctx, err, "Failed to write alias file")
		} else {
			s.logger.Debug(ctx, "Alias file written", "path", path, "aliases", len(aliases))
		}
	}

	core := &corePlugin{
		cfg:      cfg,
		aliases:  aliases,
		settings: s,
		sess:     &session{},
	}

	reloader := &reloadPlugin{watcher: NewReloadWatcher(cfg, s.logger)}
	if reloader.watcher != nil {
		reloader.watcher.afterFunc = s.afterFunc
	}

	return []plugins.Plugin{core, reloader}, nil
}

// session holds what the core plugin learns while the host runs.
type session struct {
	mu     sync.RWMutex
	devURL string
	user   plugins.HostConfig
	host   *plugins.ResolvedHostConfig
}

func (s *session) setUser(cfg plugins.HostConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = cfg.Clone()
}

func (s *session) userConfig() plugins.HostConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *session) setHost(cfg *plugins.ResolvedHostConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.host = cfg
}

func (s *session) hostConfig() *plugins.ResolvedHostConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.host
}

func (s *session) setDevURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devURL = url
}

func (s *session) url() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.devURL
}

type corePlugin struct {
	cfg      *ResolvedConfig
	aliases  AliasMap
	settings *settings
	sess     *session
}

var (
	_ plugins.ConfigHook         = (*corePlugin)(nil)
	_ plugins.ConfigResolvedHook = (*corePlugin)(nil)
	_ plugins.TransformHook      = (*corePlugin)(nil)
	_ plugins.ServerHook         = (*corePlugin)(nil)
	_ plugins.Enforcer           = (*corePlugin)(nil)
)

func (p *corePlugin) Name() string           { return PluginName }
func (p *corePlugin) Enforce() plugins.Order { return plugins.OrderPre }

// Config contributes root, base, build options, the placeholder origin and
// the derived aliases. Values the user set explicitly are kept.
func (p *corePlugin) Config(user plugins.HostConfig, env plugins.ConfigEnv) (plugins.HostConfig, error) {
	p.sess.setUser(user)

	root := user.Root
	if root == "" {
		root = p.cfg.Root()
	}

	partial := plugins.HostConfig{
		Root:    root,
		Build:   ResolveBuild(p.cfg, user.Build),
		Resolve: plugins.ResolveOptions{Alias: p.aliases.HostAliases(user.Resolve.Alias)},
	}

	switch env.Command {
	case plugins.CommandBuild:
		partial.Base = p.cfg.BuildURLPrefix()
	case plugins.CommandServe:
		if user.Server.Origin == "" {
			partial.Server.Origin = PlaceholderOrigin
		}
	}

	return partial, nil
}

func (p *corePlugin) ConfigResolved(cfg *plugins.ResolvedHostConfig) {
	p.sess.setHost(cfg)
}

// Transform swaps the placeholder origin for the dev server URL while
// serving. Build output is left alone.
func (p *corePlugin) Transform(_ context.Context, code, _ string) (string, bool, error) {
	if !p.sess.hostConfig().IsServe() {
		return code, false, nil
	}
	out, changed := RewritePlaceholder(code, p.sess.url())
	return out, changed, nil
}

func (p *corePlugin) ConfigureServer(srv plugins.DevServer) (func(), error) {
	srv.OnListening(func(addr net.Addr) {
		p.listening(srv, addr)
	})

	return func() {
		srv.Use(InfoPageMiddleware(p.infoPageData))
	}, nil
}

func (p *corePlugin) infoPageData() InfoPageData {
	return InfoPageData{
		BackendVersion: p.settings.state.BackendVersion(),
		BridgeVersion:  p.settings.bridgeVersion,
		DevURL:         p.sess.url(),
	}
}

// listening publishes the dev server URL once the listener is bound.
func (p *corePlugin) listening(srv plugins.DevServer, addr net.Addr) {
	ctx := context.Background()
	logger := p.settings.logger

	var server plugins.ServerOptions
	if host := srv.Config(); host != nil {
		server = host.Server
	}
	server.Origin = p.sess.userConfig().Server.Origin

	url, ok := ResolveDevServerURL(addr, server)
	if !ok {
		logger.Debug(ctx, "Listener address has no usable port", "addr", addr)
		return
	}
	p.sess.setDevURL(url)

	hotFile := p.cfg.HotFile()
	if err := WriteMarker(hotFile, url); err != nil {
		logger.Error(ctx, err, "Failed to publish dev server URL", "hot_file", hotFile)
	} else {
		logger.Debug(ctx, "Dev server URL published", "hot_file", hotFile, "url", url)
	}

	p.settings.state.BindTermination(func() {
		if err := RemoveMarker(hotFile); err != nil {
			logger.Warn(ctx, err, "Failed to remove marker file", "hot_file", hotFile)
		}
	})

	p.settings.afterFunc(bannerDelay, func() {
		formatter := &logging.LogFormatter{UseColors: colorsEnabled()}
		printBanner(p.settings.banner, Banner(p.settings.state.BackendVersion(), p.settings.bridgeVersion, url, formatter))
		logger.Info(ctx, "Backend bridge ready",
			"backend_version", p.settings.state.BackendVersion(),
			"url", url)
	})
}

type reloadPlugin struct {
	watcher *ReloadWatcher
}

var _ plugins.ServerHook = (*reloadPlugin)(nil)

func (p *reloadPlugin) Name() string { return ReloaderName }

// ConfigureServer attaches the reload watcher. With reloading disabled the
// plugin does nothing.
func (p *reloadPlugin) ConfigureServer(srv plugins.DevServer) (func(), error) {
	if p.watcher == nil {
		return nil, nil
	}
	p.watcher.Attach(srv.Watcher(), srv.Hot())
	return nil, nil
}
