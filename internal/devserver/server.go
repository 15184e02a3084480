// Package devserver is the development host's HTTP server. It serves project
// files through the plugin transform chain, runs the websocket live-update
// channel and the file watcher, and exposes all of it to plugins through the
// plugins.DevServer interface.
package devserver

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/djbridge/internal/errors"
	"github.com/conneroisu/djbridge/internal/logging"
	"github.com/conneroisu/djbridge/internal/plugins"
	"github.com/conneroisu/djbridge/internal/version"
	"github.com/conneroisu/djbridge/internal/watcher"
)

// IndexPath is what a request for "/" is rewritten to.
const IndexPath = "/index.html"

const (
	// DefaultDebounce groups bursts of file changes.
	DefaultDebounce = 300 * time.Millisecond

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server is the development server.
type Server struct {
	config  *plugins.ResolvedHostConfig
	manager *plugins.Manager
	logger  logging.Logger
	hub     *Hub
	watcher *watcher.FileWatcher
	watch   *watchAdapter

	mu        sync.Mutex
	pre       []plugins.Middleware
	post      []plugins.Middleware
	postPhase bool
	listeners []func(net.Addr)

	configureOnce sync.Once
	handler       http.Handler
	configureErr  error

	serverMutex sync.RWMutex
	httpServer  *http.Server
	addr        net.Addr

	shutdownOnce sync.Once
}

var _ plugins.DevServer = (*Server)(nil)

// New creates a server for the resolved host configuration. Plugins are not
// configured until Handler or Start is called.
func New(cfg *plugins.ResolvedHostConfig, manager *plugins.Manager, logger logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "host configuration is required")
	}
	if !cfg.IsServe() {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			"dev server needs a configuration resolved for serve, got "+string(cfg.Command))
	}
	if manager == nil {
		manager = plugins.NewManager(logger)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("devserver")

	fw, err := watcher.NewFileWatcher(DefaultDebounce)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeInvalidPath, "failed to create file watcher", err)
	}
	fw.SetLogger(logger)
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoNodeModulesFilter)
	fw.AddFilter(watcher.NoPyCacheFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)

	s := &Server{
		config:  cfg,
		manager: manager,
		logger:  logger,
		hub:     NewHub(cfg.Server.AllowedOrigins, logger),
		watcher: fw,
		watch:   &watchAdapter{fw: fw},
	}
	fw.AddHandler(s.handleFileChanges)

	return s, nil
}

// Config returns the frozen host configuration.
func (s *Server) Config() *plugins.ResolvedHostConfig { return s.config }

// OnListening registers fn to run each time Start binds its listener.
func (s *Server) OnListening(fn func(addr net.Addr)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Use adds a middleware. Middlewares added while plugins are being
// configured run before the built-in routes; those added from the returned
// post callbacks run after them.
func (s *Server) Use(mw plugins.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.postPhase {
		s.post = append(s.post, mw)
		return
	}
	s.pre = append(s.pre, mw)
}

// Hot returns the live-update channel.
func (s *Server) Hot() plugins.HotChannel { return s.hub }

// Watcher returns the file watcher.
func (s *Server) Watcher() plugins.Watcher { return s.watch }

// Logger returns the server logger.
func (s *Server) Logger() logging.Logger { return s.logger }

// Addr returns the bound address, or nil before Start has bound it.
func (s *Server) Addr() net.Addr {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	return s.addr
}

// Handler configures the plugins on first use and returns the request
// pipeline.
func (s *Server) Handler() (http.Handler, error) {
	s.configureOnce.Do(func() {
		post, err := s.manager.ConfigureServer(s)
		if err != nil {
			s.configureErr = err
			return
		}

		s.mu.Lock()
		s.postPhase = true
		s.mu.Unlock()

		for _, fn := range post {
			fn()
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.handler = s.buildHandler()
	})
	return s.handler, s.configureErr
}

func (s *Server) buildHandler() http.Handler {
	var tail http.Handler = newStaticHandler(s.config, s.manager, s.logger)
	for i := len(s.post) - 1; i >= 0; i-- {
		tail = s.post[i](tail)
	}

	mux := http.NewServeMux()
	mux.Handle(WSPath, s.hub)
	mux.HandleFunc(ClientPath, serveClientScript)
	mux.HandleFunc(HealthPath, s.handleHealth)
	mux.Handle("/", indexFallback(tail))

	var h http.Handler = mux
	for i := len(s.pre) - 1; i >= 0; i-- {
		h = s.pre[i](h)
	}

	return s.addMiddleware(h)
}

// indexFallback rewrites "/" to IndexPath.
func indexFallback(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			r2 := r.Clone(r.Context())
			r2.URL.Path = IndexPath
			r2.URL.RawPath = ""
			next.ServeHTTP(w, r2)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// addMiddleware adds CORS for backend-rendered pages and request logging.
func (s *Server) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// isAllowedOrigin matches the origin's host against the allowed patterns.
func (s *Server) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	for _, pattern := range s.config.Server.AllowedOrigins {
		if ok, _ := path.Match(strings.ToLower(pattern), strings.ToLower(u.Host)); ok {
			return true
		}
	}
	return false
}

// Start configures plugins, starts the watcher, binds the listener, runs the
// listening callbacks and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	if err := s.watcher.AddRecursive(s.config.Root, watcher.IgnoredDir); err != nil {
		s.logger.Warn(ctx, err, "Failed to watch project root", "root", s.config.Root)
	}
	if err := s.watcher.Start(ctx); err != nil {
		s.logger.Warn(ctx, err, "Failed to start file watcher")
	}

	address := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return errors.NewNetworkError(errors.ErrCodeListen, "failed to listen on "+address, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.serverMutex.Lock()
	s.httpServer = srv
	s.addr = ln.Addr()
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Dev server listening", "addr", ln.Addr().String(), "root", s.config.Root)
	s.notifyListening(ln.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(shutdownCtx, err, "Shutdown incomplete")
		}
	}()

	if tls := s.config.Server.HTTPS; tls.Enabled() {
		err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
	} else {
		err = srv.Serve(ln)
	}
	if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.NewNetworkError(errors.ErrCodeListen, "server error", err)
	}
	return nil
}

func (s *Server) notifyListening(addr net.Addr) {
	s.mu.Lock()
	listeners := append([]func(net.Addr){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(addr)
	}
}

// handleFileChanges reloads browsers when a served source changes. HTML is
// left to plugins: in a backend project it is templates.
func (s *Server) handleFileChanges(events []watcher.ChangeEvent) error {
	for _, event := range events {
		if IsSource(event.Path) && strings.ToLower(filepath.Ext(event.Path)) != ".html" {
			s.logger.Debug(context.Background(), "Source changed", "path", event.Path, "type", event.Type.String())
			return s.hub.Send(plugins.FullReload("*"))
		}
	}
	return nil
}

// Shutdown stops the watcher, disconnects clients and shuts the HTTP server
// down. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Debug(ctx, "Shutting down dev server")

		s.hub.Close()

		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn(ctx, err, "Failed to stop file watcher")
		}

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

// handleHealth reports server status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"build_info": version.GetBuildInfo(),
		"clients":    s.hub.ClientCount(),
		"watched":    len(s.watcher.WatchedPaths()),
		"root":       s.config.Root,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}
