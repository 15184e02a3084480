package bridge

import (
	"net"
	"sync"
	"time"

	"github.com/conneroisu/djbridge/internal/logging"
	"github.com/conneroisu/djbridge/internal/plugins"
)

type fakeHot struct {
	mu   sync.Mutex
	sent []plugins.Payload
}

func (h *fakeHot) Send(p plugins.Payload) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, p)
	return nil
}

func (h *fakeHot) payloads() []plugins.Payload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]plugins.Payload(nil), h.sent...)
}

type fakeWatcher struct {
	callbacks []func(string)
	added     []string
}

func (w *fakeWatcher) OnChange(fn func(path string)) { w.callbacks = append(w.callbacks, fn) }

func (w *fakeWatcher) Add(paths ...string) error {
	w.added = append(w.added, paths...)
	return nil
}

func (w *fakeWatcher) emit(path string) {
	for _, fn := range w.callbacks {
		fn(path)
	}
}

type fakeServer struct {
	cfg         *plugins.ResolvedHostConfig
	listeners   []func(net.Addr)
	middlewares []plugins.Middleware
	hot         *fakeHot
	watcher     *fakeWatcher
}

func newFakeServer(cfg *plugins.ResolvedHostConfig) *fakeServer {
	return &fakeServer{cfg: cfg, hot: &fakeHot{}, watcher: &fakeWatcher{}}
}

func (s *fakeServer) Config() *plugins.ResolvedHostConfig { return s.cfg }
func (s *fakeServer) OnListening(fn func(net.Addr))       { s.listeners = append(s.listeners, fn) }
func (s *fakeServer) Use(mw plugins.Middleware)           { s.middlewares = append(s.middlewares, mw) }
func (s *fakeServer) Hot() plugins.HotChannel             { return s.hot }
func (s *fakeServer) Watcher() plugins.Watcher            { return s.watcher }
func (s *fakeServer) Logger() logging.Logger              { return logging.Nop() }

func (s *fakeServer) listen(addr net.Addr) {
	for _, fn := range s.listeners {
		fn(addr)
	}
}

// immediate runs scheduled functions synchronously and records the delays.
type immediate struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (i *immediate) afterFunc(d time.Duration, fn func()) {
	i.mu.Lock()
	i.delays = append(i.delays, d)
	i.mu.Unlock()
	fn()
}
