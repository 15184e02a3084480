package bridge

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// terminationSignals end the process and must remove the marker file first.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

// ProcessState is the per-process state shared by every bridge created in
// this process: the cached backend version and the one-time termination
// handler. Create one per process and pass it to New with WithProcessState.
type ProcessState struct {
	mu             sync.Mutex
	backendVersion string
	bound          bool
	cleaned        bool
	cleanups       []func()

	notify func(c chan<- os.Signal, sig ...os.Signal)
	stop   func(c chan<- os.Signal)
	exit   func(code int)
}

// ProcessOption configures a ProcessState.
type ProcessOption func(*ProcessState)

// WithExitFunc replaces os.Exit as the action taken after cleanup when a
// termination signal arrives.
func WithExitFunc(fn func(code int)) ProcessOption {
	return func(s *ProcessState) { s.exit = fn }
}

// WithSignalNotify replaces signal.Notify.
func WithSignalNotify(fn func(c chan<- os.Signal, sig ...os.Signal)) ProcessOption {
	return func(s *ProcessState) { s.notify = fn }
}

// WithSignalStop replaces signal.Stop.
func WithSignalStop(fn func(c chan<- os.Signal)) ProcessOption {
	return func(s *ProcessState) { s.stop = fn }
}

// NewProcessState creates process state with no cached version and no
// handlers bound.
func NewProcessState(opts ...ProcessOption) *ProcessState {
	s := &ProcessState{
		notify: signal.Notify,
		stop:   signal.Stop,
		exit:   os.Exit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CacheBackendVersion records v unless a version is already cached, and
// returns the cached value.
func (s *ProcessState) CacheBackendVersion(v string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backendVersion == "" {
		s.backendVersion = v
	}
	return s.backendVersion
}

// BackendVersion returns the cached backend version, or "".
func (s *ProcessState) BackendVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backendVersion
}

// BindTermination installs the termination handler the first time it is
// called and reports whether it did. Later calls install nothing, so
// restarting the dev server never stacks handlers, but they re-arm the
// cleanups: a marker published after a graceful Cleanup is removed again on
// the next signal. On a termination signal the handler runs cleanup and then
// exits with 128 plus the signal number.
func (s *ProcessState) BindTermination(cleanup func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bound {
		s.cleaned = false
		return false
	}
	s.bound = true
	if cleanup != nil {
		s.cleanups = append(s.cleanups, cleanup)
	}

	ch := make(chan os.Signal, 1)
	s.notify(ch, terminationSignals...)
	go s.await(ch)

	return true
}

// Bound reports whether the termination handler is installed.
func (s *ProcessState) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

func (s *ProcessState) await(ch chan os.Signal) {
	sig, ok := <-ch
	if !ok {
		return
	}
	// a second signal during shutdown gets the default behaviour
	s.stop(ch)
	s.Cleanup()
	s.exit(exitCode(sig))
}

// Cleanup runs the registered cleanups once per binding. It is the
// graceful-exit path; signal delivery calls it too.
func (s *ProcessState) Cleanup() {
	s.mu.Lock()
	if s.cleaned {
		s.mu.Unlock()
		return
	}
	s.cleaned = true
	cleanups := s.cleanups
	s.mu.Unlock()

	for _, fn := range cleanups {
		fn()
	}
}

func exitCode(sig os.Signal) int {
	if n, ok := sig.(syscall.Signal); ok {
		return 128 + int(n)
	}
	return 1
}
