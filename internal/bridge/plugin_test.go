package bridge

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/djbridge/internal/errors"
	"github.com/conneroisu/djbridge/internal/plugins"
)

type bridgeFixture struct {
	dir     string
	hotFile string
	calls   int
	state   *ProcessState
	signals *fakeSignals
	sched   *immediate
	banner  *bytes.Buffer
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()
	dir := t.TempDir()
	signals := newFakeSignals()
	return &bridgeFixture{
		dir:     dir,
		hotFile: filepath.Join(dir, "static", ".hotfile"),
		state:   NewProcessState(append(signals.options(), WithExitFunc(func(int) {}))...),
		signals: signals,
		sched:   &immediate{},
		banner:  &bytes.Buffer{},
	}
}

func (f *bridgeFixture) runner() Runner {
	return RunnerFunc(func(context.Context, string, ...string) ([]byte, error) {
		f.calls++
		return []byte(fmt.Sprintf(`{
			"DJANGO_VERSION": "4.2.1",
			"BUILD_URL_PREFIX": "/static/dist/",
			"HOT_FILE": %q,
			"APP_DIRS": {"blog": %q}
		}`, f.hotFile, filepath.Join(f.dir, "blog"))), nil
	})
}

func (f *bridgeFixture) options() []Option {
	return []Option{
		WithRunner(f.runner()),
		WithProcessState(f.state),
		WithAliasDir(f.dir),
		WithBannerWriter(f.banner),
		withAfterFunc(f.sched.afterFunc),
	}
}

func (f *bridgeFixture) newPlugins(t *testing.T, in Input) []plugins.Plugin {
	t.Helper()
	ps, err := New(context.Background(), in, f.options()...)
	require.NoError(t, err)
	return ps
}

func TestNewReturnsCoreThenReloader(t *testing.T) {
	f := newBridgeFixture(t)
	ps := f.newPlugins(t, Entry("src/main.ts"))

	require.Len(t, ps, 2)
	assert.Equal(t, PluginName, ps[0].Name())
	assert.Equal(t, ReloaderName, ps[1].Name())
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, "4.2.1", f.state.BackendVersion())

	_, ok := ps[0].(plugins.ConfigHook)
	assert.True(t, ok)
	_, ok = ps[1].(plugins.ServerHook)
	assert.True(t, ok)
}

func TestNewBackendFailureAborts(t *testing.T) {
	runner := RunnerFunc(func(context.Context, string, ...string) ([]byte, error) {
		return nil, stderrors.New("python: not found")
	})

	ps, err := New(context.Background(), Entry("a.js"), WithRunner(runner))
	require.Error(t, err)
	assert.Nil(t, ps)
	assert.True(t, errors.IsBackendError(err))
}

func TestNewMalformedReplyAborts(t *testing.T) {
	runner := RunnerFunc(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("not json"), nil
	})

	_, err := New(context.Background(), Entry("a.js"), WithRunner(runner))
	require.Error(t, err)
	assert.True(t, errors.IsSetupFatal(err))
}

func TestNewWithoutInputSkipsBackend(t *testing.T) {
	f := newBridgeFixture(t)
	_, err := New(context.Background(), Entries{}, f.options()...)
	require.Error(t, err)
	assert.Zero(t, f.calls)
}

func TestNewWritesAliasFile(t *testing.T) {
	f := newBridgeFixture(t)

	f.newPlugins(t, Options{Input: []string{"a.js"}})
	assert.NoFileExists(t, filepath.Join(f.dir, AliasFileName))

	f.newPlugins(t, Options{Input: []string{"a.js"}, AddAliases: true})
	assert.FileExists(t, filepath.Join(f.dir, AliasFileName))
}

func TestNewAliasFileFailureIsNotFatal(t *testing.T) {
	f := newBridgeFixture(t)
	opts := append(f.options(), WithAliasDir(filepath.Join(f.dir, "missing")))

	ps, err := New(context.Background(), Options{Input: []string{"a.js"}, AddAliases: true}, opts...)
	require.NoError(t, err)
	assert.Len(t, ps, 2)
}

func TestLoad(t *testing.T) {
	f := newBridgeFixture(t)
	cfg, err := Load(context.Background(), Entry("a.js"), WithRunner(f.runner()))
	require.NoError(t, err)
	assert.Equal(t, f.hotFile, cfg.HotFile())
}

func resolveHost(t *testing.T, ps []plugins.Plugin, user plugins.HostConfig, cmd plugins.Command) *plugins.ResolvedHostConfig {
	t.Helper()
	m := plugins.NewManager(nil)
	require.NoError(t, m.Register(ps...))
	cfg, err := m.ResolveConfig(user, plugins.ConfigEnv{Command: cmd, Mode: "development"})
	require.NoError(t, err)
	return cfg
}

func TestConfigHookServe(t *testing.T) {
	f := newBridgeFixture(t)
	ps := f.newPlugins(t, Options{Input: []string{"src/main.ts"}, Root: "../project"})

	host := resolveHost(t, ps, plugins.HostConfig{}, plugins.CommandServe)

	assert.Equal(t, "../project", host.Root)
	assert.Empty(t, host.Base)
	assert.Equal(t, PlaceholderOrigin, host.Server.Origin)
	assert.Equal(t, []string{"src/main.ts"}, host.Build.Input)
	assert.True(t, *host.Build.Manifest)
	assert.Equal(t, []plugins.Alias{
		{Find: "@s:blog", Replacement: filepath.Join(f.dir, "blog", "static")},
		{Find: "@t:blog", Replacement: filepath.Join(f.dir, "blog", "templates")},
	}, host.Resolve.Alias)
}

func TestConfigHookBuild(t *testing.T) {
	f := newBridgeFixture(t)
	ps := f.newPlugins(t, Entry("src/main.ts"))

	host := resolveHost(t, ps, plugins.HostConfig{}, plugins.CommandBuild)

	assert.Equal(t, "/static/dist/", host.Base)
	assert.Empty(t, host.Server.Origin)
	assert.Equal(t, DefaultRoot, host.Root)
}

func TestConfigHookUserValuesWin(t *testing.T) {
	f := newBridgeFixture(t)
	ps := f.newPlugins(t, Options{Input: []string{"a.js"}, Root: "../project"})

	user := plugins.HostConfig{
		Root:    "./",
		Server:  plugins.ServerOptions{Origin: "https://cdn.example.test"},
		Build:   plugins.BuildOptions{Sourcemap: plugins.Bool(true)},
		Resolve: plugins.ResolveOptions{Alias: []plugins.Alias{{Find: "@s:blog", Replacement: "/custom"}}},
	}
	host := resolveHost(t, ps, user, plugins.CommandServe)

	assert.Equal(t, "./", host.Root)
	assert.Equal(t, "https://cdn.example.test", host.Server.Origin)
	assert.True(t, *host.Build.Sourcemap)
	assert.Equal(t, "/custom", host.Resolve.Alias[0].Replacement)
	assert.Len(t, host.Resolve.Alias, 2)
}

func TestListeningPublishesURL(t *testing.T) {
	f := newBridgeFixture(t)
	ps := f.newPlugins(t, Entry("src/main.ts"))
	host := resolveHost(t, ps, plugins.HostConfig{}, plugins.CommandServe)

	m := plugins.NewManager(nil)
	require.NoError(t, m.Register(ps...))
	srv := newFakeServer(host)
	post, err := m.ConfigureServer(srv)
	require.NoError(t, err)
	require.Len(t, post, 1)

	core := ps[0].(plugins.TransformHook)
	code := `import "` + PlaceholderOrigin + `/src/a.js"`

	// before the listener binds nothing is rewritten
	out, changed, err := core.Transform(context.Background(), code, "/src/main.ts")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, code, out)

	srv.listen(&net.TCPAddr{IP: net.IPv4zero, Port: 5173})

	data, err := os.ReadFile(f.hotFile)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173", string(data))
	assert.True(t, f.state.Bound())
	assert.Contains(t, f.banner.String(), "DJANGO")
	assert.Contains(t, f.banner.String(), "http://localhost:5173")
	assert.Contains(t, f.sched.delays, bannerDelay)

	out, changed, err = core.Transform(context.Background(), code, "/src/main.ts")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, `import "http://localhost:5173/src/a.js"`, out)

	f.state.Cleanup()
	assert.NoFileExists(t, f.hotFile)
}

// listenAt configures fresh bridge plugins against a fake server and binds
// it to port, as a host restart in the same process would.
func (f *bridgeFixture) listenAt(t *testing.T, port int) {
	t.Helper()
	ps := f.newPlugins(t, Entry("src/main.ts"))
	host := resolveHost(t, ps, plugins.HostConfig{}, plugins.CommandServe)
	srv := newFakeServer(host)
	_, err := ps[0].(plugins.ServerHook).ConfigureServer(srv)
	require.NoError(t, err)
	srv.listen(&net.TCPAddr{IP: net.IPv4zero, Port: port})
}

func (f *bridgeFixture) exitOnSignal() chan int {
	exited := make(chan int, 1)
	f.state = NewProcessState(append(f.signals.options(), WithExitFunc(func(code int) { exited <- code }))...)
	return exited
}

func (f *bridgeFixture) terminate(t *testing.T, exited chan int, sig os.Signal) {
	t.Helper()
	c := <-f.signals.ch
	c <- sig
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("exit was not called")
	}
}

func TestSignalRemovesMarker(t *testing.T) {
	f := newBridgeFixture(t)
	exited := f.exitOnSignal()

	f.listenAt(t, 5173)
	require.FileExists(t, f.hotFile)

	f.terminate(t, exited, syscall.SIGTERM)
	assert.NoFileExists(t, f.hotFile)
}

func TestSignalRemovesMarkerAfterRestart(t *testing.T) {
	f := newBridgeFixture(t)
	exited := f.exitOnSignal()

	f.listenAt(t, 5173)
	f.state.Cleanup()
	require.NoFileExists(t, f.hotFile)

	f.listenAt(t, 5174)
	data, err := os.ReadFile(f.hotFile)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5174", string(data))

	f.terminate(t, exited, syscall.SIGTERM)
	assert.NoFileExists(t, f.hotFile)
	assert.Equal(t, int32(1), f.signals.calls.Load())
}

func TestListeningIgnoresNonTCP(t *testing.T) {
	f := newBridgeFixture(t)
	ps := f.newPlugins(t, Entry("src/main.ts"))
	host := resolveHost(t, ps, plugins.HostConfig{}, plugins.CommandServe)

	srv := newFakeServer(host)
	_, err := ps[0].(plugins.ServerHook).ConfigureServer(srv)
	require.NoError(t, err)

	srv.listen(&net.UnixAddr{Name: "/tmp/dev.sock", Net: "unix"})

	assert.NoFileExists(t, f.hotFile)
	assert.False(t, f.state.Bound())
}

func TestTerminationHandlerBoundOnceAcrossRestarts(t *testing.T) {
	f := newBridgeFixture(t)

	for port := 5173; port < 5176; port++ {
		ps := f.newPlugins(t, Entry("src/main.ts"))
		host := resolveHost(t, ps, plugins.HostConfig{}, plugins.CommandServe)
		srv := newFakeServer(host)
		_, err := ps[0].(plugins.ServerHook).ConfigureServer(srv)
		require.NoError(t, err)
		srv.listen(&net.TCPAddr{IP: net.IPv4zero, Port: port})
	}

	assert.Equal(t, int32(1), f.signals.calls.Load())
	data, err := os.ReadFile(f.hotFile)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5175", string(data))
}

func TestTransformSkippedInBuild(t *testing.T) {
	f := newBridgeFixture(t)
	ps := f.newPlugins(t, Entry("src/main.ts"))
	resolveHost(t, ps, plugins.HostConfig{}, plugins.CommandBuild)

	code := PlaceholderOrigin + "/a.js"
	out, changed, err := ps[0].(plugins.TransformHook).Transform(context.Background(), code, "a.js")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, code, out)
}

func TestInfoPageInstalledAfterHostHandlers(t *testing.T) {
	f := newBridgeFixture(t)
	ps := f.newPlugins(t, Entry("src/main.ts"))
	host := resolveHost(t, ps, plugins.HostConfig{}, plugins.CommandServe)

	srv := newFakeServer(host)
	post, err := ps[0].(plugins.ServerHook).ConfigureServer(srv)
	require.NoError(t, err)
	assert.Empty(t, srv.middlewares)

	post()
	require.Len(t, srv.middlewares, 1)

	h := srv.middlewares[0](http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, IndexPath, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "4.2.1")
}

func TestReloaderPlugin(t *testing.T) {
	f := newBridgeFixture(t)

	t.Run("enabled", func(t *testing.T) {
		ps := f.newPlugins(t, Options{Input: []string{"a.js"}, Reload: DefaultReload(), Watch: []string{"../project/blog"}})
		srv := newFakeServer(nil)
		_, err := ps[1].(plugins.ServerHook).ConfigureServer(srv)
		require.NoError(t, err)

		assert.Equal(t, []string{"../project/blog"}, srv.watcher.added)
		srv.watcher.emit("/srv/project/blog/templates/index.html")
		assert.Equal(t, []plugins.Payload{plugins.FullReload("*")}, srv.hot.payloads())
	})

	t.Run("disabled", func(t *testing.T) {
		ps := f.newPlugins(t, Options{Input: []string{"a.js"}, Reload: NoReload(), Watch: []string{"../project/blog"}})
		srv := newFakeServer(nil)
		_, err := ps[1].(plugins.ServerHook).ConfigureServer(srv)
		require.NoError(t, err)

		assert.Empty(t, srv.watcher.callbacks)
		assert.Empty(t, srv.watcher.added)
	})
}
