// Package plugins defines the hook-based plugin API of the development host.
//
// A plugin is any value with a Name. The host discovers which lifecycle hooks
// a plugin takes part in by checking the optional interfaces below, and calls
// them at points of its own choosing:
//
//	Config          before the host configuration is frozen
//	ConfigResolved  once, with the frozen configuration
//	ConfigureServer when the dev server is created (serve only)
//	Transform       for every source unit the host serves
//
// Plugins that implement Enforcer run before (OrderPre) or after (OrderPost)
// plugins that do not; ties keep registration order.
package plugins

import (
	"context"
	"net"
	"net/http"

	"github.com/conneroisu/djbridge/internal/logging"
)

// Plugin is the minimal plugin contract.
type Plugin interface {
	// Name returns the unique name of the plugin
	Name() string
}

// Order controls when a plugin's hooks run relative to others.
type Order int

const (
	OrderPre    Order = -1
	OrderNormal Order = 0
	OrderPost   Order = 1
)

// Enforcer is implemented by plugins that need to run before or after the rest.
type Enforcer interface {
	Enforce() Order
}

// Command is the host operation being configured.
type Command string

const (
	CommandServe Command = "serve"
	CommandBuild Command = "build"
)

// ConfigEnv describes the invocation a config hook is running for.
type ConfigEnv struct {
	Command Command
	Mode    string
}

// ConfigHook may return a partial configuration that the host merges into
// the current one.
type ConfigHook interface {
	Plugin
	Config(user HostConfig, env ConfigEnv) (HostConfig, error)
}

// ConfigResolvedHook receives the frozen host configuration.
type ConfigResolvedHook interface {
	Plugin
	ConfigResolved(cfg *ResolvedHostConfig)
}

// TransformHook rewrites source code. The boolean result reports whether the
// plugin changed anything; when false the returned code is ignored.
type TransformHook interface {
	Plugin
	Transform(ctx context.Context, code, id string) (string, bool, error)
}

// ServerHook configures the dev server. The returned function, if any, runs
// after the host has installed its own handlers, so middlewares it adds sit
// behind the built-in routes.
type ServerHook interface {
	Plugin
	ConfigureServer(srv DevServer) (func(), error)
}

// Middleware wraps the next handler of the dev server pipeline.
type Middleware func(next http.Handler) http.Handler

// Payload is a message sent to browser clients over the live-update channel.
type Payload struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Payload types understood by the reload client.
const (
	PayloadConnected  = "connected"
	PayloadFullReload = "full-reload"
)

// FullReload returns the instruction to reload pages whose path matches.
// "*" reloads every page.
func FullReload(path string) Payload {
	return Payload{Type: PayloadFullReload, Path: path}
}

// HotChannel delivers payloads to every connected client.
type HotChannel interface {
	Send(p Payload) error
}

// Watcher is the host file watcher as seen by plugins.
type Watcher interface {
	// OnChange registers fn for every change event. Events are not debounced.
	OnChange(fn func(path string))

	// Add starts watching more files or directories.
	Add(paths ...string) error
}

// DevServer is the surface of the development server exposed to ServerHooks.
type DevServer interface {
	Config() *ResolvedHostConfig

	// OnListening registers fn to run once the HTTP listener is bound.
	OnListening(fn func(addr net.Addr))

	Use(mw Middleware)
	Hot() HotChannel
	Watcher() Watcher
	Logger() logging.Logger
}
