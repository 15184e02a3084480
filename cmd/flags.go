package cmd

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/djbridge/internal/bridge"
	"github.com/conneroisu/djbridge/internal/config"
)

// reloadValue is the --reload flag: true, false, or a regular expression.
// Invalid patterns are rejected while flags are parsed.
type reloadValue struct {
	raw string
}

var _ pflag.Value = (*reloadValue)(nil)

func newReloadValue(def string) *reloadValue {
	return &reloadValue{raw: def}
}

func (r *reloadValue) String() string { return r.raw }

func (r *reloadValue) Set(s string) error {
	if _, err := bridge.ParseReload(s); err != nil {
		return err
	}
	r.raw = strings.TrimSpace(s)
	return nil
}

func (r *reloadValue) Type() string { return "reload" }

// addBridgeFlags adds the bridge section flags and binds them to the
// configuration keys they override.
func addBridgeFlags(fs *pflag.FlagSet) {
	fs.String("root", "", "Django project directory (where manage.py lives)")
	fs.Var(newReloadValue(config.DefaultReload), "reload", "reload on template/Python changes: true, false, or a regular expression")
	fs.StringSlice("watch", nil, "extra files or directories to watch")
	fs.Duration("delay", 0, "delay before each full reload")
	fs.Bool("add-aliases", false, "write jsconfig.djbridge.json with the app aliases")
	fs.String("alias-dir", "", "directory the alias file is written to")
	fs.String("backend-command", "", `command that prints the Django settings (default "python manage.py djbridge")`)

	bind(fs, map[string]string{
		"bridge.root":            "root",
		"bridge.reload":          "reload",
		"bridge.watch":           "watch",
		"bridge.delay":           "delay",
		"bridge.add_aliases":     "add-aliases",
		"bridge.alias_dir":       "alias-dir",
		"bridge.backend_command": "backend-command",
	})
}

// addServerFlags adds the dev server flags.
func addServerFlags(fs *pflag.FlagSet) {
	fs.IntP("port", "p", 0, "dev server port (default 5173)")
	fs.String("host", "", "dev server host (default localhost)")
	fs.String("origin", "", "origin advertised to the browser instead of the bound address")
	fs.String("public-host", "", "host name advertised when binding all interfaces")

	bind(fs, map[string]string{
		"server.port":        "port",
		"server.host":        "host",
		"server.origin":      "origin",
		"server.public_host": "public-host",
	})
}

func bind(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = viper.BindPFlag(key, fs.Lookup(name))
	}
}
