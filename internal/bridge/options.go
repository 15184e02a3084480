package bridge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Input is what callers pass to New: a single entry point, an ordered list
// of entry points, or full Options. Normalize turns every case into Options.
type Input interface {
	normalize() Options
}

// Entry is a single entry point, e.g. "src/main.ts".
type Entry string

// Entries is an ordered list of entry points.
type Entries []string

func (e Entry) normalize() Options {
	o := DefaultOptions()
	o.Input = []string{string(e)}
	return o
}

func (e Entries) normalize() Options {
	o := DefaultOptions()
	o.Input = slices.Clone([]string(e))
	return o
}

func (o Options) normalize() Options {
	return o.clone()
}

// Normalize converts any Input variant into Options. A nil Input yields the
// defaults with no entry points.
func Normalize(in Input) Options {
	if in == nil {
		return DefaultOptions()
	}
	return in.normalize()
}

// Options are the user-supplied bridge settings.
type Options struct {
	// Input lists the entry points to bundle.
	Input []string

	// Root is the Django project directory; the backend configuration
	// command runs there. Defaults to ".".
	Root string

	// Reload decides which changed files trigger a full page reload.
	Reload Reload

	// Watch lists extra files or directories to add to the host watcher.
	Watch []string

	// Delay postpones each full-reload message.
	Delay time.Duration

	// AddAliases persists the alias map for editors and other tooling.
	AddAliases bool
}

// DefaultOptions returns the options used for bare entry points: reloading
// enabled with the default predicate, everything else zero.
func DefaultOptions() Options {
	return Options{Reload: DefaultReload()}
}

func (o Options) clone() Options {
	o.Input = slices.Clone(o.Input)
	o.Watch = slices.Clone(o.Watch)
	return o
}

// MarshalJSON encodes the options in the shape the backend command expects.
// The reload predicate cannot cross the process boundary; only whether it
// is enabled is sent.
func (o Options) MarshalJSON() ([]byte, error) {
	input := o.Input
	if input == nil {
		input = []string{}
	}
	watch := o.Watch
	if watch == nil {
		watch = []string{}
	}
	return json.Marshal(struct {
		Input      []string `json:"input"`
		Root       string   `json:"root,omitempty"`
		Reloader   bool     `json:"reloader"`
		Watch      []string `json:"watch"`
		Delay      int64    `json:"delay"`
		AddAliases bool     `json:"addAliases"`
	}{
		Input:      input,
		Root:       o.Root,
		Reloader:   o.Reload.Enabled(),
		Watch:      watch,
		Delay:      o.Delay.Milliseconds(),
		AddAliases: o.AddAliases,
	})
}

// defaultReloadPattern matches Django templates and Python sources.
var defaultReloadPattern = regexp.MustCompile(`\.(html|py)$`)

// DefaultReloadPredicate reports whether path is a template or Python file.
func DefaultReloadPredicate(path string) bool {
	return defaultReloadPattern.MatchString(path)
}

// Reload is the reload setting: disabled (the zero value), enabled with the
// default predicate, or enabled with a custom predicate.
type Reload struct {
	enabled bool
	match   func(path string) bool
	source  string
}

// NoReload disables full reloads.
func NoReload() Reload { return Reload{} }

// DefaultReload enables full reloads for templates and Python sources.
func DefaultReload() Reload { return Reload{enabled: true} }

// ReloadWhen enables full reloads for paths accepted by fn. A nil fn
// disables reloading.
func ReloadWhen(fn func(path string) bool) Reload {
	if fn == nil {
		return NoReload()
	}
	return Reload{enabled: true, match: fn, source: "func"}
}

// ReloadMatching enables full reloads for paths matching re.
func ReloadMatching(re *regexp.Regexp) Reload {
	if re == nil {
		return NoReload()
	}
	return Reload{enabled: true, match: re.MatchString, source: re.String()}
}

// ParseReload reads a reload setting from text: a boolean, or anything else
// as a regular expression over changed paths. The empty string disables
// reloading.
func ParseReload(s string) (Reload, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoReload(), nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		if b {
			return DefaultReload(), nil
		}
		return NoReload(), nil
	}
	re, err := regexp.Compile(s)
	if err != nil {
		return NoReload(), fmt.Errorf("reload pattern %q: %w", s, err)
	}
	return ReloadMatching(re), nil
}

// Enabled reports whether file changes can trigger a reload at all.
func (r Reload) Enabled() bool { return r.enabled }

// Predicate returns the function deciding whether a changed path triggers a
// reload, or nil when reloading is disabled.
func (r Reload) Predicate() func(path string) bool {
	if !r.enabled {
		return nil
	}
	if r.match == nil {
		return DefaultReloadPredicate
	}
	return r.match
}

// String describes the setting: "false", "true" or the custom pattern.
func (r Reload) String() string {
	switch {
	case !r.enabled:
		return "false"
	case r.match == nil:
		return "true"
	default:
		return r.source
	}
}
