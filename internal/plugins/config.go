package plugins

import "slices"

// HostConfig is the configuration of the development host. Plugins receive
// it in Config hooks and return partial values that are merged into it.
type HostConfig struct {
	Root    string         `yaml:"root,omitempty"`
	Base    string         `yaml:"base,omitempty"`
	Server  ServerOptions  `yaml:"server"`
	Build   BuildOptions   `yaml:"build"`
	Resolve ResolveOptions `yaml:"resolve"`
}

// ServerOptions configures the dev server listener and its advertised origin.
type ServerOptions struct {
	Host           string      `yaml:"host,omitempty"`
	Port           int         `yaml:"port,omitempty"`
	Origin         string      `yaml:"origin,omitempty"`
	PublicHost     string      `yaml:"public_host,omitempty"`
	HTTPS          *TLSOptions `yaml:"https,omitempty"`
	AllowedOrigins []string    `yaml:"allowed_origins,omitempty"`
}

// TLSOptions holds the key material for serving over https.
type TLSOptions struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether both certificate and key are configured.
func (t *TLSOptions) Enabled() bool {
	return t != nil && t.CertFile != "" && t.KeyFile != ""
}

// BuildOptions configures production output. Pointer fields distinguish an
// explicit false from "not set".
type BuildOptions struct {
	OutDir      string        `yaml:"out_dir,omitempty"`
	Sourcemap   *bool         `yaml:"sourcemap,omitempty"`
	EmptyOutDir *bool         `yaml:"empty_out_dir,omitempty"`
	Manifest    *bool         `yaml:"manifest,omitempty"`
	Input       []string      `yaml:"input,omitempty"`
	Output      OutputOptions `yaml:"output"`
}

// OutputOptions holds per-asset naming patterns keyed by [name].
type OutputOptions struct {
	EntryFileNames string `yaml:"entry_file_names,omitempty"`
	ChunkFileNames string `yaml:"chunk_file_names,omitempty"`
	AssetFileNames string `yaml:"asset_file_names,omitempty"`
}

// Alias maps an import prefix to a replacement path.
type Alias struct {
	Find        string `yaml:"find"`
	Replacement string `yaml:"replacement"`
}

// ResolveOptions controls import resolution.
type ResolveOptions struct {
	Alias []Alias `yaml:"alias,omitempty"`
}

// ResolvedHostConfig is the frozen configuration handed to ConfigResolved
// hooks and the dev server. It must not be modified.
type ResolvedHostConfig struct {
	HostConfig `yaml:",inline"`
	Command    Command `yaml:"command"`
	Mode       string  `yaml:"mode"`
}

// IsServe reports whether the host is running the dev server.
func (r *ResolvedHostConfig) IsServe() bool {
	return r != nil && r.Command == CommandServe
}

// Clone returns a deep copy of c.
func (c HostConfig) Clone() HostConfig {
	out := c
	out.Server.AllowedOrigins = slices.Clone(c.Server.AllowedOrigins)
	if c.Server.HTTPS != nil {
		tls := *c.Server.HTTPS
		out.Server.HTTPS = &tls
	}
	out.Build.Sourcemap = cloneBool(c.Build.Sourcemap)
	out.Build.EmptyOutDir = cloneBool(c.Build.EmptyOutDir)
	out.Build.Manifest = cloneBool(c.Build.Manifest)
	out.Build.Input = slices.Clone(c.Build.Input)
	out.Resolve.Alias = slices.Clone(c.Resolve.Alias)
	return out
}

// MergeConfig overlays override onto base. Non-zero scalar fields of
// override win, pointer fields win when set, allowed origins are unioned and
// aliases are merged by Find with override replacing base in place.
func MergeConfig(base, override HostConfig) HostConfig {
	out := base.Clone()
	o := override.Clone()

	setString(&out.Root, o.Root)
	setString(&out.Base, o.Base)

	setString(&out.Server.Host, o.Server.Host)
	if o.Server.Port != 0 {
		out.Server.Port = o.Server.Port
	}
	setString(&out.Server.Origin, o.Server.Origin)
	setString(&out.Server.PublicHost, o.Server.PublicHost)
	if o.Server.HTTPS != nil {
		out.Server.HTTPS = o.Server.HTTPS
	}
	for _, origin := range o.Server.AllowedOrigins {
		if !slices.Contains(out.Server.AllowedOrigins, origin) {
			out.Server.AllowedOrigins = append(out.Server.AllowedOrigins, origin)
		}
	}

	setString(&out.Build.OutDir, o.Build.OutDir)
	if o.Build.Sourcemap != nil {
		out.Build.Sourcemap = o.Build.Sourcemap
	}
	if o.Build.EmptyOutDir != nil {
		out.Build.EmptyOutDir = o.Build.EmptyOutDir
	}
	if o.Build.Manifest != nil {
		out.Build.Manifest = o.Build.Manifest
	}
	if len(o.Build.Input) > 0 {
		out.Build.Input = o.Build.Input
	}
	setString(&out.Build.Output.EntryFileNames, o.Build.Output.EntryFileNames)
	setString(&out.Build.Output.ChunkFileNames, o.Build.Output.ChunkFileNames)
	setString(&out.Build.Output.AssetFileNames, o.Build.Output.AssetFileNames)

	out.Resolve.Alias = mergeAliases(out.Resolve.Alias, o.Resolve.Alias)

	return out
}

func mergeAliases(base, override []Alias) []Alias {
	for _, a := range override {
		i := slices.IndexFunc(base, func(b Alias) bool { return b.Find == a.Find })
		if i >= 0 {
			base[i] = a
			continue
		}
		base = append(base, a)
	}
	return base
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// Bool returns a pointer to b, for populating optional fields.
func Bool(b bool) *bool { return &b }
