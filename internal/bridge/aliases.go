package bridge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/conneroisu/djbridge/internal/errors"
	"github.com/conneroisu/djbridge/internal/plugins"
)

// AliasFileName is the file WriteAliasFile produces. Editors pick it up via
// "extends" from jsconfig.json or tsconfig.json.
const AliasFileName = "jsconfig.djbridge.json"

// Alias token prefixes. "@s:blog" resolves to the blog app's static
// directory, "@t:blog" to its templates.
const (
	StaticAliasPrefix   = "@s:"
	TemplateAliasPrefix = "@t:"
	BaseAlias           = "@"
)

// AliasMap maps alias tokens to absolute directories.
type AliasMap map[string]string

// AppAliases derives the alias map from the backend's app directories.
func AppAliases(backend BackendConfig) AliasMap {
	m := make(AliasMap, len(backend.AppDirs)*2+1)
	if backend.BaseDir != "" {
		m[BaseAlias] = filepath.Clean(backend.BaseDir)
	}
	for label, dir := range backend.AppDirs {
		m[StaticAliasPrefix+label] = filepath.Join(dir, "static")
		m[TemplateAliasPrefix+label] = filepath.Join(dir, "templates")
	}
	return m
}

// Tokens returns the alias tokens in lexical order.
func (m AliasMap) Tokens() []string {
	tokens := make([]string, 0, len(m))
	for t := range m {
		tokens = append(tokens, t)
	}
	slices.Sort(tokens)
	return tokens
}

// HostAliases converts m to host aliases in token order, leaving out tokens
// the user already defines.
func (m AliasMap) HostAliases(user []plugins.Alias) []plugins.Alias {
	out := make([]plugins.Alias, 0, len(m))
	for _, token := range m.Tokens() {
		if slices.ContainsFunc(user, func(a plugins.Alias) bool { return a.Find == token }) {
			continue
		}
		out = append(out, plugins.Alias{Find: token, Replacement: m[token]})
	}
	return out
}

type aliasFile struct {
	CompilerOptions struct {
		BaseURL string              `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
	} `json:"compilerOptions"`
}

// WriteAliasFile writes m as compiler path mappings to AliasFileName inside
// dir and returns the file's path.
func WriteAliasFile(dir string, m AliasMap) (string, error) {
	var doc aliasFile
	doc.CompilerOptions.BaseURL = "."
	doc.CompilerOptions.Paths = make(map[string][]string, len(m))
	for token, target := range m {
		key := strings.TrimSuffix(token, "/") + "/*"
		doc.CompilerOptions.Paths[key] = []string{filepath.ToSlash(target) + "/*"}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", errors.NewInternalError(errors.ErrCodeAliasWrite, "cannot encode alias file", err)
	}

	path := filepath.Join(dir, AliasFileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", errors.NewIOError(errors.ErrCodeAliasWrite, "cannot write alias file", err).
			WithFile(path)
	}
	return path, nil
}
