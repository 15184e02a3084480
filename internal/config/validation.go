package config

import (
	"net/url"
	"strings"

	"github.com/conneroisu/djbridge/internal/bridge"
	"github.com/conneroisu/djbridge/internal/errors"
	"github.com/conneroisu/djbridge/internal/logging"
)

// dangerousChars may not appear in hosts or paths handed to the backend.
var dangerousChars = []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}

// validateConfig collects every invalid field.
func validateConfig(config *Config) error {
	var errs errors.ValidationErrorCollection

	validateServerConfig(&config.Server, &errs)
	validateBridgeConfig(&config.Bridge, &errs)
	validateLogConfig(&config.Log, &errs)

	return errs.Err()
}

func validateServerConfig(config *ServerConfig, errs *errors.ValidationErrorCollection) {
	// 0 lets the system pick a port
	if config.Port < 0 || config.Port > 65535 {
		errs.AddField("server.port", config.Port, "port must be in range 0-65535")
	}

	if config.Host != "" {
		if containsDangerous(config.Host) {
			errs.AddField("server.host", config.Host, "host contains a dangerous character")
		}
	}

	if config.PublicHost != "" {
		if containsDangerous(config.PublicHost) || strings.Contains(config.PublicHost, "/") {
			errs.AddField("server.public_host", config.PublicHost, "public host must be a bare host name")
		}
	}

	if config.Origin != "" {
		u, err := url.Parse(config.Origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs.AddField("server.origin", config.Origin, "origin must be an absolute http(s) URL")
		}
	}

	for _, pattern := range config.AllowedOrigins {
		if pattern == "" || strings.Contains(pattern, "/") {
			errs.AddField("server.allowed_origins", pattern, "origin patterns match host[:port], e.g. localhost:*")
		}
	}

	if (config.TLSCert == "") != (config.TLSKey == "") {
		errs.AddField("server.tls_cert", config.TLSCert, "tls_cert and tls_key must be set together")
	}
}

func validateBridgeConfig(config *BridgeConfig, errs *errors.ValidationErrorCollection) {
	for _, entry := range config.Input {
		if err := validatePath(entry); err != nil {
			errs.AddField("bridge.input", entry, err.Error())
		}
	}

	if config.Root != "" {
		if err := validatePath(config.Root); err != nil {
			errs.AddField("bridge.root", config.Root, err.Error())
		}
	}

	if _, err := bridge.ParseReload(config.Reload); err != nil {
		errs.AddField("bridge.reload", config.Reload, err.Error())
	}

	if config.Delay < 0 {
		errs.AddField("bridge.delay", config.Delay, "delay cannot be negative")
	}

	if len(config.BackendCommand) == 0 || strings.TrimSpace(config.BackendCommand[0]) == "" {
		errs.AddField("bridge.backend_command", config.BackendCommand, "backend command is required")
	}
}

func validateLogConfig(config *LogConfig, errs *errors.ValidationErrorCollection) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		errs.AddField("log.level", config.Level, err.Error())
	}
	if config.Format != "text" && config.Format != "json" {
		errs.AddField("log.format", config.Format, "format must be text or json")
	}
}

// validatePath rejects empty paths, NUL bytes and shell metacharacters.
// Backend paths routinely live outside the working directory, so ".." is
// allowed.
func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidPath, "empty path")
	}
	if strings.ContainsRune(path, 0) {
		return errors.NewValidationError(errors.ErrCodeInvalidPath, "path contains NUL byte")
	}
	if containsDangerous(path) {
		return errors.NewValidationError(errors.ErrCodeInvalidPath, "path contains a dangerous character")
	}
	return nil
}

func containsDangerous(s string) bool {
	for _, char := range dangerousChars {
		if strings.Contains(s, char) {
			return true
		}
	}
	return false
}
