// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a temp dir and clears DOCCHAT_* variables.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, k := range []string{EnvBackendURL, EnvListen, EnvProxyURL, EnvTurnTimeout, EnvLogLevel, EnvLogFormat, EnvLogFile} {
		t.Setenv(k, "")
	}
	t.Setenv(EnvNoColor, "")
	os.Unsetenv(EnvNoColor)
	return home
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Backend.URL != "http://0.0.0.0:8000/" {
		t.Errorf("Default Backend.URL = %q, want http://0.0.0.0:8000/", cfg.Backend.URL)
	}
	if cfg.Client.TurnTimeout != 2*time.Minute {
		t.Errorf("Default TurnTimeout = %v, want 2m", cfg.Client.TurnTimeout)
	}
	if len(cfg.Upload.AllowedExtensions) != 1 || cfg.Upload.AllowedExtensions[0] != ".pdf" {
		t.Errorf("Default AllowedExtensions = %v, want [.pdf]", cfg.Upload.AllowedExtensions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBackendURL, cfg.Backend.URL)
}

func TestLoadMissingExplicitPath(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadTOML(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
[backend]
url = "http://rag.internal:9000/"
response_header_timeout = "30s"

[server]
listen = ":8080"
rate_limit = 2.5

[client]
turn_timeout = "45s"

[upload]
allowed_extensions = ["PDF", "txt"]

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://rag.internal:9000/", cfg.Backend.URL)
	assert.Equal(t, 30*time.Second, cfg.Backend.ResponseHeaderTimeout)
	assert.Equal(t, 10*time.Second, cfg.Backend.ConnectTimeout, "unset keys keep defaults")
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 2.5, cfg.Server.RateLimit)
	assert.Equal(t, 45*time.Second, cfg.Client.TurnTimeout)
	assert.Equal(t, []string{".pdf", ".txt"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadTOMLUnknownKey(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
[backend]
ur1 = "http://typo/"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.ur1")
}

func TestLoadFromConfigDir(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".docchat")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[backend]\nurl = \"http://from-home:8000\"\n"), 0600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://from-home:8000", cfg.Backend.URL)
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "[backend]\nurl = \"http://file:8000/\"\n")

	t.Setenv(EnvBackendURL, "http://env:8000/")
	t.Setenv(EnvProxyURL, "http://proxy:3000")
	t.Setenv(EnvTurnTimeout, "90s")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvNoColor, "1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://env:8000/", cfg.Backend.URL, "env beats file")
	assert.Equal(t, "http://proxy:3000", cfg.Client.ProxyURL)
	assert.Equal(t, 90*time.Second, cfg.Client.TurnTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.UI.NoColor)
}

func TestEnvOverrideBadDuration(t *testing.T) {
	isolate(t)
	t.Setenv(EnvTurnTimeout, "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvTurnTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad scheme", func(c *Config) { c.Backend.URL = "ftp://x/" }, "backend.url"},
		{"no host", func(c *Config) { c.Backend.URL = "http:///query" }, "backend.url"},
		{"bad proxy", func(c *Config) { c.Client.ProxyURL = "localhost:3000" }, "client.proxy_url"},
		{"empty listen", func(c *Config) { c.Server.Listen = "" }, "server.listen"},
		{"negative timeout", func(c *Config) { c.Client.TurnTimeout = -time.Second }, "client.turn_timeout"},
		{"negative rate", func(c *Config) { c.Server.RateLimit = -1 }, "server.rate_limit"},
		{"zero burst", func(c *Config) { c.Server.RateBurst = 0 }, "server.rate_burst"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"fps", func(c *Config) { c.UI.MaxFPS = 500 }, "ui.max_fps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.True(t, strings.Contains(err.Error(), tt.field), "error %q should name %s", err, tt.field)
		})
	}
}

func TestValidateErrorsJoin(t *testing.T) {
	errs := ValidateErrors{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}
	assert.Equal(t, "a: bad; b: worse", errs.Error())
	assert.Equal(t, "no validation errors", ValidateErrors{}.Error())
}

func TestSetDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{Server: ServerConfig{RateLimit: 4}}
	cfg.SetDefaults()

	assert.Equal(t, DefaultBackendURL, cfg.Backend.URL)
	assert.Equal(t, 5, cfg.Server.RateBurst)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.NoError(t, cfg.Validate())
}
