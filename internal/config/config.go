// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultBackendURL is used when neither the config file nor the environment
// names a backend.
const DefaultBackendURL = "http://0.0.0.0:8000/"

// Environment variables read by ApplyEnvOverrides.
const (
	EnvBackendURL  = "DOCCHAT_BACKEND_URL"
	EnvListen      = "DOCCHAT_LISTEN"
	EnvProxyURL    = "DOCCHAT_PROXY_URL"
	EnvTurnTimeout = "DOCCHAT_TURN_TIMEOUT"
	EnvLogLevel    = "DOCCHAT_LOG_LEVEL"
	EnvLogFormat   = "DOCCHAT_LOG_FORMAT"
	EnvLogFile     = "DOCCHAT_LOG_FILE"
	EnvNoColor     = "NO_COLOR"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete docchat configuration.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Server  ServerConfig  `toml:"server"`
	Client  ClientConfig  `toml:"client"`
	Upload  UploadConfig  `toml:"upload"`
	UI      UIConfig      `toml:"ui"`
	Log     LogConfig     `toml:"log"`
}

// BackendConfig describes the retrieval/generation backend.
type BackendConfig struct {
	// URL is the backend base URL; "/query" and "/documents/upload" are
	// resolved against it.
	URL string `toml:"url"`
	// ConnectTimeout bounds dialing the backend.
	ConnectTimeout time.Duration `toml:"connect_timeout"`
	// ResponseHeaderTimeout bounds the wait for the backend's status line.
	// The streamed body itself is not bounded.
	ResponseHeaderTimeout time.Duration `toml:"response_header_timeout"`
}

// ServerConfig contains the proxy forwarder settings.
type ServerConfig struct {
	Listen            string        `toml:"listen"`
	AllowedOrigins    []string      `toml:"allowed_origins"`
	TrustedProxies    []string      `toml:"trusted_proxies"`
	RateLimit         float64       `toml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst         int           `toml:"rate_burst"`
	ReadHeaderTimeout time.Duration `toml:"read_header_timeout"`
	IdleTimeout       time.Duration `toml:"idle_timeout"`
	MaxBodyBytes      int64         `toml:"max_body_bytes"`
	MaxUploadBytes    int64         `toml:"max_upload_bytes"`
}

// ClientConfig is used by the chat front ends to reach the proxy.
type ClientConfig struct {
	ProxyURL       string        `toml:"proxy_url"`
	TurnTimeout    time.Duration `toml:"turn_timeout"`
	ConnectTimeout time.Duration `toml:"connect_timeout"`
	RequestTimeout time.Duration `toml:"request_timeout"` // non-streaming calls
}

// UploadConfig controls which files the upload command accepts.
type UploadConfig struct {
	AllowedExtensions []string      `toml:"allowed_extensions"`
	MaxFileBytes      int64         `toml:"max_file_bytes"`
	WatchDebounce     time.Duration `toml:"watch_debounce"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	NoColor  bool `toml:"no_color"`
	WordWrap int  `toml:"word_wrap"`
	MaxFPS   int  `toml:"max_fps"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:                   DefaultBackendURL,
			ConnectTimeout:        10 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
		},
		Server: ServerConfig{
			Listen:            "127.0.0.1:3000",
			AllowedOrigins:    []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			RateLimit:         5,
			RateBurst:         10,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxBodyBytes:      1 << 20,
			MaxUploadBytes:    100 << 20,
		},
		Client: ClientConfig{
			ProxyURL:       "http://127.0.0.1:3000",
			TurnTimeout:    2 * time.Minute,
			ConnectTimeout: 10 * time.Second,
			RequestTimeout: 5 * time.Minute,
		},
		Upload: UploadConfig{
			AllowedExtensions: []string{".pdf"},
			MaxFileBytes:      50 << 20,
			WatchDebounce:     500 * time.Millisecond,
		},
		UI: UIConfig{
			WordWrap: 80,
			MaxFPS:   30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the docchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".docchat"), nil
}

// ConfigPath returns the path to the default TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the config file at path (or the default location when path is
// empty), applies environment overrides and validates the result. A missing
// default file is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := LoadTOML(cfg, path); err != nil {
				return nil, err
			}
		} else if explicit {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys the file does not mention keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnvOverrides applies DOCCHAT_* environment variables on top of the
// file settings.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv(EnvProxyURL); v != "" {
		c.Client.ProxyURL = v
	}
	if v := os.Getenv(EnvTurnTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTurnTimeout, err)
		}
		c.Client.TurnTimeout = d
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		c.Log.File = v
	}
	// NO_COLOR is set-means-true per no-color.org, but accept explicit false.
	if v, ok := os.LookupEnv(EnvNoColor); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.UI.NoColor = b
		} else {
			c.UI.NoColor = true
		}
	}
	return nil
}

// SetDefaults fills zero values left by a partial config file.
func (c *Config) SetDefaults() {
	d := Default()

	if strings.TrimSpace(c.Backend.URL) == "" {
		c.Backend.URL = d.Backend.URL
	}
	if c.Backend.ConnectTimeout == 0 {
		c.Backend.ConnectTimeout = d.Backend.ConnectTimeout
	}
	if c.Backend.ResponseHeaderTimeout == 0 {
		c.Backend.ResponseHeaderTimeout = d.Backend.ResponseHeaderTimeout
	}
	if c.Server.Listen == "" {
		c.Server.Listen = d.Server.Listen
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = d.Server.ReadHeaderTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = d.Server.IdleTimeout
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = d.Server.MaxUploadBytes
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst == 0 {
		c.Server.RateBurst = int(c.Server.RateLimit) + 1
	}
	if c.Client.ProxyURL == "" {
		c.Client.ProxyURL = d.Client.ProxyURL
	}
	if c.Client.TurnTimeout == 0 {
		c.Client.TurnTimeout = d.Client.TurnTimeout
	}
	if c.Client.ConnectTimeout == 0 {
		c.Client.ConnectTimeout = d.Client.ConnectTimeout
	}
	if c.Client.RequestTimeout == 0 {
		c.Client.RequestTimeout = d.Client.RequestTimeout
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		c.Upload.AllowedExtensions = d.Upload.AllowedExtensions
	}
	if c.Upload.MaxFileBytes == 0 {
		c.Upload.MaxFileBytes = d.Upload.MaxFileBytes
	}
	if c.Upload.WatchDebounce == 0 {
		c.Upload.WatchDebounce = d.Upload.WatchDebounce
	}
	if c.UI.WordWrap == 0 {
		c.UI.WordWrap = d.UI.WordWrap
	}
	if c.UI.MaxFPS == 0 {
		c.UI.MaxFPS = d.UI.MaxFPS
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	for i, ext := range c.Upload.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Upload.AllowedExtensions[i] = ext
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors if anything
// is wrong.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := validateHTTPURL(c.Backend.URL); err != nil {
		errs = append(errs, ValidationError{Field: "backend.url", Message: err.Error()})
	}
	if err := validateHTTPURL(c.Client.ProxyURL); err != nil {
		errs = append(errs, ValidationError{Field: "client.proxy_url", Message: err.Error()})
	}
	if c.Server.Listen == "" {
		errs = append(errs, ValidationError{Field: "server.listen", Message: "must not be empty"})
	}

	durations := map[string]time.Duration{
		"backend.connect_timeout":         c.Backend.ConnectTimeout,
		"backend.response_header_timeout": c.Backend.ResponseHeaderTimeout,
		"server.read_header_timeout":      c.Server.ReadHeaderTimeout,
		"server.idle_timeout":             c.Server.IdleTimeout,
		"client.turn_timeout":             c.Client.TurnTimeout,
		"client.connect_timeout":          c.Client.ConnectTimeout,
		"client.request_timeout":          c.Client.RequestTimeout,
		"upload.watch_debounce":           c.Upload.WatchDebounce,
	}
	for _, field := range slices.Sorted(maps.Keys(durations)) {
		if durations[field] < 0 {
			errs = append(errs, ValidationError{Field: field, Message: "must not be negative"})
		}
	}

	if c.Server.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit", Message: "must not be negative"})
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		errs = append(errs, ValidationError{Field: "server.rate_burst", Message: "must be at least 1 when rate limiting is enabled"})
	}
	if c.Server.MaxBodyBytes < 0 || c.Server.MaxUploadBytes < 0 || c.Upload.MaxFileBytes < 0 {
		errs = append(errs, ValidationError{Field: "size limits", Message: "must not be negative"})
	}
	for _, ext := range c.Upload.AllowedExtensions {
		if ext == "" || ext == "." {
			errs = append(errs, ValidationError{Field: "upload.allowed_extensions", Message: "empty extension"})
		}
	}
	if c.UI.MaxFPS < 0 || c.UI.MaxFPS > 120 {
		errs = append(errs, ValidationError{Field: "ui.max_fps", Message: fmt.Sprintf("%d out of range 1-120", c.UI.MaxFPS)})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: text, json", c.Log.Format),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// IsValidationError reports whether err came from Validate.
func IsValidationError(err error) bool {
	var ve ValidateErrors
	return errors.As(err, &ve)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
