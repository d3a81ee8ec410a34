// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/mdnote/internal/logging"
	"github.com/jeranaias/mdnote/internal/model"
	"github.com/jeranaias/mdnote/internal/session"
	"github.com/jeranaias/mdnote/internal/util"
)

// File names inside the config directory.
const (
	tomlFileName = "assistant.toml"
	jsonFileName = "assistant.json"
	logFileName  = "mdnote.log"

	conversationsDirName = "conversations"
)

// Limits enforced by Validate.
const (
	MaxTemperature = 2.0
	MaxMaxTokens   = 128000
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete mdnote configuration.
type Config struct {
	// Assistant settings. The names mirror the keys the editor stores.
	APIKey       string  `toml:"api_key" json:"api_key"`
	ServerURL    string  `toml:"server_url" json:"server_url"`
	SystemPrompt string  `toml:"system_prompt" json:"system_prompt"`
	Model        string  `toml:"model" json:"model"`
	Temperature  float64 `toml:"temperature" json:"temperature"`
	MaxTokens    int     `toml:"max_tokens" json:"max_tokens"`

	// ContextLimit is the number of messages kept in the transcript.
	ContextLimit int `toml:"context_limit" json:"context_limit"`

	// NotesURL is the base URL of the notes server used for analysis.
	NotesURL string `toml:"notes_url" json:"notes_url"`

	Log    LogConfig    `toml:"log" json:"log"`
	Server ServerConfig `toml:"server" json:"server"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level    string `toml:"level" json:"level"`
	Format   string `toml:"format" json:"format"`
	Output   string `toml:"output" json:"output"`
	FilePath string `toml:"file_path" json:"file_path"`
}

// ServerConfig holds settings for the assistant HTTP front.
type ServerConfig struct {
	Addr               string   `toml:"addr" json:"addr"`
	AllowedOrigins     []string `toml:"allowed_origins" json:"allowed_origins"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration with default values.
func Default() *Config {
	sc := session.DefaultConfig()
	return &Config{
		ServerURL:    sc.BaseURL,
		SystemPrompt: sc.SystemPrompt,
		Model:        sc.Model,
		Temperature:  sc.Temperature,
		MaxTokens:    sc.MaxTokens,
		ContextLimit: model.DefaultLimit,
		NotesURL:     "http://localhost:5000",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Server: ServerConfig{
			Addr:               "127.0.0.1:5055",
			AllowedOrigins:     []string{"http://localhost:3000"},
			RateLimitPerMinute: 60,
		},
	}
}

// SetDefaults fills empty fields with their default values. Zero numeric
// values that are valid settings (temperature) are left alone.
func (c *Config) SetDefaults() {
	d := Default()

	if c.ServerURL == "" {
		c.ServerURL = d.ServerURL
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = d.SystemPrompt
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.ContextLimit == 0 {
		c.ContextLimit = d.ContextLimit
	}
	if c.NotesURL == "" {
		c.NotesURL = d.NotesURL
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Log.Output == "" {
		c.Log.Output = d.Log.Output
	}
	if c.Log.Output == "file" && c.Log.FilePath == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Log.FilePath = filepath.Join(dir, logFileName)
		}
	}

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.RateLimitPerMinute == 0 {
		c.Server.RateLimitPerMinute = d.Server.RateLimitPerMinute
	}
}

// =============================================================================
// PATH FUNCTIONS
// =============================================================================

// ConfigDir returns the mdnote configuration directory path. MDNOTE_CONFIG_DIR
// overrides the default of ~/.mdnote.
func ConfigDir() (string, error) {
	if dir := os.Getenv("MDNOTE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".mdnote"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	return configFile(tomlFileName)
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	return configFile(jsonFileName)
}

// LogPath returns the default log file path.
func LogPath() (string, error) {
	return configFile(logFileName)
}

// ConversationsDir returns the directory of saved conversations.
func ConversationsDir() (string, error) {
	return configFile(conversationsDirName)
}

func configFile(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions narrows a config file to 0600 if needed.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config directory. The TOML file wins
// over the JSON file; with neither present the defaults are used.
func Load() (*Config, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(tomlPath); statErr == nil {
		return LoadFromPath(tomlPath)
	}

	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(jsonPath); statErr == nil {
		return LoadFromPath(jsonPath)
	}

	cfg := Default()
	return finish(cfg)
}

// LoadFromPath loads configuration from a specific file. Files ending in
// .json are decoded as JSON, anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// finish applies env overrides, defaults and validation.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys missing from the file keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		slog.Warn("could not ensure secure permissions on config file", "path", path, "error", err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("ignoring unknown config keys", "path", path, "keys", fmt.Sprint(undecoded))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		slog.Warn("could not ensure secure permissions on config file", "path", path, "error", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf strings.Builder
	buf.WriteString("# mdnote assistant configuration\n")
	buf.WriteString("# Holds your API key - keep this file private.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
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
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every field and returns all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := validateHTTPURL(c.ServerURL); err != nil {
		errs = append(errs, ValidationError{Field: "server_url", Message: err.Error()})
	}
	if err := validateHTTPURL(c.NotesURL); err != nil {
		errs = append(errs, ValidationError{Field: "notes_url", Message: err.Error()})
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, ValidationError{Field: "model", Message: "must not be empty"})
	}
	if c.Temperature < 0 || c.Temperature > MaxTemperature {
		errs = append(errs, ValidationError{
			Field:   "temperature",
			Message: fmt.Sprintf("must be between 0 and %.0f, got %g", MaxTemperature, c.Temperature),
		})
	}
	if c.MaxTokens < 1 || c.MaxTokens > MaxMaxTokens {
		errs = append(errs, ValidationError{
			Field:   "max_tokens",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxMaxTokens, c.MaxTokens),
		})
	}
	if c.ContextLimit < 1 {
		errs = append(errs, ValidationError{
			Field:   "context_limit",
			Message: fmt.Sprintf("must be at least 1, got %d", c.ContextLimit),
		})
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{Field: "log.level", Message: err.Error()})
	}
	if !oneOf(c.Log.Format, "text", "json") {
		errs = append(errs, ValidationError{Field: "log.format", Message: fmt.Sprintf("must be text or json, got %q", c.Log.Format)})
	}
	if !oneOf(c.Log.Output, "stderr", "stdout", "file", "discard") {
		errs = append(errs, ValidationError{Field: "log.output", Message: fmt.Sprintf("must be stderr, stdout, file or discard, got %q", c.Log.Output)})
	}

	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit_per_minute", Message: "must not be negative"})
	}
	for _, origin := range c.Server.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if err := validateHTTPURL(origin); err != nil {
			errs = append(errs, ValidationError{Field: "server.allowed_origins", Message: fmt.Sprintf("%q: %v", origin, err)})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %q", raw)
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return true
		}
	}
	return false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// OPENAI_API_KEY is used only when no key is configured at all.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MDNOTE_API_KEY"); v != "" {
		c.APIKey = v
	} else if c.APIKey == "" {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			c.APIKey = v
		}
	}
	if v := os.Getenv("MDNOTE_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("MDNOTE_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("MDNOTE_NOTES_URL"); v != "" {
		c.NotesURL = v
	}
	if v := os.Getenv("MDNOTE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MDNOTE_CONTEXT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ContextLimit = n
		}
	}
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// SessionConfig returns the settings a chat session needs.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		BaseURL:      c.ServerURL,
		APIKey:       c.APIKey,
		SystemPrompt: c.SystemPrompt,
		Model:        c.Model,
		Temperature:  c.Temperature,
		MaxTokens:    c.MaxTokens,
	}
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:    c.Log.Level,
		Format:   c.Log.Format,
		Output:   c.Log.Output,
		FilePath: c.Log.FilePath,
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	}
	return &clone
}

// String returns the config as indented JSON with the API key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.APIKey != "" {
		safe.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
