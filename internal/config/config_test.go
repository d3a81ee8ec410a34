// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the config directory at a temp dir and clears env overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MDNOTE_CONFIG_DIR", dir)
	for _, k := range []string{
		"MDNOTE_API_KEY", "OPENAI_API_KEY", "MDNOTE_SERVER_URL", "MDNOTE_MODEL",
		"MDNOTE_NOTES_URL", "MDNOTE_LOG_LEVEL", "MDNOTE_CONTEXT_LIMIT",
	} {
		t.Setenv(k, "")
	}
	return dir
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.openai.com/v1", cfg.ServerURL)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Model)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-9)
	assert.Equal(t, 2000, cfg.MaxTokens)
	assert.Equal(t, 20, cfg.ContextLimit)
	assert.Equal(t, "http://localhost:5000", cfg.NotesURL)
	assert.Empty(t, cfg.APIKey)
	assert.False(t, Exists())
}

func TestLoad_TOMLPartialFileKeepsDefaults(t *testing.T) {
	dir := isolate(t)
	content := `
api_key = "sk-from-file"
model = "gpt-4"
temperature = 0.0
context_limit = 4

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assistant.toml"), []byte(content), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-from-file", cfg.APIKey)
	assert.Equal(t, "gpt-4", cfg.Model)
	assert.Zero(t, cfg.Temperature, "explicit zero temperature must survive defaults")
	assert.Equal(t, 4, cfg.ContextLimit)
	assert.Equal(t, 2000, cfg.MaxTokens)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, Exists())

	info, err := os.Stat(filepath.Join(dir, "assistant.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "permissions narrowed on load")
}

func TestLoad_JSONFallback(t *testing.T) {
	dir := isolate(t)
	content := `{"serverUrl_ignored": true, "server_url": "http://localhost:8080/v1", "max_tokens": 512}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assistant.json"), []byte(content), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/v1", cfg.ServerURL)
	assert.Equal(t, 512, cfg.MaxTokens)
}

func TestLoad_TOMLWinsOverJSON(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assistant.toml"), []byte(`model = "from-toml"`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assistant.json"), []byte(`{"model":"from-json"}`), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-toml", cfg.Model)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assistant.toml"), []byte(`temperature = 3.5`), 0600))

	_, err := Load()
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, "temperature", verrs[0].Field)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assistant.toml"), []byte(`api_key = "file-key"`), 0600))

	t.Setenv("MDNOTE_API_KEY", "env-key")
	t.Setenv("MDNOTE_MODEL", "gpt-4-turbo-preview")
	t.Setenv("MDNOTE_SERVER_URL", "http://127.0.0.1:9999/v1")
	t.Setenv("MDNOTE_LOG_LEVEL", "warn")
	t.Setenv("MDNOTE_CONTEXT_LIMIT", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "gpt-4-turbo-preview", cfg.Model)
	assert.Equal(t, "http://127.0.0.1:9999/v1", cfg.ServerURL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 7, cfg.ContextLimit)
}

func TestApplyEnvOverrides_OpenAIKeyFallback(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "sk-openai", cfg.APIKey)

	cfg.APIKey = "configured"
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "configured", cfg.APIKey)
}

// =============================================================================
// SAVE TESTS
// =============================================================================

func TestSaveAndReload(t *testing.T) {
	dir := isolate(t)

	cfg := Default()
	cfg.APIKey = "sk-saved"
	cfg.Model = "gpt-4"
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	require.NoError(t, Save(cfg))

	path := filepath.Join(dir, "assistant.toml")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# mdnote assistant configuration"))

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-saved", loaded.APIKey)
	assert.Equal(t, "gpt-4", loaded.Model)
	assert.Equal(t, cfg.Server.AllowedOrigins, loaded.Server.AllowedOrigins)
}

func TestSaveJSON_LoadFromPath(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.json")

	cfg := Default()
	cfg.MaxTokens = 4096
	require.NoError(t, SaveJSON(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 4096, loaded.MaxTokens)
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"bad server url scheme", func(c *Config) { c.ServerURL = "ftp://x" }, "server_url"},
		{"server url without host", func(c *Config) { c.ServerURL = "http://" }, "server_url"},
		{"bad notes url", func(c *Config) { c.NotesURL = "localhost:5000" }, "notes_url"},
		{"empty model", func(c *Config) { c.Model = " " }, "model"},
		{"negative temperature", func(c *Config) { c.Temperature = -0.1 }, "temperature"},
		{"temperature too high", func(c *Config) { c.Temperature = 2.1 }, "temperature"},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }, "max_tokens"},
		{"too many tokens", func(c *Config) { c.MaxTokens = 200000 }, "max_tokens"},
		{"zero context limit", func(c *Config) { c.ContextLimit = 0 }, "context_limit"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log output", func(c *Config) { c.Log.Output = "syslog" }, "log.output"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitPerMinute = -1 }, "server.rate_limit_per_minute"},
		{"bad origin", func(c *Config) { c.Server.AllowedOrigins = []string{"nope"} }, "server.allowed_origins"},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidate_WildcardOrigin(t *testing.T) {
	cfg := Default()
	cfg.Server.AllowedOrigins = []string{"*"}
	assert.NoError(t, cfg.Validate())
}

func TestSetDefaults_LogFilePath(t *testing.T) {
	dir := isolate(t)
	cfg := &Config{Log: LogConfig{Output: "file"}}
	cfg.SetDefaults()
	assert.Equal(t, filepath.Join(dir, "mdnote.log"), cfg.Log.FilePath)
}

// =============================================================================
// GET/SET TESTS
// =============================================================================

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("model", "gpt-4"))
	require.NoError(t, cfg.Set("temperature", "1.2"))
	require.NoError(t, cfg.Set("max-tokens", "300"))
	require.NoError(t, cfg.Set("log.level", "debug"))
	require.NoError(t, cfg.Set("server.allowed_origins", "http://a.test, http://b.test"))
	require.NoError(t, cfg.Set("context_limit", 5))

	v, err := cfg.Get("model")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", v)

	assert.InDelta(t, 1.2, cfg.Temperature, 1e-9)
	assert.Equal(t, 300, cfg.MaxTokens)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5, cfg.ContextLimit)

	v, err = cfg.Get("LOG.LEVEL")
	require.NoError(t, err)
	assert.Equal(t, "debug", v)
}

func TestGetSet_Errors(t *testing.T) {
	cfg := Default()

	_, err := cfg.Get("")
	assert.Error(t, err)
	_, err = cfg.Get("nope")
	assert.Error(t, err)
	_, err = cfg.Get("log")
	assert.Error(t, err, "sections are not values")
	_, err = cfg.Get("model.name")
	assert.Error(t, err)

	assert.Error(t, cfg.Set("max_tokens", "many"))
	assert.Error(t, cfg.Set("temperature", "warm"))
	assert.Error(t, cfg.Set("model", nil))
}

func TestKeys(t *testing.T) {
	keys := Keys()
	for _, want := range []string{"api_key", "model", "log.level", "server.addr", "server.allowed_origins"} {
		assert.Contains(t, keys, want)
	}
	for _, k := range keys {
		_, err := Default().Get(k)
		assert.NoError(t, err, k)
	}
}

// =============================================================================
// CONVERSION TESTS
// =============================================================================

func TestString_RedactsKey(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "sk-very-secret"
	out := cfg.String()
	assert.NotContains(t, out, "sk-very-secret")
	assert.Contains(t, out, "[REDACTED]")
	assert.Equal(t, "sk-very-secret", cfg.APIKey, "original untouched")
}

func TestClone_Independent(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Server.AllowedOrigins[0] = "http://changed"
	assert.Equal(t, "http://localhost:3000", cfg.Server.AllowedOrigins[0])
}

func TestSessionConfig(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "k"
	sc := cfg.SessionConfig()
	assert.Equal(t, cfg.ServerURL, sc.BaseURL)
	assert.Equal(t, "k", sc.APIKey)
	assert.Equal(t, cfg.Model, sc.Model)
	assert.Equal(t, cfg.MaxTokens, sc.MaxTokens)

	lc := cfg.LoggingConfig()
	assert.Equal(t, cfg.Log.Level, lc.Level)
}
