package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the baseline config dir inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "baseline")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	setupTestHome(t)
	t.Setenv("BASELINE_EMBEDDINGS_API_KEY", "test-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "gemini", cfg.Embeddings.Provider)
	assert.Equal(t, "text-embedding-004", cfg.Embeddings.Model)
	assert.Equal(t, 768, cfg.Embeddings.Dimension)
	assert.Equal(t, "user_progress", cfg.Memory.ProgressCollection)
	assert.Equal(t, "chat_data", cfg.Memory.ConversationCollection)
	assert.Equal(t, 5, cfg.Memory.DefaultSearchLimit)
	assert.Equal(t, FailurePolicyAbort, cfg.Ingestion.FailurePolicy)
	assert.Equal(t, 50, cfg.Ingestion.MinMessageLength)
	assert.Equal(t, "test-key", cfg.Embeddings.APIKey.Value())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
server:
  port: 8088
  shutdown_timeout: 3s
vectorstore:
  provider: chromem
embeddings:
  provider: hash
  dimension: 64
ingestion:
  failure_policy: partial
  concurrency: 2
`, 0600)

	t.Setenv("BASELINE_SERVER_PORT", "9999")
	t.Setenv("BASELINE_MEMORY_DEFAULT_SEARCH_LIMIT", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port, "env overrides yaml")
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "hash", cfg.Embeddings.Provider)
	assert.Equal(t, "hash-v1", cfg.Embeddings.Model)
	assert.Equal(t, 64, cfg.Embeddings.Dimension)
	assert.Equal(t, FailurePolicyPartial, cfg.Ingestion.FailurePolicy)
	assert.Equal(t, 2, cfg.Ingestion.Concurrency)
	assert.Equal(t, 7, cfg.Memory.DefaultSearchLimit)
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  port: 8080\n", 0644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_RejectsPathOutsideConfigDir(t *testing.T) {
	setupTestHome(t)
	outside := filepath.Join(t.TempDir(), "config.yaml")

	_, err := Load(outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"BASELINE_SERVER_PORT":              "server.port",
		"BASELINE_EMBEDDINGS_API_KEY":       "embeddings.api_key",
		"BASELINE_INGESTION_FAILURE_POLICY": "ingestion.failure_policy",
		"BASELINE_VECTORSTORE":              "vectorstore",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, envKey(in))
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Embeddings.Provider = "hash"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "invalid server port"},
		{name: "unknown store", mutate: func(c *Config) { c.VectorStore.Provider = "pinecone" }, wantErr: "unknown vectorstore provider"},
		{name: "unknown embedder", mutate: func(c *Config) { c.Embeddings.Provider = "word2vec" }, wantErr: "unknown embeddings provider"},
		{name: "gemini without key", mutate: func(c *Config) { c.Embeddings.Provider = "gemini" }, wantErr: "requires api_key"},
		{name: "tei without url", mutate: func(c *Config) { c.Embeddings.Provider = "tei" }, wantErr: "requires base_url"},
		{name: "same collections", mutate: func(c *Config) { c.Memory.ConversationCollection = c.Memory.ProgressCollection }, wantErr: "must differ"},
		{name: "bad policy", mutate: func(c *Config) { c.Ingestion.FailurePolicy = "retry" }, wantErr: "failure_policy"},
		{name: "nats without url", mutate: func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }, wantErr: "nats url"},
		{name: "bad log format", mutate: func(c *Config) { c.Observability.LogFormat = "xml" }, wantErr: "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "sk-live")
	assert.Equal(t, `"[REDACTED]"`, fmt.Sprintf("%q", s))
	assert.Equal(t, "sk-live-123", s.Value())

	data, err := json.Marshal(struct{ Key Secret }{Key: s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-live")

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}
