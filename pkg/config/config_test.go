package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
server:
  addr: ":9090"
  mode: "debug"

storage:
  documents_dir: "/var/lib/ragdesk"
  database_url: "postgres://localhost:5432/test"

embedding:
  provider: "hash"
  dimension: 256

rerank:
  provider: "cross-encoder"
  base_url: "http://localhost:8081"
  timeout: 5s

generation:
  default_provider: "openai"
  default_model: "gpt-4.1"
  max_tokens: 512
  endpoints:
    openai: "http://proxy.internal/v1"

tasks:
  workers: 4

search:
  initial_k: 20
  final_k: 5
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, ":9090", config.Server.Addr)
	assert.Equal(t, "/var/lib/ragdesk", config.Storage.DocumentsDir)
	assert.Equal(t, "hash", config.Embedding.Provider)
	assert.Equal(t, 256, config.Embedding.Dimension)
	assert.Equal(t, 5*time.Second, config.Rerank.Timeout)
	assert.Equal(t, "gpt-4.1", config.Generation.DefaultModel)
	assert.Equal(t, "http://proxy.internal/v1", config.Generation.Endpoints["openai"])
	assert.Equal(t, 4, config.Tasks.Workers)
	assert.Equal(t, 20, config.Search.InitialK)

	// Unset values fall back to defaults
	assert.Equal(t, 3, config.Search.TopK)
	require.NotNil(t, config.Search.HistoryTurns)
	assert.Equal(t, 3, *config.Search.HistoryTurns)
	assert.Equal(t, 2.0, config.Scraper.RateLimit)
	assert.Equal(t, 10*time.Second, config.Scraper.Timeout)

	assert.Empty(t, config.Validate())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	valid := func() Config {
		var c Config
		applyDefaults(&c)
		return c
	}

	tests := []struct {
		name          string
		mutate        func(*Config)
		errorMessages []string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name: "invalid config",
			mutate: func(c *Config) {
				c.Server.Mode = "fast"
				c.Storage.DatabaseURL = "mysql://localhost"
				c.Embedding.BaseURL = "invalid-url"
				c.Generation.DefaultModel = "gpt-4.1"
				c.Tasks.Workers = -1
			},
			errorMessages: []string{
				"server.mode: mode must be one of debug, release, test",
				"storage.database_url: invalid database URL",
				"embedding.base_url: invalid Ollama base URL",
				"generation.default_model: gpt-4.1 is not available for google-gemini",
				"tasks.workers: workers must be positive",
			},
		},
		{
			name: "openai embeddings need a key",
			mutate: func(c *Config) {
				c.Embedding.Provider = "openai"
			},
			errorMessages: []string{"embedding.api_key: api_key is required for the openai provider"},
		},
		{
			name: "cross-encoder needs an endpoint",
			mutate: func(c *Config) {
				c.Rerank.Provider = "cross-encoder"
			},
			errorMessages: []string{"rerank.base_url: cross-encoder base URL is required"},
		},
		{
			name: "search bounds",
			mutate: func(c *Config) {
				c.Search.TopK = 101
				c.Search.InitialK = 2
			},
			errorMessages: []string{
				"search.top_k: must be between 1 and 100",
				"search.final_k: final_k must not exceed initial_k",
			},
		},
		{
			name: "unknown endpoint provider",
			mutate: func(c *Config) {
				c.Generation.Endpoints = map[string]string{"acme": "http://acme"}
			},
			errorMessages: []string{"generation.endpoints: unknown provider: acme"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(&config)

			errors := config.Validate()
			require.Len(t, errors, len(tt.errorMessages))
			for i, msg := range tt.errorMessages {
				assert.Equal(t, msg, errors[i].Error())
			}
		})
	}
}

func TestLoadConfig_HistoryDisabled(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("search:\n  history_turns: 0\n"), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, config.Search.HistoryTurns)
	assert.Equal(t, 0, *config.Search.HistoryTurns)
	assert.Empty(t, config.Validate())

	*config.Search.HistoryTurns = -1
	errors := config.Validate()
	require.Len(t, errors, 1)
	assert.Equal(t, "search.history_turns: must be between 0 and 10", errors[0].Error())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("RAGDESK_LLM_API_KEY", "sk-env")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Storage.DatabaseURL)
	assert.Equal(t, "sk-env", config.Generation.APIKey)
}
