package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
		// Mode is gin's mode: debug, release or test.
		Mode string `yaml:"mode"`
	} `yaml:"server"`

	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`

	Storage struct {
		DocumentsDir   string `yaml:"documents_dir"`
		DatabaseURL    string `yaml:"database_url"`
		TablePrefix    string `yaml:"table_prefix"`
		MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	} `yaml:"storage"`

	Embedding struct {
		Provider  string `yaml:"provider"`
		BaseURL   string `yaml:"base_url"`
		Model     string `yaml:"model"`
		APIKey    string `yaml:"api_key"`
		BatchSize int    `yaml:"batch_size"`
		Dimension int    `yaml:"dimension"`
	} `yaml:"embedding"`

	Rerank struct {
		Provider string        `yaml:"provider"`
		BaseURL  string        `yaml:"base_url"`
		Model    string        `yaml:"model"`
		APIKey   string        `yaml:"api_key"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"rerank"`

	Generation struct {
		DefaultProvider string            `yaml:"default_provider"`
		DefaultModel    string            `yaml:"default_model"`
		APIKey          string            `yaml:"api_key"`
		MaxTokens       int               `yaml:"max_tokens"`
		Timeout         time.Duration     `yaml:"timeout"`
		OtherModel      string            `yaml:"other_model"`
		Endpoints       map[string]string `yaml:"endpoints"`
	} `yaml:"generation"`

	Tasks struct {
		Workers int `yaml:"workers"`
	} `yaml:"tasks"`

	Scraper struct {
		RateLimit float64       `yaml:"rate_limit"`
		Timeout   time.Duration `yaml:"timeout"`
		MaxBytes  int64         `yaml:"max_bytes"`
		UserAgent string        `yaml:"user_agent"`
	} `yaml:"scraper"`

	Processor struct {
		MinChunkLength int    `yaml:"min_chunk_length"`
		PDFToText      string `yaml:"pdftotext"`
	} `yaml:"processor"`

	Search struct {
		TopK     int `yaml:"top_k"`
		InitialK int `yaml:"initial_k"`
		FinalK   int `yaml:"final_k"`
		// HistoryTurns is nil when unset; 0 disables history replay.
		HistoryTurns *int `yaml:"history_turns"`
	} `yaml:"search"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/ragdesk/config.yaml"),
			"/etc/ragdesk/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.Mode == "" {
		config.Server.Mode = "release"
	}
	if config.Log.Mode == "" {
		config.Log.Mode = "production"
	}

	if config.Storage.DocumentsDir == "" {
		config.Storage.DocumentsDir = "documents"
	}
	if config.Storage.MaxUploadBytes == 0 {
		config.Storage.MaxUploadBytes = 20 << 20
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "ollama"
	}
	if config.Embedding.Provider == "ollama" && config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 64
	}
	if config.Embedding.Dimension == 0 {
		config.Embedding.Dimension = 1024
	}

	if config.Rerank.Provider == "" {
		config.Rerank.Provider = "lexical"
	}
	if config.Rerank.Timeout == 0 {
		config.Rerank.Timeout = 30 * time.Second
	}

	if config.Generation.DefaultProvider == "" {
		config.Generation.DefaultProvider = "google-gemini"
	}
	if config.Generation.DefaultModel == "" {
		config.Generation.DefaultModel = "gemini-2.5-flash"
	}
	if config.Generation.MaxTokens == 0 {
		config.Generation.MaxTokens = 1024
	}
	if config.Generation.Timeout == 0 {
		config.Generation.Timeout = 60 * time.Second
	}

	if config.Tasks.Workers == 0 {
		config.Tasks.Workers = 2
	}

	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 10 * time.Second
	}
	if config.Scraper.MaxBytes == 0 {
		config.Scraper.MaxBytes = 20 << 20
	}

	if config.Search.TopK == 0 {
		config.Search.TopK = 3
	}
	if config.Search.InitialK == 0 {
		config.Search.InitialK = 10
	}
	if config.Search.FinalK == 0 {
		config.Search.FinalK = 3
	}
	if config.Search.HistoryTurns == nil {
		turns := 3
		config.Search.HistoryTurns = &turns
	}
}

func mergeWithEnv(config *Config) {
	if addr := os.Getenv("RAGDESK_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if mode := os.Getenv("RAGDESK_LOG_MODE"); mode != "" {
		config.Log.Mode = mode
	}
	if dir := os.Getenv("RAGDESK_DOCUMENTS_DIR"); dir != "" {
		config.Storage.DocumentsDir = dir
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.DatabaseURL = dbURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedding.BaseURL = baseURL
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && config.Embedding.APIKey == "" {
		config.Embedding.APIKey = key
	}
	if key := os.Getenv("RAGDESK_LLM_API_KEY"); key != "" {
		config.Generation.APIKey = key
	}
}
