package config

import (
	"fmt"
	"net/url"

	"github.com/xhad/ragdesk/pkg/llm"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate server config
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		errors = append(errors, ValidationError{
			Field:   "server.mode",
			Message: "mode must be one of debug, release, test",
		})
	}

	// Validate storage config
	if c.Storage.DocumentsDir == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.documents_dir",
			Message: "documents_dir is required",
		})
	}

	if c.Storage.DatabaseURL != "" {
		if u, err := url.Parse(c.Storage.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, ValidationError{
				Field:   "storage.database_url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Storage.MaxUploadBytes < 1 {
		errors = append(errors, ValidationError{
			Field:   "storage.max_upload_bytes",
			Message: "max_upload_bytes must be positive",
		})
	}

	// Validate embedding config
	switch c.Embedding.Provider {
	case llm.EmbedBackendOllama:
		if !validURL(c.Embedding.BaseURL) {
			errors = append(errors, ValidationError{
				Field:   "embedding.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	case llm.EmbedBackendOpenAI:
		if c.Embedding.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "embedding.api_key",
				Message: "api_key is required for the openai provider",
			})
		}
	case llm.EmbedBackendHash:
	default:
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown embedding provider: %s", c.Embedding.Provider),
		})
	}

	if c.Embedding.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Embedding.Dimension < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.dimension",
			Message: "dimension must be positive",
		})
	}

	// Validate rerank config
	switch c.Rerank.Provider {
	case "lexical":
	case "cross-encoder":
		if !validURL(c.Rerank.BaseURL) {
			errors = append(errors, ValidationError{
				Field:   "rerank.base_url",
				Message: "cross-encoder base URL is required",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "rerank.provider",
			Message: fmt.Sprintf("unknown rerank provider: %s", c.Rerank.Provider),
		})
	}

	// Validate generation config
	if !llm.DefaultCatalog.Allowed(c.Generation.DefaultProvider, c.Generation.DefaultModel) {
		errors = append(errors, ValidationError{
			Field:   "generation.default_model",
			Message: fmt.Sprintf("%s is not available for %s", c.Generation.DefaultModel, c.Generation.DefaultProvider),
		})
	}

	if c.Generation.MaxTokens < 1 || c.Generation.MaxTokens > 32768 {
		errors = append(errors, ValidationError{
			Field:   "generation.max_tokens",
			Message: "max_tokens must be between 1 and 32768",
		})
	}

	for provider, endpoint := range c.Generation.Endpoints {
		if _, ok := llm.DefaultCatalog[provider]; !ok {
			errors = append(errors, ValidationError{
				Field:   "generation.endpoints",
				Message: fmt.Sprintf("unknown provider: %s", provider),
			})
		} else if !validURL(endpoint) {
			errors = append(errors, ValidationError{
				Field:   "generation.endpoints",
				Message: fmt.Sprintf("invalid endpoint for %s", provider),
			})
		}
	}

	// Validate task config
	if c.Tasks.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "tasks.workers",
			Message: "workers must be positive",
		})
	}

	// Validate scraper config
	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Scraper.MaxBytes < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_bytes",
			Message: "max_bytes must be positive",
		})
	}

	// Validate search config
	for _, k := range []struct {
		field string
		value int
	}{
		{"search.top_k", c.Search.TopK},
		{"search.initial_k", c.Search.InitialK},
		{"search.final_k", c.Search.FinalK},
	} {
		if k.value < 1 || k.value > 100 {
			errors = append(errors, ValidationError{
				Field:   k.field,
				Message: "must be between 1 and 100",
			})
		}
	}

	if c.Search.HistoryTurns != nil && (*c.Search.HistoryTurns < 0 || *c.Search.HistoryTurns > 10) {
		errors = append(errors, ValidationError{
			Field:   "search.history_turns",
			Message: "must be between 0 and 10",
		})
	}

	if c.Search.FinalK > c.Search.InitialK {
		errors = append(errors, ValidationError{
			Field:   "search.final_k",
			Message: "final_k must not exceed initial_k",
		})
	}

	return errors
}
