package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/internal/types"
)

// MemoryProviderConfigs keeps provider settings in process.
type MemoryProviderConfigs struct {
	mu      sync.RWMutex
	configs map[string]models.ProviderConfig
}

func NewMemoryProviderConfigs() *MemoryProviderConfigs {
	return &MemoryProviderConfigs{configs: make(map[string]models.ProviderConfig)}
}

func (m *MemoryProviderConfigs) Get(_ context.Context, scope string) (models.ProviderConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[scope]
	if !ok {
		return models.ProviderConfig{}, types.ErrNotFound
	}
	return cfg, nil
}

func (m *MemoryProviderConfigs) Set(_ context.Context, scope string, cfg models.ProviderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[scope] = cfg
	return nil
}

// ProviderSettings is what a caller sees of the provider a scope answers
// with. APIKey is masked.
type ProviderSettings struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
	// Source is "scope" for saved settings and "default" for server config.
	Source    string     `json:"source"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// scopeConfig returns the scope's saved provider config, if any.
func (s *Service) scopeConfig(ctx context.Context, scope string) (models.ProviderConfig, bool, error) {
	cfg, err := s.providers.Get(ctx, scope)
	if errors.Is(err, types.ErrNotFound) {
		return cfg, false, nil
	}
	if err != nil {
		return cfg, false, err
	}
	return cfg, true, nil
}

func (s *Service) ProviderSettings(ctx context.Context, scope string) (ProviderSettings, error) {
	cfg, ok, err := s.scopeConfig(ctx, scope)
	if err != nil {
		return ProviderSettings{}, err
	}
	if !ok {
		return ProviderSettings{
			Provider: s.config.DefaultProvider,
			Model:    s.config.DefaultModel,
			APIKey:   maskKey(s.config.DefaultCredential),
			Source:   "default",
		}, nil
	}
	updated := cfg.UpdatedAt
	return ProviderSettings{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		APIKey:    maskKey(cfg.Credential),
		Source:    "scope",
		UpdatedAt: &updated,
	}, nil
}

// SetProviderConfig validates cfg against the catalog and saves it for
// scope. An empty credential keeps the one already saved for the same
// provider.
func (s *Service) SetProviderConfig(ctx context.Context, scope string, cfg models.ProviderConfig) (ProviderSettings, error) {
	cfg.Provider = strings.TrimSpace(cfg.Provider)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Credential = strings.TrimSpace(cfg.Credential)

	if cfg.Credential == "" {
		prev, ok, err := s.scopeConfig(ctx, scope)
		if err != nil {
			return ProviderSettings{}, err
		}
		if ok && prev.Provider == cfg.Provider {
			cfg.Credential = prev.Credential
		}
	}
	if err := s.gateway.Validate(cfg.Provider, cfg.Model, cfg.Credential); err != nil {
		return ProviderSettings{}, err
	}

	cfg.UpdatedAt = time.Now().UTC()
	if err := s.providers.Set(ctx, scope, cfg); err != nil {
		return ProviderSettings{}, err
	}
	s.log.Info("provider settings saved", "scope", scope, "provider", cfg.Provider, "model", cfg.Model)
	return s.ProviderSettings(ctx, scope)
}

// TestProviderConfig sends a trivial prompt through the provider the scope
// would answer with.
func (s *Service) TestProviderConfig(ctx context.Context, scope string) (string, error) {
	req, err := s.withDefaults(ctx, scope, AskRequest{})
	if err != nil {
		return "", err
	}
	return s.gateway.TestConnection(ctx, req.Provider, req.Model, req.Credential)
}

// maskKey keeps just enough of a credential to recognise it.
func maskKey(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) <= 8:
		return "****"
	default:
		return key[:3] + "..." + key[len(key)-4:]
	}
}
