package llm

// Provider identifiers.
const (
	ProviderGemini    = "google-gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMistral   = "mistral"
	ProviderXAI       = "xai"
	ProviderQwen      = "qwen"
	ProviderMiniMax   = "minimax"
	ProviderMetaLlama = "meta-llama"
	ProviderOther     = "other"
)

// Catalog maps a provider to its allowed models, in display order.
type Catalog map[string][]string

var providerOrder = []string{
	ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderMistral,
	ProviderXAI, ProviderQwen, ProviderMiniMax, ProviderMetaLlama, ProviderOther,
}

var DefaultCatalog = Catalog{
	ProviderGemini: {
		"gemini-2.5-pro",
		"gemini-2.5-flash",
		"gemini-2.5-flash-lite",
		"gemini-3.1-pro",
		"gemini-3-flash",
	},
	ProviderOpenAI: {
		"gpt-5.2",
		"gpt-5.1",
		"gpt-5-mini",
		"gpt-5-nano",
		"gpt-4.1",
	},
	ProviderAnthropic: {
		"claude-opus-4-6",
		"claude-sonnet-4-5-20250929",
		"claude-haiku-4-5-20251001",
	},
	ProviderMistral: {
		"mistral-large-latest",
		"mistral-medium-3.1",
		"mistral-small-3.2",
		"devstral-latest",
		"codestral",
	},
	ProviderXAI: {
		"grok-4",
		"grok-3",
		"grok-3-fast",
	},
	ProviderQwen: {
		"qwen3-max",
		"qwen-plus",
		"qwen-flash",
		"qwen-turbo",
		"qwen3-coder-plus",
		"qwen3-coder-flash",
	},
	ProviderMiniMax: {
		"MiniMax-M2.5",
		"MiniMax-M2.5-highspeed",
		"MiniMax-M2.1",
		"MiniMax-M2.1-highspeed",
		"MiniMax-M2",
	},
	ProviderMetaLlama: {
		"llama-4-scout",
		"llama-4-maverick",
	},
	ProviderOther: {
		"custom-model",
	},
}

// Providers lists the catalog's providers, known ones in fixed order first.
func (c Catalog) Providers() []string {
	out := make([]string, 0, len(c))
	seen := make(map[string]bool, len(c))
	for _, p := range providerOrder {
		if _, ok := c[p]; ok {
			out = append(out, p)
			seen[p] = true
		}
	}
	for p := range c {
		if !seen[p] {
			out = append(out, p)
		}
	}
	return out
}

func (c Catalog) Models(provider string) []string {
	return c[provider]
}

func (c Catalog) Allowed(provider, model string) bool {
	for _, m := range c[provider] {
		if m == model {
			return true
		}
	}
	return false
}
