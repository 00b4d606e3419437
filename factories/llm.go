package factories

import (
	"errors"
	"tutorkit/core"
	openaillm "tutorkit/services/openai/llm"
)

// LLMFactoryConfig holds provider-specific configs for the tutor responder.
// Set exactly one provider config; the rest should be left nil.
// Every provider speaks the OpenAI-compatible protocol and is served by the
// same service with a custom base URL.
type LLMFactoryConfig struct {
	OpenAIConfig     *openaillm.Config `json:"openai,omitempty"`
	GroqConfig       *openaillm.Config `json:"groq,omitempty"`
	TogetherConfig   *openaillm.Config `json:"together,omitempty"`
	DeepSeekConfig   *openaillm.Config `json:"deepseek,omitempty"`
	OpenRouterConfig *openaillm.Config `json:"openrouter,omitempty"`
	MistralConfig    *openaillm.Config `json:"mistral,omitempty"`
	OllamaConfig     *openaillm.Config `json:"ollama,omitempty"`
}

// Default base URLs for OpenAI-compatible providers.
const (
	groqBaseURL       = "https://api.groq.com/openai/v1"
	togetherBaseURL   = "https://api.together.xyz/v1"
	deepseekBaseURL   = "https://api.deepseek.com/v1"
	openrouterBaseURL = "https://openrouter.ai/api/v1"
	mistralBaseURL    = "https://api.mistral.ai/v1"
	ollamaBaseURL     = "http://localhost:11434/v1"
)

// BuildLLMService constructs the responder from the given factory config.
// Exactly one provider config must be non-nil.
func BuildLLMService(config LLMFactoryConfig, logger *core.Logger) (core.Responder, error) {
	if config.OpenAIConfig != nil {
		return buildOpenAICompatible(*config.OpenAIConfig, "", "gpt-4o-mini", logger), nil
	}
	if config.GroqConfig != nil {
		return buildOpenAICompatible(*config.GroqConfig, groqBaseURL, "llama-3.3-70b-versatile", logger), nil
	}
	if config.TogetherConfig != nil {
		return buildOpenAICompatible(*config.TogetherConfig, togetherBaseURL, "meta-llama/Llama-3.3-70B-Instruct-Turbo", logger), nil
	}
	if config.DeepSeekConfig != nil {
		return buildOpenAICompatible(*config.DeepSeekConfig, deepseekBaseURL, "deepseek-chat", logger), nil
	}
	if config.OpenRouterConfig != nil {
		return buildOpenAICompatible(*config.OpenRouterConfig, openrouterBaseURL, "google/gemma-3-27b-it", logger), nil
	}
	if config.MistralConfig != nil {
		return buildOpenAICompatible(*config.MistralConfig, mistralBaseURL, "mistral-small-latest", logger), nil
	}
	if config.OllamaConfig != nil {
		cfg := *config.OllamaConfig
		// Gemma models served locally understand the turn markup as-is.
		if cfg.Mode == "" {
			cfg.Mode = openaillm.ModeCompletion
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "ollama"
		}
		return buildOpenAICompatible(cfg, ollamaBaseURL, "gemma3:4b", logger), nil
	}
	return nil, errors.New("LLMFactoryConfig: no provider config specified")
}

// buildOpenAICompatible applies the default base URL and model if not
// explicitly set in the config.
func buildOpenAICompatible(cfg openaillm.Config, defaultBaseURL, defaultModel string, logger *core.Logger) *openaillm.OpenAILLMService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return openaillm.NewOpenAILLMService(cfg, logger)
}
