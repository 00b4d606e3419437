package factories

import (
	"errors"
	"tutorkit/core"
	googletranslate "tutorkit/services/google/translate"
	openaitranslate "tutorkit/services/openai/translate"
)

// TranslatorFactoryConfig holds provider-specific configs for translation.
// Set exactly one provider config; the rest should be left nil.
type TranslatorFactoryConfig struct {
	GoogleConfig *googletranslate.Config `json:"google,omitempty"`
	OpenAIConfig *openaitranslate.Config `json:"openai,omitempty"`
	GroqConfig   *openaitranslate.Config `json:"groq,omitempty"`
}

// BuildTranslator constructs a translator from the given factory config.
// Exactly one provider config must be non-nil.
func BuildTranslator(config TranslatorFactoryConfig, logger *core.Logger) (core.Translator, error) {
	if config.GoogleConfig != nil {
		return googletranslate.NewGoogleTranslator(*config.GoogleConfig, logger), nil
	}
	if config.OpenAIConfig != nil {
		cfg := *config.OpenAIConfig
		if cfg.Model == "" {
			cfg.Model = "gpt-4o-mini"
		}
		return openaitranslate.NewOpenAITranslator(cfg, logger), nil
	}
	if config.GroqConfig != nil {
		cfg := *config.GroqConfig
		if cfg.BaseURL == "" {
			cfg.BaseURL = groqBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = "llama-3.1-8b-instant"
		}
		return openaitranslate.NewOpenAITranslator(cfg, logger), nil
	}
	return nil, errors.New("TranslatorFactoryConfig: no provider config specified")
}
