package factories

import (
	"errors"
	"tutorkit/core"
	whisper "tutorkit/services/openai/stt"
)

// STTFactoryConfig holds provider-specific configs for transcription.
// Set exactly one provider config; the rest should be left nil.
type STTFactoryConfig struct {
	GroqConfig   *whisper.Config `json:"groq,omitempty"`
	OpenAIConfig *whisper.Config `json:"openai,omitempty"`
}

// BuildSTTService constructs a transcriber from the given factory config.
// Exactly one provider config must be non-nil.
func BuildSTTService(config STTFactoryConfig, logger *core.Logger) (core.Transcriber, error) {
	if config.GroqConfig != nil {
		cfg := *config.GroqConfig
		if cfg.BaseURL == "" {
			cfg.BaseURL = groqBaseURL
		}
		return whisper.NewWhisperSTTService(cfg, logger), nil
	}
	if config.OpenAIConfig != nil {
		cfg := *config.OpenAIConfig
		if cfg.Model == "" {
			cfg.Model = "whisper-1"
		}
		return whisper.NewWhisperSTTService(cfg, logger), nil
	}
	return nil, errors.New("STTFactoryConfig: no provider config specified")
}
