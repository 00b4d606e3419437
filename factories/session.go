package factories

import (
	"fmt"
	"tutorkit/core"
	"tutorkit/handlers/memory"
	"tutorkit/handlers/turn"

	"github.com/bytedance/sonic"
)

// SessionConfig is the per-conversation configuration: prompts, turn
// behaviour and the capability providers.
type SessionConfig struct {
	// SystemPrompt is folded into the first user turn. May be empty.
	SystemPrompt string `json:"system_prompt"`
	// MaxExchanges bounds the conversation history. Default: 32.
	MaxExchanges int `json:"max_exchanges"`
	// Scenario, when set, selects a roleplay scenario from the catalogue at
	// session start.
	Scenario string `json:"scenario,omitempty"`
	// Turn controls command handling, translation order and labels.
	Turn turn.Config `json:"turn"`

	// LLM selects the responder. Required.
	LLM LLMFactoryConfig `json:"llm"`
	// STT selects the transcriber. Nil disables voice input.
	STT *STTFactoryConfig `json:"stt,omitempty"`
	// Translator selects the translator. Nil disables translation.
	Translator *TranslatorFactoryConfig `json:"translator,omitempty"`
	// TTS selects the synthesizer. Nil disables speech output.
	TTS *TTSFactoryConfig `json:"tts,omitempty"`
}

// DefaultSessionConfig returns a SessionConfig pre-filled with defaults. The
// LLM provider still has to be chosen.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxExchanges: memory.DefaultMaxExchanges,
		Turn:         turn.DefaultConfig(),
	}
}

// SessionConfigFromJSON parses a JSON blob into a SessionConfig, starting from
// DefaultSessionConfig so that any fields absent from the JSON retain their defaults.
// API keys should be injected after loading via env vars rather than
// stored in config files.
func SessionConfigFromJSON(data []byte) (SessionConfig, error) {
	cfg := DefaultSessionConfig()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return SessionConfig{}, fmt.Errorf("session config: %w", err)
	}
	return cfg, nil
}

// APIKeys holds API credentials for all supported service providers.
// Pass to SessionConfig.InjectAPIKeys after loading from JSON so that
// secrets are never stored in config files. Polly uses the AWS default chain.
type APIKeys struct {
	OpenAI     string // OpenAI LLM, Whisper and translation.
	Groq       string // Groq LLM, Whisper and translation.
	Together   string
	DeepSeek   string
	OpenRouter string
	Mistral    string
	ElevenLabs string
	Google     string // Google Cloud Translation.
}

// InjectAPIKeys fills every empty provider key from keys.
func (c *SessionConfig) InjectAPIKeys(keys APIKeys) {
	injectLLMKeys(&c.LLM, keys)

	if c.STT != nil {
		if c.STT.GroqConfig != nil && c.STT.GroqConfig.APIKey == "" {
			c.STT.GroqConfig.APIKey = keys.Groq
		}
		if c.STT.OpenAIConfig != nil && c.STT.OpenAIConfig.APIKey == "" {
			c.STT.OpenAIConfig.APIKey = keys.OpenAI
		}
	}

	if c.Translator != nil {
		if c.Translator.GoogleConfig != nil && c.Translator.GoogleConfig.APIKey == "" {
			c.Translator.GoogleConfig.APIKey = keys.Google
		}
		if c.Translator.OpenAIConfig != nil && c.Translator.OpenAIConfig.APIKey == "" {
			c.Translator.OpenAIConfig.APIKey = keys.OpenAI
		}
		if c.Translator.GroqConfig != nil && c.Translator.GroqConfig.APIKey == "" {
			c.Translator.GroqConfig.APIKey = keys.Groq
		}
	}

	if c.TTS != nil && c.TTS.ElevenLabsConfig != nil && c.TTS.ElevenLabsConfig.APIKey == "" {
		c.TTS.ElevenLabsConfig.APIKey = keys.ElevenLabs
	}
}

// injectLLMKeys applies the relevant API key to a single LLMFactoryConfig.
func injectLLMKeys(cfg *LLMFactoryConfig, keys APIKeys) {
	if cfg.OpenAIConfig != nil && cfg.OpenAIConfig.APIKey == "" {
		cfg.OpenAIConfig.APIKey = keys.OpenAI
	}
	if cfg.GroqConfig != nil && cfg.GroqConfig.APIKey == "" {
		cfg.GroqConfig.APIKey = keys.Groq
	}
	if cfg.TogetherConfig != nil && cfg.TogetherConfig.APIKey == "" {
		cfg.TogetherConfig.APIKey = keys.Together
	}
	if cfg.DeepSeekConfig != nil && cfg.DeepSeekConfig.APIKey == "" {
		cfg.DeepSeekConfig.APIKey = keys.DeepSeek
	}
	if cfg.OpenRouterConfig != nil && cfg.OpenRouterConfig.APIKey == "" {
		cfg.OpenRouterConfig.APIKey = keys.OpenRouter
	}
	if cfg.MistralConfig != nil && cfg.MistralConfig.APIKey == "" {
		cfg.MistralConfig.APIKey = keys.Mistral
	}
}

// BuildPorts constructs the capability providers described by the config.
func (c SessionConfig) BuildPorts(logger *core.Logger) (turn.Ports, error) {
	var ports turn.Ports
	responder, err := BuildLLMService(c.LLM, logger)
	if err != nil {
		return turn.Ports{}, fmt.Errorf("llm: %w", err)
	}
	ports.Responder = responder

	if c.STT != nil {
		if ports.Transcriber, err = BuildSTTService(*c.STT, logger); err != nil {
			return turn.Ports{}, fmt.Errorf("stt: %w", err)
		}
	}
	if c.Translator != nil {
		if ports.Translator, err = BuildTranslator(*c.Translator, logger); err != nil {
			return turn.Ports{}, fmt.Errorf("translator: %w", err)
		}
	}
	if c.TTS != nil {
		if ports.Synthesis, err = BuildTTSService(*c.TTS, logger); err != nil {
			return turn.Ports{}, fmt.Errorf("tts: %w", err)
		}
	}
	return ports, nil
}
