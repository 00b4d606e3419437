package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"tutorkit/core"

	"github.com/sashabaranov/go-openai"
)

// Config holds the configuration for Whisper-style transcription over an
// OpenAI-compatible API (OpenAI, Groq).
type Config struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model"`
	// Languages the recognizer may detect without a retry. Both names
	// ("spanish") and codes ("es") are accepted, case-insensitively.
	Languages []string `json:"languages,omitempty"`
	// FallbackLanguage is forced on a second attempt when the detected
	// language is not in Languages. Empty disables the retry.
	FallbackLanguage string `json:"fallback_language,omitempty"`
}

// DefaultConfig targets Spanish/English practice.
func DefaultConfig() Config {
	return Config{
		Model:            "whisper-large-v3-turbo",
		Languages:        []string{"spanish", "english", "es", "en"},
		FallbackLanguage: "es",
	}
}

// WhisperSTTService implements core.Transcriber.
type WhisperSTTService struct {
	client *openai.Client
	config Config
	logger *core.Logger
}

func NewWhisperSTTService(config Config, logger *core.Logger) *WhisperSTTService {
	d := DefaultConfig()
	if config.Model == "" {
		config.Model = d.Model
	}
	if config.Languages == nil {
		config.Languages = d.Languages
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &WhisperSTTService{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger.OrDefault().With(map[string]interface{}{"service": "whisper_stt", "model": config.Model}),
	}
}

// Transcribe sends the clip once with language detection and, when the
// detected language is unexpected, once more with FallbackLanguage forced.
func (s *WhisperSTTService) Transcribe(ctx context.Context, in core.AudioInput) (string, error) {
	if len(in.Data) == 0 {
		return "", &core.TranscriptionError{Err: errors.New("no audio")}
	}
	resp, err := s.transcribe(ctx, in, "")
	if err != nil {
		return "", &core.TranscriptionError{Err: err}
	}

	if s.config.FallbackLanguage != "" && resp.Language != "" && !s.expected(resp.Language) {
		s.logger.Info("unexpected language detected, retrying", "detected", resp.Language, "forced", s.config.FallbackLanguage)
		resp, err = s.transcribe(ctx, in, s.config.FallbackLanguage)
		if err != nil {
			return "", &core.TranscriptionError{Err: err}
		}
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", &core.TranscriptionError{Err: errors.New("no speech recognized")}
	}
	return text, nil
}

func (s *WhisperSTTService) transcribe(ctx context.Context, in core.AudioInput, language string) (openai.AudioResponse, error) {
	name := in.Filename
	if name == "" {
		name = "input.wav"
	}
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.config.Model,
		FilePath: name,
		Reader:   bytes.NewReader(in.Data),
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: language,
	})
	if err != nil {
		return resp, fmt.Errorf("failed to create transcription: %w", err)
	}
	return resp, nil
}

func (s *WhisperSTTService) expected(language string) bool {
	for _, l := range s.config.Languages {
		if strings.EqualFold(l, language) {
			return true
		}
	}
	return false
}
