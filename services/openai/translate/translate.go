package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"tutorkit/core"

	"github.com/sashabaranov/go-openai"
)

const instructionTemplate = "Translate the following text to %s. Reply with the translation only, without quotes or notes."

// Config holds the configuration for chat-model translation.
type Config struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model"`
}

// OpenAITranslator implements core.Translator on top of a chat completion model.
type OpenAITranslator struct {
	client *openai.Client
	config Config
	logger *core.Logger
}

func NewOpenAITranslator(config Config, logger *core.Logger) *OpenAITranslator {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAITranslator{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger.OrDefault().With(map[string]interface{}{"service": "openai_translate", "model": config.Model}),
	}
}

// Translate returns text rendered in targetLanguage. Failures are *core.TranslationError.
func (t *OpenAITranslator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(instructionTemplate, targetLanguage)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", &core.TranslationError{Err: fmt.Errorf("failed to create chat completion: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &core.TranslationError{Err: errors.New("no choices in chat completion")}
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", &core.TranslationError{Err: errors.New("empty translation")}
	}
	t.logger.Debug("translated", "target", targetLanguage, "chars", len(out))
	return out, nil
}
