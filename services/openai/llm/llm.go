package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"tutorkit/core"

	"github.com/sashabaranov/go-openai"
)

// Mode selects which OpenAI endpoint receives the prompt.
type Mode string

const (
	// ModeChat sends the formatted prompt as one user message to /chat/completions.
	ModeChat Mode = "chat"
	// ModeCompletion sends the raw prompt to /completions, for backends such as
	// Ollama that understand the turn markup natively.
	ModeCompletion Mode = "completion"
)

// Config holds the configuration for the OpenAI-compatible responder.
type Config struct {
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url,omitempty"`
	Model       string   `json:"model"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float32  `json:"temperature,omitempty"`
	Mode        Mode     `json:"mode,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// OpenAILLMService answers formatted tutor prompts through any
// OpenAI-compatible API. One request per call, no retries.
type OpenAILLMService struct {
	client *openai.Client
	config Config
	logger *core.Logger
}

func NewOpenAILLMService(config Config, logger *core.Logger) *OpenAILLMService {
	if config.Mode == "" {
		config.Mode = ModeChat
	}
	if len(config.Stop) == 0 {
		config.Stop = []string{"<end_of_turn>"}
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAILLMService{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger.OrDefault().With(map[string]interface{}{"service": "openai_llm", "model": config.Model}),
	}
}

// Respond implements core.Responder. Failures are *core.GenerationError.
func (s *OpenAILLMService) Respond(ctx context.Context, prompt string) (string, error) {
	var (
		text string
		err  error
	)
	switch s.config.Mode {
	case ModeCompletion:
		text, err = s.complete(ctx, prompt)
	default:
		text, err = s.chat(ctx, prompt)
	}
	if err != nil {
		return "", &core.GenerationError{Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &core.GenerationError{Err: errors.New("model returned no text")}
	}
	return text, nil
}

func (s *OpenAILLMService) chat(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
		Stop:        s.config.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in chat completion")
	}
	s.logger.Debug("chat completion", "prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

func (s *OpenAILLMService) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       s.config.Model,
		Prompt:      prompt,
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
		Stop:        s.config.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in completion")
	}
	s.logger.Debug("completion", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Text, nil
}
