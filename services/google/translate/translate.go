package translate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"tutorkit/core"
	"tutorkit/utils/text"

	"github.com/bytedance/sonic"
)

const defaultBaseURL = "https://translation.googleapis.com/language/translate/v2"

// Config holds the configuration for the Google Cloud Translation v2 REST API.
type Config struct {
	APIKey  string        `json:"api_key"`
	BaseURL string        `json:"base_url,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

type translateRequest struct {
	Q      []string `json:"q"`
	Target string   `json:"target"`
	Format string   `json:"format"`
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GoogleTranslator implements core.Translator.
type GoogleTranslator struct {
	config Config
	client *http.Client
	logger *core.Logger
}

func NewGoogleTranslator(config Config, logger *core.Logger) *GoogleTranslator {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &GoogleTranslator{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.OrDefault().With(map[string]interface{}{"service": "google_translate"}),
	}
}

// Translate returns text rendered in targetLanguage. Failures are *core.TranslationError.
func (g *GoogleTranslator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	out, err := g.batch(ctx, []string{text}, targetLanguage)
	if err != nil {
		return "", &core.TranslationError{Err: err}
	}
	return out[0], nil
}

// TranslateWords translates each word of sentence on its own, in one request.
// Keys are the words as they appear once question and exclamation marks are
// stripped.
func (g *GoogleTranslator) TranslateWords(ctx context.Context, sentence, targetLanguage string) (map[string]string, error) {
	words := text.SplitWords(sentence)
	if len(words) == 0 {
		return map[string]string{}, nil
	}
	out, err := g.batch(ctx, words, targetLanguage)
	if err != nil {
		return nil, &core.TranslationError{Err: err}
	}
	result := make(map[string]string, len(words))
	for i, w := range words {
		result[w] = out[i]
	}
	return result, nil
}

func (g *GoogleTranslator) batch(ctx context.Context, q []string, target string) ([]string, error) {
	if g.config.APIKey == "" {
		return nil, errors.New("google translate: API key is required")
	}
	body, err := sonic.Marshal(translateRequest{Q: q, Target: target, Format: "text"})
	if err != nil {
		return nil, fmt.Errorf("google translate: encode request: %w", err)
	}
	endpoint := g.config.BaseURL + "?key=" + url.QueryEscape(g.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("google translate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google translate: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google translate: read response: %w", err)
	}
	var parsed translateResponse
	if err := sonic.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("google translate: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		msg := resp.Status
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("google translate: %s", msg)
	}
	if len(parsed.Data.Translations) != len(q) {
		return nil, fmt.Errorf("google translate: got %d translations for %d inputs", len(parsed.Data.Translations), len(q))
	}

	out := make([]string, len(q))
	for i, tr := range parsed.Data.Translations {
		out[i] = html.UnescapeString(tr.TranslatedText)
	}
	g.logger.Debug("translated", "target", target, "inputs", len(q))
	return out, nil
}
