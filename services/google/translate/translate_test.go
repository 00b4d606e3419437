package translate

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"tutorkit/core"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTranslator serves translations from dict and records the last request.
func newTranslator(t *testing.T, dict map[string]string, status int) (*GoogleTranslator, *translateRequest) {
	t.Helper()
	seen := &translateRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, sonic.Unmarshal(data, seen))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			io.WriteString(w, `{"error":{"code":403,"message":"quota exceeded"}}`)
			return
		}
		var resp translateResponse
		for _, q := range seen.Q {
			resp.Data.Translations = append(resp.Data.Translations, struct {
				TranslatedText         string `json:"translatedText"`
				DetectedSourceLanguage string `json:"detectedSourceLanguage"`
			}{TranslatedText: dict[q], DetectedSourceLanguage: "es"})
		}
		out, _ := sonic.Marshal(resp)
		w.Write(out)
	}))
	t.Cleanup(srv.Close)
	return NewGoogleTranslator(Config{APIKey: "test-key", BaseURL: srv.URL}, nil), seen
}

func TestTranslate(t *testing.T) {
	tr, seen := newTranslator(t, map[string]string{"Hola amigo": "Hello friend &amp; co"}, http.StatusOK)

	got, err := tr.Translate(context.Background(), "Hola amigo", "en")
	require.NoError(t, err)
	assert.Equal(t, "Hello friend & co", got)
	assert.Equal(t, "en", seen.Target)
	assert.Equal(t, "text", seen.Format)
}

func TestTranslateWords(t *testing.T) {
	tr, seen := newTranslator(t, map[string]string{"Cómo": "How", "estás": "are you"}, http.StatusOK)

	got, err := tr.TranslateWords(context.Background(), "¿Cómo estás?", "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cómo", "estás"}, seen.Q)
	assert.Equal(t, map[string]string{"Cómo": "How", "estás": "are you"}, got)
}

func TestTranslateWordsEmptySentence(t *testing.T) {
	got, err := NewGoogleTranslator(Config{}, nil).TranslateWords(context.Background(), "¿?", "en")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTranslateBackendError(t *testing.T) {
	tr, _ := newTranslator(t, nil, http.StatusForbidden)

	_, err := tr.Translate(context.Background(), "hola", "en")
	var te *core.TranslationError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestTranslateRequiresAPIKey(t *testing.T) {
	_, err := NewGoogleTranslator(Config{}, nil).Translate(context.Background(), "hola", "en")
	var te *core.TranslationError
	assert.ErrorAs(t, err, &te)
}
