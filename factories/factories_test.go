package factories

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"tutorkit/core"
	"tutorkit/handlers/latency"
	"tutorkit/handlers/turn"
	elevenlabs "tutorkit/services/elevenlabs/tts"
	googletranslate "tutorkit/services/google/translate"
	openaillm "tutorkit/services/openai/llm"
	whisper "tutorkit/services/openai/stt"
	polly "tutorkit/services/polly/tts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResponder string

func (r staticResponder) Respond(context.Context, string) (string, error) { return string(r), nil }

func TestSettingsConfigFromJSONKeepsDefaults(t *testing.T) {
	cfg, err := SettingsConfigFromJSON([]byte(`{
		"session": {"system_prompt": "Eres un tutor.", "llm": {"groq": {}}},
		"server": {"addr": ":8080"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "Eres un tutor.", cfg.Session.SystemPrompt)
	assert.Equal(t, 32, cfg.Session.MaxExchanges)
	assert.Equal(t, "LLM", cfg.Session.Turn.LLMName)
	assert.Equal(t, "en", cfg.Session.Turn.TargetLanguage)
	assert.NotNil(t, cfg.Session.LLM.GroqConfig)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "latency_log.csv", cfg.Latency.CSVPath)
}

func TestSettingsConfigFromBase64(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte(`{"log_dir":"logs"}`))
	cfg, err := SettingsConfigFromBase64(b64)
	require.NoError(t, err)
	assert.Equal(t, "logs", cfg.LogDir)

	_, err = SettingsConfigFromBase64("%%%")
	assert.Error(t, err)
}

func TestSettingsConfigFromFileMissing(t *testing.T) {
	cfg, err := SettingsConfigFromFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
	assert.Equal(t, DefaultSettingsConfig().Server.Addr, cfg.Server.Addr)
}

func TestInjectAPIKeys(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.LLM.GroqConfig = &openaillm.Config{}
	cfg.STT = &STTFactoryConfig{GroqConfig: &whisper.Config{}}
	cfg.TTS = &TTSFactoryConfig{ElevenLabsConfig: &elevenlabs.ElevenLabsTTSConfig{APIKey: "explicit"}}
	cfg.Translator = &TranslatorFactoryConfig{GoogleConfig: &googletranslate.Config{}}

	cfg.InjectAPIKeys(APIKeys{Groq: "groq-key", ElevenLabs: "el-key", Google: "g-key"})

	assert.Equal(t, "groq-key", cfg.LLM.GroqConfig.APIKey)
	assert.Equal(t, "groq-key", cfg.STT.GroqConfig.APIKey)
	assert.Equal(t, "g-key", cfg.Translator.GoogleConfig.APIKey)
	assert.Equal(t, "explicit", cfg.TTS.ElevenLabsConfig.APIKey)
}

func TestBuildServicesRequireAProvider(t *testing.T) {
	_, err := BuildLLMService(LLMFactoryConfig{}, nil)
	assert.Error(t, err)
	_, err = BuildSTTService(STTFactoryConfig{}, nil)
	assert.Error(t, err)
	_, err = BuildTranslator(TranslatorFactoryConfig{}, nil)
	assert.Error(t, err)
	_, err = BuildTTSService(TTSFactoryConfig{}, nil)
	assert.Error(t, err)
}

func TestBuildTTSServiceReportsCallShape(t *testing.T) {
	streaming, err := BuildTTSService(TTSFactoryConfig{ElevenLabsConfig: &elevenlabs.ElevenLabsTTSConfig{}}, nil)
	require.NoError(t, err)
	assert.NotNil(t, streaming.Streaming)
	assert.Nil(t, streaming.Blocking)

	blocking, err := BuildTTSService(TTSFactoryConfig{PollyConfig: &polly.Config{}}, nil)
	require.NoError(t, err)
	assert.NotNil(t, blocking.Blocking)
	assert.Nil(t, blocking.Streaming)
}

func TestBuildPortsOptionalCapabilities(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.LLM.OllamaConfig = &openaillm.Config{}

	ports, err := cfg.BuildPorts(nil)
	require.NoError(t, err)
	assert.NotNil(t, ports.Responder)
	assert.Nil(t, ports.Transcriber)
	assert.Nil(t, ports.Translator)
	assert.False(t, ports.Synthesis.Available())
}

func TestDefaultScenariosAreValid(t *testing.T) {
	catalogue := DefaultScenarios()
	assert.Contains(t, catalogue.IDs(), "restaurant")
	for id, sc := range catalogue {
		assert.NotEmpty(t, sc.Prompt, id)
	}
}

func TestParseScenariosRejectsInvalidCatalogues(t *testing.T) {
	cases := map[string]string{
		"empty":          `{}`,
		"missing prompt": `{"cafe": {"name": "Café"}}`,
		"bad difficulty": `{"cafe": {"name": "Café", "prompt": "p", "difficulty": "expert"}}`,
		"bad id":         `{"Café Bar": {"name": "Café", "prompt": "p"}}`,
		"not json":       `{`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScenarios([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadScenariosFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cafe": {"name": "Café", "difficulty": "beginner", "prompt": "Eres camarero."}}`), 0o644))

	catalogue, err := LoadScenarios(path)
	require.NoError(t, err)
	assert.Equal(t, "Eres camarero.", catalogue["cafe"].Prompt)
}

func TestBuildRecorder(t *testing.T) {
	rec, closeFn, err := LatencyConfig{}.BuildRecorder(nil)
	require.NoError(t, err)
	assert.IsType(t, latency.Nop{}, rec)
	assert.NoError(t, closeFn())

	dir := t.TempDir()
	rec, closeFn, err = LatencyConfig{
		CSVPath:    filepath.Join(dir, "latency.csv"),
		SQLitePath: ":memory:",
		Log:        true,
	}.BuildRecorder(nil)
	require.NoError(t, err)
	require.IsType(t, latency.MultiSink{}, rec)
	assert.Len(t, rec.(latency.MultiSink), 3)

	rec.Record(context.Background(), latency.Record{TotalMs: 12})
	_, err = os.Stat(filepath.Join(dir, "latency.csv"))
	assert.NoError(t, err)
	assert.NoError(t, closeFn())
}

func newTestBuilder(t *testing.T, settings SettingsConfig) *Builder {
	t.Helper()
	settings.Latency = LatencyConfig{}
	b, err := NewBuilder(settings, APIKeys{}, nil)
	require.NoError(t, err)
	b.portsFn = func(SessionConfig, *core.Logger) (turn.Ports, error) {
		return turn.Ports{Responder: staticResponder("¡Hola!")}, nil
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBuildSessionWithScenarioAndLog(t *testing.T) {
	settings := DefaultSettingsConfig()
	settings.LogDir = t.TempDir()
	settings.Session.SystemPrompt = "Eres un tutor."
	settings.Session.Scenario = "restaurant"
	b := newTestBuilder(t, settings)

	s, err := b.BuildSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, b.Scenarios()["restaurant"].Prompt, s.Controller.Memory().Scenario())
	assert.Equal(t, "Eres un tutor.", s.Controller.Memory().SystemPrompt())

	_, err = os.Stat(filepath.Join(settings.LogDir, "sess-1.jsonl"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(settings.LogDir, "sess-1.active"))
	assert.NoError(t, err)

	s.Close(context.Background())
	_, err = os.Stat(filepath.Join(settings.LogDir, "sess-1.active"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuildSessionUnknownScenarioStartsWithout(t *testing.T) {
	settings := DefaultSettingsConfig()
	settings.Session.Scenario = "moon_base"
	b := newTestBuilder(t, settings)

	s, err := b.BuildSession("sess-2")
	require.NoError(t, err)
	assert.Empty(t, s.Controller.Memory().Scenario())
}

func TestBuildSessionFromSessionAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sess-3", r.Header.Get("X-Session-ID"))
		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"system_prompt": "Habla despacio.", "max_exchanges": 4, "turn": {"llm_name": "Tutor"}}`))
	}))
	defer srv.Close()

	settings := DefaultSettingsConfig()
	settings.SessionAPI = &SessionAPIConfig{URL: srv.URL, Headers: map[string]string{"Authorization": "secret"}}
	b := newTestBuilder(t, settings)

	s, err := b.BuildSession("sess-3")
	require.NoError(t, err)
	assert.Equal(t, "Habla despacio.", s.Controller.Memory().SystemPrompt())
	assert.Equal(t, 4, s.Controller.Memory().MaxExchanges())
	assert.Equal(t, "Tutor", s.Controller.Config().LLMName)
}

func TestBuildSessionSessionAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	settings := DefaultSettingsConfig()
	settings.SessionAPI = &SessionAPIConfig{URL: srv.URL}
	_, err := newTestBuilder(t, settings).BuildSession("sess-4")
	assert.ErrorContains(t, err, "unexpected status 503")
}

func TestBuilderLatencyStore(t *testing.T) {
	settings := DefaultSettingsConfig()
	settings.Latency = LatencyConfig{SQLitePath: ":memory:", Log: true}
	b, err := NewBuilder(settings, APIKeys{}, nil)
	require.NoError(t, err)
	defer b.Close()

	store, ok := b.LatencyStore()
	require.True(t, ok)
	records, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, records)

	plain := newTestBuilder(t, DefaultSettingsConfig())
	_, ok = plain.LatencyStore()
	assert.False(t, ok)
}

func TestBuilderWordTranslator(t *testing.T) {
	b := newTestBuilder(t, DefaultSettingsConfig())
	_, ok := b.WordTranslator()
	assert.False(t, ok)

	b, err := NewBuilder(DefaultSettingsConfig(), APIKeys{Google: "g-key"}, nil)
	require.NoError(t, err)
	defer b.Close()
	tr, ok := b.WordTranslator()
	require.True(t, ok)
	assert.NotNil(t, tr)
}
