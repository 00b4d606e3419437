package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
	"tutorkit/core"
	"tutorkit/events/tutor"
	"tutorkit/factories"
	"tutorkit/handlers/playback"
	"tutorkit/handlers/turn"
	"tutorkit/runner"
	httptransport "tutorkit/transports/http"
	"tutorkit/transports/websocket"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	var (
		mode        string
		voice       bool
		recordSecs  int
		noPlayback  bool
		jsonLogs    bool
		logLevel    string
		settingsArg string
		serverURL   string
	)
	flag.StringVar(&mode, "mode", "console", "console (terminal conversation), server (HTTP/SSE/WebSocket) or client (terminal against a running server)")
	flag.BoolVar(&voice, "voice", false, "console mode: speak instead of typing")
	flag.IntVar(&recordSecs, "record-seconds", 5, "console voice mode: length of each recording")
	flag.BoolVar(&noPlayback, "mute", false, "console mode: do not play synthesized audio")
	flag.BoolVar(&jsonLogs, "json-logs", false, "write logs as JSON lines")
	flag.StringVar(&logLevel, "log-level", getEnv("LOG_LEVEL", "info"), "minimum log level")
	flag.StringVar(&settingsArg, "settings", "", "path to settings.json (overrides SETTINGS_PATH)")
	flag.StringVar(&serverURL, "server", getEnv("TUTOR_SERVER_URL", "http://localhost:8080"), "client mode: base URL of the tutor server")
	flag.Parse()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Debug("No .env.local file found or failed to load")
	}

	base := core.NewDevelopmentLogger()
	if jsonLogs {
		base = core.NewJSONLogger(os.Stderr)
	} else if mode == "console" || mode == "client" {
		// Keep the conversation on stdout readable.
		base = core.NewConsoleLogger(os.Stderr)
	}
	core.SetLogger(*base.WithLevel(core.ParseLevel(logLevel)))
	logger := core.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mode == "client" {
		if err := runClientMode(ctx, serverURL, logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("exited with error", "error", err)
			os.Exit(1)
		}
		return
	}

	if settingsArg != "" {
		os.Setenv("SETTINGS_PATH", settingsArg)
	}
	settings, apiKeys := loadSettingsFromEnv()

	builder, err := factories.NewBuilder(settings, apiKeys, logger)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	defer builder.Close()

	switch mode {
	case "console":
		err = runConsoleMode(ctx, builder, voice, time.Duration(recordSecs)*time.Second, !noPlayback)
	case "server":
		err = runServerMode(ctx, builder, settings.Server)
	default:
		logger.Error("unknown mode", "mode", mode)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutting down...")
}

// runConsoleMode runs a single conversation on the terminal.
func runConsoleMode(ctx context.Context, builder *factories.Builder, voice bool, recordFor time.Duration, playAudio bool) error {
	session, err := builder.BuildSession(uuid.NewString())
	if err != nil {
		return err
	}
	defer session.Close(context.Background())

	sink := runner.NewConsoleSink(os.Stdout, session.Controller.Config().LLMName, voice)
	var out playback.Output
	if playAudio {
		out = runner.CommandOutput{Command: splitCommand(os.Getenv("PLAY_COMMAND"))}
	}
	r := runner.NewRunner(session, out, sink)

	var input runner.InputSource
	if voice {
		if !session.Controller.CanTranscribe() {
			return errors.New("voice mode needs an stt provider in the session config")
		}
		input = runner.NewVoiceInput(runner.CommandCapturer{
			Command:  splitCommand(os.Getenv("CAPTURE_COMMAND")),
			Duration: recordFor,
		}, os.Stdout)
	} else {
		input = runner.NewConsoleInput(os.Stdin, os.Stdout)
	}
	return r.Run(ctx, input)
}

// runClientMode holds a typed conversation with a tutor server over SSE.
func runClientMode(ctx context.Context, serverURL string, logger *core.Logger) error {
	client := httptransport.NewClient(serverURL, logger)
	defer client.EndSession(context.Background())

	sink := runner.NewConsoleSink(os.Stdout, "Tutor", false)
	input := runner.NewConsoleInput(os.Stdin, os.Stdout)
	for {
		in, err := input.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		events, err := client.ChatStream(ctx, in.Text)
		if err != nil {
			sink.Send(ctx, &tutor.ErrorEvent{Message: err.Error()})
			continue
		}
		for ev := range events {
			sink.Send(ctx, ev)
		}
		if turn.Classify(in.Text) == turn.CommandQuit {
			return nil
		}
	}
}

// runServerMode serves the browser frontend until ctx is cancelled.
func runServerMode(ctx context.Context, builder *factories.Builder, cfg factories.ServerConfig) error {
	logger := core.GetLogger().With(map[string]any{"component": "server"})

	sessions := runner.NewSessionManager(builder.BuildSession, cfg.MaxSessions, cfg.IdleTimeout(), logger)
	defer sessions.CloseAll(context.Background())
	if cfg.IdleTimeout() > 0 {
		go sessions.RunSweeper(ctx, time.Minute)
	}

	var opts []httptransport.Option
	if words, ok := builder.WordTranslator(); ok {
		opts = append(opts, httptransport.WithWordTranslator(words))
	}
	if store, ok := builder.LatencyStore(); ok {
		opts = append(opts, httptransport.WithLatencyStore(store))
	}
	server := httptransport.NewServer(sessions, builder.Scenarios(), httptransport.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 0)),
	}, logger, opts...)
	websocket.NewHandler(sessions, cfg.AllowedOrigins, logger).Register(server.Echo())

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.Addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loadSettingsFromEnv loads SettingsConfig from SETTINGS_JSON_B64 or a file, and API keys from env vars.
func loadSettingsFromEnv() (factories.SettingsConfig, factories.APIKeys) {
	var settings factories.SettingsConfig
	var err error

	if b64 := os.Getenv("SETTINGS_JSON_B64"); b64 != "" {
		settings, err = factories.SettingsConfigFromBase64(b64)
		if err != nil {
			core.GetLogger().With(map[string]any{"error": err}).Error("failed to parse SETTINGS_JSON_B64, using defaults")
			settings = factories.DefaultSettingsConfig()
		} else {
			core.GetLogger().Info("loaded settings from SETTINGS_JSON_B64")
		}
	} else {
		settingsPath := getEnv("SETTINGS_PATH", "./settings.json")
		settings, err = factories.SettingsConfigFromFile(settingsPath)
		if err != nil {
			core.GetLogger().With(map[string]any{"path": settingsPath, "error": err}).Warn("failed to load settings, using defaults")
			settings = factories.DefaultSettingsConfig()
		}
	}
	if addr := os.Getenv("ADDR"); addr != "" {
		settings.Server.Addr = addr
	}
	settings.Server.MaxSessions = getEnvAsInt("MAX_SESSIONS", settings.Server.MaxSessions)

	apiKeys := factories.APIKeys{
		OpenAI:     getEnv("OPENAI_API_KEY", ""),
		Groq:       getEnv("GROQ_API_KEY", ""),
		Together:   getEnv("TOGETHER_API_KEY", ""),
		DeepSeek:   getEnv("DEEPSEEK_API_KEY", ""),
		OpenRouter: getEnv("OPENROUTER_API_KEY", ""),
		Mistral:    getEnv("MISTRAL_API_KEY", ""),
		ElevenLabs: getEnv("ELEVENLABS_API_KEY", ""),
		Google:     getEnv("GOOGLE_TRANSLATE_API_KEY", ""),
	}

	return settings, apiKeys
}

// splitCommand splits a command line on whitespace. Empty means default.
func splitCommand(s string) []string {
	return strings.Fields(s)
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer with a default fallback
func getEnvAsInt(key string, defaultValue int) int {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultValue
	}
	return val
}
