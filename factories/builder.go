package factories

import (
	"context"
	"errors"
	"fmt"
	"tutorkit/core"
	"tutorkit/handlers/latency"
	"tutorkit/handlers/memory"
	"tutorkit/handlers/turn"
	"tutorkit/runner"
	googletranslate "tutorkit/services/google/translate"
)

// Builder turns settings into ready-to-run sessions. It owns the resources
// shared across sessions: the scenario catalogue and the latency sinks.
type Builder struct {
	settings  SettingsConfig
	keys      APIKeys
	scenarios memory.Scenarios
	recorder  latency.Recorder
	closeRec  func() error
	logger    *core.Logger

	// portsFn builds capability providers; replaced in tests.
	portsFn func(SessionConfig, *core.Logger) (turn.Ports, error)
}

// NewBuilder loads the scenario catalogue and opens the latency sinks.
func NewBuilder(settings SettingsConfig, keys APIKeys, logger *core.Logger) (*Builder, error) {
	logger = logger.OrDefault()
	scenarios, err := LoadScenarios(settings.ScenariosPath)
	if err != nil {
		return nil, err
	}
	recorder, closeRec, err := settings.Latency.BuildRecorder(logger)
	if err != nil {
		return nil, err
	}
	return &Builder{
		settings:  settings,
		keys:      keys,
		scenarios: scenarios,
		recorder:  recorder,
		closeRec:  closeRec,
		logger:    logger,
		portsFn: func(c SessionConfig, l *core.Logger) (turn.Ports, error) {
			return c.BuildPorts(l)
		},
	}, nil
}

// Scenarios returns the loaded catalogue.
func (b *Builder) Scenarios() memory.Scenarios { return b.scenarios }

// Settings returns the settings the builder was created with.
func (b *Builder) Settings() SettingsConfig { return b.settings }

// BuildSession creates the session for id: per-session log file, memory,
// providers and turn controller. It satisfies runner.SessionFactory.
func (b *Builder) BuildSession(id string) (*runner.Session, error) {
	cfg, err := b.sessionConfig(id)
	if err != nil {
		return nil, err
	}
	cfg.InjectAPIKeys(b.keys)

	logger := b.logger
	var logWriter *core.SessionLogWriter
	if b.settings.LogDir != "" {
		w, err := core.NewSessionLogWriter(b.settings.LogDir, core.SessionMetadata{
			SessionID:    id,
			Scenario:     cfg.Scenario,
			MaxExchanges: cfg.MaxExchanges,
		})
		if err != nil {
			b.logger.Warn("session log unavailable", "session_id", id, "error", err)
		} else {
			logWriter = w
			logger = core.NewSessionLogger(b.logger, w)
		}
	}
	logger = logger.With(map[string]interface{}{"session_id": id})

	ctl, err := b.controller(id, cfg, logger)
	if err != nil {
		if logWriter != nil {
			logWriter.Close()
		}
		return nil, fmt.Errorf("session %s: %w", id, err)
	}

	var opts []runner.SessionOption
	if logWriter != nil {
		opts = append(opts, runner.WithLogWriter(logWriter))
	}
	return runner.NewSession(id, ctl, logger, opts...), nil
}

func (b *Builder) controller(id string, cfg SessionConfig, logger *core.Logger) (*turn.Controller, error) {
	mem := memory.NewState(cfg.SystemPrompt, memory.WithMaxExchanges(cfg.MaxExchanges))
	if cfg.Scenario != "" {
		// An unknown id is logged by SelectScenario and the session starts without one.
		if err := memory.SelectScenario(mem, b.scenarios, cfg.Scenario, logger); err != nil && !errors.Is(err, memory.ErrUnknownScenario) {
			return nil, err
		}
	}

	ports, err := b.portsFn(cfg, logger)
	if err != nil {
		return nil, err
	}
	ctl, err := turn.NewController(id, cfg.Turn, mem, ports, b.recorder, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("session created",
		"transcriber", ports.Transcriber != nil,
		"translator", ports.Translator != nil,
		"synthesis", ports.Synthesis.Available(),
		"scenario", mem.Scenario() != "")
	return ctl, nil
}

func (b *Builder) sessionConfig(id string) (SessionConfig, error) {
	if b.settings.SessionAPI == nil {
		return b.settings.Session, nil
	}
	cfg, err := b.settings.SessionAPI.Fetch(context.Background(), id)
	if err != nil {
		return SessionConfig{}, err
	}
	return cfg, nil
}

// LatencyStore returns the SQLite latency sink when one is configured.
func (b *Builder) LatencyStore() (*latency.SQLiteSink, bool) {
	return sqliteSink(b.recorder)
}

// WordTranslator returns a Google translator for per-word glosses. It uses
// the session's Google settings when present and needs a Google API key.
func (b *Builder) WordTranslator() (*googletranslate.GoogleTranslator, bool) {
	var cfg googletranslate.Config
	if t := b.settings.Session.Translator; t != nil && t.GoogleConfig != nil {
		cfg = *t.GoogleConfig
	}
	if cfg.APIKey == "" {
		cfg.APIKey = b.keys.Google
	}
	if cfg.APIKey == "" {
		return nil, false
	}
	return googletranslate.NewGoogleTranslator(cfg, b.logger), true
}

// Close releases the shared latency sinks.
func (b *Builder) Close() error {
	if b.closeRec == nil {
		return nil
	}
	return b.closeRec()
}
