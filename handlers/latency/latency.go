package latency

import (
	"context"
	"sync"
	"time"
	"tutorkit/core"
)

// Record is one row of per-turn stage timings. Stages that did not run are 0.
type Record struct {
	Timestamp         time.Time `json:"timestamp"`
	SessionID         string    `json:"session_id,omitempty"`
	CaptureMs         float64   `json:"capture_ms"`
	TranscriptionMs   float64   `json:"transcription_ms"`
	GenerationMs      float64   `json:"generation_ms"`
	TranslationMs     float64   `json:"translation_ms"`
	SynthesisMs       float64   `json:"synthesis_ms"`
	InputDurationSec  float64   `json:"input_duration_sec"`
	OutputDurationSec float64   `json:"output_duration_sec"`
	TotalMs           float64   `json:"total_ms"`
}

// Recorder appends turn records to a durable log. Implementations swallow
// their own failures; callers never see an error.
type Recorder interface {
	Record(ctx context.Context, rec Record)
}

// Stage names accepted by Stopwatch.
const (
	StageCapture       = "capture"
	StageTranscription = "transcription"
	StageGeneration    = "generation"
	StageTranslation   = "translation"
	StageSynthesis     = "synthesis"
)

// Stopwatch accumulates stage durations for one turn.
type Stopwatch struct {
	mu      sync.Mutex
	started time.Time
	stages  map[string]time.Duration
	now     func() time.Time
}

func NewStopwatch() *Stopwatch {
	return newStopwatchWithClock(time.Now)
}

func newStopwatchWithClock(now func() time.Time) *Stopwatch {
	return &Stopwatch{started: now(), stages: make(map[string]time.Duration), now: now}
}

// Start begins timing stage; the returned func stops it. Repeated runs of
// the same stage add up.
func (s *Stopwatch) Start(stage string) func() {
	begin := s.now()
	return func() {
		s.Add(stage, s.now().Sub(begin))
	}
}

// Add records an externally measured duration for stage.
func (s *Stopwatch) Add(stage string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[stage] += d
}

func (s *Stopwatch) Stage(stage string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stages[stage]
}

// Record builds the row for the turn. Total is the wall time since the
// stopwatch was created plus any capture time measured before it.
func (s *Stopwatch) Record(inputDurationSec, outputDurationSec float64) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.now().Sub(s.started) + s.stages[StageCapture]
	return Record{
		Timestamp:         s.now(),
		CaptureMs:         ms(s.stages[StageCapture]),
		TranscriptionMs:   ms(s.stages[StageTranscription]),
		GenerationMs:      ms(s.stages[StageGeneration]),
		TranslationMs:     ms(s.stages[StageTranslation]),
		SynthesisMs:       ms(s.stages[StageSynthesis]),
		InputDurationSec:  inputDurationSec,
		OutputDurationSec: outputDurationSec,
		TotalMs:           ms(total),
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// report logs a sink failure as a LoggingError.
func report(logger *core.Logger, sink string, err error) {
	logger.OrDefault().Warn("latency record dropped", "error", &core.LoggingError{Sink: sink, Err: err})
}

// LogSink writes each record as a structured log line.
type LogSink struct {
	Logger *core.Logger
}

func (s LogSink) Record(_ context.Context, rec Record) {
	s.Logger.OrDefault().Info("turn latency",
		"session_id", rec.SessionID,
		"capture_ms", rec.CaptureMs,
		"transcription_ms", rec.TranscriptionMs,
		"generation_ms", rec.GenerationMs,
		"translation_ms", rec.TranslationMs,
		"synthesis_ms", rec.SynthesisMs,
		"input_duration_sec", rec.InputDurationSec,
		"output_duration_sec", rec.OutputDurationSec,
		"total_ms", rec.TotalMs,
	)
}

// MultiSink fans a record out to every recorder in order.
type MultiSink []Recorder

func (m MultiSink) Record(ctx context.Context, rec Record) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, rec)
		}
	}
}

// Nop discards records.
type Nop struct{}

func (Nop) Record(context.Context, Record) {}
