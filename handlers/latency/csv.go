package latency

import (
	"context"
	"encoding/csv"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
	"tutorkit/core"
)

// Header is the column row written at the top of a new CSV log.
var Header = []string{
	"timestamp", "capture_ms", "transcription_ms", "generation_ms", "translation_ms",
	"synthesis_ms", "input_duration_sec", "output_duration_sec", "total_ms",
}

// CSVSink appends one row per turn to a CSV file, writing Header first when
// the file does not exist yet. The file is opened per record so external
// rotation is safe.
type CSVSink struct {
	mu     sync.Mutex
	path   string
	logger *core.Logger
}

func NewCSVSink(path string, logger *core.Logger) *CSVSink {
	return &CSVSink{path: path, logger: logger}
}

func (s *CSVSink) Record(_ context.Context, rec Record) {
	if err := s.append(rec); err != nil {
		report(s.logger, "csv", err)
	}
}

func (s *CSVSink) append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	_, statErr := os.Stat(s.path)
	isNew := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(Header); err != nil {
			return err
		}
	}
	if err := w.Write(row(rec)); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func row(rec Record) []string {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return []string{
		ts.Format(time.RFC3339Nano),
		round1(rec.CaptureMs),
		round1(rec.TranscriptionMs),
		round1(rec.GenerationMs),
		round1(rec.TranslationMs),
		round1(rec.SynthesisMs),
		strconv.FormatFloat(rec.InputDurationSec, 'f', 2, 64),
		strconv.FormatFloat(rec.OutputDurationSec, 'f', 2, 64),
		round1(rec.TotalMs),
	}
}

func round1(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
