package latency

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"tutorkit/core"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink stores records in a latency_records table.
type SQLiteSink struct {
	db     *sql.DB
	logger *core.Logger
}

// NewSQLiteSink opens dsn and creates the table if needed. ":memory:" is
// supported and pinned to a single connection.
func NewSQLiteSink(dsn string, logger *core.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("latency: open database: %w", err)
	}
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	s := &SQLiteSink{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("latency: migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS latency_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL,
			session_id TEXT,
			capture_ms REAL NOT NULL DEFAULT 0,
			transcription_ms REAL NOT NULL DEFAULT 0,
			generation_ms REAL NOT NULL DEFAULT 0,
			translation_ms REAL NOT NULL DEFAULT 0,
			synthesis_ms REAL NOT NULL DEFAULT 0,
			input_duration_sec REAL NOT NULL DEFAULT 0,
			output_duration_sec REAL NOT NULL DEFAULT 0,
			total_ms REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_latency_session ON latency_records(session_id, ts)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteSink) Record(ctx context.Context, rec Record) {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO latency_records (ts, session_id, capture_ms, transcription_ms, generation_ms,
			translation_ms, synthesis_ms, input_duration_sec, output_duration_sec, total_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.UTC(), rec.SessionID, rec.CaptureMs, rec.TranscriptionMs, rec.GenerationMs,
		rec.TranslationMs, rec.SynthesisMs, rec.InputDurationSec, rec.OutputDurationSec, rec.TotalMs,
	)
	if err != nil {
		report(s.logger, "sqlite", err)
	}
}

// Recent returns up to limit records, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, COALESCE(session_id, ''), capture_ms, transcription_ms, generation_ms, translation_ms,
			synthesis_ms, input_duration_sec, output_duration_sec, total_ms
		FROM latency_records ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("latency: query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Timestamp, &r.SessionID, &r.CaptureMs, &r.TranscriptionMs, &r.GenerationMs,
			&r.TranslationMs, &r.SynthesisMs, &r.InputDurationSec, &r.OutputDurationSec, &r.TotalMs); err != nil {
			return nil, fmt.Errorf("latency: scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
