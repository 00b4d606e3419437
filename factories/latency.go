package factories

import (
	"fmt"
	"tutorkit/core"
	"tutorkit/handlers/latency"
)

// LatencyConfig selects where per-turn latency records go. Every enabled
// sink receives every record.
type LatencyConfig struct {
	// CSVPath appends records to a CSV file. Empty disables it.
	CSVPath string `json:"csv_path"`
	// SQLitePath stores records in a SQLite database. Empty disables it.
	SQLitePath string `json:"sqlite_path,omitempty"`
	// Log writes each record to the application log.
	Log bool `json:"log"`
}

// BuildRecorder constructs the configured sinks. The returned close func
// releases the database handle, if any.
func (c LatencyConfig) BuildRecorder(logger *core.Logger) (latency.Recorder, func() error, error) {
	var sinks latency.MultiSink
	closeFn := func() error { return nil }

	if c.CSVPath != "" {
		sinks = append(sinks, latency.NewCSVSink(c.CSVPath, logger))
	}
	if c.SQLitePath != "" {
		db, err := latency.NewSQLiteSink(c.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("latency: %w", err)
		}
		sinks = append(sinks, db)
		closeFn = db.Close
	}
	if c.Log {
		sinks = append(sinks, latency.LogSink{Logger: logger})
	}

	switch len(sinks) {
	case 0:
		return latency.Nop{}, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return sinks, closeFn, nil
	}
}

// sqliteSink finds the SQLite sink inside rec, if any.
func sqliteSink(rec latency.Recorder) (*latency.SQLiteSink, bool) {
	switch r := rec.(type) {
	case *latency.SQLiteSink:
		return r, true
	case latency.MultiSink:
		for _, s := range r {
			if db, ok := sqliteSink(s); ok {
				return db, true
			}
		}
	}
	return nil, false
}
