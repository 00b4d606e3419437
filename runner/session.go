package runner

import (
	"context"
	"sync"
	"time"
	"tutorkit/core"
	"tutorkit/handlers/playback"
	"tutorkit/handlers/turn"
)

// Session is one conversation: a turn controller owning its memory, and the
// playback gate that keeps capture and audio output apart.
type Session struct {
	ID         string
	Controller *turn.Controller
	Gate       *playback.Gate
	Logger     *core.Logger

	createdAt time.Time
	logWriter core.LogWriter

	mu       sync.Mutex
	lastUsed time.Time
	conns    int
	closed   bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogWriter attaches a per-session log file that is closed with the session.
func WithLogWriter(w core.LogWriter) SessionOption {
	return func(s *Session) { s.logWriter = w }
}

func NewSession(id string, ctl *turn.Controller, logger *core.Logger, opts ...SessionOption) *Session {
	now := time.Now()
	s := &Session{
		ID:         id,
		Controller: ctl,
		Gate:       playback.NewGate(),
		Logger:     logger.OrDefault(),
		createdAt:  now,
		lastUsed:   now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// Attach records a live connection, such as an open WebSocket, that keeps
// the session from expiring. The returned func detaches it and counts as use.
func (s *Session) Attach() (detach func()) {
	s.mu.Lock()
	s.conns++
	s.lastUsed = time.Now()
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.conns--
			s.lastUsed = time.Now()
			s.mu.Unlock()
		})
	}
}

// Connected reports whether a connection is attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns > 0
}

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Close releases the session log. It is safe to call more than once.
func (s *Session) Close(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.Logger.Info("session closed", "exchanges", s.Controller.Memory().Len())
	if s.logWriter != nil {
		s.logWriter.Close()
	}
}
