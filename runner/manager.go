package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"tutorkit/core"

	"github.com/google/uuid"
)

var ErrSessionLimit = errors.New("runner: too many active sessions")

// SessionFactory builds a new session with the given id.
type SessionFactory func(id string) (*Session, error)

// pendingSession is a session whose factory is still running. Callers asking
// for the same id wait on done instead of building a second one.
type pendingSession struct {
	done chan struct{}
	sess *Session
	err  error
}

// SessionManager keeps one Session per conversation id. Sessions never share
// state; each owns its controller and memory.
type SessionManager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	pending     map[string]*pendingSession
	factory     SessionFactory
	maxSessions int
	idleTTL     time.Duration
	logger      *core.Logger
}

// NewSessionManager creates a manager. maxSessions <= 0 means unlimited;
// idleTTL <= 0 disables expiry.
func NewSessionManager(factory SessionFactory, maxSessions int, idleTTL time.Duration, logger *core.Logger) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Session),
		pending:     make(map[string]*pendingSession),
		factory:     factory,
		maxSessions: maxSessions,
		idleTTL:     idleTTL,
		logger:      logger.OrDefault().With(map[string]interface{}{"component": "session_manager"}),
	}
}

// GetOrCreate returns the session for id, creating it when id is empty or
// unknown. The bool reports whether a new session was created. The factory
// runs without holding the manager lock, so a slow build only delays callers
// asking for that same id.
func (m *SessionManager) GetOrCreate(id string) (*Session, bool, error) {
	m.mu.Lock()
	if id != "" {
		if s, ok := m.sessions[id]; ok {
			m.mu.Unlock()
			s.Touch()
			return s, false, nil
		}
		if p, ok := m.pending[id]; ok {
			m.mu.Unlock()
			<-p.done
			if p.err != nil {
				return nil, false, p.err
			}
			p.sess.Touch()
			return p.sess, false, nil
		}
	} else {
		id = uuid.NewString()
	}

	// Builds in flight hold a slot so the cap cannot be overshot.
	if m.maxSessions > 0 && len(m.sessions)+len(m.pending) >= m.maxSessions {
		m.mu.Unlock()
		return nil, false, ErrSessionLimit
	}
	p := &pendingSession{done: make(chan struct{})}
	m.pending[id] = p
	m.mu.Unlock()

	s, err := m.factory(id)
	if err != nil {
		err = fmt.Errorf("runner: create session: %w", err)
	}

	m.mu.Lock()
	delete(m.pending, id)
	if err == nil {
		m.sessions[id] = s
	}
	active := len(m.sessions)
	m.mu.Unlock()

	p.sess, p.err = s, err
	close(p.done)
	if err != nil {
		return nil, false, err
	}
	m.logger.Info("session created", "session_id", id, "active", active)
	return s, true, nil
}

func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove closes and forgets the session.
func (m *SessionManager) Remove(ctx context.Context, id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close(ctx)
		m.logger.Info("session removed", "session_id", id, "age_s", int(time.Since(s.CreatedAt()).Seconds()))
	}
	return ok
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many.
// Sessions with a live connection are never idle.
func (m *SessionManager) Sweep(ctx context.Context, now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}
	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.Connected() {
			continue
		}
		if now.Sub(s.LastUsed()) > m.idleTTL {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close(ctx)
	}
	if len(expired) > 0 {
		m.logger.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	if m.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(ctx, now)
		}
	}
}

// CloseAll closes every session.
func (m *SessionManager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close(ctx)
	}
}
