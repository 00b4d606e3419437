package memory

import (
	"errors"
	"strings"
	"sync"
)

// DefaultMaxExchanges bounds the history when no explicit limit is configured.
const DefaultMaxExchanges = 32

const (
	startOfTurn = "<start_of_turn>"
	endOfTurn   = "<end_of_turn>"
	userRole    = "user"
	modelRole   = "model"
)

var (
	ErrEmptyScenario      = errors.New("memory: scenario prompt is empty")
	ErrScenarioAlreadySet = errors.New("memory: scenario already set for this session")
)

// Exchange is one completed user/tutor pair.
type Exchange struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// State is the bounded conversational memory of one session. The system
// prompt is fixed at construction; the scenario prompt can be set once and
// survives Clear.
type State struct {
	mu             sync.RWMutex
	systemPrompt   string
	scenarioPrompt string
	scenarioLocked bool
	maxExchanges   int
	history        []Exchange
}

// Option configures a State at construction time.
type Option func(*State)

// WithMaxExchanges sets the history bound. Values below 1 keep the default.
func WithMaxExchanges(n int) Option {
	return func(s *State) {
		if n > 0 {
			s.maxExchanges = n
		}
	}
}

// WithScenario pre-selects a roleplay scenario prompt.
func WithScenario(prompt string) Option {
	return func(s *State) {
		if prompt != "" {
			s.scenarioPrompt = prompt
			s.scenarioLocked = true
		}
	}
}

func NewState(systemPrompt string, opts ...Option) *State {
	s := &State{
		systemPrompt: systemPrompt,
		maxExchanges: DefaultMaxExchanges,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.history = make([]Exchange, 0, s.maxExchanges)
	return s
}

// BuildPrompt renders the model input for newMessage without mutating state.
//
// On an empty history the system prompt, scenario prompt and message share a
// single user turn, separated by blank lines. Otherwise every stored exchange
// is replayed as a user turn followed by a model turn, then the new user turn.
// The result always ends with an open model turn.
func (s *State) BuildPrompt(newMessage string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	if len(s.history) == 0 {
		parts := make([]string, 0, 3)
		for _, p := range []string{s.systemPrompt, s.scenarioPrompt, newMessage} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		writeTurn(&b, userRole, strings.Join(parts, "\n\n"))
		openTurn(&b, modelRole)
		return b.String()
	}

	for _, ex := range s.history {
		writeTurn(&b, userRole, ex.User)
		writeTurn(&b, modelRole, ex.Assistant)
	}
	writeTurn(&b, userRole, newMessage)
	openTurn(&b, modelRole)
	return b.String()
}

func writeTurn(b *strings.Builder, role, text string) {
	openTurn(b, role)
	b.WriteString(text)
	b.WriteString(endOfTurn)
	b.WriteByte('\n')
}

func openTurn(b *strings.Builder, role string) {
	b.WriteString(startOfTurn)
	b.WriteString(role)
	b.WriteByte('\n')
}

// AddExchange appends a pair, evicting the oldest pairs so the history never
// exceeds its bound.
func (s *State) AddExchange(userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if over := len(s.history) + 1 - s.maxExchanges; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
	s.history = append(s.history, Exchange{User: userText, Assistant: assistantText})
}

// SetScenario stores prompt verbatim. It succeeds once per active lifetime;
// Clear re-opens it.
func (s *State) SetScenario(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyScenario
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scenarioLocked {
		return ErrScenarioAlreadySet
	}
	s.scenarioPrompt = prompt
	s.scenarioLocked = true
	return nil
}

// Clear empties the history. System and scenario prompts are kept, and a new
// scenario may be selected afterwards.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = s.history[:0]
	s.scenarioLocked = false
}

// History returns a copy of the stored exchanges, oldest first.
func (s *State) History() []Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Exchange, len(s.history))
	copy(out, s.history)
	return out
}

func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

func (s *State) MaxExchanges() int { return s.maxExchanges }

func (s *State) SystemPrompt() string { return s.systemPrompt }

func (s *State) Scenario() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scenarioPrompt
}
