package runner

import (
	"context"
	"fmt"
	"io"
	"sync"
	"tutorkit/core"
	"tutorkit/events/tutor"
)

// ConsoleSink prints turn events for a terminal user. Audio is played by the
// runner's player, so audio events are not printed.
type ConsoleSink struct {
	mu      sync.Mutex
	w       io.Writer
	llmName string
	voice   bool
}

// NewConsoleSink prefixes replies with llmName. With voice set, the
// transcribed user message is echoed before the reply.
func NewConsoleSink(w io.Writer, llmName string, voice bool) *ConsoleSink {
	return &ConsoleSink{w: w, llmName: llmName, voice: voice}
}

func (s *ConsoleSink) Send(_ context.Context, ev core.IEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch e := ev.(type) {
	case *tutor.TextEvent:
		if s.voice {
			_, err = fmt.Fprintf(s.w, "\nYou: %s\n", e.UserMessage)
		}
		if err == nil {
			_, err = fmt.Fprintf(s.w, "\n%s: %s\n\n", s.llmName, e.Response)
		}
	case *tutor.TranslationEvent:
		_, err = fmt.Fprintf(s.w, "Translation: %s\n\n", e.Text)
	case *tutor.ErrorEvent:
		_, err = fmt.Fprintf(s.w, "! %s\n", e.Message)
	}
	return err
}
