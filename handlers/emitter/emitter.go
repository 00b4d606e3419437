package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"tutorkit/core"
	"tutorkit/events/tutor"
)

var (
	ErrOutOfOrder = errors.New("emitter: event out of order")
	ErrClosed     = errors.New("emitter: turn already complete")
)

// Sink delivers events to a client. Send may block until the client has
// accepted the event.
type Sink interface {
	Send(ctx context.Context, ev core.IEvent) error
}

// Closer is implemented by sinks that release resources once a turn's stream
// has ended.
type Closer interface {
	Close()
}

type phase int

const (
	phaseStart phase = iota
	phaseText
	phaseAudio
	phaseAudioDone
	phaseTranslated
	phaseClosed
)

// Option configures an Emitter.
type Option func(*Emitter)

// WithAudioEnd makes the emitter send an audio_end marker once the audio of a
// turn is over, for clients that flush their playback buffer on it.
func WithAudioEnd() Option {
	return func(e *Emitter) { e.audioEnd = true }
}

// Emitter produces the events of exactly one turn, in the fixed order
// text, audio_chunk*, [audio_end], translation?, complete. Error events may
// appear anywhere before complete. Nothing can be sent after complete.
type Emitter struct {
	mu       sync.Mutex
	sink     Sink
	phase    phase
	audioEnd bool
	chunks   int
}

func New(sink Sink, opts ...Option) *Emitter {
	e := &Emitter{sink: sink}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Text sends the user message and cleaned response. It must be first.
func (e *Emitter) Text(ctx context.Context, userMessage, response string) error {
	return e.advance(ctx, phaseText, func(p phase) bool { return p == phaseStart },
		&tutor.TextEvent{UserMessage: userMessage, Response: response})
}

// AudioChunk sends one piece of audio. Empty chunks are dropped.
func (e *Emitter) AudioChunk(ctx context.Context, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	err := e.advance(ctx, phaseAudio, func(p phase) bool { return p == phaseText || p == phaseAudio },
		&tutor.AudioChunkEvent{Chunk: chunk})
	if err == nil {
		e.mu.Lock()
		e.chunks++
		e.mu.Unlock()
	}
	return err
}

// AudioDone closes the audio section of the turn. It is idempotent and
// implied by Translation and Complete.
func (e *Emitter) AudioDone(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.phase {
	case phaseClosed:
		return ErrClosed
	case phaseStart:
		return fmt.Errorf("%w: audio before text", ErrOutOfOrder)
	case phaseText, phaseAudio:
		return e.finishAudioLocked(ctx)
	}
	return nil
}

// Translation sends the translated reply. It must follow text and all audio
// and may be sent at most once.
func (e *Emitter) Translation(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.phase {
	case phaseClosed:
		return ErrClosed
	case phaseStart, phaseTranslated:
		return fmt.Errorf("%w: translation in phase %d", ErrOutOfOrder, e.phase)
	case phaseText, phaseAudio:
		if err := e.finishAudioLocked(ctx); err != nil {
			return err
		}
	}
	if err := e.sink.Send(ctx, &tutor.TranslationEvent{Text: text}); err != nil {
		return err
	}
	e.phase = phaseTranslated
	return nil
}

// Error sends a human-readable failure notice without changing the phase.
func (e *Emitter) Error(ctx context.Context, message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == phaseClosed {
		return ErrClosed
	}
	return e.sink.Send(ctx, &tutor.ErrorEvent{Message: message})
}

// Complete ends the turn's stream and closes the sink if it is a Closer.
func (e *Emitter) Complete(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.phase {
	case phaseClosed:
		return ErrClosed
	case phaseText, phaseAudio:
		if err := e.finishAudioLocked(ctx); err != nil {
			return err
		}
	}
	err := e.sink.Send(ctx, &tutor.CompleteEvent{})
	e.phase = phaseClosed
	if c, ok := e.sink.(Closer); ok {
		c.Close()
	}
	return err
}

// Chunks returns how many audio chunks were sent.
func (e *Emitter) Chunks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chunks
}

func (e *Emitter) advance(ctx context.Context, next phase, allowed func(phase) bool, ev core.IEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == phaseClosed {
		return ErrClosed
	}
	if !allowed(e.phase) {
		return fmt.Errorf("%w: %s in phase %d", ErrOutOfOrder, ev.GetType(), e.phase)
	}
	if err := e.sink.Send(ctx, ev); err != nil {
		return err
	}
	e.phase = next
	return nil
}

func (e *Emitter) finishAudioLocked(ctx context.Context) error {
	if e.audioEnd {
		if err := e.sink.Send(ctx, &tutor.AudioEndEvent{}); err != nil {
			return err
		}
	}
	e.phase = phaseAudioDone
	return nil
}
