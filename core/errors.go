package core

import (
	"errors"
	"fmt"
)

// InputCaptureError reports a microphone or transport failure while obtaining
// user input. A recoverable failure skips the turn; an unrecoverable one ends
// forward progress of the turn loop.
type InputCaptureError struct {
	Recoverable bool
	Err         error
}

func (e *InputCaptureError) Error() string {
	return fmt.Sprintf("input capture: %v", e.Err)
}

func (e *InputCaptureError) Unwrap() error { return e.Err }

// TranscriptionError reports a speech-to-text backend failure or an empty transcript.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription: %v", e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// GenerationError reports a language model backend failure.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// TranslationError reports a translation backend failure.
type TranslationError struct {
	Err error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translation: %v", e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// SynthesisError reports a speech synthesis failure.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// LoggingError reports a failed write to a latency or session log. It is never
// returned to turn callers.
type LoggingError struct {
	Sink string
	Err  error
}

func (e *LoggingError) Error() string {
	return fmt.Sprintf("logging (%s): %v", e.Sink, e.Err)
}

func (e *LoggingError) Unwrap() error { return e.Err }

// IsFatalToTurn reports whether err stops a turn's forward progress.
// Only generation failures and unrecoverable capture failures do.
func IsFatalToTurn(err error) bool {
	if err == nil {
		return false
	}
	var gen *GenerationError
	if errors.As(err, &gen) {
		return true
	}
	var capture *InputCaptureError
	if errors.As(err, &capture) {
		return !capture.Recoverable
	}
	return false
}
