package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatalToTurn(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"generation", &GenerationError{Err: cause}, true},
		{"wrapped generation", fmt.Errorf("turn: %w", &GenerationError{Err: cause}), true},
		{"unrecoverable capture", &InputCaptureError{Err: cause}, true},
		{"recoverable capture", &InputCaptureError{Recoverable: true, Err: cause}, false},
		{"transcription", &TranscriptionError{Err: cause}, false},
		{"translation", &TranslationError{Err: cause}, false},
		{"synthesis", &SynthesisError{Err: cause}, false},
		{"logging", &LoggingError{Sink: "csv", Err: cause}, false},
		{"plain", cause, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatalToTurn(tt.err))
		})
	}
}

func TestErrorsUnwrapToCause(t *testing.T) {
	cause := errors.New("backend unreachable")
	for _, err := range []error{
		&InputCaptureError{Err: cause},
		&TranscriptionError{Err: cause},
		&GenerationError{Err: cause},
		&TranslationError{Err: cause},
		&SynthesisError{Err: cause},
		&LoggingError{Err: cause},
	} {
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "backend unreachable")
	}
}
