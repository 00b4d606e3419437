package core

import "context"

// Transcriber turns a captured utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio AudioInput) (string, error)
}

// Responder generates the tutor reply for a fully assembled prompt.
// Retries are the caller's business; implementations make a single attempt.
type Responder interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

// Translator translates text into the target language code (e.g. "en").
type Translator interface {
	Translate(ctx context.Context, text string, targetLanguage string) (string, error)
}

// BlockingSynthesizer returns the whole audio buffer in one call.
type BlockingSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// StreamingSynthesizer yields audio chunks as they are produced. The chunk
// channel is closed when synthesis ends; the error channel carries at most one
// error and is closed afterwards.
type StreamingSynthesizer interface {
	SynthesizeStream(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// Synthesis holds the call shapes a speech backend supports. Either field may
// be nil; when both are set the streaming shape is preferred.
type Synthesis struct {
	Blocking  BlockingSynthesizer
	Streaming StreamingSynthesizer
}

// SynthesisFor inspects backend without calling it and records which of the
// two synthesizer interfaces it implements.
func SynthesisFor(backend any) Synthesis {
	var s Synthesis
	if b, ok := backend.(BlockingSynthesizer); ok {
		s.Blocking = b
	}
	if st, ok := backend.(StreamingSynthesizer); ok {
		s.Streaming = st
	}
	return s
}

// Available reports whether any call shape is present.
func (s Synthesis) Available() bool {
	return s.Blocking != nil || s.Streaming != nil
}
