package tutor

import (
	"fmt"
	"tutorkit/core"

	"github.com/bytedance/sonic"
)

// Wire discriminators, as read by the browser client.
const (
	TypeText        = "text"
	TypeAudioChunk  = "audio_chunk"
	TypeAudioEnd    = "audio_end"
	TypeTranslation = "translation"
	TypeError       = "error"
	TypeComplete    = "complete"
)

// TextEvent carries the user's message and the cleaned tutor reply.
type TextEvent struct {
	UserMessage string
	Response    string
}

func (e *TextEvent) GetId() string   { return "tutor.text" }
func (e *TextEvent) GetType() string { return TypeText }

// AudioChunkEvent carries one piece of synthesized speech. Whole-buffer
// synthesis produces exactly one.
type AudioChunkEvent struct {
	Chunk []byte
}

func (e *AudioChunkEvent) GetId() string   { return "tutor.audio_chunk" }
func (e *AudioChunkEvent) GetType() string { return TypeAudioChunk }

// AudioEndEvent marks the end of the audio chunks of a turn.
type AudioEndEvent struct{}

func (e *AudioEndEvent) GetId() string   { return "tutor.audio_end" }
func (e *AudioEndEvent) GetType() string { return TypeAudioEnd }

type TranslationEvent struct {
	Text string
}

func (e *TranslationEvent) GetId() string   { return "tutor.translation" }
func (e *TranslationEvent) GetType() string { return TypeTranslation }

// ErrorEvent is a human-readable failure notice for the client.
type ErrorEvent struct {
	Message string
}

func (e *ErrorEvent) GetId() string   { return "tutor.error" }
func (e *ErrorEvent) GetType() string { return TypeError }

// CompleteEvent is always the last event of a turn.
type CompleteEvent struct{}

func (e *CompleteEvent) GetId() string   { return "tutor.complete" }
func (e *CompleteEvent) GetType() string { return TypeComplete }

// Wire is the JSON shape of every event. Chunk is base64 encoded. Text
// events always carry user_message and response, even when empty.
type Wire struct {
	Type        string  `json:"type"`
	UserMessage *string `json:"user_message,omitempty"`
	Response    *string `json:"response,omitempty"`
	Chunk       []byte  `json:"chunk,omitempty"`
	Text        string  `json:"text,omitempty"`
	Message     string  `json:"message,omitempty"`
}

// ToWire converts an event into its wire shape.
func ToWire(ev core.IEvent) (Wire, error) {
	w := Wire{Type: ev.GetType()}
	switch e := ev.(type) {
	case *TextEvent:
		user, response := e.UserMessage, e.Response
		w.UserMessage, w.Response = &user, &response
	case *AudioChunkEvent:
		w.Chunk = e.Chunk
	case *TranslationEvent:
		w.Text = e.Text
	case *ErrorEvent:
		w.Message = e.Message
	case *AudioEndEvent, *CompleteEvent:
	default:
		return w, fmt.Errorf("tutor: unknown event %T", ev)
	}
	return w, nil
}

// Encode renders ev as a single JSON object.
func Encode(ev core.IEvent) ([]byte, error) {
	w, err := ToWire(ev)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(w)
}

// FromWire is the inverse of ToWire.
func FromWire(w Wire) (core.IEvent, error) {
	switch w.Type {
	case TypeText:
		return &TextEvent{UserMessage: deref(w.UserMessage), Response: deref(w.Response)}, nil
	case TypeAudioChunk:
		return &AudioChunkEvent{Chunk: w.Chunk}, nil
	case TypeAudioEnd:
		return &AudioEndEvent{}, nil
	case TypeTranslation:
		return &TranslationEvent{Text: w.Text}, nil
	case TypeError:
		return &ErrorEvent{Message: w.Message}, nil
	case TypeComplete:
		return &CompleteEvent{}, nil
	}
	return nil, fmt.Errorf("tutor: unknown event type %q", w.Type)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Decode parses one JSON event produced by Encode.
func Decode(data []byte) (core.IEvent, error) {
	var w Wire
	if err := sonic.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("tutor: decode event: %w", err)
	}
	return FromWire(w)
}
