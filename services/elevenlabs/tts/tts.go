package elevenlabs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
	"tutorkit/core"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// ElevenLabsTTSConfig holds configuration for the ElevenLabs TTS service
type ElevenLabsTTSConfig struct {
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
	VoiceID      string `json:"voice_id"`
	ModelID      string `json:"model_id"`
	OutputFormat string `json:"output_format"`

	// Voice settings
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Client messages
type (
	// BOS (Beginning of Stream) - first frame on every connection
	elBOSMessage struct {
		Text             string          `json:"text"`
		VoiceSettings    elVoiceSettings `json:"voice_settings"`
		GenerationConfig elGenConfig     `json:"generation_config"`
	}

	elVoiceSettings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
	}

	elGenConfig struct {
		ChunkLengthSchedule []int `json:"chunk_length_schedule"`
	}

	elTextMessage struct {
		Text string `json:"text"`
	}
)

// Server messages
type (
	// Audio or error frame from ElevenLabs. Audio is base64-encoded.
	elServerMessage struct {
		Audio   *string `json:"audio"`
		IsFinal bool    `json:"isFinal"`
		Error   string  `json:"error,omitempty"`
		Message string  `json:"message,omitempty"`
		Code    int     `json:"code,omitempty"`
	}
)

const (
	dialAttempts   = 3
	dialBaseDelay  = 500 * time.Millisecond
	readTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
	defaultFormat  = "mp3_44100_128"
	defaultBaseURL = "wss://api.elevenlabs.io/v1/text-to-speech"
)

// ElevenLabsTTS implements core.StreamingSynthesizer over the ElevenLabs
// stream-input WebSocket API. Each call uses its own connection: BOS, the
// whole text, EOS, then audio frames until isFinal or the server closes.
type ElevenLabsTTS struct {
	config ElevenLabsTTSConfig
	dialer *websocket.Dialer
	logger *core.Logger
}

// NewElevenLabsTTS creates a new ElevenLabs TTS service with the provided config
func NewElevenLabsTTS(config ElevenLabsTTSConfig, logger *core.Logger) *ElevenLabsTTS {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.VoiceID == "" {
		config.VoiceID = "21m00Tcm4TlvDq8ikWAM" // Rachel
	}
	if config.ModelID == "" {
		config.ModelID = "eleven_multilingual_v2"
	}
	if config.OutputFormat == "" {
		config.OutputFormat = defaultFormat
	}
	if config.Stability == 0 {
		config.Stability = 0.5
	}
	if config.SimilarityBoost == 0 {
		config.SimilarityBoost = 0.75
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	return &ElevenLabsTTS{
		config: config,
		dialer: &dialer,
		logger: logger.OrDefault().With(map[string]interface{}{"service": "elevenlabs_tts", "voice": config.VoiceID}),
	}
}

// SynthesizeStream starts synthesis of text and returns immediately. The chunk
// channel closes when the server signals the end of generation; a failure is
// delivered once on the error channel.
func (e *ElevenLabsTTS) SynthesizeStream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(chunks)
		if err := e.run(ctx, text, chunks); err != nil {
			errs <- &core.SynthesisError{Err: err}
		}
	}()
	return chunks, errs
}

func (e *ElevenLabsTTS) run(ctx context.Context, text string, chunks chan<- []byte) error {
	if e.config.APIKey == "" {
		return errors.New("ElevenLabs API key is required")
	}
	conn, err := e.establishConnection(ctx)
	if err != nil {
		return err
	}
	defer closeConnection(conn)

	// Unblock the read loop when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	bos := elBOSMessage{
		Text: " ",
		VoiceSettings: elVoiceSettings{
			Stability:       e.config.Stability,
			SimilarityBoost: e.config.SimilarityBoost,
		},
		GenerationConfig: elGenConfig{
			ChunkLengthSchedule: []int{120, 160, 250, 290},
		},
	}
	for _, msg := range []interface{}{bos, elTextMessage{Text: text + " "}, elTextMessage{Text: ""}} {
		if err := sendJSON(conn, msg); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}

	received := 0
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && received > 0 {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var audio []byte
		final := false
		switch messageType {
		case websocket.TextMessage:
			var msg elServerMessage
			if err := sonic.Unmarshal(message, &msg); err != nil {
				e.logger.Warn("failed to parse message", "error", err)
				continue
			}
			if msg.Error != "" {
				return fmt.Errorf("ElevenLabs error: %s: %s (code: %d)", msg.Error, msg.Message, msg.Code)
			}
			if msg.Audio != nil && *msg.Audio != "" {
				audio, err = base64.StdEncoding.DecodeString(*msg.Audio)
				if err != nil {
					return fmt.Errorf("failed to decode audio: %w", err)
				}
			}
			final = msg.IsFinal
		case websocket.BinaryMessage:
			audio = message
		}

		if len(audio) > 0 {
			received++
			select {
			case chunks <- audio:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if final {
			e.logger.Debug("generation complete", "chunks", received)
			return nil
		}
	}
}

// establishConnection dials with linear backoff.
func (e *ElevenLabsTTS) establishConnection(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < dialAttempts; attempt++ {
		if attempt > 0 {
			delay := dialBaseDelay * time.Duration(attempt)
			e.logger.Info("retrying connection", "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		conn, err := e.dial(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		return conn, nil
	}
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", dialAttempts, lastErr)
}

func (e *ElevenLabsTTS) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=%s",
		e.config.BaseURL,
		url.PathEscape(e.config.VoiceID),
		url.QueryEscape(e.config.ModelID),
		url.QueryEscape(e.config.OutputFormat),
	)
	headers := http.Header{"xi-api-key": {e.config.APIKey}}
	conn, _, err := e.dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func sendJSON(conn *websocket.Conn, msg interface{}) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func closeConnection(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
}
