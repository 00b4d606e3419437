package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"tutorkit/core"
	"tutorkit/handlers/emitter"
	"tutorkit/handlers/memory"
	"tutorkit/handlers/playback"
	"tutorkit/handlers/turn"
	"tutorkit/utils/audio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoResponder struct{}

func (echoResponder) Respond(_ context.Context, prompt string) (string, error) {
	return "ok", nil
}

type constSynth struct{}

func (constSynth) Synthesize(context.Context, string) ([]byte, error) { return []byte("audio"), nil }

type scriptedInput struct {
	inputs []Input
	errs   []error
	// gate is checked on every call to prove capture never overlaps playback.
	gate       *playback.Gate
	overlapped bool
}

func (s *scriptedInput) Next(context.Context) (Input, error) {
	if s.gate != nil && s.gate.IsPlaying() {
		s.overlapped = true
	}
	if len(s.inputs) == 0 {
		return Input{}, io.EOF
	}
	in, err := s.inputs[0], s.errs[0]
	s.inputs, s.errs = s.inputs[1:], s.errs[1:]
	return in, err
}

func texts(lines ...string) *scriptedInput {
	s := &scriptedInput{}
	for _, l := range lines {
		s.inputs = append(s.inputs, Input{Text: l})
		s.errs = append(s.errs, nil)
	}
	return s
}

func newTestSession(t *testing.T, ports turn.Ports) *Session {
	t.Helper()
	if ports.Responder == nil {
		ports.Responder = echoResponder{}
	}
	ctl, err := turn.NewController("s1", turn.Config{}, memory.NewState(""), ports, nil, nil)
	require.NoError(t, err)
	return NewSession("s1", ctl, nil)
}

func TestRunStopsOnQuit(t *testing.T) {
	s := newTestSession(t, turn.Ports{})
	in := texts("hola", "/quit", "never read")

	err := NewRunner(s, nil, nil).Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Controller.Memory().Len())
	assert.Len(t, in.inputs, 1)
}

func TestRunStopsAtEndOfInput(t *testing.T) {
	s := newTestSession(t, turn.Ports{})
	err := NewRunner(s, nil, nil).Run(context.Background(), texts("uno", "dos"))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Controller.Memory().Len())
}

func TestRunWaitsForPlaybackBeforeCapture(t *testing.T) {
	s := newTestSession(t, turn.Ports{Synthesis: core.SynthesisFor(constSynth{})})

	var mu sync.Mutex
	var played int
	out := playback.OutputFunc(func(context.Context, []byte) error {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		played++
		mu.Unlock()
		return nil
	})
	in := texts("uno", "dos", "tres")
	in.gate = s.Gate

	require.NoError(t, NewRunner(s, out, nil).Run(context.Background(), in))
	assert.False(t, in.overlapped)
	mu.Lock()
	assert.Equal(t, 3, played)
	mu.Unlock()
}

func TestRunSkipsRecoverableCaptureErrors(t *testing.T) {
	s := newTestSession(t, turn.Ports{})
	in := &scriptedInput{
		inputs: []Input{{}, {Text: "hola"}},
		errs:   []error{&core.InputCaptureError{Recoverable: true, Err: errors.New("mic busy")}, nil},
	}
	sink := &emitter.Collector{}

	require.NoError(t, NewRunner(s, nil, sink).Run(context.Background(), in))
	assert.Equal(t, 1, s.Controller.Memory().Len())
	assert.Equal(t, "error", sink.Types()[0])
}

func TestRunEndsOnUnrecoverableCaptureError(t *testing.T) {
	s := newTestSession(t, turn.Ports{})
	in := &scriptedInput{
		inputs: []Input{{}},
		errs:   []error{errors.New("device removed")},
	}
	err := NewRunner(s, nil, nil).Run(context.Background(), in)
	var capture *core.InputCaptureError
	require.ErrorAs(t, err, &capture)
	assert.False(t, capture.Recoverable)
}

type failingResponder struct{}

func (failingResponder) Respond(context.Context, string) (string, error) {
	return "", errors.New("offline")
}

func TestRunSurvivesGenerationFailure(t *testing.T) {
	s := newTestSession(t, turn.Ports{Responder: failingResponder{}})
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "LLM", false)

	require.NoError(t, NewRunner(s, nil, sink).Run(context.Background(), texts("uno", "dos")))
	assert.Zero(t, s.Controller.Memory().Len())
	assert.Equal(t, 2, strings.Count(buf.String(), turn.MsgGenerationFailed))
}

func TestRunHonoursCancellation(t *testing.T) {
	s := newTestSession(t, turn.Ports{})
	require.NoError(t, s.Gate.BeginPlayback(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := NewRunner(s, nil, nil).Run(ctx, texts("hola"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConsoleInputMultiline(t *testing.T) {
	src := strings.NewReader("hola\nprimera línea\\\nsegunda\ntercera\n\n/quit\n")
	var prompt bytes.Buffer
	in := NewConsoleInput(src, &prompt)
	ctx := context.Background()

	got, err := in.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hola", got.Text)

	got, err = in.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "primera línea\nsegunda\ntercera", got.Text)

	got, err = in.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/quit", got.Text)

	_, err = in.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, prompt.String(), "You: ")
	assert.Contains(t, prompt.String(), "... ")
}

func TestConsoleInputContinuationEndsAtEOF(t *testing.T) {
	in := NewConsoleInput(strings.NewReader("uno\\\ndos"), nil)
	got, err := in.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "uno\ndos", got.Text)
}

type fakeCapturer struct {
	chunk core.AudioChunk
	err   error
}

func (f fakeCapturer) Capture(context.Context) (core.AudioChunk, error) { return f.chunk, f.err }

func TestVoiceInput(t *testing.T) {
	wav, err := audio.PCMBytesToWavBytes(make([]byte, 32000), 1, 16000)
	require.NoError(t, err)

	in, err := NewVoiceInput(fakeCapturer{chunk: core.AudioChunk{Data: wav, Format: core.WAV}}, nil).Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, in.Audio)
	assert.Equal(t, "input.wav", in.Audio.Filename)
	assert.InDelta(t, 1.0, in.Audio.DurationSec, 1e-9)
}

func TestVoiceInputFailuresAreRecoverable(t *testing.T) {
	for _, c := range []fakeCapturer{
		{err: errors.New("no device")},
		{chunk: core.AudioChunk{Format: core.WAV}},
	} {
		_, err := NewVoiceInput(c, nil).Next(context.Background())
		var capture *core.InputCaptureError
		require.ErrorAs(t, err, &capture)
		assert.True(t, capture.Recoverable)
		assert.False(t, core.IsFatalToTurn(err))
	}
}
