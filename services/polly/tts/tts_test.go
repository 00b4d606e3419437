package polly

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
	"tutorkit/core"
	"tutorkit/utils/audio"

	pollysdk "github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePollyClient struct {
	out      *pollysdk.SynthesizeSpeechOutput
	err      error
	seen     *pollysdk.SynthesizeSpeechInput
	deadline time.Time
}

func (f *fakePollyClient) SynthesizeSpeech(ctx context.Context, params *pollysdk.SynthesizeSpeechInput, optFns ...func(*pollysdk.Options)) (*pollysdk.SynthesizeSpeechOutput, error) {
	f.seen = params
	f.deadline, _ = ctx.Deadline()
	return f.out, f.err
}

type fakeAPIError struct {
	code string
}

func (e fakeAPIError) Error() string                 { return e.code }
func (e fakeAPIError) ErrorCode() string             { return e.code }
func (e fakeAPIError) ErrorMessage() string          { return e.code }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func stream(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}

func TestSynthesizeWrapsPCMAsWAV(t *testing.T) {
	pcm := make([]byte, 3200)
	client := &fakePollyClient{out: &pollysdk.SynthesizeSpeechOutput{AudioStream: stream(pcm)}}
	tts := newPollyTTS(Config{}, client, nil)

	wav, err := tts.Synthesize(context.Background(), "Hola")
	require.NoError(t, err)

	info, err := audio.ParseWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, 16000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.InDelta(t, 0.1, info.DurationSeconds(), 0.001)

	require.NotNil(t, client.seen)
	assert.Equal(t, pollytypes.OutputFormatPcm, client.seen.OutputFormat)
	assert.Equal(t, pollytypes.VoiceId("Lucia"), client.seen.VoiceId)
	assert.Equal(t, pollytypes.EngineNeural, client.seen.Engine)
	assert.Equal(t, "16000", *client.seen.SampleRate)
}

func TestSynthesizeFailures(t *testing.T) {
	tests := []struct {
		name   string
		client *fakePollyClient
		want   string
	}{
		{"throttled", &fakePollyClient{err: fakeAPIError{code: "TooManyRequestsException"}}, "retryable"},
		{"rejected", &fakePollyClient{err: fakeAPIError{code: "TextLengthExceededException"}}, "rejected"},
		{"transport", &fakePollyClient{err: errors.New("dial tcp: refused")}, "transport"},
		{"no stream", &fakePollyClient{out: &pollysdk.SynthesizeSpeechOutput{}}, "no audio"},
		{"empty stream", &fakePollyClient{out: &pollysdk.SynthesizeSpeechOutput{AudioStream: stream(nil)}}, "no audio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newPollyTTS(Config{}, tt.client, nil).Synthesize(context.Background(), "Hola")
			var se *core.SynthesisError
			require.ErrorAs(t, err, &se)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	client := &fakePollyClient{}
	_, err := newPollyTTS(Config{}, client, nil).Synthesize(context.Background(), "   ")
	var se *core.SynthesisError
	assert.ErrorAs(t, err, &se)
	assert.Nil(t, client.seen)
}

func TestPollyIsBlockingOnly(t *testing.T) {
	s := core.SynthesisFor(NewPollyTTS(Config{}, nil))
	assert.NotNil(t, s.Blocking)
	assert.Nil(t, s.Streaming)
}

func TestTimeoutIsReadInSeconds(t *testing.T) {
	var cfg Config
	require.NoError(t, sonic.Unmarshal([]byte(`{"voice_id":"Conchita","timeout_seconds":3}`), &cfg))
	assert.Equal(t, 3*time.Second, cfg.Timeout())

	client := &fakePollyClient{out: &pollysdk.SynthesizeSpeechOutput{AudioStream: stream(make([]byte, 320))}}
	start := time.Now()
	_, err := newPollyTTS(cfg, client, nil).Synthesize(context.Background(), "Hola")
	require.NoError(t, err)
	assert.WithinDuration(t, start.Add(3*time.Second), client.deadline, time.Second)

	client = &fakePollyClient{out: &pollysdk.SynthesizeSpeechOutput{AudioStream: stream(make([]byte, 320))}}
	_, err = newPollyTTS(Config{}, client, nil).Synthesize(context.Background(), "Hola")
	require.NoError(t, err)
	assert.WithinDuration(t, start.Add(15*time.Second), client.deadline, time.Second)
}
