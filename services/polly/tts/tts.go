package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"tutorkit/core"
	"tutorkit/utils/audio"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

// sampleRate is the highest rate Polly offers for PCM output.
const sampleRate = 16000

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Config holds the configuration for Amazon Polly. Credentials come from the
// default AWS chain.
type Config struct {
	Region  string `json:"region"`
	VoiceID string `json:"voice_id"`
	Engine  string `json:"engine"`
	// TimeoutSeconds bounds one SynthesizeSpeech call; 0 means 15 seconds.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Timeout returns TimeoutSeconds as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollyTTS implements core.BlockingSynthesizer. The whole reply is returned
// as one 16 kHz mono WAV buffer.
type PollyTTS struct {
	mu     sync.Mutex
	client synthClient
	cfg    Config
	logger *core.Logger
}

func NewPollyTTS(cfg Config, logger *core.Logger) *PollyTTS {
	return newPollyTTS(cfg, nil, logger)
}

func newPollyTTS(cfg Config, client synthClient, logger *core.Logger) *PollyTTS {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = "Lucia"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 15
	}
	return &PollyTTS{
		client: client,
		cfg:    cfg,
		logger: logger.OrDefault().With(map[string]interface{}{"service": "polly_tts", "voice": cfg.VoiceID}),
	}
}

// Synthesize renders text to speech. Failures are *core.SynthesisError.
func (p *PollyTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &core.SynthesisError{Err: errors.New("nothing to synthesize")}
	}
	client, err := p.resolveClient(ctx)
	if err != nil {
		return nil, &core.SynthesisError{Err: err}
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	rate := fmt.Sprint(sampleRate)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout())
	defer cancel()

	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   &rate,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(p.cfg.VoiceID),
	})
	if err != nil {
		return nil, &core.SynthesisError{Err: describe(err)}
	}
	if output == nil || output.AudioStream == nil {
		return nil, &core.SynthesisError{Err: errors.New("polly returned no audio")}
	}
	defer output.AudioStream.Close()

	pcm, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return nil, &core.SynthesisError{Err: fmt.Errorf("read audio stream: %w", err)}
	}
	if len(pcm) == 0 {
		return nil, &core.SynthesisError{Err: errors.New("polly returned no audio")}
	}
	wav, err := audio.PCMBytesToWavBytes(pcm, 1, sampleRate)
	if err != nil {
		return nil, &core.SynthesisError{Err: err}
	}
	p.logger.Debug("synthesized", "bytes", len(wav), "characters", output.RequestCharacters)
	return wav, nil
}

// describe labels AWS API failures with whether a retry could help.
func describe(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("polly transport: %w", err)
	}
	switch apiErr.ErrorCode() {
	case "TooManyRequestsException", "ServiceFailureException":
		return fmt.Errorf("polly overloaded (retryable): %w", err)
	case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
		"MarksNotSupportedForFormatException", "InvalidSampleRateException":
		return fmt.Errorf("polly rejected request: %w", err)
	default:
		return fmt.Errorf("polly: %w", err)
	}
}

func (p *PollyTTS) resolveClient(ctx context.Context) (synthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}
