package core

import "time"

type AudioEncodingFormat int

const (
	PCM  AudioEncodingFormat = iota // 16-bit little-endian PCM.
	ULAW                            // μ-law, 8 bits per sample.
	ALAW                            // A-law, 8 bits per sample.
	WAV                             // RIFF container around PCM.
	MP3
)

func (f AudioEncodingFormat) String() string {
	switch f {
	case PCM:
		return "pcm"
	case ULAW:
		return "ulaw"
	case ALAW:
		return "alaw"
	case WAV:
		return "wav"
	case MP3:
		return "mp3"
	}
	return "unknown"
}

// AudioInput is one captured user utterance handed to a Transcriber.
type AudioInput struct {
	Data        []byte
	Filename    string  // Hint for the backend's container sniffing, e.g. "input.wav".
	DurationSec float64 // Capture length as measured by the source, 0 when unknown.

	// CaptureTime is the wall time spent obtaining Data, 0 when not measured.
	CaptureTime time.Duration
}

// AudioChunk is a piece of synthesized or captured audio.
type AudioChunk struct {
	Data       []byte
	SampleRate int
	Channels   int
	Format     AudioEncodingFormat
}

// DurationSeconds estimates the chunk length for raw formats. Containers and
// compressed formats report 0.
func (ac AudioChunk) DurationSeconds() float64 {
	if ac.SampleRate == 0 || ac.Channels == 0 {
		return 0.0
	}
	var bytesPerSample int
	switch ac.Format {
	case PCM:
		bytesPerSample = 2
	case ULAW, ALAW:
		bytesPerSample = 1
	default:
		return 0.0
	}
	totalSamples := len(ac.Data) / (bytesPerSample * ac.Channels)
	return float64(totalSamples) / float64(ac.SampleRate)
}
