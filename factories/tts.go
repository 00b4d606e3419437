package factories

import (
	"errors"
	"tutorkit/core"
	elevenlabs "tutorkit/services/elevenlabs/tts"
	polly "tutorkit/services/polly/tts"
)

// TTSFactoryConfig holds provider-specific configs for speech synthesis.
// Set exactly one provider config; the rest should be left nil.
type TTSFactoryConfig struct {
	ElevenLabsConfig *elevenlabs.ElevenLabsTTSConfig `json:"elevenlabs,omitempty"`
	PollyConfig      *polly.Config                   `json:"polly,omitempty"`
}

// BuildTTSService constructs the synthesizer from the given factory config and
// reports which call shapes it supports. Exactly one provider config must be non-nil.
func BuildTTSService(config TTSFactoryConfig, logger *core.Logger) (core.Synthesis, error) {
	if config.ElevenLabsConfig != nil {
		return core.SynthesisFor(elevenlabs.NewElevenLabsTTS(*config.ElevenLabsConfig, logger)), nil
	}
	if config.PollyConfig != nil {
		return core.SynthesisFor(polly.NewPollyTTS(*config.PollyConfig, logger)), nil
	}
	return core.Synthesis{}, errors.New("TTSFactoryConfig: no provider config specified")
}
