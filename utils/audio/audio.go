package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"tutorkit/core"

	"github.com/zaf/g711"
)

var wavHeaderPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 64))
	},
}

// ULawBytesToPCM converts µ-law bytes to 16-bit PCM bytes.
func ULawBytesToPCM(uBytes []byte) []byte {
	return g711.DecodeUlaw(uBytes)
}

// ALawBytesToPCM converts A-law bytes to 16-bit PCM bytes.
func ALawBytesToPCM(aBytes []byte) []byte {
	return g711.DecodeAlaw(aBytes)
}

// PCMBytesToWavBytes wraps 16-bit little endian PCM into a WAV container.
func PCMBytesToWavBytes(pcm []byte, numChannels, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("PCM data is empty")
	}
	if numChannels <= 0 || numChannels > 2 {
		return nil, errors.New("only mono (1) or stereo (2) channels supported")
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if len(pcm)%(2*numChannels) != 0 {
		return nil, errors.New("PCM data length doesn't match channel count")
	}

	buf := wavHeaderPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer wavHeaderPool.Put(buf)

	const (
		bitsPerSample  = 16
		audioFormatPCM = 1
		subchunk1Size  = 16
	)
	blockAlign := numChannels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(subchunk1Size))
	binary.Write(buf, binary.LittleEndian, uint16(audioFormatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))

	result := make([]byte, buf.Len()+len(pcm))
	copy(result, buf.Bytes())
	copy(result[buf.Len():], pcm)
	return result, nil
}

// WAV fmt chunk format tags.
const (
	WAVFormatPCM  = 1
	WAVFormatALaw = 6
	WAVFormatULaw = 7
)

// WAVInfo is the subset of a WAV fmt chunk needed to time and locate the payload.
type WAVInfo struct {
	AudioFormat   int
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataOffset    int
	DataSize      int
}

// DurationSeconds returns the payload length, or 0 when the header is incomplete.
func (w WAVInfo) DurationSeconds() float64 {
	frameBytes := w.Channels * w.BitsPerSample / 8
	if frameBytes == 0 || w.SampleRate == 0 {
		return 0
	}
	return float64(w.DataSize/frameBytes) / float64(w.SampleRate)
}

// ParseWAV walks the RIFF chunks of a WAV file and returns its format and
// data size. Only the fmt and data chunks are read.
func ParseWAV(data []byte) (WAVInfo, error) {
	var info WAVInfo
	if len(data) < 12 || !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return info, errors.New("not a RIFF/WAVE file")
	}

	sawFmt := false
	i := 12
	for i+8 <= len(data) {
		chunkID := string(data[i : i+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		body := i + 8
		switch chunkID {
		case "fmt ":
			if body+16 > len(data) {
				return info, errors.New("invalid WAV: truncated fmt chunk")
			}
			info.AudioFormat = int(binary.LittleEndian.Uint16(data[body : body+2]))
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			sawFmt = true
		case "data":
			if !sawFmt {
				return info, errors.New("invalid WAV: data chunk before fmt chunk")
			}
			// Streamed WAVs may carry a placeholder size; clamp to what is present.
			if body+chunkSize > len(data) || chunkSize == 0 {
				chunkSize = len(data) - body
			}
			info.DataOffset = body
			info.DataSize = chunkSize
			return info, nil
		}
		next := body + chunkSize
		if chunkSize%2 != 0 {
			next++
		}
		i = next
	}
	return info, errors.New("invalid WAV: data chunk not found")
}

// StripWAVHeaderIfPresent returns the data chunk if input is a WAV file, or
// the input unchanged otherwise.
func StripWAVHeaderIfPresent(chunk []byte) ([]byte, error) {
	if len(chunk) < 12 || !bytes.HasPrefix(chunk, []byte("RIFF")) || !bytes.Equal(chunk[8:12], []byte("WAVE")) {
		return chunk, nil
	}
	info, err := ParseWAV(chunk)
	if err != nil {
		return nil, err
	}
	return chunk[info.DataOffset : info.DataOffset+info.DataSize], nil
}

// ToTranscribable converts a captured chunk into a WAV-wrapped AudioInput a
// transcription backend accepts. PCM WAV and MP3 pass through untouched; raw
// PCM and G.711 payloads, bare or inside a WAV container, are decoded and
// wrapped as 16-bit PCM.
func ToTranscribable(chunk core.AudioChunk) (core.AudioInput, error) {
	in := core.AudioInput{DurationSec: chunk.DurationSeconds()}
	switch chunk.Format {
	case core.WAV:
		in.Data = chunk.Data
		in.Filename = "input.wav"
		info, err := ParseWAV(chunk.Data)
		if err != nil {
			return in, nil
		}
		in.DurationSec = info.DurationSeconds()
		if info.AudioFormat != WAVFormatULaw && info.AudioFormat != WAVFormatALaw {
			return in, nil
		}
		payload, err := StripWAVHeaderIfPresent(chunk.Data)
		if err != nil {
			return in, fmt.Errorf("audio: read G.711 wav: %w", err)
		}
		chunk = core.AudioChunk{Data: payload, SampleRate: info.SampleRate, Channels: info.Channels, Format: core.ULAW}
		if info.AudioFormat == WAVFormatALaw {
			chunk.Format = core.ALAW
		}
		if info.Channels > 1 {
			chunk.Data = payload[:len(payload)-len(payload)%info.Channels]
		}
	case core.MP3:
		in.Data = chunk.Data
		in.Filename = "input.mp3"
		return in, nil
	}

	var pcm []byte
	switch chunk.Format {
	case core.PCM:
		pcm = chunk.Data
	case core.ULAW:
		pcm = ULawBytesToPCM(chunk.Data)
	case core.ALAW:
		pcm = ALawBytesToPCM(chunk.Data)
	default:
		return in, fmt.Errorf("audio: unsupported input format %s", chunk.Format)
	}
	wav, err := PCMBytesToWavBytes(pcm, chunk.Channels, chunk.SampleRate)
	if err != nil {
		return in, fmt.Errorf("audio: wrap %s input: %w", chunk.Format, err)
	}
	in.Data = wav
	in.Filename = "input.wav"
	return in, nil
}

// FormatFromFilename guesses the encoding of an uploaded file from its extension.
// Unknown extensions are assumed to be WAV.
func FormatFromFilename(name string) core.AudioEncodingFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return core.MP3
	case ".ulaw", ".mulaw", ".ul":
		return core.ULAW
	case ".alaw", ".al":
		return core.ALAW
	case ".pcm", ".raw":
		return core.PCM
	}
	return core.WAV
}

var (
	mpeg1Layer3Kbps = [15]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320}
	mpeg2Layer3Kbps = [15]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160}
)

// EstimateDurationSeconds returns the play length of a WAV buffer or of a
// constant bitrate MP3 buffer. Other data yields 0.
func EstimateDurationSeconds(data []byte) float64 {
	if info, err := ParseWAV(data); err == nil {
		return info.DurationSeconds()
	}
	if kbps := mp3Bitrate(data); kbps > 0 {
		return float64(len(data)*8) / float64(kbps*1000)
	}
	return 0
}

// mp3Bitrate reads the bitrate of the first Layer III frame header, skipping
// an ID3v2 tag if present.
func mp3Bitrate(data []byte) int {
	i := 0
	if len(data) >= 10 && bytes.HasPrefix(data, []byte("ID3")) {
		size := int(data[6]&0x7f)<<21 | int(data[7]&0x7f)<<14 | int(data[8]&0x7f)<<7 | int(data[9]&0x7f)
		i = 10 + size
	}
	for ; i+3 < len(data) && i < 4096; i++ {
		if data[i] != 0xFF || data[i+1]&0xE0 != 0xE0 {
			continue
		}
		version := (data[i+1] >> 3) & 0x03
		layer := (data[i+1] >> 1) & 0x03
		index := data[i+2] >> 4
		if layer != 0x01 || index == 0 || index == 0x0F || version == 0x01 {
			continue
		}
		if version == 0x03 {
			return mpeg1Layer3Kbps[index]
		}
		return mpeg2Layer3Kbps[index]
	}
	return 0
}
