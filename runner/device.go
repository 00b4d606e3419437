package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"
	"tutorkit/core"
)

// CommandCapturer records a fixed-length WAV clip by running an external
// recorder that writes the file to stdout, arecord by default.
type CommandCapturer struct {
	Command  []string
	Duration time.Duration
}

// DefaultCaptureCommand records 16 kHz mono WAV.
func DefaultCaptureCommand(d time.Duration) []string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return []string{"arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav", "-d", strconv.Itoa(secs), "-"}
}

func (c CommandCapturer) Capture(ctx context.Context) (core.AudioChunk, error) {
	args := c.Command
	if len(args) == 0 {
		args = DefaultCaptureCommand(c.Duration)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return core.AudioChunk{}, fmt.Errorf("capture %s: %w: %s", args[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	return core.AudioChunk{Data: stdout.Bytes(), Format: core.WAV}, nil
}

// CommandOutput plays audio by piping it to an external player's stdin,
// ffplay by default.
type CommandOutput struct {
	Command []string
}

var DefaultPlayCommand = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-i", "pipe:0"}

func (o CommandOutput) Play(ctx context.Context, audio []byte) error {
	args := o.Command
	if len(args) == 0 {
		args = DefaultPlayCommand
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = bytes.NewReader(audio)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("play %s: %w: %s", args[0], err, bytes.TrimSpace(out))
	}
	return nil
}
