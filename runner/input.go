package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"tutorkit/core"
	"tutorkit/utils/audio"
)

// ConsoleInput reads typed turns line by line. A line ending in a backslash
// starts a multi-line message that runs until the next empty line.
type ConsoleInput struct {
	prompt io.Writer
	lines  chan string
	errs   chan error
	once   sync.Once
	src    io.Reader
}

// NewConsoleInput reads from r and writes prompts to prompt, which may be nil.
func NewConsoleInput(r io.Reader, prompt io.Writer) *ConsoleInput {
	if prompt == nil {
		prompt = io.Discard
	}
	return &ConsoleInput{
		prompt: prompt,
		src:    r,
		lines:  make(chan string),
		errs:   make(chan error, 1),
	}
}

// scan runs for the life of the process; reads from a terminal cannot be
// interrupted, so Next only abandons a pending read.
func (c *ConsoleInput) scan() {
	sc := bufio.NewScanner(c.src)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		c.lines <- sc.Text()
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	c.errs <- err
	close(c.lines)
}

func (c *ConsoleInput) readLine(ctx context.Context, prompt string) (string, error) {
	c.once.Do(func() { go c.scan() })
	fmt.Fprint(c.prompt, prompt)
	select {
	case line, ok := <-c.lines:
		if !ok {
			err := <-c.errs
			c.errs <- err
			return "", err
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *ConsoleInput) Next(ctx context.Context) (Input, error) {
	first, err := c.readLine(ctx, "You: ")
	if err != nil {
		if err != io.EOF && ctx.Err() == nil {
			err = &core.InputCaptureError{Err: err}
		}
		return Input{}, err
	}
	if !strings.HasSuffix(first, `\`) {
		return Input{Text: first}, nil
	}

	lines := []string{strings.TrimSuffix(first, `\`)}
	fmt.Fprintln(c.prompt, "... (continue typing, empty line to finish)")
	for {
		line, err := c.readLine(ctx, "... ")
		if err != nil {
			if ctx.Err() != nil {
				return Input{}, ctx.Err()
			}
			break
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}
	return Input{Text: strings.Join(lines, "\n")}, nil
}

// Capturer records one utterance from an audio device.
type Capturer interface {
	Capture(ctx context.Context) (core.AudioChunk, error)
}

// VoiceInput turns each capture into an audio input for transcription.
type VoiceInput struct {
	capturer Capturer
	prompt   io.Writer
}

func NewVoiceInput(capturer Capturer, prompt io.Writer) *VoiceInput {
	if prompt == nil {
		prompt = io.Discard
	}
	return &VoiceInput{capturer: capturer, prompt: prompt}
}

// Next records one utterance. Device errors and empty recordings are
// recoverable capture errors; the turn is skipped.
func (v *VoiceInput) Next(ctx context.Context) (Input, error) {
	fmt.Fprintln(v.prompt, "Listening...")
	start := time.Now()
	chunk, err := v.capturer.Capture(ctx)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return Input{}, ctx.Err()
		}
		return Input{}, &core.InputCaptureError{Recoverable: true, Err: err}
	}
	if len(chunk.Data) == 0 {
		return Input{}, &core.InputCaptureError{Recoverable: true, Err: fmt.Errorf("empty recording")}
	}
	in, err := audio.ToTranscribable(chunk)
	if err != nil {
		return Input{}, &core.InputCaptureError{Recoverable: true, Err: err}
	}
	in.CaptureTime = elapsed
	return Input{Audio: &in}, nil
}
