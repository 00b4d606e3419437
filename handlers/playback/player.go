package playback

import (
	"context"
	"errors"
	"sync"
	"tutorkit/core"
)

var ErrPlayerClosed = errors.New("playback: player closed")

// Output renders one audio buffer, returning when it has finished playing.
type Output interface {
	Play(ctx context.Context, audio []byte) error
}

// OutputFunc adapts a function to Output.
type OutputFunc func(ctx context.Context, audio []byte) error

func (f OutputFunc) Play(ctx context.Context, audio []byte) error { return f(ctx, audio) }

// Player plays audio on its own goroutine. Each buffer holds the gate from
// Enqueue until its playback has ended or failed.
type Player struct {
	gate   *Gate
	output Output
	logger *core.Logger

	queue  chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewPlayer(gate *Gate, output Output, logger *core.Logger) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		gate:   gate,
		output: output,
		logger: logger.OrDefault().With(map[string]interface{}{"component": "player"}),
		queue:  make(chan []byte, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Enqueue claims the gate, waiting for any previous buffer to finish, and
// hands audio to the worker. It returns without waiting for playback, but
// AcquireInput blocks from this point until the buffer is done.
func (p *Player) Enqueue(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return nil
	}
	if err := p.gate.BeginPlayback(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.gate.EndPlayback()
		return ErrPlayerClosed
	}
	// The worker has drained the previous buffer before releasing the gate,
	// so this send never blocks.
	p.queue <- audio
	return nil
}

func (p *Player) run() {
	defer close(p.done)
	for audio := range p.queue {
		p.play(audio)
	}
}

func (p *Player) play(audio []byte) {
	defer p.gate.EndPlayback()
	if err := p.output.Play(p.ctx, audio); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("audio playback failed", "error", err)
	}
}

// Close stops accepting audio and waits for the current buffer to finish.
// When ctx ends first the buffer is interrupted.
func (p *Player) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.done
		return ctx.Err()
	}
}
