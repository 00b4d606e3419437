package playback

import (
	"context"
	"sync"
)

// Gate is a single-slot playing flag. Input capture waits on it so the tutor
// never records its own voice, and at most one playback holds it at a time.
//
// Waiters block on a channel that is closed when the slot frees up; there is
// no polling.
type Gate struct {
	mu      sync.Mutex
	playing bool
	idle    chan struct{} // closed while not playing
}

func NewGate() *Gate {
	idle := make(chan struct{})
	close(idle)
	return &Gate{idle: idle}
}

// IsPlaying reports the current flag.
func (g *Gate) IsPlaying() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.playing
}

// AcquireInput returns once no playback is in progress, or with ctx's error.
func (g *Gate) AcquireInput(ctx context.Context) error {
	for {
		g.mu.Lock()
		if !g.playing {
			g.mu.Unlock()
			return nil
		}
		idle := g.idle
		g.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// BeginPlayback waits for the slot to be free, then marks it playing.
func (g *Gate) BeginPlayback(ctx context.Context) error {
	for {
		g.mu.Lock()
		if !g.playing {
			g.playing = true
			g.idle = make(chan struct{})
			g.mu.Unlock()
			return nil
		}
		idle := g.idle
		g.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// EndPlayback frees the slot and wakes every waiter. Calling it while not
// playing is a no-op.
func (g *Gate) EndPlayback() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.playing {
		return
	}
	g.playing = false
	close(g.idle)
}
