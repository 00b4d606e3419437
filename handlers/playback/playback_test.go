package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireInputReturnsImmediatelyWhenIdle(t *testing.T) {
	g := NewGate()
	require.NoError(t, g.AcquireInput(context.Background()))
	assert.False(t, g.IsPlaying())
}

func TestAcquireInputBlocksUntilEndPlayback(t *testing.T) {
	g := NewGate()
	require.NoError(t, g.BeginPlayback(context.Background()))

	acquired := make(chan struct{})
	go func() {
		g.AcquireInput(context.Background())
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("capture started while playing")
	case <-time.After(50 * time.Millisecond):
	}

	g.EndPlayback()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("capture not released after EndPlayback")
	}
}

func TestAcquireInputHonoursContext(t *testing.T) {
	g := NewGate()
	require.NoError(t, g.BeginPlayback(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.AcquireInput(ctx), context.DeadlineExceeded)
	assert.True(t, g.IsPlaying())
}

func TestNeverTwoConcurrentPlaybacks(t *testing.T) {
	g := NewGate()
	var holders, maxHolders int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.NoError(t, g.BeginPlayback(context.Background()))
				n := atomic.AddInt32(&holders, 1)
				for {
					m := atomic.LoadInt32(&maxHolders)
					if n <= m || atomic.CompareAndSwapInt32(&maxHolders, m, n) {
						break
					}
				}
				atomic.AddInt32(&holders, -1)
				g.EndPlayback()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxHolders)
	assert.False(t, g.IsPlaying())
}

func TestEndPlaybackWhenIdleIsNoop(t *testing.T) {
	g := NewGate()
	g.EndPlayback()
	assert.False(t, g.IsPlaying())
	require.NoError(t, g.AcquireInput(context.Background()))
}

func TestPlayerHoldsGateUntilPlaybackEnds(t *testing.T) {
	g := NewGate()
	release := make(chan struct{})
	started := make(chan []byte, 1)
	p := NewPlayer(g, OutputFunc(func(ctx context.Context, audio []byte) error {
		started <- audio
		<-release
		return nil
	}), nil)

	require.NoError(t, p.Enqueue(context.Background(), []byte("hola")))
	assert.True(t, g.IsPlaying())
	assert.Equal(t, []byte("hola"), <-started)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, g.AcquireInput(ctx), context.DeadlineExceeded)
	cancel()

	close(release)
	require.NoError(t, g.AcquireInput(context.Background()))
	require.NoError(t, p.Close(context.Background()))
}

func TestPlayerReleasesGateOnFailure(t *testing.T) {
	g := NewGate()
	p := NewPlayer(g, OutputFunc(func(context.Context, []byte) error {
		return errors.New("device unplugged")
	}), nil)

	require.NoError(t, p.Enqueue(context.Background(), []byte("x")))
	require.NoError(t, g.AcquireInput(context.Background()))
	require.NoError(t, p.Close(context.Background()))
	assert.False(t, g.IsPlaying())
}

func TestPlayerPlaysBuffersInOrder(t *testing.T) {
	g := NewGate()
	var mu sync.Mutex
	var played []string
	p := NewPlayer(g, OutputFunc(func(_ context.Context, audio []byte) error {
		mu.Lock()
		played = append(played, string(audio))
		mu.Unlock()
		return nil
	}), nil)

	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, p.Enqueue(context.Background(), []byte(s)))
	}
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, played)
}

func TestPlayerRejectsAfterClose(t *testing.T) {
	g := NewGate()
	p := NewPlayer(g, OutputFunc(func(context.Context, []byte) error { return nil }), nil)
	require.NoError(t, p.Close(context.Background()))

	assert.ErrorIs(t, p.Enqueue(context.Background(), []byte("x")), ErrPlayerClosed)
	assert.False(t, g.IsPlaying())
}

func TestPlayerCloseInterruptsOnDeadline(t *testing.T) {
	g := NewGate()
	p := NewPlayer(g, OutputFunc(func(ctx context.Context, _ []byte) error {
		<-ctx.Done()
		return ctx.Err()
	}), nil)
	require.NoError(t, p.Enqueue(context.Background(), []byte("long")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)
	assert.False(t, g.IsPlaying())
}
