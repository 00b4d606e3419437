package emitter

import (
	"context"
	"errors"
	"testing"
	"time"
	"tutorkit/core"
	"tutorkit/events/tutor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullTurnOrder(t *testing.T) {
	ctx := context.Background()
	c := &Collector{}
	e := New(c)

	require.NoError(t, e.Text(ctx, "hola", "¡Hola!"))
	for i := 0; i < 3; i++ {
		require.NoError(t, e.AudioChunk(ctx, []byte{byte(i)}))
	}
	require.NoError(t, e.Translation(ctx, "Hello!"))
	require.NoError(t, e.Complete(ctx))

	assert.Equal(t, []string{"text", "audio_chunk", "audio_chunk", "audio_chunk", "translation", "complete"}, c.Types())
	assert.Equal(t, 3, e.Chunks())
}

func TestAudioEndMarker(t *testing.T) {
	ctx := context.Background()
	c := &Collector{}
	e := New(c, WithAudioEnd())

	require.NoError(t, e.Text(ctx, "u", "r"))
	require.NoError(t, e.AudioChunk(ctx, []byte("a")))
	require.NoError(t, e.AudioDone(ctx))
	require.NoError(t, e.AudioDone(ctx))
	require.NoError(t, e.Translation(ctx, "t"))
	require.NoError(t, e.Complete(ctx))

	assert.Equal(t, []string{"text", "audio_chunk", "audio_end", "translation", "complete"}, c.Types())
}

func TestAudioEndImpliedByComplete(t *testing.T) {
	ctx := context.Background()
	c := &Collector{}
	e := New(c, WithAudioEnd())

	require.NoError(t, e.Text(ctx, "u", "r"))
	require.NoError(t, e.Complete(ctx))
	assert.Equal(t, []string{"text", "audio_end", "complete"}, c.Types())
}

func TestOutOfOrderIsRejected(t *testing.T) {
	ctx := context.Background()
	c := &Collector{}
	e := New(c)

	assert.ErrorIs(t, e.AudioChunk(ctx, []byte("a")), ErrOutOfOrder)
	assert.ErrorIs(t, e.Translation(ctx, "t"), ErrOutOfOrder)

	require.NoError(t, e.Text(ctx, "u", "r"))
	assert.ErrorIs(t, e.Text(ctx, "u", "r"), ErrOutOfOrder)

	require.NoError(t, e.Translation(ctx, "t"))
	assert.ErrorIs(t, e.AudioChunk(ctx, []byte("late")), ErrOutOfOrder)
	assert.ErrorIs(t, e.Translation(ctx, "again"), ErrOutOfOrder)

	assert.Equal(t, []string{"text", "translation"}, c.Types())
}

func TestNothingAfterComplete(t *testing.T) {
	ctx := context.Background()
	e := New(&Collector{})
	require.NoError(t, e.Complete(ctx))

	assert.ErrorIs(t, e.Text(ctx, "u", "r"), ErrClosed)
	assert.ErrorIs(t, e.Error(ctx, "x"), ErrClosed)
	assert.ErrorIs(t, e.Complete(ctx), ErrClosed)
}

func TestErrorThenComplete(t *testing.T) {
	ctx := context.Background()
	c := &Collector{}
	e := New(c)

	require.NoError(t, e.Error(ctx, "the tutor could not answer"))
	require.NoError(t, e.Complete(ctx))

	events := c.Events()
	require.Len(t, events, 2)
	assert.Equal(t, &tutor.ErrorEvent{Message: "the tutor could not answer"}, events[0])
}

func TestEmptyChunksAreDropped(t *testing.T) {
	ctx := context.Background()
	c := &Collector{}
	e := New(c)
	require.NoError(t, e.Text(ctx, "u", "r"))
	require.NoError(t, e.AudioChunk(ctx, nil))
	assert.Equal(t, []string{"text"}, c.Types())
}

func TestChannelSinkStreamIsFinite(t *testing.T) {
	ctx := context.Background()
	sink := NewChannelSink(8)
	e := New(sink)

	go func() {
		e.Text(ctx, "u", "r")
		e.AudioChunk(ctx, []byte("a"))
		e.Complete(ctx)
	}()

	var types []string
	for ev := range sink.Events() {
		types = append(types, ev.GetType())
	}
	assert.Equal(t, []string{"text", "audio_chunk", "complete"}, types)
}

func TestChannelSinkHonoursContext(t *testing.T) {
	sink := NewChannelSink(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := sink.Send(ctx, &tutor.CompleteEvent{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSinkErrorsPropagate(t *testing.T) {
	boom := errors.New("client gone")
	e := New(SinkFunc(func(context.Context, core.IEvent) error { return boom }))
	assert.ErrorIs(t, e.Text(context.Background(), "u", "r"), boom)
}
