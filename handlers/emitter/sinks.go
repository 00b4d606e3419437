package emitter

import (
	"context"
	"sync"
	"tutorkit/core"
)

// ChannelSink hands events to a consumer ranging over Events. The channel is
// closed after the complete event, so the stream is finite.
type ChannelSink struct {
	events chan core.IEvent
	once   sync.Once
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan core.IEvent, buffer)}
}

func (s *ChannelSink) Send(ctx context.Context, ev core.IEvent) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Close() {
	s.once.Do(func() { close(s.events) })
}

func (s *ChannelSink) Events() <-chan core.IEvent {
	return s.events
}

// Collector keeps every event in memory.
type Collector struct {
	mu     sync.Mutex
	events []core.IEvent
}

func (c *Collector) Send(_ context.Context, ev core.IEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *Collector) Events() []core.IEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.IEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Types lists the wire type of each collected event in order.
func (c *Collector) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]string, len(c.events))
	for i, ev := range c.events {
		types[i] = ev.GetType()
	}
	return types
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev core.IEvent) error

func (f SinkFunc) Send(ctx context.Context, ev core.IEvent) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, core.IEvent) error { return nil })
