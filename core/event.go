package core

// IEvent is implemented by every event a turn emits to a client.
type IEvent interface {
	GetId() string   // Unique identifier of the event.
	GetType() string // Wire discriminator, e.g. "text" or "complete".
}
