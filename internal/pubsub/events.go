package pubsub

type EventType string

type Event[T any] struct {
	Type    EventType
	Payload T
}
