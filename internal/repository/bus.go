package repository

// MessageBus decouples stores and workers from the concrete event transport.
type MessageBus interface {
	Publish(topic string, data []byte) error
}
