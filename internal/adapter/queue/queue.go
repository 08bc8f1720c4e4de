package queue

// MessageQueue is the interface order lifecycle and billing events are
// published through.
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	Close() error
}
