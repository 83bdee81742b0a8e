package publisher

// Publisher represents a service for publishing fare quotes
type Publisher interface {
	// Publish publishes a message under key to one of the streams
	Publish(key string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}
