package kafka

import "fmt"

var (
	// ErrPublisherClosed is returned when publishing after Close
	ErrPublisherClosed = fmt.Errorf("kafka: publisher closed")
)

// ErrInvalidConfig Kafka configuration error
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("kafka: invalid config: %s", msg)
}

// ErrConnection Kafka connection error
func ErrConnection(err error) error {
	return fmt.Errorf("kafka: connection failed: %w", err)
}

// ErrPublish task event publish error
func ErrPublish(eventType string, err error) error {
	return fmt.Errorf("kafka: publish %s event failed: %w", eventType, err)
}
