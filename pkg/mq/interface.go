package mq

import "context"

// PublisherInterface defines the contract for broadcasting payloads to
// downstream consumers. It enables mocking and dependency injection.
type PublisherInterface interface {
	// Push publishes data onto the queue and waits for a confirmation.
	// The context is used for cancellation and timeout.
	Push(ctx context.Context, data []byte) error

	// UnsafePush publishes without waiting for a confirmation.
	// No guarantees are provided for whether the server will receive
	// the message.
	UnsafePush(ctx context.Context, data []byte) error

	// Close will cleanly shut down the channel and connection.
	Close() error
}

// Ensure Publisher implements PublisherInterface.
var _ PublisherInterface = (*Publisher)(nil)
