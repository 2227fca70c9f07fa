package interfaces

import (
	"context"
)

// -----------------------------------------------------------------------------

// IConnectionClient defines the interface for transport connections (TCP, WebSocket).
// The raw-data callback is expected to be passed during client initialization.
type IConnectionClient interface {
	// Connect dials the endpoint and starts the receive loop
	Connect(ctx context.Context) error

	// Disconnect closes the connection
	Disconnect() error

	// IsRunning returns the connection status
	IsRunning() bool

	// GetName returns the client name
	GetName() string

	// GetType returns the transport type
	GetType() string

	// SendMessage writes one protocol message to the connection
	SendMessage([]byte) error

	// ReceiveMessage runs the blocking read loop (started by Connect)
	ReceiveMessage(ctx context.Context)
}
