package interfaces

import (
	"feed-relay/src/config"
	"feed-relay/src/logger"
	"feed-relay/src/models"
)

// -----------------------------------------------------------------------------

// IFeedConstructor defines the function signature for creating a new IFeed instance.
type IFeedConstructor func(config *config.Config, logger *logger.Logger, name string) (IFeed, error)

// -----------------------------------------------------------------------------

// IFeed defines the core interface for all feed protocol adapters. An adapter
// owns the command vocabulary of one upstream API (session setup, watch and
// unwatch messages) and the parsing of its raw rows into MMarketData.
type IFeed interface {
	// GetName returns the feed name
	GetName() string

	// GetType returns the asset type (equity, future, forex...)
	GetType() string

	// GetEndPoint returns the API endpoint of the feed (for display/logging)
	GetEndPoint() string

	// GetEndpointWithCredentials returns the full endpoint with credentials
	// for the transport connection
	GetEndpointWithCredentials() string

	// GetSymbols returns the watched symbols list
	GetSymbols() []string

	// SessionCommands returns the commands that must be written immediately
	// after the transport connects, before any watch command (protocol
	// negotiation, field selection). May be empty.
	SessionCommands() [][]byte

	// AddSubscription creates watch command messages for symbols
	AddSubscription(symbols []string) ([][]byte, error)

	// RemoveSubscription creates unwatch command messages for symbols
	RemoveSubscription(symbols []string) ([][]byte, error)

	// ParseMessage processes one incoming raw row into MMarketData.
	// A (nil, nil) return means the row carried no market data (system,
	// timestamp, news...) and must be skipped.
	ParseMessage(message []byte) (*models.MMarketData, error)
}
