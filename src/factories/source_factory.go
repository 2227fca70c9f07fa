package factories

import (
	"fmt"

	"feed-relay/src/config"
	"feed-relay/src/feeds"
	"feed-relay/src/interfaces"
	"feed-relay/src/logger"
	"feed-relay/src/metrics"
	"feed-relay/src/models"
	"feed-relay/src/transports"
)

// -----------------------------------------------------------------------------

// SourceFactory creates feed adapters and transport clients from configuration
type SourceFactory struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger
	// The final callback function for distributing parsed market data
	OnDataCallback func(*models.MMarketData)
}

// -----------------------------------------------------------------------------

// NewSourceFactory creates a new SourceFactory instance
func NewSourceFactory(config *config.Config, logger *logger.Logger, onData func(*models.MMarketData)) *SourceFactory {
	return &SourceFactory{
		Name:           "SourceFactory",
		Config:         config,
		Logger:         logger,
		OnDataCallback: onData,
	}
}

// -----------------------------------------------------------------------------

// CreateFeed creates a feed adapter by source name using the dynamic registry.
func (sf *SourceFactory) CreateFeed(sourceName string) (interfaces.IFeed, error) {
	source := sf.Config.GetDataSourceByName(sourceName)
	if source == nil {
		return nil, fmt.Errorf("data source %s not found in config", sourceName)
	}

	// Dynamically fetch the constructor from the feeds package registry
	constructor, err := feeds.GetConstructor(source.Feed)
	if err != nil {
		return nil, err // Returns "unknown feed type: ..." error
	}

	newFeed, err := constructor(sf.Config, sf.Logger, sourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed for %s: %w", sourceName, err)
	}

	sf.Logger.Info("%s : successfully created feed %s of type %s",
		sf.Name,
		newFeed.GetName(),
		newFeed.GetType(),
	)

	return newFeed, nil
}

// -----------------------------------------------------------------------------

// CreateFeedWithConnection creates both the feed adapter and its transport
// client, wired so that every raw row flows through the adapter's
// ParseMessage and on to the data callback.
func (sf *SourceFactory) CreateFeedWithConnection(sourceName string) (interfaces.IFeed, interfaces.IConnectionClient, error) {
	source := sf.Config.GetDataSourceByName(sourceName)
	if source == nil {
		return nil, nil, fmt.Errorf("data source %s not found in config", sourceName)
	}

	feed, err := sf.CreateFeed(sourceName)
	if err != nil {
		return nil, nil, err
	}

	// Use the feed's connection endpoint (which may carry credentials)
	source.Endpoint = feed.GetEndpointWithCredentials()

	// The transport pushes raw rows up; the feed adapter turns them into
	// MMarketData; the callback hands them to the publisher.
	onRawData := func(message []byte) {
		marketData, err := feed.ParseMessage(message)
		if err != nil {
			sf.Logger.Error("%s : failed to parse message for %s: %v (raw: %s)", sf.Name, sourceName, err, string(message))
			metrics.ParseErrors.WithLabelValues(sourceName).Inc()
			return
		}

		if marketData != nil && sf.OnDataCallback != nil {
			sf.OnDataCallback(marketData)
		}
	}

	connection, err := sf.createConnectionClient(source, sourceName, onRawData)
	if err != nil {
		return nil, nil, err
	}

	return feed, connection, nil
}

// -----------------------------------------------------------------------------

// createConnectionClient builds the transport selected by the source config.
func (sf *SourceFactory) createConnectionClient(source *models.MDataSourceConfig, sourceName string, onRawData func([]byte)) (interfaces.IConnectionClient, error) {
	switch source.Transport {
	case "tcp":
		return transports.NewTCPClient(source, sf.Logger, sourceName, onRawData), nil
	case "websocket":
		return transports.NewWebSocketClient(source, sf.Logger, sourceName, onRawData), nil
	default:
		return nil, fmt.Errorf("unsupported transport '%s' for data source %s", source.Transport, sourceName)
	}
}
