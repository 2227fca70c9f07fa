package relay

import (
	"context"
	"fmt"
	"sync"

	"feed-relay/src/config"
	"feed-relay/src/factories"
	"feed-relay/src/interfaces"
	"feed-relay/src/logger"
	"feed-relay/src/models"
	"feed-relay/src/publishers"
	"feed-relay/src/serializers"
)

// -----------------------------------------------------------------------------
// Core Application Struct
// -----------------------------------------------------------------------------

// Relay handles real-time feed ingestion from multiple stream connections and
// republishes parsed messages to the configured broker.
type Relay struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger
	// Publisher routes parsed market data to the message bus (NATS, Kafka)
	Publisher interfaces.IPublisher
	// Factory dependency to create feed adapters and transport clients
	Factory *factories.SourceFactory
	// Health watches the feed admin port (nil when monitoring is disabled)
	Health *HealthMonitor
	// Running data source instances
	Sources map[string]interfaces.IDataSource
	mu      sync.RWMutex
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// -----------------------------------------------------------------------------

// NewRelay creates a new Relay instance
func NewRelay(config *config.Config, log *logger.Logger) (*Relay, error) {
	ctx, cancel := context.WithCancel(context.Background())

	serializer := serializers.NewJSONSerializer()

	var publisher interfaces.IPublisher
	switch config.Publisher.Type {
	case "nats":
		publisher = publishers.NewNATSPublisher(&config.NATS, log, serializer)
	case "kafka":
		publisher = publishers.NewKafkaPublisher(&config.Kafka, log, serializer)
	default:
		cancel()
		return nil, fmt.Errorf("unsupported publisher type '%s'", config.Publisher.Type)
	}

	relay := &Relay{
		Name:      "FeedRelay",
		Config:    config,
		Logger:    log,
		Publisher: publisher,
		Factory:   factories.NewSourceFactory(config, log, publisher.OnMarketData),
		Sources:   make(map[string]interfaces.IDataSource),
		ctx:       ctx,
		cancel:    cancel,
	}

	if config.Admin.Enabled {
		relay.Health = NewHealthMonitor(&config.Admin, log)
	}

	return relay, nil
}

// -----------------------------------------------------------------------------
// Public Lifecycle Methods (All Sources)
// -----------------------------------------------------------------------------

// Start begins relaying feed data from all configured sources
func (r *Relay) Start() error {
	r.Logger.Info("%s : starting feed relay", r.Name)

	// 1. Connect to publisher first - fail fast if the broker is unavailable
	r.Logger.Info("%s : connecting to publisher", r.Name)
	if err := r.Publisher.Connect(); err != nil {
		return fmt.Errorf("failed to connect to publisher: %w", err)
	}
	r.Logger.Info("%s : publisher connected successfully", r.Name)

	// 2. Bring up the admin health monitor before any stream connection, so
	// feed state transitions are visible from the first watch onwards.
	if r.Health != nil {
		if err := r.Health.Start(r.ctx); err != nil {
			r.Logger.Error("%s : health monitor failed to start: %v", r.Name, err)
		}
	}

	// 3. Create all sources using the factory
	if err := r.createAllSources(); err != nil {
		return fmt.Errorf("failed to create all data sources: %w", err)
	}

	// 4. Start all connections concurrently
	r.startAllDataSources()

	r.Logger.Info("%s : relay started successfully, monitoring %d connections", r.Name, len(r.Sources))
	return nil
}

// -----------------------------------------------------------------------------

// Stop gracefully shuts down the relay and all data sources
func (r *Relay) Stop() error {
	r.Logger.Info("%s : stopping feed relay", r.Name)

	// Call stop on all sources
	r.mu.RLock()
	for _, source := range r.Sources {
		source.Stop()
	}
	r.mu.RUnlock()

	if r.Health != nil {
		if err := r.Health.Stop(); err != nil {
			r.Logger.Error("%s : failed to stop health monitor: %v", r.Name, err)
		}
	}

	// Signal goroutines to exit
	r.cancel()

	// Wait for all connection goroutines to finish
	r.wg.Wait()

	// Disconnect publisher after all data sources have stopped
	r.Logger.Info("%s : disconnecting publisher", r.Name)
	if err := r.Publisher.Disconnect(); err != nil {
		r.Logger.Error("%s : failed to disconnect publisher: %v", r.Name, err)
	}

	r.Logger.Info("%s : relay stopped", r.Name)
	return nil
}

// -----------------------------------------------------------------------------

// Healthy reports the overall service health: the publisher connection plus,
// when admin monitoring is enabled, the feed's own connected state.
func (r *Relay) Healthy() bool {
	if !r.Publisher.IsConnected() {
		return false
	}
	if r.Health != nil {
		return r.Health.Healthy()
	}
	return true
}

// -----------------------------------------------------------------------------

// FeedStats returns the latest admin STATS snapshot, or nil when monitoring
// is disabled or no heartbeat has arrived yet.
func (r *Relay) FeedStats() *models.MFeedStats {
	if r.Health == nil {
		return nil
	}
	return r.Health.LastStats()
}

// -----------------------------------------------------------------------------
// Dynamic Data Source Management Methods
// -----------------------------------------------------------------------------

// StartDataSource starts a single, named data source synchronously.
func (r *Relay) StartDataSource(sourceName string) error {
	r.mu.RLock()
	source, ok := r.Sources[sourceName]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("data source '%s' not found", sourceName)
	}

	r.Logger.Info("%s : starting data source %s", r.Name, sourceName)
	if err := source.Start(); err != nil {
		r.Logger.Error("%s : data source %s startup error: %v", r.Name, sourceName, err)
		return err
	}

	r.Logger.Info("%s : data source '%s' started successfully", r.Name, sourceName)
	return nil
}

// -----------------------------------------------------------------------------

// StopDataSource stops a single, named data source.
func (r *Relay) StopDataSource(sourceName string) error {
	r.mu.RLock()
	source, ok := r.Sources[sourceName]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("data source '%s' not found", sourceName)
	}

	r.Logger.Info("%s : stopping data source %s", r.Name, sourceName)
	return source.Stop()
}

// -----------------------------------------------------------------------------

// AddDataSource creates a new data source instance from configuration and
// stores it, ready to be started.
func (r *Relay) AddDataSource(sourceName string) error {
	r.Logger.Info("%s : attempting to add new data source: %s", r.Name, sourceName)

	r.mu.RLock()
	_, exists := r.Sources[sourceName]
	r.mu.RUnlock()

	if exists {
		return fmt.Errorf("data source '%s' is already registered", sourceName)
	}

	feed, connection, err := r.Factory.CreateFeedWithConnection(sourceName)
	if err != nil {
		return fmt.Errorf("failed to create feed/connection for %s: %w", sourceName, err)
	}

	r.mu.Lock()
	r.Sources[sourceName] = &FeedSource{
		Name:   sourceName,
		Logger: r.Logger,
		Feed:   feed,
		Client: connection,
	}
	r.mu.Unlock()

	r.Logger.Info("%s : data source '%s' successfully added, ready to be started", r.Name, sourceName)
	return nil
}

// -----------------------------------------------------------------------------

// RemoveDataSource stops (if needed) and removes a data source instance.
func (r *Relay) RemoveDataSource(sourceName string) error {
	r.mu.RLock()
	source, exists := r.Sources[sourceName]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("data source '%s' not found for deletion", sourceName)
	}

	if source.GetStatus().Running {
		source.Stop()
	}

	r.mu.Lock()
	delete(r.Sources, sourceName)
	r.mu.Unlock()
	r.Logger.Info("%s : data source '%s' successfully deleted from management map", r.Name, sourceName)
	return nil
}

// -----------------------------------------------------------------------------

func (r *Relay) ListDataSources() []string {
	var names []string

	r.mu.RLock()
	defer r.mu.RUnlock()

	for name := range r.Sources {
		names = append(names, name)
	}
	return names
}

// -----------------------------------------------------------------------------

// SubscribeAllSources concurrently subscribes all initialized data sources to the given symbols.
func (r *Relay) SubscribeAllSources(symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("subscription failed: attempted to subscribe all sources with an empty symbol list")
	}

	r.Logger.Info("%s : subscribing all %d data sources to symbols: %v", r.Name, len(r.Sources), symbols)

	return r.broadcast(symbols, func(s interfaces.IDataSource) error {
		return s.Subscribe(symbols)
	}, "subscription")
}

// -----------------------------------------------------------------------------

// UnSubscribeAllSources concurrently unsubscribes all initialized data sources from the given symbols.
func (r *Relay) UnSubscribeAllSources(symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("unsubscription failed: attempted to unsubscribe all sources with an empty symbol list")
	}

	r.Logger.Info("%s : unsubscribing all %d data sources from symbols: %v", r.Name, len(r.Sources), symbols)

	return r.broadcast(symbols, func(s interfaces.IDataSource) error {
		return s.UnSubscribe(symbols)
	}, "unsubscription")
}

// -----------------------------------------------------------------------------
// Status Methods
// -----------------------------------------------------------------------------

// GetDataSourceStatus returns the current status information for a single data source.
func (r *Relay) GetDataSourceStatus(sourceName string) (*models.MDataSourceStatus, error) {
	r.mu.RLock()
	source, ok := r.Sources[sourceName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("data source '%s' not found in relay map", sourceName)
	}

	return source.GetStatus(), nil
}

// -----------------------------------------------------------------------------
// Subscription Management Methods
// -----------------------------------------------------------------------------

// SubscribeSource subscribes a single, named data source to the given symbols.
func (r *Relay) SubscribeSource(sourceName string, symbols []string) error {
	r.mu.RLock()
	source, ok := r.Sources[sourceName]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("data source '%s' not found", sourceName)
	}

	r.Logger.Info("%s : sending watch request for symbols %v to source: %s", r.Name, symbols, sourceName)
	return source.Subscribe(symbols)
}

// -----------------------------------------------------------------------------

// UnSubscribeSource unsubscribes a single, named data source from the given symbols.
func (r *Relay) UnSubscribeSource(sourceName string, symbols []string) error {
	r.mu.RLock()
	source, ok := r.Sources[sourceName]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("data source '%s' not found", sourceName)
	}

	r.Logger.Info("%s : sending unwatch request for symbols %v to source: %s", r.Name, symbols, sourceName)
	return source.UnSubscribe(symbols)
}

// -----------------------------------------------------------------------------

// RefreshSource asks a single, named data source to resend the current
// summary rows for the given symbols (all active watches when empty).
func (r *Relay) RefreshSource(sourceName string, symbols []string) error {
	r.mu.RLock()
	source, ok := r.Sources[sourceName]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("data source '%s' not found", sourceName)
	}

	r.Logger.Info("%s : sending refresh request for symbols %v to source: %s", r.Name, symbols, sourceName)
	return source.Refresh(symbols)
}

// -----------------------------------------------------------------------------
// Private/Helper Methods
// -----------------------------------------------------------------------------

// createAllSources uses the SourceFactory to initialize all feed adapters
// and transport clients named in the config.
func (r *Relay) createAllSources() error {
	r.mu.Lock()
	r.Sources = make(map[string]interfaces.IDataSource)
	r.mu.Unlock()

	for _, sourceConfig := range r.Config.DataSources {
		sourceName := sourceConfig.Name
		feed, connection, err := r.Factory.CreateFeedWithConnection(sourceName)
		if err != nil {
			r.Logger.Error("%s : skipping data source %s: failed to create feed/connection: %v", r.Name, sourceName, err)
			continue
		}

		r.mu.Lock()
		r.Sources[sourceName] = &FeedSource{
			Name:   sourceName,
			Logger: r.Logger,
			Feed:   feed,
			Client: connection,
		}
		r.mu.Unlock()
	}

	if len(r.Sources) == 0 {
		return fmt.Errorf("no valid data sources were initialized from configuration")
	}

	return nil
}

// -----------------------------------------------------------------------------

// startAllDataSources starts all registered data sources concurrently
func (r *Relay) startAllDataSources() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, source := range r.Sources {
		r.wg.Add(1)
		go func(n string, s interfaces.IDataSource) {
			defer r.wg.Done()
			r.Logger.Info("%s : starting data source %s", r.Name, n)
			if err := s.Start(); err != nil {
				r.Logger.Error("%s : data source %s startup error: %v", r.Name, n, err)
			}
		}(name, source)
	}
}

// -----------------------------------------------------------------------------

// broadcast fans one operation out to every source and joins the errors.
func (r *Relay) broadcast(symbols []string, op func(interfaces.IDataSource) error, what string) error {
	var wg sync.WaitGroup

	r.mu.RLock()
	sources := make(map[string]interfaces.IDataSource, len(r.Sources))
	for k, v := range r.Sources {
		sources[k] = v
	}
	r.mu.RUnlock()

	errCh := make(chan error, len(sources))

	for name, source := range sources {
		wg.Add(1)
		go func(n string, s interfaces.IDataSource) {
			defer wg.Done()
			if err := op(s); err != nil {
				errCh <- fmt.Errorf("%s failed for source %s with symbols %v: %w", what, n, symbols, err)
			}
		}(name, source)
	}

	wg.Wait()
	close(errCh)

	var allErrors error
	for err := range errCh {
		if allErrors == nil {
			allErrors = err
		} else {
			allErrors = fmt.Errorf("%s; %w", allErrors.Error(), err)
		}
	}

	if allErrors != nil {
		r.Logger.Error("%s : %s request failed for one or more sources", r.Name, what)
		return fmt.Errorf("market data %s failed: %w", what, allErrors)
	}

	r.Logger.Info("%s : %s request sent successfully to all data sources", r.Name, what)
	return nil
}
