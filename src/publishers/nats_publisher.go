package publishers

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"feed-relay/src/interfaces"
	"feed-relay/src/logger"
	"feed-relay/src/metrics"
	"feed-relay/src/models"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
)

// -----------------------------------------------------------------------------
// NATSPublisher implements interfaces.IPublisher over NATS core or JetStream
// -----------------------------------------------------------------------------

type NATSPublisher struct {
	name   string
	config *models.MNATSConfig
	logger *logger.Logger

	useJetStream bool

	mu sync.RWMutex

	nc         *nats.Conn             // NATS core connection
	js         nats.JetStreamContext  // JetStream context (if enabled)
	serializer interfaces.ISerializer // serialize message before sending
	breaker    *gobreaker.CircuitBreaker

	connected bool
}

// -----------------------------------------------------------------------------

// NewNATSPublisher creates a new NATS publisher instance
func NewNATSPublisher(config *models.MNATSConfig, logger *logger.Logger, serializer interfaces.ISerializer) interfaces.IPublisher {
	return &NATSPublisher{
		name:         config.ClientID,
		config:       config,
		logger:       logger,
		useJetStream: config.UseJetStream,
		serializer:   serializer,
		breaker:      newPublishBreaker("nats-publish"),
	}
}

// -----------------------------------------------------------------------------

// OnMarketData is the central callback where all parsed MMarketData lands.
func (np *NATSPublisher) OnMarketData(data *models.MMarketData) {
	subject := np.getSubject(fmt.Sprintf("marketdata.%s.%s", data.DataType, data.Symbol))

	dataSerialized, err := np.serializer.Marshal(data)
	if err != nil {
		np.logger.Error("%s : failed to serialize data for subject %s: %v", np.name, subject, err)
		metrics.PublishErrors.WithLabelValues("nats").Inc()
		return
	}

	// The breaker keeps a dead broker from stalling the feed path: once it
	// opens, messages are dropped and counted until NATS recovers.
	_, err = np.breaker.Execute(func() (interface{}, error) {
		if np.useJetStream {
			return nil, np.PublishJetStream(subject, dataSerialized)
		}
		return nil, np.Publish(subject, dataSerialized)
	})
	if err != nil {
		np.logger.Error("%s : failed to publish %s data for %s to subject %s: %v",
			np.name, data.DataType, data.Symbol, subject, err)
		metrics.PublishErrors.WithLabelValues("nats").Inc()
		return
	}

	metrics.MessagesRelayed.WithLabelValues(data.Source, string(data.DataType)).Inc()
	np.logger.Debug("%s : published %s %s to %s", np.name, data.DataType, data.Symbol, subject)
}

// -----------------------------------------------------------------------------

// Connect establishes the NATS connection and, when enabled, the JetStream
// context and stream.
func (np *NATSPublisher) Connect() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if np.connected {
		return nil
	}

	opts := []nats.Option{
		nats.Name(np.config.ClientID),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			np.logger.Warning("%s : NATS disconnected: %v", np.name, err)
			np.setConnected(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			np.logger.Info("%s : NATS reconnected to %s", np.name, nc.ConnectedUrl())
			np.setConnected(true)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			np.logger.Warning("%s : NATS connection closed", np.name)
			np.setConnected(false)
		}),
	}

	nc, err := nats.Connect(strings.Join(np.config.Servers, ","), opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS servers %v: %w", np.config.Servers, err)
	}

	np.nc = nc
	np.connected = true
	np.logger.Info("%s : connected to NATS at %s", np.name, nc.ConnectedUrl())

	if np.useJetStream {
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			np.connected = false
			return fmt.Errorf("failed to create JetStream context: %w", err)
		}
		np.js = js

		if err := np.ensureStream(); err != nil {
			nc.Close()
			np.connected = false
			return err
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Publish sends a message over NATS core (fire-and-forget delivery).
func (np *NATSPublisher) Publish(subject string, data []byte) error {
	np.mu.RLock()
	nc := np.nc
	np.mu.RUnlock()

	if nc == nil || !nc.IsConnected() {
		return fmt.Errorf("nats client not connected")
	}
	return nc.Publish(subject, data)
}

// -----------------------------------------------------------------------------

// PublishJetStream sends a message with at-least-once delivery through JetStream.
func (np *NATSPublisher) PublishJetStream(subject string, data []byte) error {
	np.mu.RLock()
	js := np.js
	np.mu.RUnlock()

	if js == nil {
		return fmt.Errorf("jetstream context not initialized")
	}
	_, err := js.Publish(subject, data)
	return err
}

// -----------------------------------------------------------------------------

// ensureStream creates the configured JetStream stream if it does not exist.
func (np *NATSPublisher) ensureStream() error {
	streamName := np.config.JetStream.StreamName
	if streamName == "" {
		return fmt.Errorf("jetstream enabled but stream_name is empty")
	}

	if _, err := np.js.StreamInfo(streamName); err == nil {
		np.logger.Info("%s : JetStream stream '%s' already exists", np.name, streamName)
		return nil
	}

	streamConfig := &nats.StreamConfig{
		Name:     streamName,
		Subjects: np.config.JetStream.Subjects,
		Storage:  nats.FileStorage,
	}

	if _, err := np.js.AddStream(streamConfig); err != nil {
		return fmt.Errorf("failed to create stream '%s': %w", streamName, err)
	}

	np.logger.Info("%s : successfully created JetStream stream '%s' with subjects: %v",
		np.name, streamName, np.config.JetStream.Subjects)
	return nil
}

// -----------------------------------------------------------------------------

// Disconnect closes the NATS connection
func (np *NATSPublisher) Disconnect() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if np.nc == nil || np.nc.IsClosed() {
		return nil
	}

	np.nc.Close()
	np.connected = false
	np.logger.Info("%s : NATS connection closed successfully", np.name)
	return nil
}

// -----------------------------------------------------------------------------

// IsConnected returns connection status
func (np *NATSPublisher) IsConnected() bool {
	np.mu.RLock()
	defer np.mu.RUnlock()
	return np.connected
}

// -----------------------------------------------------------------------------

// GetName returns client identifier
func (np *NATSPublisher) GetName() string {
	return np.name
}

// -----------------------------------------------------------------------------

// Flush waits for all published messages to be acknowledged by the server (for core NATS).
func (np *NATSPublisher) Flush() error {
	if !np.IsConnected() {
		return fmt.Errorf("cannot flush: nats client not connected")
	}
	return np.nc.Flush()
}

// -----------------------------------------------------------------------------

// setConnected updates the connection status safely.
// This method is called from NATS connection event handlers (different goroutines).
func (np *NATSPublisher) setConnected(status bool) {
	np.mu.Lock()
	defer np.mu.Unlock()
	np.connected = status
}

// -----------------------------------------------------------------------------

// getSubject prepends the configured subject prefix if it exists.
func (np *NATSPublisher) getSubject(subject string) string {
	if np.config.SubjectPrefix != "" {
		return fmt.Sprintf("%s.%s", np.config.SubjectPrefix, subject)
	}
	return subject
}

// -----------------------------------------------------------------------------

// newPublishBreaker builds the circuit breaker shared by publisher
// implementations: open after 5 consecutive failures, probe again after 10s.
func newPublishBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
