package publishers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"feed-relay/src/interfaces"
	"feed-relay/src/logger"
	"feed-relay/src/metrics"
	"feed-relay/src/models"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
)

// -----------------------------------------------------------------------------
// KafkaPublisher implements interfaces.IPublisher over a Kafka producer.
// Topic per data type, message key = symbol so per-symbol ordering holds
// within a partition.
// -----------------------------------------------------------------------------

type KafkaPublisher struct {
	name   string
	config *models.MKafkaConfig
	logger *logger.Logger

	mu sync.RWMutex

	writer     *kafka.Writer
	serializer interfaces.ISerializer
	breaker    *gobreaker.CircuitBreaker

	connected bool
}

// -----------------------------------------------------------------------------

// NewKafkaPublisher creates a new Kafka publisher instance
func NewKafkaPublisher(config *models.MKafkaConfig, logger *logger.Logger, serializer interfaces.ISerializer) interfaces.IPublisher {
	return &KafkaPublisher{
		name:       "KafkaPublisher",
		config:     config,
		logger:     logger,
		serializer: serializer,
		breaker:    newPublishBreaker("kafka-publish"),
	}
}

// -----------------------------------------------------------------------------

// OnMarketData serializes and produces one message per parsed data row.
func (kp *KafkaPublisher) OnMarketData(data *models.MMarketData) {
	topic := kp.getTopic(data.DataType)

	dataSerialized, err := kp.serializer.Marshal(data)
	if err != nil {
		kp.logger.Error("%s : failed to serialize data for topic %s: %v", kp.name, topic, err)
		metrics.PublishErrors.WithLabelValues("kafka").Inc()
		return
	}

	_, err = kp.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return nil, kp.writeMessage(ctx, topic, data.Symbol, dataSerialized)
	})
	if err != nil {
		kp.logger.Error("%s : failed to publish %s data for %s to topic %s: %v",
			kp.name, data.DataType, data.Symbol, topic, err)
		metrics.PublishErrors.WithLabelValues("kafka").Inc()
		return
	}

	metrics.MessagesRelayed.WithLabelValues(data.Source, string(data.DataType)).Inc()
	kp.logger.Debug("%s : published %s %s to %s", kp.name, data.DataType, data.Symbol, topic)
}

// -----------------------------------------------------------------------------

// Connect verifies broker reachability and builds the shared writer.
func (kp *KafkaPublisher) Connect() error {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	if kp.connected {
		return nil
	}

	// Fail fast if no broker is reachable; the writer itself dials lazily.
	conn, err := kafka.Dial("tcp", kp.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker %s: %w", kp.config.Brokers[0], err)
	}
	conn.Close()

	batchTimeout := time.Duration(kp.config.BatchTimeoutMs) * time.Millisecond
	if batchTimeout <= 0 {
		// Market data is latency-sensitive; do not hold batches open long.
		batchTimeout = 10 * time.Millisecond
	}

	kp.writer = &kafka.Writer{
		Addr:                   kafka.TCP(kp.config.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	kp.connected = true

	kp.logger.Info("%s : kafka writer ready for brokers %v", kp.name, kp.config.Brokers)
	return nil
}

// -----------------------------------------------------------------------------

// Disconnect flushes and closes the writer
func (kp *KafkaPublisher) Disconnect() error {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	if !kp.connected || kp.writer == nil {
		return nil
	}

	err := kp.writer.Close()
	kp.writer = nil
	kp.connected = false
	if err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}

	kp.logger.Info("%s : kafka writer closed successfully", kp.name)
	return nil
}

// -----------------------------------------------------------------------------

// IsConnected returns connection status
func (kp *KafkaPublisher) IsConnected() bool {
	kp.mu.RLock()
	defer kp.mu.RUnlock()
	return kp.connected
}

// -----------------------------------------------------------------------------

// GetName returns client identifier
func (kp *KafkaPublisher) GetName() string {
	return kp.name
}

// -----------------------------------------------------------------------------

func (kp *KafkaPublisher) writeMessage(ctx context.Context, topic, key string, value []byte) error {
	kp.mu.RLock()
	writer := kp.writer
	kp.mu.RUnlock()

	if writer == nil {
		return fmt.Errorf("kafka writer not connected")
	}

	return writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

// -----------------------------------------------------------------------------

// getTopic maps a data type to its topic, e.g. "marketdata.quote".
func (kp *KafkaPublisher) getTopic(dataType models.MDataType) string {
	prefix := kp.config.TopicPrefix
	if prefix == "" {
		prefix = "marketdata"
	}
	return fmt.Sprintf("%s.%s", prefix, strings.ToLower(string(dataType)))
}
