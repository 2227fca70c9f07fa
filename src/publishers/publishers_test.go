package publishers

import (
	"testing"

	"feed-relay/src/logger"
	"feed-relay/src/models"
	"feed-relay/src/serializers"

	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(&models.MLogConfig{Level: "error"}, "test")
}

// -----------------------------------------------------------------------------

func TestNATSSubjectNaming(t *testing.T) {
	publisher := NewNATSPublisher(&models.MNATSConfig{
		ClientID: "test",
	}, testLogger(), serializers.NewJSONSerializer()).(*NATSPublisher)

	require.Equal(t, "marketdata.QUOTE.AAPL", publisher.getSubject("marketdata.QUOTE.AAPL"))

	prefixed := NewNATSPublisher(&models.MNATSConfig{
		ClientID:      "test",
		SubjectPrefix: "prod",
	}, testLogger(), serializers.NewJSONSerializer()).(*NATSPublisher)

	require.Equal(t, "prod.marketdata.QUOTE.AAPL", prefixed.getSubject("marketdata.QUOTE.AAPL"))
}

func TestNATSPublishDisconnected(t *testing.T) {
	publisher := NewNATSPublisher(&models.MNATSConfig{ClientID: "test"}, testLogger(), serializers.NewJSONSerializer())

	np := publisher.(*NATSPublisher)
	require.False(t, np.IsConnected())
	require.Error(t, np.Publish("marketdata.QUOTE.AAPL", []byte("{}")))
	require.Error(t, np.Flush())
}

// -----------------------------------------------------------------------------

func TestKafkaTopicNaming(t *testing.T) {
	publisher := NewKafkaPublisher(&models.MKafkaConfig{
		Brokers: []string{"127.0.0.1:9092"},
	}, testLogger(), serializers.NewJSONSerializer()).(*KafkaPublisher)

	require.Equal(t, "marketdata.quote", publisher.getTopic(models.DataTypeQuote))
	require.Equal(t, "marketdata.trade", publisher.getTopic(models.DataTypeTrade))

	prefixed := NewKafkaPublisher(&models.MKafkaConfig{
		Brokers:     []string{"127.0.0.1:9092"},
		TopicPrefix: "prod.md",
	}, testLogger(), serializers.NewJSONSerializer()).(*KafkaPublisher)

	require.Equal(t, "prod.md.orderbook", prefixed.getTopic(models.DataTypeOrderBook))
}

// -----------------------------------------------------------------------------

func TestSerializerRoundTrip(t *testing.T) {
	data := &models.MMarketData{
		Symbol:   "AAPL",
		DataType: models.DataTypeQuote,
		Price:    231.52,
		BidPrice: 231.50,
		AskPrice: 231.53,
	}

	for _, serializer := range []struct {
		name string
		s    interface {
			Marshal(interface{}) ([]byte, error)
			Unmarshal([]byte, interface{}) error
		}
	}{
		{"json", serializers.NewJSONSerializer()},
		{"bin", serializers.NewBinSerializer()},
	} {
		raw, err := serializer.s.Marshal(data)
		require.NoError(t, err, serializer.name)

		var decoded models.MMarketData
		require.NoError(t, serializer.s.Unmarshal(raw, &decoded), serializer.name)
		require.Equal(t, data.Symbol, decoded.Symbol, serializer.name)
		require.Equal(t, data.Price, decoded.Price, serializer.name)
	}
}
