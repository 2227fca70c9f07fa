package models

// -----------------------------------------------------------------------------
// Configuration models. These are plain YAML-mapped structs; the business
// logic (validation, lookups by name) lives in src/config.
// -----------------------------------------------------------------------------

// MConfig is the root application configuration.
type MConfig struct {
	Name      string `yaml:"name"`
	Port      int    `yaml:"port"`      // REST control API port
	GRPC_Host string `yaml:"grpc_host"` // gRPC health service bind host
	GRPC_Port int    `yaml:"grpc_port"` // gRPC health service bind port

	Log MLogConfig `yaml:"log"`

	// Publisher selects the broker producer: "nats" or "kafka"
	Publisher MPublisherConfig `yaml:"publisher"`
	NATS      MNATSConfig      `yaml:"nats"`
	Kafka     MKafkaConfig     `yaml:"kafka"`

	// Admin is the feed admin port used for health monitoring
	Admin MAdminConfig `yaml:"admin"`
	// Lookup is the feed lookup port used for symbol/history queries
	Lookup MLookupConfig `yaml:"lookup"`

	DataSources []*MDataSourceConfig `yaml:"data_sources"`
}

// -----------------------------------------------------------------------------

// MLogConfig controls logger verbosity and output.
type MLogConfig struct {
	Level   string `yaml:"level"`   // debug, info, warn, error
	Console bool   `yaml:"console"` // human-readable console writer instead of JSON
}

// -----------------------------------------------------------------------------

// MPublisherConfig selects and tunes the outbound producer.
type MPublisherConfig struct {
	Type string `yaml:"type"` // "nats" or "kafka"
}

// -----------------------------------------------------------------------------

// MNATSConfig configures the NATS publisher.
type MNATSConfig struct {
	Servers       []string         `yaml:"servers"`
	ClientID      string           `yaml:"client_id"`
	SubjectPrefix string           `yaml:"subject_prefix"`
	UseJetStream  bool             `yaml:"use_jetstream"`
	JetStream     MJetStreamConfig `yaml:"jetstream"`
}

// MJetStreamConfig configures the optional JetStream stream.
type MJetStreamConfig struct {
	StreamName string   `yaml:"stream_name"`
	Subjects   []string `yaml:"subjects"`
}

// -----------------------------------------------------------------------------

// MKafkaConfig configures the Kafka publisher.
type MKafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	TopicPrefix string   `yaml:"topic_prefix"`
	// BatchTimeoutMs bounds how long the writer may hold a batch open.
	// Market data is latency-sensitive, so this defaults low.
	BatchTimeoutMs int `yaml:"batch_timeout_ms"`
}

// -----------------------------------------------------------------------------

// MAdminConfig points the health monitor at the feed admin port.
type MAdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	// StaleAfterSeconds marks the feed unhealthy when no STATS row arrives
	// for this long (the feed emits one per second when alive).
	StaleAfterSeconds int `yaml:"stale_after_seconds"`
}

// -----------------------------------------------------------------------------

// MLookupConfig points the lookup client at the feed lookup port.
type MLookupConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// RequestsPerSecond caps outbound lookup commands; the vendor enforces
	// a pacing violation above 50 requests per second.
	RequestsPerSecond int `yaml:"requests_per_second"`
}

// -----------------------------------------------------------------------------

// MDataSourceConfig describes one streaming connection to manage.
type MDataSourceConfig struct {
	Name      string   `yaml:"name"`
	Feed      string   `yaml:"feed"`      // feed adapter registry key, e.g. "iqfeed"
	Transport string   `yaml:"transport"` // "tcp" or "websocket"
	Type      string   `yaml:"type"`      // asset type, e.g. "equity", "future"
	Endpoint  string   `yaml:"endpoint"`  // host:port for tcp, URL for websocket
	Level     int      `yaml:"level"`     // 1 = top of book, 2 = market by order
	Mode      string   `yaml:"mode"`      // "updates", "trades" or "interval"
	Interval  int      `yaml:"interval"`  // bar length in seconds when mode == "interval"
	APIKey    string   `yaml:"api_key"`
	Symbols   []string `yaml:"symbols"`

	ConnectionConfig MConnectionConfig `yaml:"connection"`
}

// MConnectionConfig tunes transport-level behavior.
type MConnectionConfig struct {
	ReconnectAttempts     int `yaml:"reconnect_attempts"`
	ReconnectDelaySeconds int `yaml:"reconnect_delay_seconds"`
	// ReadTimeoutSeconds guards against a silent socket; the stream ports
	// deliver at least a timestamp row every second while healthy.
	ReadTimeoutSeconds int `yaml:"read_timeout_seconds"`
}
