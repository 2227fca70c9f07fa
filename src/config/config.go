package config

import (
	"fmt"
	"os"

	"feed-relay/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills optional knobs that have sane service-wide defaults.
func (c *Config) applyDefaults() {
	if c.Publisher.Type == "" {
		c.Publisher.Type = "nats"
	}
	if c.Lookup.TimeoutSeconds == 0 {
		c.Lookup.TimeoutSeconds = 7
	}
	if c.Lookup.RequestsPerSecond == 0 {
		// Vendor pacing limit: 50 requests in any 1 second window.
		c.Lookup.RequestsPerSecond = 50
	}
	if c.Admin.StaleAfterSeconds == 0 {
		c.Admin.StaleAfterSeconds = 5
	}
	for _, source := range c.DataSources {
		if source.ConnectionConfig.ReconnectAttempts == 0 {
			source.ConnectionConfig.ReconnectAttempts = 5
		}
		if source.ConnectionConfig.ReconnectDelaySeconds == 0 {
			source.ConnectionConfig.ReconnectDelaySeconds = 1
		}
		if source.Level == 0 {
			source.Level = 1
		}
		if source.Mode == "" {
			source.Mode = "updates"
		}
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation and checks the publisher
// and data source sub-configs.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config name cannot be empty")
	}

	// Validate Application Ports (using c.Port directly due to embedding)
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid application port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GRPC_Port <= 1024 || c.GRPC_Port > 65535 {
		return fmt.Errorf("invalid gRPC port number: %d (must be between 1025 and 65535)", c.GRPC_Port)
	}

	// Validate Data Sources
	if len(c.DataSources) == 0 {
		return fmt.Errorf("at least one data source must be configured")
	}
	for i, source := range c.DataSources {
		if source.Name == "" {
			return fmt.Errorf("data source %d: name cannot be empty", i)
		}
		if source.Feed == "" {
			return fmt.Errorf("data source '%s': feed cannot be empty", source.Name)
		}
		if source.Endpoint == "" {
			return fmt.Errorf("data source '%s': endpoint cannot be empty", source.Name)
		}
		if len(source.Symbols) == 0 {
			return fmt.Errorf("data source '%s': symbols list cannot be empty", source.Name)
		}
		switch source.Transport {
		case "tcp", "websocket":
		default:
			return fmt.Errorf("data source '%s': unsupported transport '%s'", source.Name, source.Transport)
		}
		switch source.Mode {
		case "updates", "trades", "interval":
		default:
			return fmt.Errorf("data source '%s': unsupported mode '%s'", source.Name, source.Mode)
		}
		if source.Mode == "interval" && source.Interval <= 0 {
			return fmt.Errorf("data source '%s': interval mode requires a positive interval", source.Name)
		}
		if source.Level != 1 && source.Level != 2 {
			return fmt.Errorf("data source '%s': level must be 1 or 2", source.Name)
		}
	}

	// Validate publisher selection
	switch c.Publisher.Type {
	case "nats":
		if len(c.NATS.Servers) == 0 {
			return fmt.Errorf("NATS servers list cannot be empty")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers list cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported publisher type '%s' (must be nats or kafka)", c.Publisher.Type)
	}

	// Admin monitoring is optional, but when enabled it needs an address.
	if c.Admin.Enabled && (c.Admin.Host == "" || c.Admin.Port == 0) {
		return fmt.Errorf("admin monitoring enabled but host/port not configured")
	}

	return nil
}

// -----------------------------------------------------------------------------

// GetDataSourceByName returns a single data source by name
func (c *Config) GetDataSourceByName(name string) *models.MDataSourceConfig {
	for _, source := range c.DataSources {
		if source.Name == name {
			return source
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// GetDataSourceByType returns data source configurations by asset type
func (c *Config) GetDataSourceByType(sourceType string) []models.MDataSourceConfig {
	var result []models.MDataSourceConfig
	for _, source := range c.DataSources {
		if source.Type == sourceType {
			result = append(result, *source)
		}
	}
	return result
}
