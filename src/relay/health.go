package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feed-relay/src/logger"
	"feed-relay/src/metrics"
	"feed-relay/src/models"
	"feed-relay/src/transports"
	"feed-relay/src/utils"
)

// -----------------------------------------------------------------------------
// HealthMonitor watches the feed admin port. Once client stats are enabled
// the feed emits one S,STATS row per second; the Status column of that row is
// the authoritative connected/disconnected signal for the whole service.
// -----------------------------------------------------------------------------

type HealthMonitor struct {
	Name   string
	Logger *logger.Logger
	config *models.MAdminConfig
	client *transports.TCPClient

	mu        sync.RWMutex
	lastStats *models.MFeedStats
	connected bool
}

// -----------------------------------------------------------------------------

// NewHealthMonitor creates a monitor bound to the admin endpoint.
func NewHealthMonitor(config *models.MAdminConfig, log *logger.Logger) *HealthMonitor {
	m := &HealthMonitor{
		Name:   "HealthMonitor",
		Logger: log,
		config: config,
	}

	sourceConfig := &models.MDataSourceConfig{
		Name:     "admin",
		Endpoint: fmt.Sprintf("%s:%d", config.Host, config.Port),
		ConnectionConfig: models.MConnectionConfig{
			// The admin port is the health signal itself: keep retrying.
			ReconnectAttempts:     1 << 30,
			ReconnectDelaySeconds: 1,
			ReadTimeoutSeconds:    config.StaleAfterSeconds * 2,
		},
	}
	m.client = transports.NewTCPClient(sourceConfig, log, "admin", m.handleRow)
	m.client.SetReconnectHook(m.bootstrap)

	return m
}

// -----------------------------------------------------------------------------

// Start connects to the admin port and enables the stats heartbeat.
func (m *HealthMonitor) Start(ctx context.Context) error {
	if err := m.client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect admin port: %w", err)
	}
	m.bootstrap()
	m.Logger.Info("%s : monitoring feed admin port %s:%d", m.Name, m.config.Host, m.config.Port)
	return nil
}

// -----------------------------------------------------------------------------

// Stop disconnects from the admin port.
func (m *HealthMonitor) Stop() error {
	return m.client.Disconnect()
}

// -----------------------------------------------------------------------------

// Healthy reports whether the feed says Connected and the heartbeat is fresh.
func (m *HealthMonitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected || m.lastStats == nil {
		return false
	}
	stale := time.Duration(m.config.StaleAfterSeconds) * time.Second
	return time.Since(m.lastStats.ReceivedAt) <= stale
}

// -----------------------------------------------------------------------------

// LastStats returns a copy of the most recent stats row, or nil before the
// first heartbeat.
func (m *HealthMonitor) LastStats() *models.MFeedStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastStats == nil {
		return nil
	}
	stats := *m.lastStats
	return &stats
}

// -----------------------------------------------------------------------------
// PRIVATE METHODS
// -----------------------------------------------------------------------------

// bootstrap negotiates the admin session: protocol announcement, per-client
// stats, then an explicit connect request to the upstream data servers.
func (m *HealthMonitor) bootstrap() {
	commands := []string{
		"S,SET PROTOCOL,6.2\r\n",
		"S,CLIENTSTATS ON\r\n",
		"S,CONNECT\r\n",
	}
	for _, command := range commands {
		if err := m.client.SendMessage([]byte(command)); err != nil {
			m.Logger.Error("%s : failed to send admin command %q: %v", m.Name, command, err)
			return
		}
	}
}

// -----------------------------------------------------------------------------

// handleRow consumes one admin row. Only S,STATS rows matter; protocol and
// per-client stats confirmations are ignored.
func (m *HealthMonitor) handleRow(line []byte) {
	row := utils.SplitRow(string(line))
	if len(row) < 2 || row[0] != "S" {
		return
	}

	switch row[1] {
	case "STATS":
		m.handleStats(row)
	case "CURRENT PROTOCOL", "CLIENTSTATS", "SERVER CONNECTED", "SERVER RECONNECT FAILED":
		m.Logger.Debug("%s : admin row: %s", m.Name, row[1])
	}
}

// -----------------------------------------------------------------------------

func (m *HealthMonitor) handleStats(row []string) {
	stats := parseStatsRow(row)
	if stats == nil {
		m.Logger.Warning("%s : malformed STATS row (%d columns)", m.Name, len(row))
		return
	}
	metrics.StatsRows.Inc()

	m.mu.Lock()
	wasConnected := m.connected
	m.connected = stats.Connected()
	m.lastStats = stats
	nowConnected := m.connected
	m.mu.Unlock()

	// Edge-triggered transition logging; the row arrives every second and
	// steady state must not spam the log.
	if nowConnected && !wasConnected {
		metrics.FeedConnected.Set(1)
		m.Logger.Info("%s : feed service connected (server %s:%s, %d symbols)",
			m.Name, stats.ServerIP, stats.ServerPort, stats.NumberOfSymbols)
	} else if !nowConnected && wasConnected {
		metrics.FeedConnected.Set(0)
		m.Logger.Warning("%s : feed service disconnected (status %q)", m.Name, stats.Status)
	}
}

// -----------------------------------------------------------------------------

// parseStatsRow maps an S,STATS row onto MFeedStats. Layout:
//
//	S,STATS,<ServerIP>,<ServerPort>,<MaxSymbols>,<NumberOfSymbols>,
//	<ClientsConnected>,<SecondsSinceLastUpdate>,<Reconnections>,
//	<AttemptedReconnections>,<StartTime>,<MarketTime>,<Status>,
//	<FeedVersion>,<LoginID>,...
func parseStatsRow(row []string) *models.MFeedStats {
	if len(row) < 13 {
		return nil
	}

	stats := &models.MFeedStats{
		ServerIP:               row[2],
		ServerPort:             row[3],
		MaxSymbols:             utils.ParseInt(row[4]),
		NumberOfSymbols:        utils.ParseInt(row[5]),
		ClientsConnected:       utils.ParseInt(row[6]),
		SecondsSinceLastUpdate: utils.ParseInt(row[7]),
		Reconnections:          utils.ParseInt(row[8]),
		AttemptedReconnections: utils.ParseInt(row[9]),
		StartTime:              row[10],
		MarketTime:             row[11],
		Status:                 row[12],
		ReceivedAt:             time.Now(),
	}
	if len(row) > 13 {
		stats.FeedVersion = row[13]
	}
	if len(row) > 14 {
		stats.LoginID = row[14]
	}
	return stats
}
