package relay

import (
	"testing"
	"time"

	"feed-relay/src/logger"
	"feed-relay/src/models"
	"feed-relay/src/utils"

	"github.com/stretchr/testify/require"
)

const statsConnected = "S,STATS,66.112.148.224,60002,500,24,1,0,1,2," +
	"Aug 28 8:30AM,Aug 28 9:45AM,Connected,6.2.0.25,212423,465,0.09,0.09,0.05,,,"

const statsDisconnected = "S,STATS,,,500,0,1,0,1,3," +
	"Aug 28 8:30AM,Aug 28 9:45AM,Not Connected,6.2.0.25,212423,465,0.09,0.09,0.05,,,"

func testMonitor(t *testing.T) *HealthMonitor {
	t.Helper()
	log := logger.NewLogger(&models.MLogConfig{Level: "error"}, "test")
	return NewHealthMonitor(&models.MAdminConfig{
		Enabled:           true,
		Host:              "127.0.0.1",
		Port:              9300,
		StaleAfterSeconds: 5,
	}, log)
}

// -----------------------------------------------------------------------------

func TestParseStatsRow(t *testing.T) {
	stats := parseStatsRow(utils.SplitRow(statsConnected))
	require.NotNil(t, stats)

	require.Equal(t, "66.112.148.224", stats.ServerIP)
	require.Equal(t, "60002", stats.ServerPort)
	require.Equal(t, 500, stats.MaxSymbols)
	require.Equal(t, 24, stats.NumberOfSymbols)
	require.Equal(t, 1, stats.ClientsConnected)
	require.Equal(t, 1, stats.Reconnections)
	require.Equal(t, 2, stats.AttemptedReconnections)
	require.Equal(t, "Aug 28 8:30AM", stats.StartTime)
	require.Equal(t, "Connected", stats.Status)
	require.Equal(t, "6.2.0.25", stats.FeedVersion)
	require.True(t, stats.Connected())
}

func TestParseStatsRowNotConnected(t *testing.T) {
	stats := parseStatsRow(utils.SplitRow(statsDisconnected))
	require.NotNil(t, stats)
	require.Equal(t, "Not Connected", stats.Status)
	require.False(t, stats.Connected())
}

func TestParseStatsRowShort(t *testing.T) {
	require.Nil(t, parseStatsRow(utils.SplitRow("S,STATS,1.2.3.4,60002")))
}

// -----------------------------------------------------------------------------

func TestHealthTransitions(t *testing.T) {
	m := testMonitor(t)
	require.False(t, m.Healthy())
	require.Nil(t, m.LastStats())

	m.handleRow([]byte(statsConnected + "\r\n"))
	require.True(t, m.Healthy())

	stats := m.LastStats()
	require.NotNil(t, stats)
	require.Equal(t, 24, stats.NumberOfSymbols)

	m.handleRow([]byte(statsDisconnected + "\r\n"))
	require.False(t, m.Healthy())

	m.handleRow([]byte(statsConnected + "\r\n"))
	require.True(t, m.Healthy())
}

func TestHealthStaleHeartbeat(t *testing.T) {
	m := testMonitor(t)
	m.handleRow([]byte(statsConnected + "\r\n"))
	require.True(t, m.Healthy())

	m.mu.Lock()
	m.lastStats.ReceivedAt = time.Now().Add(-10 * time.Second)
	m.mu.Unlock()

	require.False(t, m.Healthy())
}

func TestHealthIgnoresNonStatsRows(t *testing.T) {
	m := testMonitor(t)
	m.handleRow([]byte("S,CURRENT PROTOCOL,6.2\r\n"))
	m.handleRow([]byte("T,20260828 09:30:01\r\n"))
	require.Nil(t, m.LastStats())
	require.False(t, m.Healthy())
}
