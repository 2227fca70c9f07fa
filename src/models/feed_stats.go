package models

import "time"

// -----------------------------------------------------------------------------

// MFeedStats holds one parsed S,STATS row from the admin port. The feed emits
// one row per second once client stats are enabled, and the Status column is
// the authoritative connected/disconnected signal for the whole service.
type MFeedStats struct {
	ServerIP               string
	ServerPort             string
	MaxSymbols             int
	NumberOfSymbols        int
	ClientsConnected       int
	SecondsSinceLastUpdate int
	Reconnections          int
	AttemptedReconnections int
	StartTime              string
	MarketTime             string
	Status                 string // "Connected" or "Not Connected"
	FeedVersion            string
	LoginID                string

	ReceivedAt time.Time // local receive time, not part of the wire row
}

// -----------------------------------------------------------------------------

// Connected reports whether the stats row says the feed holds an upstream
// connection to the data servers.
func (s *MFeedStats) Connected() bool {
	return s.Status == FeedStatusConnected
}

const (
	FeedStatusConnected    = "Connected"
	FeedStatusNotConnected = "Not Connected"
)
