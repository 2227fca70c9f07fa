package models

// -----------------------------------------------------------------------------

// MDataSourceStatus represents the runtime status and technical metadata of a data stream.
// It aggregates information from the underlying feed and connection client.

type MDataSourceStatus struct {
	SourceName    string   // The name of the data source
	Running       bool     // From IConnectionClient.IsRunning()
	Type          string   // e.g., "equity", "future" (from IFeed.GetType())
	TransportType string   // e.g., "tcp", "websocket" (from IConnectionClient.GetType())
	Endpoint      string   // e.g., "127.0.0.1:5009" (from IFeed.GetEndPoint())
	Symbols       []string // List of watched symbols
}
