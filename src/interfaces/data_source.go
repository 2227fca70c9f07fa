package interfaces

import "feed-relay/src/models"

// -----------------------------------------------------------------------------

// IDataSource defines the interface for managing a single data stream
type IDataSource interface {
	GetName() string
	Start() error
	Stop() error
	Subscribe(symbols []string) error
	UnSubscribe(symbols []string) error
	Refresh(symbols []string) error
	GetStatus() *models.MDataSourceStatus
}
