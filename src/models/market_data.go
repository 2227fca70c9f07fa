package models

import (
	"time"
)

// -----------------------------------------------------------------------------

// MMarketData represents standardized market data from any feed.
// This single struct handles multiple data types (Trade, Quote, OrderBook)
// by utilizing omitempty on type-specific fields.
type MMarketData struct {
	// Common Fields
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Exchange  string    `json:"exchange"`
	Source    string    `json:"source"`
	DataType  MDataType `json:"data_type"`

	// Trade Fields (most recent trade on the wire row)
	Price  float64 `json:"price,omitempty"`  // Price of the most recent trade
	Volume float64 `json:"volume,omitempty"` // Size of the most recent trade

	// Cumulative session volume, when the feed reports it
	TotalVolume float64 `json:"total_volume,omitempty"`

	// Quote Fields (top of book)
	BidPrice float64 `json:"bid_price,omitempty"`
	AskPrice float64 `json:"ask_price,omitempty"`
	BidSize  float64 `json:"bid_size,omitempty"`
	AskSize  float64 `json:"ask_size,omitempty"`

	// Order Book Snapshot/Update (Used when DataType == DataTypeOrderBook)
	OrderBook *MOrderBook `json:"order_book,omitempty"`
}

// -----------------------------------------------------------------------------

// MOrderBook represents a simplified snapshot or update of the order book (L2 data)
type MOrderBook struct {
	// Bids and Asks are arrays of [Price, Quantity] pairs for simplicity in serialization
	// e.g., [[100.50, 10], [100.49, 5]]
	Bids [][2]float64 `json:"bids"`
	Asks [][2]float64 `json:"asks"`
}

// -----------------------------------------------------------------------------

// MDataType defines the type of market data
type MDataType string

const (
	DataTypeTrade     MDataType = "TRADE"
	DataTypeQuote     MDataType = "QUOTE"     // Top-of-book update carrying last trade fields
	DataTypeSummary   MDataType = "SUMMARY"   // Initial summary row sent when a watch begins
	DataTypeOrderBook MDataType = "ORDERBOOK" // Level 2 depth
)
