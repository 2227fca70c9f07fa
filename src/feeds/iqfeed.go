package feeds

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"feed-relay/src/config"
	"feed-relay/src/interfaces"
	"feed-relay/src/logger"
	"feed-relay/src/models"
	"feed-relay/src/utils"
)

// -----------------------------------------------------------------------------
// IQFeed wire protocol
// -----------------------------------------------------------------------------

// ProtocolVersion must be announced on every connection, even multiple
// connections to the same port.
const ProtocolVersion = "6.2"

// Message type prefixes on the stream ports:
//
//	Q update, P summary, T timestamp, S system, E error,
//	F fundamental, N news headline.
//
// Commands carry a CR LF suffix.

// UpdateFields is the pinned field list requested with SELECT UPDATE FIELDS.
// Pinning the fields makes Q and P rows parse positionally instead of
// depending on whatever field layout the feed was left in.
var UpdateFields = []string{
	"Symbol",
	"Most Recent Trade",
	"Most Recent Trade Size",
	"Most Recent Trade Time",
	"Total Volume",
	"Bid",
	"Bid Size",
	"Ask",
	"Ask Size",
}

// -----------------------------------------------------------------------------
// STRUCT DEFINITION
// -----------------------------------------------------------------------------

// IQFeed implements interfaces.IFeed for the DTN IQFeed Level 1 / Level 2
// stream ports. The level and watch mode come from the data source config.
type IQFeed struct {
	Name   string
	Logger *logger.Logger
	Config *models.MDataSourceConfig

	mu              sync.RWMutex
	watched         map[string]bool
	serverConnected bool
	fieldsConfirmed bool
}

// -----------------------------------------------------------------------------
// CONSTRUCTOR AND REGISTRATION
// -----------------------------------------------------------------------------

func init() {
	// Register the feed with the name "iqfeed" for dynamic creation
	if err := Register("iqfeed", NewIQFeed); err != nil {
		fmt.Printf("Error registering IQFeed adapter: %v\n", err)
	}
}

// -----------------------------------------------------------------------------

// NewIQFeed creates a new IQFeed adapter instance.
// Matches the interfaces.IFeedConstructor signature: (config, logger, name) -> (IFeed, error)
func NewIQFeed(config *config.Config, logger *logger.Logger, name string) (interfaces.IFeed, error) {
	source := config.GetDataSourceByName(name)
	if source == nil {
		logger.Warning("%s : iqfeed config not found; returning error", name)
		return nil, fmt.Errorf("data source config '%s' not found", name)
	}

	return &IQFeed{
		Name:    name,
		Logger:  logger,
		Config:  source,
		watched: make(map[string]bool),
	}, nil
}

// -----------------------------------------------------------------------------
// IFeed IMPLEMENTATION
// -----------------------------------------------------------------------------

// GetName returns the feed name
func (f *IQFeed) GetName() string {
	return f.Name
}

// -----------------------------------------------------------------------------

// GetType returns the asset type (e.g., "future")
func (f *IQFeed) GetType() string {
	return f.Config.Type
}

// -----------------------------------------------------------------------------

// GetEndPoint returns the stream endpoint address
func (f *IQFeed) GetEndPoint() string {
	return f.Config.Endpoint
}

// -----------------------------------------------------------------------------

// GetEndpointWithCredentials returns the connection endpoint. IQFeed
// authenticates at the service level (iqconnect), not per socket, so this is
// the same as GetEndPoint.
func (f *IQFeed) GetEndpointWithCredentials() string {
	return f.Config.Endpoint
}

// -----------------------------------------------------------------------------

// GetSymbols returns the active watch list. Before the first subscription it
// is the configured symbol list; afterwards it reflects watches added and
// removed at runtime, so a reconnect replays what was actually watched.
func (f *IQFeed) GetSymbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.watched) == 0 {
		return f.Config.Symbols
	}

	symbols := make([]string, 0, len(f.watched))
	for symbol, active := range f.watched {
		if active {
			symbols = append(symbols, symbol)
		}
	}
	return symbols
}

// -----------------------------------------------------------------------------

// SessionCommands returns the protocol negotiation written right after the
// transport connects: protocol announcement, then the pinned update fields.
// Level 2 market-by-order sessions keep the server's own field layout.
func (f *IQFeed) SessionCommands() [][]byte {
	commands := [][]byte{
		[]byte("S,SET PROTOCOL," + ProtocolVersion + "\r\n"),
	}
	if f.Config.Level == 1 {
		commands = append(commands,
			[]byte("S,SELECT UPDATE FIELDS,"+strings.Join(UpdateFields, ",")+"\r\n"))
	}
	return commands
}

// -----------------------------------------------------------------------------

// AddSubscription creates one watch command per symbol. The command depends
// on the configured level and mode:
//   - level 1 updates:  w<SYM>
//   - level 1 trades:   t<SYM>
//   - level 1 interval: BW,<SYM>,<interval>,,7  (7 days of backfill)
//   - level 2 (MBO):    WOR,<SYM>
func (f *IQFeed) AddSubscription(symbols []string) ([][]byte, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	commands := make([][]byte, 0, len(symbols))
	for _, symbol := range symbols {
		cmd, err := f.watchCommand(symbol)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}

	f.mu.Lock()
	for _, symbol := range symbols {
		f.watched[symbol] = true
	}
	f.mu.Unlock()

	return commands, nil
}

// -----------------------------------------------------------------------------

// RemoveSubscription creates one unwatch command per symbol:
// r<SYM> for level 1, ROR,<SYM> for level 2.
func (f *IQFeed) RemoveSubscription(symbols []string) ([][]byte, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	commands := make([][]byte, 0, len(symbols))
	for _, symbol := range symbols {
		if f.Config.Level == 2 {
			commands = append(commands, []byte("ROR,"+symbol+"\r\r\n"))
		} else {
			commands = append(commands, []byte("r"+symbol+"\r\n"))
		}
	}

	f.mu.Lock()
	for _, symbol := range symbols {
		f.watched[symbol] = false
	}
	f.mu.Unlock()

	return commands, nil
}

// -----------------------------------------------------------------------------

// RefreshSubscription creates force-refresh commands (f<SYM>) for level 1
// watches, prompting the feed to resend the current summary row.
func (f *IQFeed) RefreshSubscription(symbols []string) ([][]byte, error) {
	if f.Config.Level != 1 {
		return nil, fmt.Errorf("refresh is only supported on level 1 streams")
	}

	commands := make([][]byte, 0, len(symbols))
	for _, symbol := range symbols {
		commands = append(commands, []byte("f"+symbol+"\r\n"))
	}
	return commands, nil
}

// -----------------------------------------------------------------------------

// ParseMessage processes one incoming row, routing on the message type prefix.
func (f *IQFeed) ParseMessage(message []byte) (*models.MMarketData, error) {
	row := utils.SplitRow(string(message))
	if len(row) == 0 || row[0] == "" {
		return nil, nil
	}

	switch row[0] {
	case "Q":
		return f.parseUpdateRow(row, models.DataTypeQuote)
	case "P":
		return f.parseUpdateRow(row, models.DataTypeSummary)
	case "S":
		f.handleSystemRow(row)
		return nil, nil
	case "E":
		return nil, fmt.Errorf("feed error row: %s", strings.Join(row[1:], ","))
	case "T", "F", "N":
		// Timestamp, fundamental and news rows carry no tick data.
		return nil, nil
	default:
		// Unknown row types are ignored, matching the tolerant reader the
		// protocol requires across minor version bumps.
		return nil, nil
	}
}

// -----------------------------------------------------------------------------

// ServerConnected reports whether the session has seen S,SERVER CONNECTED
// more recently than S,SERVER DISCONNECTED.
func (f *IQFeed) ServerConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.serverConnected
}

// -----------------------------------------------------------------------------
// PRIVATE METHODS
// -----------------------------------------------------------------------------

func (f *IQFeed) watchCommand(symbol string) ([]byte, error) {
	if f.Config.Level == 2 {
		// Market By Order watch. The trailing extra CR is part of the
		// documented command form.
		return []byte("WOR," + symbol + "\r\r\n"), nil
	}

	switch f.Config.Mode {
	case "updates":
		return []byte("w" + symbol + "\r\n"), nil
	case "trades":
		return []byte("t" + symbol + "\r\n"), nil
	case "interval":
		return []byte(fmt.Sprintf("BW,%s,%d,,7\r\n", symbol, f.Config.Interval)), nil
	default:
		return nil, fmt.Errorf("unsupported watch mode '%s'", f.Config.Mode)
	}
}

// -----------------------------------------------------------------------------

// parseUpdateRow parses a pinned-field Q or P row:
//
//	Q,<Symbol>,<Trade>,<TradeSize>,<TradeTime>,<TotalVolume>,<Bid>,<BidSize>,<Ask>,<AskSize>,
//
// Rows end with a trailing separator, so one blank column after the last
// field is expected.
func (f *IQFeed) parseUpdateRow(row []string, dataType models.MDataType) (*models.MMarketData, error) {
	if len(row) < len(UpdateFields)+1 {
		return nil, fmt.Errorf("short update row: %d columns, want %d", len(row), len(UpdateFields)+1)
	}

	symbol := row[1]
	if symbol == "" {
		return nil, fmt.Errorf("update row with empty symbol")
	}

	return &models.MMarketData{
		Symbol:      strings.ToUpper(symbol),
		Timestamp:   parseTradeTime(row[4]),
		Exchange:    f.Name,
		Source:      f.Name,
		DataType:    dataType,
		Price:       utils.ParseFloat(row[2]),
		Volume:      utils.ParseFloat(row[3]),
		TotalVolume: utils.ParseFloat(row[5]),
		BidPrice:    utils.ParseFloat(row[6]),
		BidSize:     utils.ParseFloat(row[7]),
		AskPrice:    utils.ParseFloat(row[8]),
		AskSize:     utils.ParseFloat(row[9]),
	}, nil
}

// -----------------------------------------------------------------------------

// handleSystemRow tracks session state from S rows. The L1/L2 ports send
// five system rows on connect (KEYOK, CUST, IP, SERVER CONNECTED, KEY), and
// SERVER CONNECTED is the one that marks the session live.
func (f *IQFeed) handleSystemRow(row []string) {
	if len(row) < 2 {
		return
	}

	switch row[1] {
	case "SERVER CONNECTED":
		f.mu.Lock()
		f.serverConnected = true
		f.mu.Unlock()
		f.Logger.Info("%s : feed server connected", f.Name)
	case "SERVER DISCONNECTED":
		f.mu.Lock()
		f.serverConnected = false
		f.mu.Unlock()
		f.Logger.Warning("%s : feed server disconnected", f.Name)
	case "CURRENT UPDATE FIELDNAMES":
		f.confirmFields(row[2:])
	case "CURRENT PROTOCOL":
		if len(row) > 2 && row[2] != ProtocolVersion {
			f.Logger.Warning("%s : feed negotiated protocol %s, expected %s", f.Name, row[2], ProtocolVersion)
		}
	case "KEYOK", "CUST", "IP", "KEY":
		f.Logger.Debug("%s : startup system row: %s", f.Name, row[1])
	default:
		f.Logger.Debug("%s : system row: %s", f.Name, strings.Join(row[1:], ","))
	}
}

// -----------------------------------------------------------------------------

// confirmFields checks the server's field layout confirmation against the
// pinned list. A mismatch means positional parsing would silently produce
// garbage, which is worth a loud warning.
func (f *IQFeed) confirmFields(fields []string) {
	ok := len(fields) >= len(UpdateFields)
	if ok {
		for i, want := range UpdateFields {
			if fields[i] != want {
				ok = false
				break
			}
		}
	}

	f.mu.Lock()
	f.fieldsConfirmed = ok
	f.mu.Unlock()

	if !ok {
		f.Logger.Warning("%s : update fieldnames differ from requested layout: %v", f.Name, fields)
		return
	}
	f.Logger.Debug("%s : update fieldnames confirmed", f.Name)
}

// -----------------------------------------------------------------------------

// parseTradeTime converts the Most Recent Trade Time column (HH:MM:SS.ffffff,
// feed local time) onto today's date. Blank or malformed values fall back to
// the local receive time.
func parseTradeTime(s string) time.Time {
	now := time.Now()
	if s == "" {
		return now
	}

	t, err := time.Parse("15:04:05.000000", s)
	if err != nil {
		if t, err = time.Parse("15:04:05", s); err != nil {
			return now
		}
	}

	return time.Date(now.Year(), now.Month(), now.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), now.Location())
}
