package lookup

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"feed-relay/src/logger"
	"feed-relay/src/models"
	"feed-relay/src/utils"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"
)

// -----------------------------------------------------------------------------
// Lookup client for the feed lookup port (9100). Requests are synchronous:
// dial, write one command, read rows until the !ENDMSG! terminator, close.
// The vendor enforces a pacing violation above 50 requests per second, so
// every command goes through a rate limiter.
// -----------------------------------------------------------------------------

const endMessage = "!ENDMSG!"

// Client issues symbol and history queries against the lookup port.
type Client struct {
	Name   string
	Logger *logger.Logger
	config *models.MLookupConfig

	limiter ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
}

// -----------------------------------------------------------------------------

// NewClient creates a lookup client bound to the configured endpoint.
func NewClient(config *models.MLookupConfig, log *logger.Logger) *Client {
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 50
	}

	return &Client{
		Name:    "LookupClient",
		Logger:  log,
		config:  config,
		limiter: ratelimit.New(rps),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "lookup",
			Timeout: 15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// -----------------------------------------------------------------------------
// Result types
// -----------------------------------------------------------------------------

// SecurityType identifies one instrument class known to the feed.
type SecurityType struct {
	ID        string
	ShortName string
	LongName  string
}

// MarketType identifies one listed market and its parent group.
type MarketType struct {
	ID             string
	ShortName      string
	LongName       string
	GroupID        string
	ShortGroupName string
}

// SymbolResult is one row from a symbol search.
type SymbolResult struct {
	Symbol         string
	ListedMarketID string
	SecurityTypeID string
	Description    string
}

// SymbolFilter narrows a symbol search. At most one of ListedMarketID and
// SecurityTypeID may be set.
type SymbolFilter struct {
	Search         string
	Field          string // "s" to search symbols, "d" to search descriptions
	ListedMarketID string
	SecurityTypeID string
	// SymbolRoot keeps only contract symbols of the form <root><M><YY>,
	// e.g. root "@ES" matches "@ESH26".
	SymbolRoot string
}

// HistoricalTick is one row of tick history.
type HistoricalTick struct {
	Timestamp   string
	Last        float64
	LastSize    float64
	TotalVolume float64
	Bid         float64
	Ask         float64
	TickID      string
}

// HistoricalBar is one row of interval history.
type HistoricalBar struct {
	Timestamp      string
	High           float64
	Low            float64
	Open           float64
	Close          float64
	TotalVolume    float64
	PeriodVolume   float64
	NumberOfTrades int
}

// -----------------------------------------------------------------------------
// Operations
// -----------------------------------------------------------------------------

// SecurityTypes queries the current list of security types and their codes.
func (c *Client) SecurityTypes(ctx context.Context) ([]SecurityType, error) {
	rows, err := c.query(ctx, "SST")
	if err != nil {
		return nil, err
	}

	types := make([]SecurityType, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		types = append(types, SecurityType{ID: row[0], ShortName: row[1], LongName: row[2]})
	}
	return types, nil
}

// -----------------------------------------------------------------------------

// MarketTypes queries the current list of listed markets and their codes.
func (c *Client) MarketTypes(ctx context.Context) ([]MarketType, error) {
	rows, err := c.query(ctx, "SLM")
	if err != nil {
		return nil, err
	}

	types := make([]MarketType, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		mt := MarketType{ID: row[0], ShortName: row[1], LongName: row[2]}
		if len(row) > 3 {
			mt.GroupID = row[3]
		}
		if len(row) > 4 {
			mt.ShortGroupName = row[4]
		}
		types = append(types, mt)
	}
	return types, nil
}

// -----------------------------------------------------------------------------

// SearchSymbols runs a search-by-filter (SBF) query.
func (c *Client) SearchSymbols(ctx context.Context, filter SymbolFilter) ([]SymbolResult, error) {
	if filter.ListedMarketID != "" && filter.SecurityTypeID != "" {
		return nil, fmt.Errorf("cannot filter symbols by both listed market and security type")
	}
	if filter.Search == "" {
		return nil, fmt.Errorf("search string cannot be empty")
	}

	field := filter.Field
	if field == "" {
		field = "s"
	}

	filterType, filterValue := "", ""
	if filter.ListedMarketID != "" {
		filterType, filterValue = "e", filter.ListedMarketID
	} else if filter.SecurityTypeID != "" {
		filterType, filterValue = "t", filter.SecurityTypeID
	}

	command := strings.Join([]string{"SBF", field, filter.Search, filterType, filterValue}, ",")
	rows, err := c.query(ctx, command)
	if err != nil {
		return nil, err
	}

	symbols := make([]SymbolResult, 0, len(rows))
	for _, row := range rows {
		if len(row) < 4 {
			continue
		}
		result := SymbolResult{
			Symbol:         row[0],
			ListedMarketID: row[1],
			SecurityTypeID: row[2],
			Description:    strings.Join(row[3:], ","),
		}
		if filter.SymbolRoot != "" && !matchesRoot(result.Symbol, filter.SymbolRoot) {
			continue
		}
		symbols = append(symbols, result)
	}
	return symbols, nil
}

// -----------------------------------------------------------------------------

// HistoricalTicks queries tick history (HTT) for a symbol. Times use the
// CCYYMMDD HHmmSS wire format; an empty end time means "through now".
// The command fills every column through DatapointsPerSend, so the request
// id goes in its own RequestID slot rather than being appended.
func (c *Client) HistoricalTicks(ctx context.Context, symbol, timeStart, timeEnd string, ptsPerSend int) ([]HistoricalTick, error) {
	if ptsPerSend <= 0 {
		ptsPerSend = 1024
	}
	if timeEnd == "" {
		timeEnd = wireTime(time.Now())
	}

	requestID := uuid.NewString()
	command := fmt.Sprintf("HTT,%s,%s,%s,,,,,%s,%d", symbol, timeStart, timeEnd, requestID, ptsPerSend)
	rows, err := c.exchange(ctx, command, requestID)
	if err != nil {
		return nil, err
	}

	ticks := make([]HistoricalTick, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		ticks = append(ticks, HistoricalTick{
			Timestamp:   row[0],
			Last:        utils.ParseFloat(row[1]),
			LastSize:    utils.ParseFloat(row[2]),
			TotalVolume: utils.ParseFloat(row[3]),
			Bid:         utils.ParseFloat(row[4]),
			Ask:         utils.ParseFloat(row[5]),
			TickID:      row[6],
		})
	}
	return ticks, nil
}

// -----------------------------------------------------------------------------

// HistoricalIntervals queries interval history (HIT) for a symbol. One-second
// bars are only available back six months; older history needs 60s or more.
func (c *Client) HistoricalIntervals(ctx context.Context, symbol string, intervalSeconds int, timeStart, timeEnd string, ptsPerSend int) ([]HistoricalBar, error) {
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	if ptsPerSend <= 0 {
		ptsPerSend = 1024
	}
	if timeEnd == "" {
		timeEnd = wireTime(time.Now())
	}

	requestID := uuid.NewString()
	command := fmt.Sprintf("HIT,%s,%d,%s,%s,,,,,%s,%d", symbol, intervalSeconds, timeStart, timeEnd, requestID, ptsPerSend)
	rows, err := c.exchange(ctx, command, requestID)
	if err != nil {
		return nil, err
	}

	bars := make([]HistoricalBar, 0, len(rows))
	for _, row := range rows {
		if len(row) < 8 {
			continue
		}
		bars = append(bars, HistoricalBar{
			Timestamp:      row[0],
			High:           utils.ParseFloat(row[1]),
			Low:            utils.ParseFloat(row[2]),
			Open:           utils.ParseFloat(row[3]),
			Close:          utils.ParseFloat(row[4]),
			TotalVolume:    utils.ParseFloat(row[5]),
			PeriodVolume:   utils.ParseFloat(row[6]),
			NumberOfTrades: utils.ParseInt(row[7]),
		})
	}
	return bars, nil
}

// -----------------------------------------------------------------------------
// PRIVATE METHODS
// -----------------------------------------------------------------------------

// query runs a symbol-table command (SST, SLM, SBF), where the request id is
// the final column of the command.
func (c *Client) query(ctx context.Context, command string) ([][]string, error) {
	requestID := uuid.NewString()
	return c.exchange(ctx, command+","+requestID, requestID)
}

// -----------------------------------------------------------------------------

// exchange runs one request/response cycle through the breaker. The command
// already carries the request id in its proper column; the id is stripped
// from every response row, along with the LS/LH message tag.
func (c *Client) exchange(ctx context.Context, command, requestID string) ([][]string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doQuery(ctx, command, requestID)
	})
	if err != nil {
		return nil, err
	}
	return result.([][]string), nil
}

// -----------------------------------------------------------------------------

func (c *Client) doQuery(ctx context.Context, command, requestID string) ([][]string, error) {
	timeout := time.Duration(c.config.TimeoutSeconds) * time.Second
	address := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect lookup port %s: %w", address, err)
	}
	defer conn.Close()

	// Every connection negotiates the protocol, even repeats to the same port.
	if _, err := conn.Write([]byte("S,SET PROTOCOL,6.2\r\n")); err != nil {
		return nil, fmt.Errorf("failed to set protocol: %w", err)
	}

	// Pace the actual request; the protocol command above is not counted
	// against the vendor limit by observation, the data requests are.
	c.limiter.Take()

	c.Logger.Debug("%s : request %s: %s", c.Name, requestID, command)
	if _, err := conn.Write([]byte(command + "\r\n")); err != nil {
		return nil, fmt.Errorf("failed to write lookup command: %w", err)
	}

	var rows [][]string
	reader := bufio.NewReader(conn)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				// Partial results are better than none; the original
				// behavior on a stalled lookup is warn-and-return.
				c.Logger.Warning("%s : read timeout on %q, returning %d rows", c.Name, command, len(rows))
				return rows, nil
			}
			return nil, fmt.Errorf("failed to read lookup response: %w", err)
		}

		row := utils.SplitRow(line)
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}

		// Rows are prefixed with the request id; protocol acknowledgements
		// (S,...) are not and get dropped here.
		if row[0] == "S" {
			continue
		}
		if row[0] == requestID {
			row = row[1:]
		}
		if len(row) == 0 {
			continue
		}

		if strings.HasPrefix(row[0], endMessage) {
			break
		}
		if row[0] == "E" {
			c.Logger.Error("%s : lookup error for %q: %s", c.Name, command, strings.Join(row[1:], ","))
			continue
		}
		// Drop the message tag (LS for lookups, LH for history).
		if row[0] == "LS" || row[0] == "LH" {
			row = row[1:]
		}
		// Trailing blank column from the row terminator.
		if len(row) > 0 && row[len(row)-1] == "" {
			row = row[:len(row)-1]
		}
		if len(row) == 0 {
			continue
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// -----------------------------------------------------------------------------

// matchesRoot keeps contract symbols that extend the root by exactly the
// single-letter month code and two-digit year.
func matchesRoot(symbol, root string) bool {
	return strings.Contains(symbol, root) && len(symbol) == len(root)+3
}

// -----------------------------------------------------------------------------

// wireTime formats a timestamp in the CCYYMMDD HHmmSS wire format.
func wireTime(t time.Time) string {
	return t.Format("20060102 150405")
}
