package feeds

import (
	"testing"
	"time"

	"feed-relay/src/config"
	"feed-relay/src/logger"
	"feed-relay/src/models"

	"github.com/stretchr/testify/require"
)

func testFeed(t *testing.T, source *models.MDataSourceConfig) *IQFeed {
	t.Helper()

	cfg := &config.Config{MConfig: &models.MConfig{
		DataSources: []*models.MDataSourceConfig{source},
	}}
	log := logger.NewLogger(&models.MLogConfig{Level: "error"}, "test")

	feed, err := NewIQFeed(cfg, log, source.Name)
	require.NoError(t, err)
	return feed.(*IQFeed)
}

func level1Feed(t *testing.T, mode string) *IQFeed {
	return testFeed(t, &models.MDataSourceConfig{
		Name:     "level1",
		Feed:     "iqfeed",
		Endpoint: "127.0.0.1:5009",
		Level:    1,
		Mode:     mode,
		Interval: 60,
		Symbols:  []string{"AAPL", "SPY"},
	})
}

// -----------------------------------------------------------------------------

func TestNewIQFeedUnknownSource(t *testing.T) {
	cfg := &config.Config{MConfig: &models.MConfig{}}
	log := logger.NewLogger(&models.MLogConfig{Level: "error"}, "test")

	_, err := NewIQFeed(cfg, log, "missing")
	require.Error(t, err)
}

func TestRegistryHasIQFeed(t *testing.T) {
	constructor, err := GetConstructor("iqfeed")
	require.NoError(t, err)
	require.NotNil(t, constructor)
}

// -----------------------------------------------------------------------------

func TestSessionCommandsLevel1(t *testing.T) {
	feed := level1Feed(t, "updates")

	commands := feed.SessionCommands()
	require.Len(t, commands, 2)
	require.Equal(t, "S,SET PROTOCOL,6.2\r\n", string(commands[0]))
	require.Equal(t,
		"S,SELECT UPDATE FIELDS,Symbol,Most Recent Trade,Most Recent Trade Size,"+
			"Most Recent Trade Time,Total Volume,Bid,Bid Size,Ask,Ask Size\r\n",
		string(commands[1]))
}

func TestSessionCommandsLevel2SkipsFieldSelection(t *testing.T) {
	feed := testFeed(t, &models.MDataSourceConfig{
		Name: "depth", Endpoint: "127.0.0.1:9200", Level: 2,
	})

	commands := feed.SessionCommands()
	require.Len(t, commands, 1)
	require.Equal(t, "S,SET PROTOCOL,6.2\r\n", string(commands[0]))
}

// -----------------------------------------------------------------------------

func TestAddSubscriptionModes(t *testing.T) {
	tests := []struct {
		mode string
		want string
	}{
		{"updates", "wAAPL\r\n"},
		{"trades", "tAAPL\r\n"},
		{"interval", "BW,AAPL,60,,7\r\n"},
	}
	for _, tc := range tests {
		feed := level1Feed(t, tc.mode)
		commands, err := feed.AddSubscription([]string{"AAPL"})
		require.NoError(t, err)
		require.Len(t, commands, 1)
		require.Equal(t, tc.want, string(commands[0]))
	}
}

func TestAddSubscriptionLevel2(t *testing.T) {
	feed := testFeed(t, &models.MDataSourceConfig{
		Name: "depth", Endpoint: "127.0.0.1:9200", Level: 2,
	})

	commands, err := feed.AddSubscription([]string{"@ESH26"})
	require.NoError(t, err)
	require.Equal(t, "WOR,@ESH26\r\r\n", string(commands[0]))

	commands, err = feed.RemoveSubscription([]string{"@ESH26"})
	require.NoError(t, err)
	require.Equal(t, "ROR,@ESH26\r\r\n", string(commands[0]))
}

func TestAddSubscriptionUnknownMode(t *testing.T) {
	feed := level1Feed(t, "bars")
	_, err := feed.AddSubscription([]string{"AAPL"})
	require.Error(t, err)
}

func TestRemoveSubscriptionLevel1(t *testing.T) {
	feed := level1Feed(t, "updates")
	commands, err := feed.RemoveSubscription([]string{"AAPL", "SPY"})
	require.NoError(t, err)
	require.Equal(t, "rAAPL\r\n", string(commands[0]))
	require.Equal(t, "rSPY\r\n", string(commands[1]))
}

func TestRefreshSubscription(t *testing.T) {
	feed := level1Feed(t, "updates")
	commands, err := feed.RefreshSubscription([]string{"AAPL"})
	require.NoError(t, err)
	require.Equal(t, "fAAPL\r\n", string(commands[0]))

	depth := testFeed(t, &models.MDataSourceConfig{Name: "depth", Endpoint: "x", Level: 2})
	_, err = depth.RefreshSubscription([]string{"@ESH26"})
	require.Error(t, err)
}

func TestGetSymbolsTracksWatches(t *testing.T) {
	feed := level1Feed(t, "updates")
	require.ElementsMatch(t, []string{"AAPL", "SPY"}, feed.GetSymbols())

	_, err := feed.AddSubscription([]string{"AAPL", "SPY", "MSFT"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"AAPL", "SPY", "MSFT"}, feed.GetSymbols())

	_, err = feed.RemoveSubscription([]string{"SPY"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"AAPL", "MSFT"}, feed.GetSymbols())
}

// -----------------------------------------------------------------------------

func TestParseMessageUpdateRow(t *testing.T) {
	feed := level1Feed(t, "updates")

	data, err := feed.ParseMessage([]byte("Q,AAPL,231.52,100,09:30:01.123456,52000,231.50,300,231.53,200,\r\n"))
	require.NoError(t, err)
	require.NotNil(t, data)

	require.Equal(t, "AAPL", data.Symbol)
	require.Equal(t, models.DataTypeQuote, data.DataType)
	require.Equal(t, 231.52, data.Price)
	require.Equal(t, 100.0, data.Volume)
	require.Equal(t, 52000.0, data.TotalVolume)
	require.Equal(t, 231.50, data.BidPrice)
	require.Equal(t, 300.0, data.BidSize)
	require.Equal(t, 231.53, data.AskPrice)
	require.Equal(t, 200.0, data.AskSize)

	now := time.Now()
	require.Equal(t, now.Year(), data.Timestamp.Year())
	require.Equal(t, 9, data.Timestamp.Hour())
	require.Equal(t, 30, data.Timestamp.Minute())
	require.Equal(t, 123456000, data.Timestamp.Nanosecond())
}

func TestParseMessageSummaryRow(t *testing.T) {
	feed := level1Feed(t, "updates")

	data, err := feed.ParseMessage([]byte("P,SPY,652.10,5,09:30:00.000001,1200,652.08,10,652.11,12,\r\n"))
	require.NoError(t, err)
	require.NotNil(t, data)
	require.Equal(t, models.DataTypeSummary, data.DataType)
	require.Equal(t, "SPY", data.Symbol)
}

func TestParseMessageSymbolUppercased(t *testing.T) {
	feed := level1Feed(t, "updates")

	data, err := feed.ParseMessage([]byte("Q,aapl,231.52,100,09:30:01.123456,52000,231.50,300,231.53,200,\r\n"))
	require.NoError(t, err)
	require.Equal(t, "AAPL", data.Symbol)
}

func TestParseMessageShortRow(t *testing.T) {
	feed := level1Feed(t, "updates")

	_, err := feed.ParseMessage([]byte("Q,AAPL,231.52\r\n"))
	require.Error(t, err)
}

func TestParseMessageErrorRow(t *testing.T) {
	feed := level1Feed(t, "updates")

	_, err := feed.ParseMessage([]byte("E,Invalid symbol XYZXYZ\r\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid symbol")
}

func TestParseMessageSkipsNonTickRows(t *testing.T) {
	feed := level1Feed(t, "updates")

	for _, row := range []string{
		"T,20260828 09:30:01\r\n",
		"F,AAPL,,,,,,,,\r\n",
		"N,CBW,00000000,AAPL,20260828,headline\r\n",
		"Z,unknown type\r\n",
		"\r\n",
	} {
		data, err := feed.ParseMessage([]byte(row))
		require.NoError(t, err, row)
		require.Nil(t, data, row)
	}
}

// -----------------------------------------------------------------------------

func TestHandleSystemRowConnectionState(t *testing.T) {
	feed := level1Feed(t, "updates")
	require.False(t, feed.ServerConnected())

	_, err := feed.ParseMessage([]byte("S,SERVER CONNECTED\r\n"))
	require.NoError(t, err)
	require.True(t, feed.ServerConnected())

	_, err = feed.ParseMessage([]byte("S,SERVER DISCONNECTED\r\n"))
	require.NoError(t, err)
	require.False(t, feed.ServerConnected())
}

func TestConfirmFields(t *testing.T) {
	feed := level1Feed(t, "updates")

	row := "S,CURRENT UPDATE FIELDNAMES,Symbol,Most Recent Trade,Most Recent Trade Size," +
		"Most Recent Trade Time,Total Volume,Bid,Bid Size,Ask,Ask Size\r\n"
	_, err := feed.ParseMessage([]byte(row))
	require.NoError(t, err)
	require.True(t, feed.fieldsConfirmed)

	_, err = feed.ParseMessage([]byte("S,CURRENT UPDATE FIELDNAMES,Symbol,Bid,Ask\r\n"))
	require.NoError(t, err)
	require.False(t, feed.fieldsConfirmed)
}
