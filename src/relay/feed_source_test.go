package relay

import (
	"context"
	"fmt"
	"testing"

	"feed-relay/src/interfaces"
	"feed-relay/src/logger"
	"feed-relay/src/models"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Stubs
// -----------------------------------------------------------------------------

// stubFeed is a minimal protocol adapter whose command vocabulary is recorded
// verbatim, with an optional force-refresh command.
type stubFeed struct {
	symbols        []string
	refreshable    bool
	refreshBuiltOn []string
}

func (f *stubFeed) GetName() string                    { return "stub" }
func (f *stubFeed) GetType() string                    { return "equity" }
func (f *stubFeed) GetEndPoint() string                { return "127.0.0.1:1" }
func (f *stubFeed) GetEndpointWithCredentials() string { return "127.0.0.1:1" }
func (f *stubFeed) GetSymbols() []string               { return f.symbols }
func (f *stubFeed) SessionCommands() [][]byte          { return nil }

func (f *stubFeed) AddSubscription(symbols []string) ([][]byte, error) {
	commands := make([][]byte, 0, len(symbols))
	for _, symbol := range symbols {
		commands = append(commands, []byte("w"+symbol+"\r\n"))
	}
	return commands, nil
}

func (f *stubFeed) RemoveSubscription(symbols []string) ([][]byte, error) {
	commands := make([][]byte, 0, len(symbols))
	for _, symbol := range symbols {
		commands = append(commands, []byte("r"+symbol+"\r\n"))
	}
	return commands, nil
}

func (f *stubFeed) RefreshSubscription(symbols []string) ([][]byte, error) {
	if !f.refreshable {
		return nil, fmt.Errorf("refresh not supported")
	}
	f.refreshBuiltOn = append([]string(nil), symbols...)
	commands := make([][]byte, 0, len(symbols))
	for _, symbol := range symbols {
		commands = append(commands, []byte("f"+symbol+"\r\n"))
	}
	return commands, nil
}

func (f *stubFeed) ParseMessage(message []byte) (*models.MMarketData, error) { return nil, nil }

// stubClient records every message written to the transport.
type stubClient struct {
	sent [][]byte
}

func (c *stubClient) Connect(ctx context.Context) error     { return nil }
func (c *stubClient) Disconnect() error                     { return nil }
func (c *stubClient) IsRunning() bool                       { return true }
func (c *stubClient) GetName() string                       { return "stub-client" }
func (c *stubClient) GetType() string                       { return "tcp" }
func (c *stubClient) ReceiveMessage(ctx context.Context)    {}
func (c *stubClient) SendMessage(message []byte) error {
	c.sent = append(c.sent, message)
	return nil
}

func (c *stubClient) sentStrings() []string {
	out := make([]string, 0, len(c.sent))
	for _, m := range c.sent {
		out = append(out, string(m))
	}
	return out
}

// -----------------------------------------------------------------------------

func testSource(feed *stubFeed) (*FeedSource, *stubClient) {
	client := &stubClient{}
	source := &FeedSource{
		Name:   "source-test",
		Logger: logger.NewLogger(&models.MLogConfig{Level: "error"}, "test"),
		Feed:   feed,
		Client: client,
	}
	return source, client
}

// -----------------------------------------------------------------------------

func TestFeedSourceRefreshSendsCommands(t *testing.T) {
	source, client := testSource(&stubFeed{refreshable: true})

	require.NoError(t, source.Refresh([]string{"AAPL", "SPY"}))
	require.Equal(t, []string{"fAAPL\r\n", "fSPY\r\n"}, client.sentStrings())
}

func TestFeedSourceRefreshDefaultsToActiveWatches(t *testing.T) {
	feed := &stubFeed{refreshable: true, symbols: []string{"MSFT", "QQQ"}}
	source, client := testSource(feed)

	require.NoError(t, source.Refresh(nil))
	require.Equal(t, []string{"MSFT", "QQQ"}, feed.refreshBuiltOn)
	require.Equal(t, []string{"fMSFT\r\n", "fQQQ\r\n"}, client.sentStrings())
}

func TestFeedSourceRefreshNothingWatched(t *testing.T) {
	source, client := testSource(&stubFeed{refreshable: true})

	require.NoError(t, source.Refresh(nil))
	require.Empty(t, client.sent)
}

func TestFeedSourceRefreshAdapterError(t *testing.T) {
	source, client := testSource(&stubFeed{refreshable: false})

	err := source.Refresh([]string{"AAPL"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "refresh")
	require.Empty(t, client.sent)
}

func TestRelayRefreshSource(t *testing.T) {
	source, client := testSource(&stubFeed{refreshable: true})
	r := &Relay{
		Name:    "test",
		Logger:  logger.NewLogger(&models.MLogConfig{Level: "error"}, "test"),
		Sources: map[string]interfaces.IDataSource{"source-test": source},
	}

	require.NoError(t, r.RefreshSource("source-test", []string{"AAPL"}))
	require.Equal(t, []string{"fAAPL\r\n"}, client.sentStrings())

	require.Error(t, r.RefreshSource("missing", nil))
}

func TestFeedSourceSubscribeUnSubscribe(t *testing.T) {
	source, client := testSource(&stubFeed{})

	require.NoError(t, source.Subscribe([]string{"AAPL"}))
	require.NoError(t, source.UnSubscribe([]string{"AAPL"}))
	require.Equal(t, []string{"wAAPL\r\n", "rAAPL\r\n"}, client.sentStrings())
}
