package relay

import (
	"context"
	"fmt"

	"feed-relay/src/interfaces"
	"feed-relay/src/logger"
	"feed-relay/src/models"
)

// -----------------------------------------------------------------------------

// FeedSource binds one feed protocol adapter to one transport connection.
type FeedSource struct {
	Name   string
	Logger *logger.Logger
	Feed   interfaces.IFeed
	Client interfaces.IConnectionClient
}

// reconnectHooker is implemented by transports that can replay commands
// after an automatic reconnect.
type reconnectHooker interface {
	SetReconnectHook(func())
}

// subscriptionRefresher is implemented by feed adapters whose protocol has a
// force-refresh command for active watches.
type subscriptionRefresher interface {
	RefreshSubscription(symbols []string) ([][]byte, error)
}

// -----------------------------------------------------------------------------

func (s *FeedSource) GetName() string {
	return s.Name
}

// -----------------------------------------------------------------------------

// Start connects the transport, performs the feed session handshake and sends
// the initial watch commands for the configured symbols.
func (s *FeedSource) Start() error {
	s.Logger.Info("%s : starting connection client for feed", s.Name)

	if hooker, ok := s.Client.(reconnectHooker); ok {
		// After a transport-level reconnect the server has forgotten the
		// session: replay the handshake and all active watches.
		hooker.SetReconnectHook(func() {
			s.Logger.Info("%s : replaying session handshake and watches after reconnect", s.Name)
			if err := s.sendSessionCommands(); err != nil {
				s.Logger.Error("%s : failed to replay session commands: %v", s.Name, err)
				return
			}
			if err := s.Subscribe(s.Feed.GetSymbols()); err != nil {
				s.Logger.Error("%s : failed to replay watches: %v", s.Name, err)
			}
		})
	}

	if err := s.Client.Connect(context.Background()); err != nil {
		return fmt.Errorf("failed to start client %s: %w", s.Name, err)
	}

	if err := s.sendSessionCommands(); err != nil {
		return fmt.Errorf("failed to send session commands for %s: %w", s.Name, err)
	}

	if err := s.Subscribe(s.Feed.GetSymbols()); err != nil {
		return fmt.Errorf("failed to send initial watches for %s: %w", s.Name, err)
	}

	s.Logger.Info("%s : connection client started", s.Name)
	return nil
}

// -----------------------------------------------------------------------------

// Stop closes the connection client.
func (s *FeedSource) Stop() error {
	s.Logger.Info("%s : stopping connection client for feed", s.Name)
	return s.Client.Disconnect()
}

// -----------------------------------------------------------------------------
// Subscription Methods
// -----------------------------------------------------------------------------

// Subscribe creates watch commands for the given symbols and sends them.
func (s *FeedSource) Subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil // Nothing to subscribe to
	}

	commands, err := s.Feed.AddSubscription(symbols)
	if err != nil {
		return fmt.Errorf("failed to build watch commands for %s: %w", s.Name, err)
	}

	for _, command := range commands {
		if err := s.Client.SendMessage(command); err != nil {
			return fmt.Errorf("failed to send watch command for %s: %w", s.Name, err)
		}
	}

	s.Logger.Info("%s : successfully sent watch commands for %d symbols", s.Name, len(symbols))
	return nil
}

// -----------------------------------------------------------------------------

// UnSubscribe creates unwatch commands for the given symbols and sends them.
func (s *FeedSource) UnSubscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil // Nothing to unsubscribe from
	}

	commands, err := s.Feed.RemoveSubscription(symbols)
	if err != nil {
		return fmt.Errorf("failed to build unwatch commands for %s: %w", s.Name, err)
	}

	for _, command := range commands {
		if err := s.Client.SendMessage(command); err != nil {
			return fmt.Errorf("failed to send unwatch command for %s: %w", s.Name, err)
		}
	}

	s.Logger.Info("%s : successfully sent unwatch commands for %d symbols", s.Name, len(symbols))
	return nil
}

// -----------------------------------------------------------------------------

// Refresh asks the feed to resend the current summary rows for the given
// symbols. With an empty list every active watch is refreshed.
func (s *FeedSource) Refresh(symbols []string) error {
	refresher, ok := s.Feed.(subscriptionRefresher)
	if !ok {
		return fmt.Errorf("feed %s does not support refresh", s.Name)
	}

	if len(symbols) == 0 {
		symbols = s.Feed.GetSymbols()
	}
	if len(symbols) == 0 {
		return nil // Nothing to refresh
	}

	commands, err := refresher.RefreshSubscription(symbols)
	if err != nil {
		return fmt.Errorf("failed to build refresh commands for %s: %w", s.Name, err)
	}

	for _, command := range commands {
		if err := s.Client.SendMessage(command); err != nil {
			return fmt.Errorf("failed to send refresh command for %s: %w", s.Name, err)
		}
	}

	s.Logger.Info("%s : successfully sent refresh commands for %d symbols", s.Name, len(symbols))
	return nil
}

// -----------------------------------------------------------------------------

func (s *FeedSource) GetStatus() *models.MDataSourceStatus {
	return &models.MDataSourceStatus{
		SourceName:    s.Feed.GetName(),
		Running:       s.Client.IsRunning(),
		Type:          s.Feed.GetType(),
		TransportType: s.Client.GetType(),
		Endpoint:      s.Feed.GetEndPoint(),
		Symbols:       s.Feed.GetSymbols(),
	}
}

// -----------------------------------------------------------------------------

func (s *FeedSource) sendSessionCommands() error {
	for _, command := range s.Feed.SessionCommands() {
		if err := s.Client.SendMessage(command); err != nil {
			return err
		}
	}
	return nil
}
