package grpc_control

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"feed-relay/src/config"
	"feed-relay/src/logger"
	"feed-relay/src/relay"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// -----------------------------------------------------------------------------
// GRPCService exposes the standard gRPC health protocol so orchestrators can
// probe the relay without going through the REST API. The serving status
// tracks feed health reported by the relay.
// -----------------------------------------------------------------------------

const serviceName = "feedrelay.Relay"

type GRPCService struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	config   *config.Config
	logger   *logger.Logger
	relay    *relay.Relay

	done chan struct{}

	mu      sync.RWMutex
	running bool
}

// -----------------------------------------------------------------------------

// NewGRPCService creates a new GRPCService instance
func NewGRPCService(config *config.Config, log *logger.Logger, r *relay.Relay) (*GRPCService, error) {
	address := fmt.Sprintf("%s:%d", config.GRPC_Host, config.GRPC_Port)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	server := grpc.NewServer()

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)

	return &GRPCService{
		server:   server,
		health:   healthServer,
		listener: listener,
		config:   config,
		logger:   log,
		relay:    r,
		done:     make(chan struct{}),
	}, nil
}

// -----------------------------------------------------------------------------

// Start serves gRPC in the background and keeps the health status in sync
// with the relay. Shutdown is owned by the caller via Stop.
func (g *GRPCService) Start() error {
	g.logger.Info("GRPCService : starting on %s", g.listener.Addr().String())

	g.setRunning(true)
	go func() {
		if err := g.server.Serve(g.listener); err != nil && err != grpc.ErrServerStopped {
			g.logger.Error("GRPCService : server failed: %v", err)
		}
		g.setRunning(false)
	}()

	go g.watchHealth()

	return nil
}

// -----------------------------------------------------------------------------

// Stop gracefully stops the gRPC server
func (g *GRPCService) Stop(ctx context.Context) error {
	g.logger.Info("GRPCService : stopping...")
	close(g.done)

	if g.server != nil {
		done := make(chan struct{})
		go func() {
			g.server.GracefulStop()
			close(done)
		}()

		select {
		case <-ctx.Done():
			g.logger.Warning("GRPCService : graceful shutdown timeout, forcing stop...")
			g.server.Stop()
		case <-done:
		}
	}

	g.setRunning(false)
	g.logger.Info("GRPCService : stopped")
	return nil
}

// -----------------------------------------------------------------------------

// Addr returns the address the server is listening on.
func (g *GRPCService) Addr() string {
	return g.listener.Addr().String()
}

// -----------------------------------------------------------------------------

// IsRunning returns whether the gRPC server is running
func (g *GRPCService) IsRunning() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.running
}

func (g *GRPCService) setRunning(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = v
}

// -----------------------------------------------------------------------------
// PRIVATE METHODS
// -----------------------------------------------------------------------------

// watchHealth mirrors relay health into the gRPC health service once a second.
func (g *GRPCService) watchHealth() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			g.health.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			return
		case <-ticker.C:
			status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
			if g.relay.Healthy() {
				status = grpc_health_v1.HealthCheckResponse_SERVING
			}
			g.health.SetServingStatus(serviceName, status)
			g.health.SetServingStatus("", status)
		}
	}
}
