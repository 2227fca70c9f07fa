package grpc_control

import (
	"context"
	"sync"
	"testing"
	"time"

	"feed-relay/src/config"
	"feed-relay/src/logger"
	"feed-relay/src/models"
	"feed-relay/src/publishers"
	"feed-relay/src/relay"
	"feed-relay/src/serializers"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// -----------------------------------------------------------------------------

func testService(t *testing.T) *GRPCService {
	t.Helper()

	log := logger.NewLogger(&models.MLogConfig{Level: "error"}, "test")
	cfg := &config.Config{MConfig: &models.MConfig{
		GRPC_Host: "127.0.0.1",
		GRPC_Port: 0,
	}}
	r := &relay.Relay{
		Name:      "test",
		Logger:    log,
		Publisher: publishers.NewNATSPublisher(&models.MNATSConfig{ClientID: "test"}, log, serializers.NewJSONSerializer()),
	}

	svc, err := NewGRPCService(cfg, log, r)
	require.NoError(t, err)
	return svc
}

// -----------------------------------------------------------------------------

func TestGRPCServiceStartStop(t *testing.T) {
	svc := testService(t)

	require.NoError(t, svc.Start())
	require.True(t, svc.IsRunning())

	conn, err := grpc.NewClient(svc.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := grpc_health_v1.NewHealthClient(conn)
	_, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: serviceName})
	require.NoError(t, err)

	require.NoError(t, svc.Stop(ctx))
	require.False(t, svc.IsRunning())
}

// -----------------------------------------------------------------------------

func TestGRPCServiceIsRunningConcurrent(t *testing.T) {
	svc := testService(t)
	require.NoError(t, svc.Start())

	// Hammer IsRunning from several goroutines while the server shuts down,
	// since the Serve goroutine flips the flag from its own goroutine.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					svc.IsRunning()
				}
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))

	close(stop)
	wg.Wait()
	require.False(t, svc.IsRunning())
}
