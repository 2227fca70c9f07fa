package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feed-relay/src/config"
	"feed-relay/src/grpc_control"
	"feed-relay/src/logger"
	"feed-relay/src/lookup"
	"feed-relay/src/relay"
	"feed-relay/src/rest"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(&config.Log, config.Name)

	// Create relay from config
	relayService, err := relay.NewRelay(config, appLogger)
	if err != nil {
		appLogger.Critical("failed to create relay: %v", err)
		os.Exit(1)
	}

	// Lookup client shares the feed host with the configured lookup port
	lookupClient := lookup.NewClient(&config.Lookup, appLogger)

	// Create control service
	controlService, err := grpc_control.NewGRPCService(config, appLogger, relayService)
	if err != nil {
		appLogger.Critical("failed to create control service: %v", err)
		os.Exit(1)
	}

	// Start REST API server
	apiHandler := rest.NewAPIHandler(config, appLogger, relayService, lookupClient)
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: apiHandler.Router(),
	}
	go func() {
		appLogger.Info("starting REST API server on :%d", config.Port)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Critical("REST API server error: %v", err)
			os.Exit(1)
		}
	}()

	// Start gRPC control server
	appLogger.Info("starting gRPC control service on %s:%d", config.GRPC_Host, config.GRPC_Port)
	if err := controlService.Start(); err != nil {
		appLogger.Critical("control server error: %v", err)
		os.Exit(1)
	}

	// Start relay
	if err := relayService.Start(); err != nil {
		appLogger.Critical("failed to start relay: %v", err)
		os.Exit(1)
	}

	appLogger.Info("feed relay running. REST API: :%d, gRPC: %s:%d",
		config.Port, config.GRPC_Host, config.GRPC_Port)
	appLogger.Info("Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := relayService.Stop(); err != nil {
		appLogger.Error("relay shutdown error: %v", err)
	}
	if err := apiServer.Shutdown(ctx); err != nil {
		appLogger.Error("REST API shutdown error: %v", err)
	}
	if err := controlService.Stop(ctx); err != nil {
		appLogger.Error("control service shutdown error: %v", err)
	}
}
