package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sandgate/internal/gateway"
	"sandgate/internal/gateway/handlers"
	"sandgate/internal/logger"
	"sandgate/pkg/config"
	"sandgate/pkg/credentials"
	"sandgate/pkg/sandbox"
	"sandgate/pkg/server"
	"sandgate/pkg/session"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flag.String("log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")
	port := flag.Int("port", 0, "Gateway port override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// CLI flags take precedence over file and environment.
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *port != 0 {
		cfg.Adapters.Gateway.Port = *port
	}

	if err := setupLogging(cfg.Logging); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	fmt.Println("Sandgate - Authenticated File Gateway")
	logger.Info("Log level set to: %s", cfg.Logging.Level)
	logger.Info("Sandbox root: %s", cfg.Sandbox.Root)

	if err := os.MkdirAll(cfg.Sandbox.Root, 0o755); err != nil {
		log.Fatalf("Failed to create sandbox root: %v", err)
	}

	mapping, err := sandbox.LoadMapping(cfg.Sandbox.MappingFile)
	if err != nil {
		log.Fatalf("Failed to load folder mapping: %v", err)
	}

	sessions := session.NewStore(cfg.Session.TTL)

	resolver, err := sandbox.NewResolver(cfg.Sandbox.Root, mapping, sessions)
	if err != nil {
		log.Fatalf("Failed to create path resolver: %v", err)
	}

	creds, err := config.NewCredentialStore(&cfg.Credentials)
	if err != nil {
		log.Fatalf("Failed to create credential store: %v", err)
	}
	// Account lifecycle keeps the folder mapping in sync.
	if memStore, ok := creds.(*credentials.MemoryStore); ok {
		memStore.SetObserver(mapping)
	}

	handler := handlers.New(sessions, resolver, mapping, creds)
	gw := gateway.New(cfg.Adapters.Gateway, handler)

	srv := server.New(mapping)
	if err := srv.AddAdapter(gw); err != nil {
		log.Fatalf("Failed to register gateway adapter: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Gateway is running on port %d. Press Ctrl+C to stop.", gw.Port())

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()
		if err := <-serverDone; err != nil && err != context.Canceled {
			logger.Error("Server shutdown error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		if err != nil && err != context.Canceled {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped")
	}
}

// setupLogging applies the logging configuration: level, then destination.
func setupLogging(cfg config.LoggingConfig) error {
	logger.SetLevel(cfg.Level)

	switch cfg.Output {
	case "", "stdout":
		// Default destination.
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", cfg.Output, err)
		}
		logger.SetOutput(f)
	}
	return nil
}
