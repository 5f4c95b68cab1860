// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Coset-server accepts WebSocket signaling connections, negotiates a
// WebRTC data channel on each, and echoes every message whose type is
// listed in the schema catalog back to its sender.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/coset/lib/config"
	"github.com/bureau-foundation/coset/lib/version"
	"github.com/bureau-foundation/coset/lib/wire"
	"github.com/bureau-foundation/coset/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath    string
		listenAddress string
		showVersion   bool
	)
	flagSet := pflag.NewFlagSet("coset-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $COSET_CONFIG, else built-in defaults)")
	flagSet.StringVar(&listenAddress, "listen", "", "listen address, overriding server.listen_address")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("coset-server %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("listen") {
		cfg.Server.ListenAddress = listenAddress
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	catalog, err := loadCatalog(cfg.Schemas.Catalog)
	if err != nil {
		return err
	}

	factory, err := transport.NewPeerFactory(transport.ICEConfigFrom(cfg.ICE))
	if err != nil {
		return fmt.Errorf("configuring peer connections: %w", err)
	}

	transport.RegisterMetrics()
	listener := transport.NewListener(transport.ListenerConfig{
		Connection: transport.Config{
			Logger:    logger,
			NewPeer:   factory,
			Signaling: cfg.Signaling,
			Data:      cfg.Data,
		},
		Prepare:        echoCatalog(catalog, logger),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           newMux(cfg.Server, listener, catalog),
		ReadHeaderTimeout: 10 * time.Second,
	}
	socket, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.ListenAddress, err)
	}

	logger.Info("starting coset-server",
		"version", version.Info(),
		"environment", cfg.Environment,
		"address", socket.Addr().String(),
		"signaling_path", cfg.Server.SignalingPath,
		"schemas", catalog.Len(),
	)
	for _, schema := range describeCatalog(catalog) {
		logger.Info("serving schema",
			"type", schema.Type,
			"name", schema.Name,
			"length", schema.Length,
			"fingerprint", schema.Fingerprint,
		)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(socket) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		listener.Close()
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	// Hijacked WebSocket connections are not tracked by the http
	// server, so the listener closes them itself.
	listener.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// loadConfig reads --config when given, else COSET_CONFIG, else the
// defaults.
func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv("COSET_CONFIG") != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}

// loadCatalog returns an empty catalog for an empty path.
func loadCatalog(path string) (*wire.Catalog, error) {
	if path == "" {
		return &wire.Catalog{}, nil
	}
	catalog, err := wire.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("loading schema catalog: %w", err)
	}
	return catalog, nil
}
