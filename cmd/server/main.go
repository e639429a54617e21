package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joelghill/soapstone/internal/atproto"
	"github.com/joelghill/soapstone/internal/config"
	"github.com/joelghill/soapstone/internal/domain"
	"github.com/joelghill/soapstone/internal/firehose"
	"github.com/joelghill/soapstone/internal/httpserver"
	"github.com/joelghill/soapstone/internal/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up repository (implements the post, rating, and cursor stores)
	repo, err := postgres.NewRepository(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("connected to database")

	// Set up the PDS client for the write path. Without credentials the
	// service runs read-only and write requests fail upstream.
	pds := atproto.NewClient(cfg.PDSURL)
	if cfg.PDSIdentifier != "" {
		if err := pds.Login(ctx, cfg.PDSIdentifier, cfg.PDSPassword); err != nil {
			return fmt.Errorf("login to PDS: %w", err)
		}
		logger.Info("authenticated with PDS", "did", pds.DID())
	} else {
		logger.Warn("no PDS credentials configured, write endpoints will fail")
	}

	service := domain.NewPostService(repo, repo, repo, pds, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the firehose subscriber in the background
	subscriber, err := firehose.NewSubscriber(cfg.FirehoseURL, service, logger)
	if err != nil {
		return fmt.Errorf("create firehose subscriber: %w", err)
	}
	go func() {
		if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("firehose subscriber exited with error", "error", err)
		}
	}()

	// Start the HTTP server
	server := httpserver.NewServer(cfg, service, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port, "hostname", cfg.Hostname)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
