package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/razeghi71/dqserve/config"
	"github.com/razeghi71/dqserve/internal/app"
	"github.com/razeghi71/dqserve/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("DQ_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialise service", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := server.New(a.Service, a.Verifier, logger, server.Options{
		BodyLimit:   cfg.Server.BodyLimit,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Server.Listen) }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server stopped", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "error", err)
		}
	}
}
