package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/razeghi71/dqserve/config"
	"github.com/razeghi71/dqserve/internal/app"
)

func main() {
	cfg, err := config.Load(os.Getenv("DQ_CONFIG"))
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.Level())
	slog.SetDefault(logger)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialise service", "error", err)
		os.Exit(1)
	}

	h := &handler{svc: a.Service, verifier: a.Verifier, logger: logger, origins: cfg.Server.CORSOrigins}
	lambda.Start(h.Handle)
}
