// Package app assembles the query service from configuration. It is shared
// by the HTTP server and the Lambda handler.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/razeghi71/dqserve/auth"
	"github.com/razeghi71/dqserve/config"
	"github.com/razeghi71/dqserve/loader"
	"github.com/razeghi71/dqserve/service"
	"github.com/razeghi71/dqserve/source"
	"github.com/razeghi71/dqserve/store"
)

// App holds the wired components.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Service  *service.Service
	Verifier *auth.Verifier
	DB       *store.DB
}

// NewLogger returns the JSON logger used by the server binaries.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// New opens storage and the database and builds the service.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	src, err := NewSource(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		db.Close()
		return nil, err
	}

	svc := &service.Service{
		Source:       src,
		Records:      db,
		Logger:       logger,
		LoadOptions:  loader.Options{InferRows: cfg.InferRows, MaxInflatedBytes: cfg.MaxInflatedBytes},
		PresignTTL:   cfg.Storage.PresignTTL,
		FetchTimeout: cfg.Server.RequestTimeout,
	}
	logger.Info("Service initialised",
		"storage", cfg.Storage.Kind, "db_driver", cfg.Database.Driver, "infer_rows", cfg.InferRows)
	return &App{Config: cfg, Logger: logger, Service: svc, Verifier: verifier, DB: db}, nil
}

// NewSource builds the configured byte-source.
func NewSource(ctx context.Context, cfg config.StorageConfig) (source.ByteSource, error) {
	switch cfg.Kind {
	case config.StorageS3:
		return source.NewS3(ctx, source.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	case config.StorageDir:
		return source.NewDir(cfg.Dir)
	case config.StorageMemory:
		return source.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
}

// Close releases the database connection.
func (a *App) Close() error {
	return a.DB.Close()
}
