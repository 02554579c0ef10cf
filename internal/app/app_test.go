package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/razeghi71/dqserve/config"
	"github.com/razeghi71/dqserve/source"
)

func TestNewWithLocalBackends(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.JWTSecret = "s"
	cfg.Storage.Kind = config.StorageDir
	cfg.Storage.Dir = filepath.Join(dir, "objects")
	cfg.Database.DSN = "file:" + filepath.Join(dir, "dq.db")

	a, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, ok := a.Service.Source.(*source.Dir); !ok {
		t.Errorf("expected dir source, got %T", a.Service.Source)
	}
	if a.Service.LoadOptions.InferRows != 1000 || a.Service.LoadOptions.MaxInflatedBytes != cfg.MaxInflatedBytes || a.Service.FetchTimeout != cfg.Server.RequestTimeout {
		t.Errorf("unexpected service options %+v", a.Service)
	}

	res, err := a.Service.Upload(context.Background(), "u1", "x.csv", []byte("a\n1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if res.FileLink != nil {
		t.Error("dir storage should not produce file links")
	}
}

func TestNewSourceMemory(t *testing.T) {
	src, err := NewSource(context.Background(), config.StorageConfig{Kind: config.StorageMemory})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*source.Memory); !ok {
		t.Errorf("expected memory source, got %T", src)
	}
	if _, err := NewSource(context.Background(), config.StorageConfig{Kind: "ftp"}); err == nil {
		t.Error("expected error for unknown storage kind")
	}
}
