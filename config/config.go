// Package config loads server settings from defaults, an optional YAML
// file and DQ_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage kinds.
const (
	StorageS3     = "s3"
	StorageDir    = "dir"
	StorageMemory = "memory"
)

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

type StorageConfig struct {
	Kind       string        `yaml:"kind"`
	Dir        string        `yaml:"dir"`
	S3         S3Config      `yaml:"s3"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ServerConfig struct {
	Listen         string        `yaml:"listen"`
	BodyLimit      string        `yaml:"body_limit"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CORSOrigins    []string      `yaml:"cors_origins"`
}

// Config is the full server configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	JWTSecret string `yaml:"jwt_secret"`
	InferRows int    `yaml:"infer_rows"`
	// MaxInflatedBytes caps the decompressed size of gzip/xz uploads.
	MaxInflatedBytes int64          `yaml:"max_inflated_bytes"`
	Server           ServerConfig   `yaml:"server"`
	Storage          StorageConfig  `yaml:"storage"`
	Database         DatabaseConfig `yaml:"database"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:         "info",
		InferRows:        1000,
		MaxInflatedBytes: 512 << 20,
		Server: ServerConfig{
			Listen:         "0.0.0.0:3000",
			BodyLimit:      "50M",
			RequestTimeout: 60 * time.Second,
			CORSOrigins:    []string{"http://localhost:8080", "https://doubledecker.vercel.app"},
		},
		Storage: StorageConfig{
			Kind:       StorageS3,
			Dir:        "data",
			S3:         S3Config{Bucket: "dd-query-csv-bucket"},
			PresignTTL: time.Hour,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:dqserve.db",
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"DQ_LISTEN":      &c.Server.Listen,
		"DQ_LOG_LEVEL":   &c.LogLevel,
		"DQ_JWT_SECRET":  &c.JWTSecret,
		"DQ_S3_BUCKET":   &c.Storage.S3.Bucket,
		"DQ_S3_ENDPOINT": &c.Storage.S3.Endpoint,
		"DQ_S3_REGION":   &c.Storage.S3.Region,
		"DQ_STORAGE":     &c.Storage.Kind,
		"DQ_STORAGE_DIR": &c.Storage.Dir,
		"DQ_DB_DRIVER":   &c.Database.Driver,
		"DQ_DB_DSN":      &c.Database.DSN,
		"DQ_BODY_LIMIT":  &c.Server.BodyLimit,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	if v, ok := lookup("DQ_S3_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DQ_S3_PATH_STYLE: %w", err)
		}
		c.Storage.S3.PathStyle = b
	}
	if v, ok := lookup("DQ_CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Server.CORSOrigins = append(c.Server.CORSOrigins, o)
			}
		}
	}
	if v, ok := lookup("DQ_INFER_ROWS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DQ_INFER_ROWS: %w", err)
		}
		c.InferRows = n
	}
	if v, ok := lookup("DQ_MAX_INFLATED_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("DQ_MAX_INFLATED_BYTES: %w", err)
		}
		c.MaxInflatedBytes = n
	}
	if v, ok := lookup("DQ_REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DQ_REQUEST_TIMEOUT: %w", err)
		}
		c.Server.RequestTimeout = d
	}
	return nil
}

var bodyLimitPattern = regexp.MustCompile(`^[0-9]+[KMGTP]?$`)

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen must not be empty"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required (set DQ_JWT_SECRET)"))
	}
	if c.InferRows < 1 {
		errs = append(errs, fmt.Errorf("infer_rows must be positive, got %d", c.InferRows))
	}
	if c.MaxInflatedBytes < 1 {
		errs = append(errs, fmt.Errorf("max_inflated_bytes must be positive, got %d", c.MaxInflatedBytes))
	}
	if !bodyLimitPattern.MatchString(c.Server.BodyLimit) {
		errs = append(errs, fmt.Errorf("server.body_limit %q must look like 50M", c.Server.BodyLimit))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}

	switch c.Storage.Kind {
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for s3 storage"))
		}
		if c.Storage.PresignTTL <= 0 {
			errs = append(errs, errors.New("storage.presign_ttl must be positive"))
		}
	case StorageDir:
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for dir storage"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage kind %q (want s3, dir or memory)", c.Storage.Kind))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q (want postgres or sqlite)", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn must not be empty"))
	}
	return errors.Join(errs...)
}

// Level returns the slog level for LogLevel.
func (c Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
