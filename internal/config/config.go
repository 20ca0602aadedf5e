package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Poller   PollerConfig
}

// ServerConfig holds the metrics/health HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig selects the Postgres driver and pool size. The connection
// string itself is resolved by cloudsql.BuildDatabaseURL.
type DatabaseConfig struct {
	Driver         string
	MaxConnections int
}

// PollerConfig tunes the scheduler, limiter and fetcher.
type PollerConfig struct {
	BatchSize      int
	IdleInterval   time.Duration
	MaxPerHost     int
	FetchTimeout   time.Duration
	StorageTimeout time.Duration
	UserAgent      string
}

const (
	defaultPort            = "9090"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultDriver         = "postgres"
	defaultMaxConnections = 25

	defaultBatchSize      = 20
	defaultIdleInterval   = 2 * time.Second
	defaultMaxPerHost     = 3
	defaultFetchTimeout   = 10 * time.Second
	defaultStorageTimeout = 30 * time.Second

	// DefaultUserAgent identifies the poller to feed publishers.
	DefaultUserAgent = "feedpoller/0.1 (+https://github.com/STRATINT/feedpoller)"
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	// METRICS_PORT wins over PORT so a platform-assigned PORT can still be used
	port := getEnv("METRICS_PORT", "")
	if port == "" {
		port = getEnv("PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			Driver:         defaultDriver,
			MaxConnections: defaultMaxConnections,
		},
		Poller: PollerConfig{
			BatchSize:      defaultBatchSize,
			IdleInterval:   defaultIdleInterval,
			MaxPerHost:     defaultMaxPerHost,
			FetchTimeout:   defaultFetchTimeout,
			StorageTimeout: defaultStorageTimeout,
			UserAgent:      getEnv("USER_AGENT", DefaultUserAgent),
		},
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("DB_DRIVER"); v != "" {
		switch v {
		case "postgres", "pgx":
			cfg.Database.Driver = v
		default:
			return Config{}, fmt.Errorf("invalid DB_DRIVER: must be 'postgres' or 'pgx'")
		}
	}

	if v := os.Getenv("DB_MAX_CONNECTIONS"); v != "" {
		n, err := parsePositive(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DB_MAX_CONNECTIONS: %w", err)
		}
		cfg.Database.MaxConnections = n
	}

	if v := os.Getenv("BATCH_SIZE"); v != "" {
		n, err := parsePositive(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BATCH_SIZE: %w", err)
		}
		cfg.Poller.BatchSize = n
	}

	if v := os.Getenv("MAX_PER_HOST"); v != "" {
		n, err := parsePositive(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MAX_PER_HOST: %w", err)
		}
		cfg.Poller.MaxPerHost = n
	}

	if v := os.Getenv("IDLE_INTERVAL_MS"); v != "" {
		n, err := parsePositive(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid IDLE_INTERVAL_MS: %w", err)
		}
		cfg.Poller.IdleInterval = time.Duration(n) * time.Millisecond
	}

	if v := os.Getenv("FETCH_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil || d == 0 {
			return Config{}, fmt.Errorf("invalid FETCH_TIMEOUT_SECONDS: must be a positive integer")
		}
		cfg.Poller.FetchTimeout = d
	}

	if v := os.Getenv("STORAGE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid STORAGE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Poller.StorageTimeout = d
	}

	return cfg, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositive(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
