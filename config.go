package consumer

import (
	"time"

	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
	"github.com/hugolhafner/go-consumer/processing"
)

// Config is the process-wide runtime configuration shared by every
// subscription group. Per-topic behaviour lives on route.Topic instead.
type Config struct {
	// Concurrency bounds the shared worker pool across all groups.
	Concurrency int

	// MaxMessages and MaxWaitTime shape each poll when the application
	// builds its own broker clients via RegisterBrokers.
	MaxMessages int
	MaxWaitTime time.Duration

	Pause processing.PauseConfig

	CommitInterval time.Duration
	CommitMaxCount int

	PingInterval    time.Duration
	ShutdownTimeout time.Duration

	LicenseToken string

	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

type ConfigOption func(*Config)

func WithLogger(logger logger.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

func WithTelemetry(telemetry *otel.Telemetry) ConfigOption {
	return func(c *Config) {
		c.Telemetry = telemetry
	}
}

func WithConcurrency(n int) ConfigOption {
	return func(c *Config) {
		c.Concurrency = n
	}
}

func WithMaxMessages(n int) ConfigOption {
	return func(c *Config) {
		c.MaxMessages = n
	}
}

func WithMaxWaitTime(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.MaxWaitTime = d
	}
}

func WithPause(pause processing.PauseConfig) ConfigOption {
	return func(c *Config) {
		c.Pause = pause
	}
}

func WithCommitInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.CommitInterval = d
	}
}

func WithCommitMaxCount(n int) ConfigOption {
	return func(c *Config) {
		c.CommitMaxCount = n
	}
}

func WithPingInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.PingInterval = d
	}
}

func WithShutdownTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.ShutdownTimeout = d
	}
}

func WithLicenseToken(token string) ConfigOption {
	return func(c *Config) {
		c.LicenseToken = token
	}
}

func defaultConfig() Config {
	return Config{
		Concurrency:     5,
		MaxMessages:     100,
		MaxWaitTime:     time.Second,
		Pause:           processing.DefaultPauseConfig(),
		CommitInterval:  5 * time.Second,
		CommitMaxCount:  100,
		PingInterval:    5 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Logger:          logger.NewNoopLogger(),
		Telemetry:       otel.Noop(),
	}
}
