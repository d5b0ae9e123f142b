package config

import (
	"fmt"
	"time"
)

// Config is the validated application configuration.
type Config struct {
	Global     Global
	Platform   Platform
	Scheduler  Scheduler
	Checkpoint Checkpoint
	Storage    Storage
	Metrics    Metrics

	// ConfigFileUsed is the path of the file that was read, if any.
	ConfigFileUsed string
	// Warnings collects non-fatal problems found while loading.
	Warnings []string
}

type Global struct {
	Debug     bool
	LogFormat string
	LogFile   string
}

type Platform struct {
	BaseURL         string
	Project         string
	AccessToken     string
	CredentialsFile string
	Timeout         time.Duration
	MaxRetries      int
}

type Scheduler struct {
	MaxConcurrency  int
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	// Timeout of zero means Run waits until the graph drains.
	Timeout     time.Duration
	ErrorOnFail bool
	Verbose     int
}

// Checkpoint backends.
const (
	CheckpointNone     = "none"
	CheckpointFile     = "file"
	CheckpointRedis    = "redis"
	CheckpointPostgres = "postgres"
)

type Checkpoint struct {
	Backend     string
	Dir         string
	RedisURL    string
	PostgresDSN string
	RunKey      string
}

type Storage struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Region    string
}

type Metrics struct {
	// Addr is empty when the metrics endpoint is disabled.
	Addr string
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Global.LogFormat != "text" && c.Global.LogFormat != "json" {
		return fmt.Errorf("invalid logFormat %q: must be text or json", c.Global.LogFormat)
	}
	if c.Scheduler.MaxConcurrency < 1 {
		return fmt.Errorf("scheduler.maxConcurrency must be at least 1, got %d", c.Scheduler.MaxConcurrency)
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.pollInterval must be positive")
	}
	switch c.Checkpoint.Backend {
	case CheckpointNone, CheckpointFile:
	case CheckpointRedis:
		if c.Checkpoint.RedisURL == "" {
			return fmt.Errorf("checkpoint.redisURL is required for the redis backend")
		}
	case CheckpointPostgres:
		if c.Checkpoint.PostgresDSN == "" {
			return fmt.Errorf("checkpoint.postgresDSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown checkpoint backend %q", c.Checkpoint.Backend)
	}
	return nil
}
