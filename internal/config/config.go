// Package config loads the daemon's YAML configuration and applies
// environment overrides on top of it: nested yaml-tagged structs, a
// getEnv* helper family, and a final applyDefaults pass.
package config

import (
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Config is the daemon's complete runtime configuration.
type Config struct {
	MemoryCeilingMB      int64              `yaml:"memory_ceiling_mb"`
	RequestTimeoutSecs   int64              `yaml:"request_timeout_secs"`
	IdleTTLSecs          int64              `yaml:"idle_ttl_secs"`
	ShutdownDeadlineSecs int64              `yaml:"shutdown_deadline_secs"`
	OpChannelCapacity    int                `yaml:"op_channel_capacity"`
	Circuit              CircuitConfig      `yaml:"circuit"`
	WorkerSelect         WorkerSelectConfig `yaml:"worker_select"`
	Logging              LoggingConfig      `yaml:"logging"`
	Server               ServerConfig       `yaml:"server"`
	Memstore             MemstoreConfig     `yaml:"memstore"`
}

// CircuitConfig mirrors internal/breaker.Config's tunables for yaml/env
// wiring.
type CircuitConfig struct {
	FailuresToOpen  uint32 `yaml:"failures_to_open"`
	OpenCooldownSec int64  `yaml:"open_cooldown_sec"`
	HalfOpenProbes  uint32 `yaml:"half_open_probes"`
}

// WorkerSelectConfig tunes the power-of-two-choices selection strategy.
type WorkerSelectConfig struct {
	// Reserved for future strategy knobs; P2C has none today beyond the
	// worker set itself, but the section exists so operators have a named
	// place to look.
}

// LoggingConfig feeds log/slog's level.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ServerConfig holds the edge's HTTP/gRPC bind addresses and timeouts.
type ServerConfig struct {
	Addr             string   `yaml:"addr"`
	GRPCAddr         string   `yaml:"grpc_addr"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// MemstoreConfig holds the Redis/Postgres adapter settings for the
// persistent memory store.
type MemstoreConfig struct {
	RedisAddr    string `yaml:"redis_addr"`
	RedisDB      int    `yaml:"redis_db"`
	PostgresDSN  string `yaml:"postgres_dsn"`
	Backend      string `yaml:"backend"` // "redis" or "postgres"
}

// Load reads path as YAML and applies environment overrides and defaults.
// A missing file is not fatal: it warns and proceeds with defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("config: failed to open file, using defaults", "path", path, "error", err)
	} else {
		defer f.Close()
		if decodeErr := yaml.NewDecoder(f).Decode(cfg); decodeErr != nil {
			return nil, decodeErr
		}
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := getEnvInt64("MODELRUN_MEMORY_CEILING_MB", 0); v > 0 {
		c.MemoryCeilingMB = v
	}
	if v := getEnvInt64("MODELRUN_REQUEST_TIMEOUT_SECS", 0); v > 0 {
		c.RequestTimeoutSecs = v
	}
	if v := getEnvInt64("MODELRUN_IDLE_TTL_SECS", 0); v > 0 {
		c.IdleTTLSecs = v
	}
	if v := getEnvInt64("MODELRUN_SHUTDOWN_DEADLINE_SECS", 0); v > 0 {
		c.ShutdownDeadlineSecs = v
	}
	if v := getEnvInt("MODELRUN_OP_CHANNEL_CAPACITY", 0); v > 0 {
		c.OpChannelCapacity = v
	}
	c.Logging.Level = getEnv("MODELRUN_LOG_LEVEL", c.Logging.Level)
	c.Server.Addr = getEnv("MODELRUN_ADDR", c.Server.Addr)
	c.Server.GRPCAddr = getEnv("MODELRUN_GRPC_ADDR", c.Server.GRPCAddr)
	c.Memstore.RedisAddr = getEnv("MODELRUN_REDIS_ADDR", c.Memstore.RedisAddr)
	c.Memstore.PostgresDSN = getEnv("MODELRUN_POSTGRES_DSN", c.Memstore.PostgresDSN)
	c.Memstore.Backend = getEnv("MODELRUN_MEMSTORE_BACKEND", c.Memstore.Backend)
}

func (c *Config) applyDefaults() {
	if c.MemoryCeilingMB == 0 {
		c.MemoryCeilingMB = 8192
	}
	if c.RequestTimeoutSecs == 0 {
		c.RequestTimeoutSecs = 60
	}
	if c.IdleTTLSecs == 0 {
		c.IdleTTLSecs = 300
	}
	if c.ShutdownDeadlineSecs == 0 {
		c.ShutdownDeadlineSecs = 10
	}
	if c.OpChannelCapacity == 0 {
		c.OpChannelCapacity = 256
	}
	if c.Circuit.FailuresToOpen == 0 {
		c.Circuit.FailuresToOpen = 5
	}
	if c.Circuit.OpenCooldownSec == 0 {
		c.Circuit.OpenCooldownSec = 30
	}
	if c.Circuit.HalfOpenProbes == 0 {
		c.Circuit.HalfOpenProbes = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":9090"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if len(c.Server.CORSAllowOrigins) == 0 {
		c.Server.CORSAllowOrigins = []string{"*"}
	}
	if c.Memstore.Backend == "" {
		c.Memstore.Backend = "redis"
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}
