package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Limits LimitsConfig `yaml:"limits"`
	Room   RoomConfig   `yaml:"room"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogFile        string   `yaml:"log_file"` // empty = stderr
}

// RedisConfig configures the snapshot store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LimitsConfig bounds what a single connection may do.
type LimitsConfig struct {
	MaxConnectionsPerRoom int   `yaml:"max_connections_per_room"`
	MaxMessageBytes       int64 `yaml:"max_message_bytes"`
	MessagesPerSecond     int   `yaml:"messages_per_second"`
	UpgradesPerSecond     int   `yaml:"upgrades_per_second"` // per IP
}

// RoomConfig configures per-room lifecycle behavior.
type RoomConfig struct {
	ReconnectGraceSeconds int `yaml:"reconnect_grace_seconds"`
	IdleReapMinutes       int `yaml:"idle_reap_minutes"`
	ReapIntervalSeconds   int `yaml:"reap_interval_seconds"`
	SnapshotRetries       int `yaml:"snapshot_retries"`
	SnapshotBackoffMillis int `yaml:"snapshot_backoff_millis"`
	SnapshotTTLHours      int `yaml:"snapshot_ttl_hours"`
	ChatHistorySize       int `yaml:"chat_history_size"`
}

// ReconnectGraceDuration returns how long a disconnected identity is retained.
func (c *RoomConfig) ReconnectGraceDuration() time.Duration {
	return time.Duration(c.ReconnectGraceSeconds) * time.Second
}

// IdleReapDuration returns how long an empty room survives before reaping.
func (c *RoomConfig) IdleReapDuration() time.Duration {
	return time.Duration(c.IdleReapMinutes) * time.Minute
}

// ReapIntervalDuration returns the registry reap-scan interval.
func (c *RoomConfig) ReapIntervalDuration() time.Duration {
	return time.Duration(c.ReapIntervalSeconds) * time.Second
}

// SnapshotBackoffDuration returns the base backoff between snapshot retries.
func (c *RoomConfig) SnapshotBackoffDuration() time.Duration {
	return time.Duration(c.SnapshotBackoffMillis) * time.Millisecond
}

// SnapshotTTLDuration returns the durable snapshot expiration.
func (c *RoomConfig) SnapshotTTLDuration() time.Duration {
	return time.Duration(c.SnapshotTTLHours) * time.Hour
}

// Load reads a YAML config file and fills in defaults. A missing path yields
// the default configuration.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the default configuration.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Limits.MaxConnectionsPerRoom == 0 {
		cfg.Limits.MaxConnectionsPerRoom = 100
	}
	if cfg.Limits.MaxMessageBytes == 0 {
		cfg.Limits.MaxMessageBytes = 1 << 20 // 1 MiB
	}
	if cfg.Limits.MessagesPerSecond == 0 {
		cfg.Limits.MessagesPerSecond = 10
	}
	if cfg.Limits.UpgradesPerSecond == 0 {
		cfg.Limits.UpgradesPerSecond = 5
	}
	if cfg.Room.ReconnectGraceSeconds == 0 {
		cfg.Room.ReconnectGraceSeconds = 60
	}
	if cfg.Room.IdleReapMinutes == 0 {
		cfg.Room.IdleReapMinutes = 10
	}
	if cfg.Room.ReapIntervalSeconds == 0 {
		cfg.Room.ReapIntervalSeconds = 60
	}
	if cfg.Room.SnapshotRetries == 0 {
		cfg.Room.SnapshotRetries = 3
	}
	if cfg.Room.SnapshotBackoffMillis == 0 {
		cfg.Room.SnapshotBackoffMillis = 100
	}
	if cfg.Room.SnapshotTTLHours == 0 {
		cfg.Room.SnapshotTTLHours = 24
	}
	if cfg.Room.ChatHistorySize == 0 {
		cfg.Room.ChatHistorySize = 100
	}
}
