package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Aviral1511/Collaborative-Canvas/internal/logging"
	"github.com/Aviral1511/Collaborative-Canvas/internal/room"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	WS         WSConfig         `yaml:"ws" envconfig:"WS"`
	Room       RoomConfig       `yaml:"room" envconfig:"ROOM"`
	Storage    StorageConfig    `yaml:"storage" envconfig:"STORAGE"`
	Compaction CompactionConfig `yaml:"compaction" envconfig:"COMPACTION"`
	Logging    logging.Config   `yaml:"logging" envconfig:"LOGGING"`
	Metrics    MetricsConfig    `yaml:"metrics" envconfig:"METRICS"`
	Discovery  DiscoveryConfig  `yaml:"discovery" envconfig:"DISCOVERY"`
}

type ServerConfig struct {
	Host           string   `yaml:"host" envconfig:"HOST"`
	Port           int      `yaml:"port" envconfig:"PORT"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// WSConfig contains per-connection transport limits
type WSConfig struct {
	MaxMessageSize    int64   `yaml:"max_message_size" envconfig:"MAX_MESSAGE_SIZE"`
	SendBuffer        int     `yaml:"send_buffer" envconfig:"SEND_BUFFER"`
	MessagesPerSecond float64 `yaml:"messages_per_second" envconfig:"MESSAGES_PER_SECOND"`
	MessageBurst      int     `yaml:"message_burst" envconfig:"MESSAGE_BURST"`
}

type RoomConfig struct {
	MaxPoints    int      `yaml:"max_points" envconfig:"MAX_POINTS"`
	MaxRedoDepth int      `yaml:"max_redo_depth" envconfig:"MAX_REDO_DEPTH"`
	Palette      []string `yaml:"palette" envconfig:"PALETTE"`
}

// StorageConfig selects where room snapshots live. "memory" keeps nothing
// beyond the process lifetime.
type StorageConfig struct {
	Type   string       `yaml:"type" envconfig:"TYPE"` // memory, sqlite
	SQLite SQLiteConfig `yaml:"sqlite" envconfig:"SQLITE"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" envconfig:"DB_PATH"`
}

type CompactionConfig struct {
	Interval time.Duration `yaml:"interval" envconfig:"INTERVAL"`
	// IdleTTL is how long a memberless room with strokes is kept in memory
	// when storage can reload it.
	IdleTTL time.Duration `yaml:"idle_ttl" envconfig:"IDLE_TTL"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" envconfig:"ENABLED"`
	Namespace string `yaml:"namespace" envconfig:"NAMESPACE"`
}

type DiscoveryConfig struct {
	MDNSEnabled bool   `yaml:"mdns_enabled" envconfig:"MDNS_ENABLED"`
	Instance    string `yaml:"instance" envconfig:"INSTANCE"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables have the highest priority
	if err := envconfig.Process("CANVAS", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the values used when nothing is configured
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		WS: WSConfig{
			MaxMessageSize:    1024 * 1024,
			SendBuffer:        512,
			MessagesPerSecond: 100,
			MessageBurst:      200,
		},
		Room: RoomConfig{
			MaxPoints:    room.DefaultMaxPoints,
			MaxRedoDepth: 100,
			Palette:      room.DefaultPalette,
		},
		Storage: StorageConfig{
			Type: "memory",
			SQLite: SQLiteConfig{
				Path: "./data/canvas.db",
			},
		},
		Compaction: CompactionConfig{
			Interval: time.Minute,
			IdleTTL:  30 * time.Minute,
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "canvas",
		},
		Discovery: DiscoveryConfig{
			Instance: "collaborative-canvas",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Storage.Type != "memory" && c.Storage.Type != "sqlite" {
		return fmt.Errorf("invalid storage type: %s (must be memory or sqlite)", c.Storage.Type)
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLite.Path == "" {
		return fmt.Errorf("sqlite path is required when using sqlite storage")
	}
	if c.Room.MaxPoints <= 0 {
		return fmt.Errorf("room max_points must be positive: %d", c.Room.MaxPoints)
	}
	if c.Room.MaxRedoDepth < 0 {
		return fmt.Errorf("room max_redo_depth must not be negative")
	}
	if len(c.Room.Palette) == 0 {
		return fmt.Errorf("room palette must not be empty")
	}
	if c.WS.MaxMessageSize <= 0 || c.WS.SendBuffer <= 0 {
		return fmt.Errorf("ws limits must be positive")
	}
	if c.WS.MessagesPerSecond <= 0 || c.WS.MessageBurst <= 0 {
		return fmt.Errorf("ws rate limit must be positive")
	}
	if c.Compaction.Interval <= 0 {
		return fmt.Errorf("compaction interval must be positive")
	}
	return nil
}

// Address returns the server listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RoomOptions converts the room section into room.Options
func (c *Config) RoomOptions() room.Options {
	return room.Options{
		MaxPoints:    c.Room.MaxPoints,
		MaxRedoDepth: c.Room.MaxRedoDepth,
		Palette:      c.Room.Palette,
	}
}
