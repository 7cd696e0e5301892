// Package config loads client and relay settings from an optional YAML file
// with environment overrides.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/mcdev12/alias/go/clients"
	"github.com/mcdev12/alias/go/internal/dbconfig"
	"github.com/mcdev12/alias/go/internal/game"
	"github.com/mcdev12/alias/go/internal/replication"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendNATS     = "nats"
	BackendRedis    = "redis"
	BackendRelay    = "relay"
)

var backends = []string{BackendMemory, BackendPostgres, BackendNATS, BackendRedis, BackendRelay}

type Config struct {
	LogLevel string        `yaml:"log_level"`
	Player   PlayerConfig  `yaml:"player"`
	Backend  BackendConfig `yaml:"backend"`
	Words    WordsConfig   `yaml:"words"`
	Game     GameConfig    `yaml:"game"`
	Relay    RelayConfig   `yaml:"relay"`
}

type PlayerConfig struct {
	IDFile string `yaml:"id_file"` // Empty uses the user config dir
}

type BackendConfig struct {
	Kind           string `yaml:"kind"`
	DatabaseURL    string `yaml:"database_url"` // Empty builds a DSN from DB_* variables
	NATSURL        string `yaml:"nats_url"`
	RedisURL       string `yaml:"redis_url"`
	RelayURL       string `yaml:"relay_url"`
	ConflictPolicy string `yaml:"conflict_policy"`
}

type WordsConfig struct {
	Curated string `yaml:"curated"` // Source for A2/B1/B2 selections
	APIURL  string `yaml:"api_url"`
	File    string `yaml:"file"` // Empty uses the bundled list
}

type GameConfig struct {
	ResetPolicy  string        `yaml:"reset_policy"`
	TickInterval time.Duration `yaml:"tick_interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type RelayConfig struct {
	Port           string   `yaml:"port"`
	PublicURL      string   `yaml:"public_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Backend: BackendConfig{
			Kind:           BackendMemory,
			NATSURL:        "nats://localhost:4222",
			RedisURL:       "redis://localhost:6379/0",
			RelayURL:       "http://localhost:8081",
			ConflictPolicy: replication.Optimistic.String(),
		},
		Words: WordsConfig{
			Curated: string(clients.WordSourceFile),
		},
		Game: GameConfig{
			ResetPolicy:  game.KeepRoom.String(),
			TickInterval: 500 * time.Millisecond,
			FetchTimeout: 10 * time.Second,
		},
		Relay: RelayConfig{
			Port:           "8081",
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads path over the defaults, applies ALIAS_* environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("ALIAS_LOG_LEVEL", c.LogLevel)
	c.Player.IDFile = getEnv("ALIAS_PLAYER_ID_FILE", c.Player.IDFile)
	c.Backend.Kind = getEnv("ALIAS_BACKEND", c.Backend.Kind)
	c.Backend.DatabaseURL = getEnv("DATABASE_URL", c.Backend.DatabaseURL)
	c.Backend.NATSURL = getEnv("NATS_URL", c.Backend.NATSURL)
	c.Backend.RedisURL = getEnv("REDIS_URL", c.Backend.RedisURL)
	c.Backend.RelayURL = getEnv("ALIAS_RELAY_URL", c.Backend.RelayURL)
	c.Backend.ConflictPolicy = getEnv("ALIAS_CONFLICT_POLICY", c.Backend.ConflictPolicy)
	c.Words.Curated = getEnv("ALIAS_WORDS_CURATED", c.Words.Curated)
	c.Words.APIURL = getEnv("ALIAS_WORDS_API_URL", c.Words.APIURL)
	c.Words.File = getEnv("ALIAS_WORDS_FILE", c.Words.File)
	c.Game.ResetPolicy = getEnv("ALIAS_RESET_POLICY", c.Game.ResetPolicy)
	c.Game.TickInterval = getEnvAsDuration("ALIAS_TICK_INTERVAL", c.Game.TickInterval)
	c.Game.FetchTimeout = getEnvAsDuration("ALIAS_FETCH_TIMEOUT", c.Game.FetchTimeout)
	c.Relay.Port = getEnv("RELAY_PORT", c.Relay.Port)
	c.Relay.PublicURL = getEnv("RELAY_PUBLIC_URL", c.Relay.PublicURL)
}

func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if !slices.Contains(backends, c.Backend.Kind) {
		return fmt.Errorf("unknown backend %q, want one of %v", c.Backend.Kind, backends)
	}
	if _, err := c.ConflictPolicy(); err != nil {
		return err
	}
	if _, err := c.ResetPolicy(); err != nil {
		return err
	}
	if !clients.ValidateCuratedSource(clients.WordSource(c.Words.Curated)) {
		return fmt.Errorf("word source %q cannot serve curated categories", c.Words.Curated)
	}
	if c.Game.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.Game.TickInterval)
	}
	return nil
}

func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func (c *Config) ConflictPolicy() (replication.ConflictPolicy, error) {
	return replication.ParseConflictPolicy(c.Backend.ConflictPolicy)
}

func (c *Config) ResetPolicy() (game.ResetPolicy, error) {
	return game.ParseResetPolicy(c.Game.ResetPolicy)
}

// DatabaseDSN returns the configured URL or one built from DB_* variables.
func (c *Config) DatabaseDSN() string {
	if c.Backend.DatabaseURL != "" {
		return c.Backend.DatabaseURL
	}
	return dbconfig.NewConfigFromEnv().DSN()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
