package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yeremiapane/omnipos/utils"
)

// Config holds every server setting. Values come from defaults, then the
// YAML file named by CONFIG_FILE, then the environment (including .env).
type Config struct {
	Port          string        `yaml:"port"`
	GinMode       string        `yaml:"gin_mode"`
	DBDriver      string        `yaml:"db_driver"`
	DBDSN         string        `yaml:"db_dsn"`
	JWTSecret     string        `yaml:"jwt_secret"`
	NodeID        string        `yaml:"node_id"`
	CORSOrigin    string        `yaml:"cors_origin"`
	AMQPURL       string        `yaml:"amqp_url"`
	RelayInterval time.Duration `yaml:"relay_interval"`
	SyncRateLimit float64       `yaml:"sync_rate_limit"`
	SyncBurst     int           `yaml:"sync_burst"`
	LogLevel      string        `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Port:          "8080",
		GinMode:       "debug",
		DBDriver:      "sqlite",
		DBDSN:         "omnipos.db",
		NodeID:        "server",
		CORSOrigin:    "*",
		RelayInterval: 500 * time.Millisecond,
		SyncRateLimit: 10,
		SyncBurst:     20,
		LogLevel:      "info",
	}
}

// Load reads .env if present and builds the configuration.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		utils.InfoLogger.Debug("No .env file loaded")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from getenv, reading the YAML file named
// by CONFIG_FILE first when it is set.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PORT", &cfg.Port)
	str("GIN_MODE", &cfg.GinMode)
	str("DB_DRIVER", &cfg.DBDriver)
	str("DB_DSN", &cfg.DBDSN)
	str("JWT_SECRET", &cfg.JWTSecret)
	str("NODE_ID", &cfg.NodeID)
	str("CORS_ORIGIN", &cfg.CORSOrigin)
	str("AMQP_URL", &cfg.AMQPURL)
	str("LOG_LEVEL", &cfg.LogLevel)

	if v := getenv("RELAY_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("RELAY_INTERVAL: %w", err)
		}
		cfg.RelayInterval = d
	}
	if v := getenv("SYNC_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("SYNC_RATE_LIMIT: %w", err)
		}
		cfg.SyncRateLimit = f
	}
	if v := getenv("SYNC_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("SYNC_BURST: %w", err)
		}
		cfg.SyncBurst = n
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.RelayInterval <= 0 {
		return fmt.Errorf("RELAY_INTERVAL must be positive")
	}
	if c.SyncRateLimit <= 0 || c.SyncBurst <= 0 {
		return fmt.Errorf("SYNC_RATE_LIMIT and SYNC_BURST must be positive")
	}
	return nil
}
