package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/common/model"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Grafana GrafanaConfig `json:"grafana" yaml:"grafana"`
	Refresh RefreshConfig `json:"refresh" yaml:"refresh"`
	Redis   RedisConfig   `json:"redis" yaml:"redis"`
}

type ServerConfig struct {
	BindAddr        string `json:"bindAddr" yaml:"bindAddr"`
	AuthToken       string `json:"authToken" yaml:"authToken"`             // empty disables API auth
	ShutdownTimeout string `json:"shutdownTimeout" yaml:"shutdownTimeout"` // e.g. "10s"
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // json | console
}

type GrafanaConfig struct {
	URL      string `json:"url" yaml:"url"`
	APIToken string `json:"apiToken" yaml:"apiToken"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Timeout  string `json:"timeout" yaml:"timeout"`
	State    string `json:"state" yaml:"state"` // state filter passed to /api/alerts, empty means all
}

type RefreshConfig struct {
	Interval string `json:"interval" yaml:"interval"` // e.g. "30s", "5m"
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	TTL      string `json:"ttl" yaml:"ttl"`
}

var validLevels = map[string]struct{}{
	"trace": {}, "debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {},
}

// Load builds the configuration from environment defaults, then overlays
// configFile when given. JSON and YAML files are accepted.
func Load(configFile string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			BindAddr:        getEnv("SERVER_BIND_ADDR", "0.0.0.0:8080"),
			AuthToken:       getEnv("SERVER_AUTH_TOKEN", ""),
			ShutdownTimeout: getEnv("SERVER_SHUTDOWN_TIMEOUT", "10s"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Grafana: GrafanaConfig{
			URL:      getEnv("GRAFANA_URL", "http://localhost:3000"),
			APIToken: getEnv("GRAFANA_API_TOKEN", ""),
			User:     getEnv("GRAFANA_USER", ""),
			Password: getEnv("GRAFANA_PASSWORD", ""),
			Timeout:  getEnv("GRAFANA_TIMEOUT", "10s"),
			State:    getEnv("GRAFANA_ALERT_STATE", ""),
		},
		Refresh: RefreshConfig{
			Interval: getEnv("REFRESH_INTERVAL", "30s"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnv("REDIS_TTL", "24h"),
		},
	}

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			log.Error().Err(err).Str("file", configFile).Msg("failed to load config file")
			return nil, err
		}
	}

	// fill reasonable defaults when fields omitted in file
	if cfg.Server.BindAddr == "" {
		cfg.Server.BindAddr = "0.0.0.0:8080"
	}
	if cfg.Server.ShutdownTimeout == "" {
		cfg.Server.ShutdownTimeout = "10s"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Grafana.Timeout == "" {
		cfg.Grafana.Timeout = "10s"
	}
	if cfg.Refresh.Interval == "" {
		cfg.Refresh.Interval = "30s"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.TTL == "" {
		cfg.Redis.TTL = "24h"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Grafana.URL) == "" {
		return fmt.Errorf("grafana.url is required")
	}
	if _, ok := validLevels[strings.ToLower(c.Logging.Level)]; !ok {
		return fmt.Errorf("logging.level %q is not one of trace, debug, info, warn, error", c.Logging.Level)
	}
	durations := map[string]string{
		"server.shutdownTimeout": c.Server.ShutdownTimeout,
		"grafana.timeout":        c.Grafana.Timeout,
		"refresh.interval":       c.Refresh.Interval,
		"redis.ttl":              c.Redis.TTL,
	}
	for key, v := range durations {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", key, v)
		}
	}
	return nil
}

// ParseDuration accepts Prometheus-style durations such as "30s", "5m" or "1d".
func ParseDuration(s string) (time.Duration, error) {
	d, err := model.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return time.Duration(d), nil
}

// DurationOr parses s, returning def when s is empty or invalid.
func DurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
