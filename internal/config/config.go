package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file configuration.
const (
	EnvConfigB64 = "TRENDCAST_CONFIG_B64"
	EnvDBPath    = "TRENDCAST_DB"
)

// Config holds all trendcast configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Forecast ForecastConfig `yaml:"forecast"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

type ServerConfig struct {
	Bind     string `yaml:"bind"`
	Port     int    `yaml:"port"`
	Interval string `yaml:"interval"` // e.g. "15m"; empty disables scheduled passes
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ForecastConfig tunes the scoring pass.
type ForecastConfig struct {
	WindowHours    float64 `yaml:"window_hours"`
	TopN           int     `yaml:"top_n"`
	AlertThreshold float64 `yaml:"alert_threshold"`
	SpikeRatio     float64 `yaml:"spike_ratio"`
}

// KafkaConfig controls alert fan-out. Alerts are always written to the store;
// Kafka is an additional sink.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Acks    int      `yaml:"acks"` // -1 all, 0 none, 1 leader
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Forecast: ForecastConfig{
			WindowHours:    6,
			TopN:           5,
			AlertThreshold: 75,
			SpikeRatio:     0.5,
		},
		Kafka: KafkaConfig{
			Topic: "meme-alerts",
			Acks:  -1,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "trendcast", "config.yaml")
}

// Load builds the configuration from defaults, then the config source, then
// env overrides. The source is TRENDCAST_CONFIG_B64 when set, otherwise the
// YAML file at path (DefaultPath() if empty). A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := readSource(path)
	if err != nil {
		return cfg, err
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if p := os.Getenv(EnvDBPath); p != "" {
		cfg.Database.Path = p
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func readSource(path string) ([]byte, error) {
	if b64 := os.Getenv(EnvConfigB64); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", EnvConfigB64, err)
		}
		return data, nil
	}

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return data, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	f := c.Forecast
	if f.WindowHours <= 0 {
		return fmt.Errorf("forecast.window_hours must be positive, got %v", f.WindowHours)
	}
	if f.TopN <= 0 {
		return fmt.Errorf("forecast.top_n must be positive, got %d", f.TopN)
	}
	if f.AlertThreshold <= 0 {
		return fmt.Errorf("forecast.alert_threshold must be positive, got %v", f.AlertThreshold)
	}
	if f.SpikeRatio <= 0 {
		return fmt.Errorf("forecast.spike_ratio must be positive, got %v", f.SpikeRatio)
	}
	if c.Server.Interval != "" {
		d, err := time.ParseDuration(c.Server.Interval)
		if err != nil {
			return fmt.Errorf("server.interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("server.interval must be positive, got %s", c.Server.Interval)
		}
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic required when kafka is enabled")
		}
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// RunInterval returns the scheduled pass interval, or 0 if disabled.
func (c *Config) RunInterval() time.Duration {
	d, err := time.ParseDuration(c.Server.Interval)
	if err != nil {
		return 0
	}
	return d
}
