// Package config provides YAML-based configuration loading for RARSMS.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level RARSMS configuration, loaded from config.yaml
// with environment variable overrides applied on top.
type Config struct {
	APRS    APRSConfig    `yaml:"aprs"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
	Bridge  BridgeConfig  `yaml:"bridge"`
}

// APRSConfig holds APRS-IS connection settings.
type APRSConfig struct {
	Callsign string `yaml:"callsign"`
	Passcode string `yaml:"passcode"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	Filter   string `yaml:"filter"`
}

// StoreConfig holds connection settings for the record store API.
type StoreConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BridgeConfig holds connector loop settings. Intervals and delays are in
// seconds.
type BridgeConfig struct {
	Enabled           bool   `yaml:"enabled"`
	ReconnectDelay    int    `yaml:"reconnect_delay"`
	HeartbeatInterval int    `yaml:"heartbeat_interval"`
	PollInterval      int    `yaml:"poll_interval"`
	SendDelay         int    `yaml:"send_delay"`
	DigestCron        string `yaml:"digest_cron"` // 5-field cron; empty disables the digest
}

// Load reads a YAML config file from path, applies environment overrides,
// and returns a validated Config. A missing file is not an error — defaults
// and environment variables alone can form a complete configuration.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			data = b
		}
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes, applies environment overrides, and returns a
// validated Config.
func Parse(data []byte) (*Config, error) {
	// Enabled defaults to true and must be seeded before unmarshal so an
	// omitted key does not read as false.
	cfg := Config{Bridge: BridgeConfig{Enabled: true}}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.APRS.Server == "" {
		c.APRS.Server = "rotate.aprs2.net"
	}
	if c.APRS.Port == 0 {
		c.APRS.Port = 14580
	}
	if c.APRS.Filter == "" {
		c.APRS.Filter = "t/m"
	}
	if c.Store.URL == "" {
		c.Store.URL = "http://pocketbase:8090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Bridge.ReconnectDelay == 0 {
		c.Bridge.ReconnectDelay = 30
	}
	if c.Bridge.HeartbeatInterval == 0 {
		c.Bridge.HeartbeatInterval = 300
	}
	if c.Bridge.PollInterval == 0 {
		c.Bridge.PollInterval = 10
	}
	if c.Bridge.SendDelay == 0 {
		c.Bridge.SendDelay = 2
	}
}

// applyEnv overrides config fields from environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("APRS_CALLSIGN"); v != "" {
		c.APRS.Callsign = strings.ToUpper(v)
	}
	if v := os.Getenv("APRS_PASSCODE"); v != "" {
		c.APRS.Passcode = v
	}
	if v := os.Getenv("APRS_SERVER"); v != "" {
		c.APRS.Server = v
	}
	if v := os.Getenv("APRS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.APRS.Port = port
		}
	}
	if v := os.Getenv("APRS_FILTER"); v != "" {
		c.APRS.Filter = v
	}
	if v := os.Getenv("STORE_URL"); v != "" {
		c.Store.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("BRIDGE_RECONNECT_DELAY"); v != "" {
		if delay, err := strconv.Atoi(v); err == nil {
			c.Bridge.ReconnectDelay = delay
		}
	}
	if v := os.Getenv("BRIDGE_HEARTBEAT_INTERVAL"); v != "" {
		if interval, err := strconv.Atoi(v); err == nil {
			c.Bridge.HeartbeatInterval = interval
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.APRS.Callsign == "" {
		errs = append(errs, "aprs.callsign is required")
	}
	if c.APRS.Passcode == "" {
		errs = append(errs, "aprs.passcode is required")
	}
	if c.APRS.Server == "" {
		errs = append(errs, "aprs.server is required")
	}
	if c.APRS.Port <= 0 || c.APRS.Port > 65535 {
		errs = append(errs, "aprs.port must be between 1 and 65535")
	}
	if c.Store.URL == "" {
		errs = append(errs, "store.url is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("invalid log format %q", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
