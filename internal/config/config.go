package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Reminder ReminderConfig `yaml:"reminder"`
	Quota    QuotaConfig    `yaml:"quota"`
	Logging  LoggingConfig  `yaml:"logging"`
	Timezone string         `yaml:"timezone"` // IANA name used for display timestamps
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"` // spreadsheet upload cap
}

// StorageConfig contains database settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// GatewayConfig contains delivery gateway settings. The token may also be
// supplied via the WABLAST_GATEWAY_TOKEN environment variable, which takes
// precedence over the file so the secret can stay out of the config.
type GatewayConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// DispatchConfig contains batch dispatcher pacing settings
type DispatchConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	MessageDelay time.Duration `yaml:"message_delay"`
	BatchDelay   time.Duration `yaml:"batch_delay"`
}

// ReminderConfig contains reminder scheduler settings
type ReminderConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	MaxReminders int           `yaml:"max_reminders"`
	Threshold    time.Duration `yaml:"threshold"`
	SendDelay    time.Duration `yaml:"send_delay"`
}

// QuotaConfig contains outbound send quota settings
type QuotaConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Path            string `yaml:"path"` // counter database location
	MessagesPerHour int    `yaml:"messages_per_hour"`
	MessagesPerDay  int    `yaml:"messages_per_day"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if token := os.Getenv("WABLAST_GATEWAY_TOKEN"); token != "" {
		cfg.Gateway.Token = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 10 << 20 // 10MB
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/wablast/wablast.db"
	}

	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = "https://api.fonnte.com"
	}

	if c.Dispatch.BatchSize == 0 {
		c.Dispatch.BatchSize = 20
	}
	if c.Dispatch.MessageDelay == 0 {
		c.Dispatch.MessageDelay = 2 * time.Second
	}
	if c.Dispatch.BatchDelay == 0 {
		c.Dispatch.BatchDelay = 5 * time.Minute
	}

	if c.Reminder.Interval == 0 {
		c.Reminder.Interval = time.Hour
	}
	if c.Reminder.MaxReminders == 0 {
		c.Reminder.MaxReminders = 2
	}
	if c.Reminder.Threshold == 0 {
		c.Reminder.Threshold = 24 * time.Hour
	}
	if c.Reminder.SendDelay == 0 {
		c.Reminder.SendDelay = 3 * time.Second
	}

	if c.Quota.Path == "" {
		c.Quota.Path = "/var/lib/wablast/quota.db"
	}

	if c.Timezone == "" {
		c.Timezone = "Asia/Makassar"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Gateway.Token == "" {
		return fmt.Errorf("gateway.token is required (or set WABLAST_GATEWAY_TOKEN)")
	}

	if c.Dispatch.BatchSize < 1 {
		return fmt.Errorf("dispatch.batch_size must be positive")
	}

	if c.Quota.Enabled && c.Quota.MessagesPerHour == 0 && c.Quota.MessagesPerDay == 0 {
		return fmt.Errorf("quota is enabled but no limits are set")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// Location returns the configured display timezone. Validate has already
// checked it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
