package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Address        string        `yaml:"address" default:""`
	Name           string        `yaml:"name" default:"Grundfos Pump"`
	PollInterval   time.Duration `yaml:"poll_interval" default:"60s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	CommandTimeout time.Duration `yaml:"command_timeout" default:"2s"`
	LogLevel       string        `yaml:"log_level" default:"info"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML configuration file, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// UnmarshalYAML accepts durations in Go notation ("60s", "2m").
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Address        string `yaml:"address"`
		Name           string `yaml:"name"`
		PollInterval   string `yaml:"poll_interval"`
		ConnectTimeout string `yaml:"connect_timeout"`
		CommandTimeout string `yaml:"command_timeout"`
		LogLevel       string `yaml:"log_level"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Address != "" {
		c.Address = raw.Address
	}
	if raw.Name != "" {
		c.Name = raw.Name
	}
	if raw.LogLevel != "" {
		c.LogLevel = raw.LogLevel
	}

	for _, d := range []struct {
		field string
		src   string
		dst   *time.Duration
	}{
		{"poll_interval", raw.PollInterval, &c.PollInterval},
		{"connect_timeout", raw.ConnectTimeout, &c.ConnectTimeout},
		{"command_timeout", raw.CommandTimeout, &c.CommandTimeout},
	} {
		if d.src == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.src)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.field, err)
		}
		*d.dst = parsed
	}

	return nil
}

// Validate checks that the configuration can drive a connection.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
