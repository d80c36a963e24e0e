package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "", cfg.Address)
	assert.Equal(t, "Grundfos Pump", cfg.Name)
	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.CommandTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, `
address: "AA:BB:CC:DD:EE:FF"
name: "Boiler Pump"
poll_interval: 2m
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Address)
	assert.Equal(t, "Boiler Pump", cfg.Name)
	assert.Equal(t, 2*time.Minute, cfg.PollInterval)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Unset fields keep their defaults
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.CommandTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfigFile(t, "poll_interval: sixty\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults plus address are valid",
			mutate: func(c *Config) { c.Address = "AA:BB:CC:DD:EE:FF" },
		},
		{
			name:    "missing address",
			mutate:  func(c *Config) {},
			wantErr: "address",
		},
		{
			name: "non-positive poll interval",
			mutate: func(c *Config) {
				c.Address = "AA:BB:CC:DD:EE:FF"
				c.PollInterval = 0
			},
			wantErr: "poll_interval",
		},
		{
			name: "unknown log level",
			mutate: func(c *Config) {
				c.Address = "AA:BB:CC:DD:EE:FF"
				c.LogLevel = "chatty"
			},
			wantErr: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: "debug",
			expected: logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: "info",
			expected: logrus.InfoLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: "warn",
			expected: logrus.WarnLevel,
		},
		{
			name:     "falls back to info on unknown level",
			logLevel: "chatty",
			expected: logrus.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
