package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/grundble/internal/btsnoop"
	"github.com/srg/grundble/internal/pump"
	"github.com/srg/grundble/scanner"
)

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1.2.3", "v1.2.3"},
		{"v1.2.3", "v1.2.3"},
		{"dev", "dev"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatVersion(tt.input))
	}
}

func TestFormatUserError(t *testing.T) {
	// GOAL: Verify internal errors map to actionable user-facing messages

	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{
			name:     "device not found suggests scanning",
			err:      scanner.ErrDeviceNotFound,
			contains: "grundble scan",
		},
		{
			name:     "retries exhausted names the pump",
			err:      pump.ErrRetriesExhausted,
			contains: "could not reach the pump",
		},
		{
			name:     "timeout",
			err:      pump.ErrTimeout,
			contains: "did not answer",
		},
		{
			name:     "unknown errors pass through",
			err:      assert.AnError,
			contains: assert.AnError.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, FormatUserError(tt.err), tt.contains)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	// GOAL: Verify command-line address wins over the config file and a
	// missing address is rejected

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("address: \"11:22:33:44:55:66\"\npoll_interval: 2m\n"), 0o600))

	t.Run("file only", func(t *testing.T) {
		cfg, err := loadConfig(path, "")
		require.NoError(t, err)
		assert.Equal(t, "11:22:33:44:55:66", cfg.Address)
		assert.Equal(t, 2*time.Minute, cfg.PollInterval)
	})

	t.Run("argument overrides file", func(t *testing.T) {
		cfg, err := loadConfig(path, "AA:BB:CC:DD:EE:FF")
		require.NoError(t, err)
		assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Address)
	})

	t.Run("no address anywhere", func(t *testing.T) {
		_, err := loadConfig("", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "address")
	})

	t.Run("defaults without file", func(t *testing.T) {
		cfg, err := loadConfig("", "AA:BB:CC:DD:EE:FF")
		require.NoError(t, err)
		assert.Equal(t, 60*time.Second, cfg.PollInterval)
	})
}

func TestPrintSummary(t *testing.T) {
	// GOAL: Verify the capture summary rendering covers counts, handles and
	// decoded fields

	s := &btsnoop.Summary{
		DeviceAddress: "AA:BB:CC:DD:EE:FF",
		Packets:       12,
		Events: []btsnoop.Event{
			{Record: 1, Sent: true, Type: btsnoop.EventWrite, Handle: 0x000e},
			{Record: 2, Type: btsnoop.EventNotification, Handle: 0x000c, Value: []byte{0x24, 0x01}},
		},
		HandleTraffic: map[uint16]int{0x000c: 1, 0x000e: 1},
		Decoded:       map[string]string{"device_name": "My Pump"},
	}

	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, s))

	out := buf.String()
	assert.Contains(t, out, "AA:BB:CC:DD:EE:FF")
	assert.Contains(t, out, "0x000e")
	assert.Contains(t, out, "device_name")
	assert.Contains(t, out, "My Pump")
}
