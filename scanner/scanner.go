// Package scanner handles BLE device discovery, including resolving a pump
// by address before a connection attempt.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
)

// Advertisement is one received advertising report.
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Connectable() bool
	Services() []string
}

// ScanningDevice represents a BLE device capable of scanning for advertisements
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// DeviceInfo is a snapshot of a discovered device.
type DeviceInfo struct {
	Name        string
	Address     string
	RSSI        int
	Connectable bool
	Services    []string
	LastSeen    time.Time
}

// ErrDeviceNotFound reports that the requested address never advertised
// during the scan window. Distinct from connection faults: the device is not
// resolvable at all.
var ErrDeviceNotFound = errors.New("device not found")

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// Scanner handles BLE device discovery
type Scanner struct {
	devices *hashmap.Map[string, *DeviceInfo]
	logger  *logrus.Logger
}

// NewScanner creates a new BLE scanner
func NewScanner(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{logger: logger}
}

// Scan performs BLE discovery with the provided options and returns every
// device seen during the window.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) (map[string]*DeviceInfo, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	s.devices = hashmap.New[string, *DeviceInfo]()

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")

	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	err = dev.Scan(scanCtx, !opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")

	devices := make(map[string]*DeviceInfo, s.devices.Len())
	s.devices.Range(func(key string, value *DeviceInfo) bool {
		devices[key] = value
		return true
	})
	return devices, nil
}

// FindByAddress scans until the device with the given address advertises as
// connectable, or the timeout elapses. Used to re-resolve a fresh device
// handle before every connection attempt.
func (s *Scanner) FindByAddress(ctx context.Context, address string, timeout time.Duration) (*DeviceInfo, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	want := normalizeAddr(address)
	s.logger.WithField("address", address).Info("Scanning for device...")

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if timeout > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// The handler runs on the transport's delivery goroutine; the result
	// pointer is handed over via an atomic so the post-scan read cannot race
	// a late advertisement.
	var found atomic.Pointer[DeviceInfo]
	err = dev.Scan(scanCtx, false, func(adv Advertisement) {
		if found.Load() != nil || normalizeAddr(adv.Addr()) != want {
			return
		}
		if !adv.Connectable() {
			s.logger.WithField("address", adv.Addr()).
				Debug("Device advertising but not connectable, waiting")
			return
		}
		found.Store(newDeviceInfo(adv))
		cancel()
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	if found := found.Load(); found != nil {
		s.logger.WithFields(logrus.Fields{
			"address": found.Address,
			"name":    found.Name,
			"rssi":    found.RSSI,
		}).Info("Device found")
		return found, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(adv Advertisement) {
	deviceID := normalizeAddr(adv.Addr())

	info := newDeviceInfo(adv)
	_, existing := s.devices.Get(deviceID)
	s.devices.Set(deviceID, info)

	if !existing {
		s.logger.WithFields(logrus.Fields{
			"device":  info.Name,
			"address": info.Address,
			"rssi":    info.RSSI,
		}).Info("Discovered new device")
	}
}

func newDeviceInfo(adv Advertisement) *DeviceInfo {
	return &DeviceInfo{
		Name:        adv.LocalName(),
		Address:     adv.Addr(),
		RSSI:        adv.RSSI(),
		Connectable: adv.Connectable(),
		Services:    adv.Services(),
		LastSeen:    time.Now(),
	}
}

func normalizeAddr(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
