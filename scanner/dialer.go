package scanner

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/grundble/internal/pump"
)

// ResolvingDialer wraps a transport dialer with an advertisement scan, so
// every connection attempt re-resolves the device instead of dialing a
// possibly stale address record. A device that is powered but mid broadcast
// of non-connectable advertisements is waited out by the scan, which avoids
// a doomed dial.
type ResolvingDialer struct {
	inner       pump.Dialer
	scanner     *Scanner
	scanTimeout time.Duration
	logger      *logrus.Logger
}

// NewResolvingDialer wraps inner. scanTimeout bounds the resolution scan on
// each Dial; zero means scan until the dial context ends.
func NewResolvingDialer(inner pump.Dialer, scanTimeout time.Duration, logger *logrus.Logger) *ResolvingDialer {
	if logger == nil {
		logger = logrus.New()
	}
	return &ResolvingDialer{
		inner:       inner,
		scanner:     NewScanner(logger),
		scanTimeout: scanTimeout,
		logger:      logger,
	}
}

func (d *ResolvingDialer) Dial(ctx context.Context, address string, onDisconnect func()) (pump.Transport, error) {
	info, err := d.scanner.FindByAddress(ctx, address, d.scanTimeout)
	if err != nil {
		return nil, err
	}
	d.logger.WithFields(logrus.Fields{
		"address": info.Address,
		"name":    info.Name,
		"rssi":    info.RSSI,
	}).Debug("Device resolved, dialing")
	return d.inner.Dial(ctx, info.Address, onDisconnect)
}
