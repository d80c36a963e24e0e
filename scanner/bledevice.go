package scanner

import (
	"context"

	ble "github.com/go-ble/ble"
	goble "github.com/srg/grundble/internal/pump/go-ble"
)

// bleAdvertisement adapts a ble.Advertisement to the scanner's Advertisement
type bleAdvertisement struct {
	adv ble.Advertisement
}

func (a *bleAdvertisement) LocalName() string { return a.adv.LocalName() }
func (a *bleAdvertisement) Addr() string      { return a.adv.Addr().String() }
func (a *bleAdvertisement) RSSI() int         { return a.adv.RSSI() }
func (a *bleAdvertisement) Connectable() bool { return a.adv.Connectable() }

func (a *bleAdvertisement) Services() []string {
	uuids := a.adv.Services()
	out := make([]string, 0, len(uuids))
	for _, u := range uuids {
		out = append(out, u.String())
	}
	return out
}

// bleScanningDevice wraps ble.Device to implement the ScanningDevice interface
type bleScanningDevice struct {
	dev ble.Device
}

func (s *bleScanningDevice) Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error {
	return s.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(&bleAdvertisement{adv: adv})
	})
}

// DeviceFactory creates ScanningDevice instances for BLE scanning operations.
// This is a variable so that it can be overridden in tests.
var DeviceFactory = func() (ScanningDevice, error) {
	dev, err := goble.DeviceFactory()
	if err != nil {
		return nil, err
	}
	ble.SetDefaultDevice(dev)
	return &bleScanningDevice{dev: dev}, nil
}
