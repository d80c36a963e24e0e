// Package goble adapts the go-ble/ble stack to the transport interfaces the
// pump client consumes.
package goble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/grundble/internal/groutine"
	"github.com/srg/grundble/internal/pump"
)

// bleCharacteristic wraps a live *ble.Characteristic handle. Handles are
// session-scoped: a new set is produced by every Dial.
type bleCharacteristic struct {
	char  *ble.Characteristic
	uuid  string
	props pump.Properties
}

func (c *bleCharacteristic) UUID() string { return c.uuid }

func (c *bleCharacteristic) Properties() pump.Properties { return c.props }

// mapProperties converts go-ble property bit flags to the typed capability
// bitset consumed by the channel selector.
func mapProperties(p ble.Property) pump.Properties {
	var props pump.Properties
	if p&ble.CharBroadcast != 0 {
		props |= pump.PropBroadcast
	}
	if p&ble.CharRead != 0 {
		props |= pump.PropRead
	}
	if p&ble.CharWriteNR != 0 {
		props |= pump.PropWriteWithoutResponse
	}
	if p&ble.CharWrite != 0 {
		props |= pump.PropWrite
	}
	if p&ble.CharNotify != 0 {
		props |= pump.PropNotify
	}
	if p&ble.CharIndicate != 0 {
		props |= pump.PropIndicate
	}
	return props
}

// Dialer establishes go-ble transport sessions.
type Dialer struct {
	logger *logrus.Logger
}

func NewDialer(logger *logrus.Logger) *Dialer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dialer{logger: logger}
}

// Dial connects to the device at address, discovers its full GATT profile,
// and returns a fresh transport session. onDisconnect fires once when the
// link drops, from a watcher goroutine tied to this session.
func (d *Dialer) Dial(ctx context.Context, address string, onDisconnect func()) (pump.Transport, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		client.CancelConnection()
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	var chars []pump.Characteristic
	for _, svc := range profile.Services {
		d.logger.WithField("service_uuid", svc.UUID.String()).Debug("Found service")
		for _, c := range svc.Characteristics {
			wrapped := &bleCharacteristic{
				char:  c,
				uuid:  c.UUID.String(),
				props: mapProperties(c.Property),
			}
			d.logger.WithFields(logrus.Fields{
				"char_uuid":  wrapped.uuid,
				"properties": wrapped.props.String(),
			}).Debug("Found characteristic")
			chars = append(chars, wrapped)
		}
	}

	t := &bleTransport{
		client: client,
		chars:  chars,
		logger: d.logger,
	}

	if onDisconnect != nil {
		groutine.Go("ble-disconnect-watch", func() {
			<-client.Disconnected()
			onDisconnect()
		})
	}

	return t, nil
}

type bleTransport struct {
	client ble.Client
	chars  []pump.Characteristic
	logger *logrus.Logger
}

func (t *bleTransport) Characteristics() []pump.Characteristic {
	return t.chars
}

func (t *bleTransport) Read(c pump.Characteristic) ([]byte, error) {
	bc, err := t.unwrap(c)
	if err != nil {
		return nil, err
	}
	data, err := t.client.ReadCharacteristic(bc.char)
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", bc.uuid, pump.NormalizeError(err))
	}
	return data, nil
}

func (t *bleTransport) Write(c pump.Characteristic, data []byte, withResponse bool) error {
	bc, err := t.unwrap(c)
	if err != nil {
		return err
	}
	if err := t.client.WriteCharacteristic(bc.char, data, !withResponse); err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", bc.uuid, pump.NormalizeError(err))
	}
	return nil
}

func (t *bleTransport) Subscribe(c pump.Characteristic, handler func(data []byte)) error {
	bc, err := t.unwrap(c)
	if err != nil {
		return err
	}
	if err := t.client.Subscribe(bc.char, false, handler); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", bc.uuid, pump.NormalizeError(err))
	}
	return nil
}

func (t *bleTransport) Unsubscribe(c pump.Characteristic) error {
	bc, err := t.unwrap(c)
	if err != nil {
		return err
	}
	// Try both notify and indicate modes; fail only if both fail.
	err1 := t.client.Unsubscribe(bc.char, false)
	err2 := t.client.Unsubscribe(bc.char, true)
	if err1 != nil && err2 != nil {
		return fmt.Errorf("failed to unsubscribe from %s: notify=%v, indicate=%v", bc.uuid, err1, err2)
	}
	return nil
}

func (t *bleTransport) Close() error {
	return t.client.CancelConnection()
}

func (t *bleTransport) unwrap(c pump.Characteristic) (*bleCharacteristic, error) {
	bc, ok := c.(*bleCharacteristic)
	if !ok || bc.char == nil {
		return nil, fmt.Errorf("characteristic %s does not belong to this transport", c.UUID())
	}
	return bc, nil
}
