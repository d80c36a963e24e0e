package pump

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/grundble/internal/protocol"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// standardInfoFields maps the standard Device Information Service
// characteristics to data-store field names. Ordered so reads (and their
// logs) happen in a stable sequence.
var standardInfoFields = func() *orderedmap.OrderedMap[string, string] {
	m := orderedmap.New[string, string]()
	m.Set("2a29", protocol.FieldManufacturer)
	m.Set("2a24", protocol.FieldModel)
	m.Set("2a26", protocol.FieldFirmware)
	m.Set("2a27", protocol.FieldHardwareVersion)
	m.Set("2a28", protocol.FieldSoftwareVersion)
	return m
}()

// ReadDeviceInfo reads the standard Device Information Service
// characteristics. Missing characteristics are skipped and a failed read of
// one never aborts the rest; both are expected conditions on this device.
// Idempotent and safe to repeat.
func (p *Pump) ReadDeviceInfo() error {
	p.mu.Lock()
	t := p.transport
	byUUID := p.charsByUUID
	p.mu.Unlock()

	if t == nil {
		return opErr(OpRead, ErrNotConnected)
	}

	p.logger.Info("Reading standard device information characteristics")

	for pair := standardInfoFields.Oldest(); pair != nil; pair = pair.Next() {
		uuid, field := pair.Key, pair.Value

		c, ok := byUUID[uuid]
		if !ok {
			p.logger.WithFields(logrus.Fields{
				"char_uuid": uuid,
				"field":     field,
			}).Debug("Characteristic not found (optional)")
			continue
		}

		value, err := t.Read(c)
		if err != nil {
			p.logger.WithFields(logrus.Fields{
				"char_uuid": uuid,
				"field":     field,
				"error":     err,
			}).Warn("Error reading device info characteristic")
			continue
		}

		decoded := strings.TrimSpace(strings.ToValidUTF8(string(value), ""))
		if decoded == "" {
			p.logger.WithField("field", field).Debug("Empty device info value")
			continue
		}

		p.store.Set(field, decoded)
		p.logger.WithFields(logrus.Fields{
			"field": field,
			"value": decoded,
		}).Info("Read device info field")
	}

	return nil
}

// ReadCustomDeviceInfo retrieves the device name and two-part serial number,
// which are not exposed via standard GATT characteristics. The sequence
// matches the captured traffic pattern exactly: a fire-and-forget init
// handshake, then three send-and-wait queries, then a settle period for any
// late notification. Init failures and per-command timeouts are tolerated;
// the sequence always runs to completion. Idempotent and safe to repeat.
func (p *Pump) ReadCustomDeviceInfo() error {
	if !p.IsConnected() {
		return opErr(OpInfo, ErrNotConnected)
	}

	p.logger.Info("Reading custom device info (name and serial number)")

	if _, err := p.SendCommand(protocol.CmdInit, false, 0); err != nil {
		p.logger.WithError(err).Warn("Failed to send init command - continuing anyway")
	}
	time.Sleep(p.opts.InitDelay)

	queries := []struct {
		name string
		cmd  []byte
	}{
		{"device_name", protocol.CmdReadDeviceName},
		{"serial_part1", protocol.CmdReadSerialPart1},
		{"serial_part2", protocol.CmdReadSerialPart2},
	}

	for _, q := range queries {
		p.logger.WithField("query", q.name).Debug("Sending device info query")
		if _, err := p.SendCommand(q.cmd, true, p.opts.CommandTimeout); err != nil {
			// Timeouts and transient failures are logged and the sequence
			// continues; the field simply stays unpopulated.
			p.logger.WithFields(logrus.Fields{
				"query": q.name,
				"error": err,
			}).Warn("No response for device info query")
		}
		time.Sleep(p.opts.CommandDelay)
	}

	time.Sleep(p.opts.SettleDelay)

	for _, field := range []string{protocol.FieldDeviceName, protocol.FieldSerialNumber} {
		if _, ok := p.store.Get(field); !ok {
			p.logger.WithField("field", field).Warn("Device info field not received")
		}
	}

	return nil
}
