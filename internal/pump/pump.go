package pump

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/grundble/internal/groutine"
	"github.com/srg/grundble/internal/protocol"
)

// State is the connection lifecycle state of a Pump.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Options configures a Pump instance.
type Options struct {
	Address string

	ConnectTimeout time.Duration
	CommandTimeout time.Duration

	// RefreshAttempts and RetryBackoff drive the refresh-level retry loop:
	// up to RefreshAttempts total, with the backoff doubling between
	// attempts (1s, 2s, 4s at the default base).
	RefreshAttempts int
	RetryBackoff    time.Duration

	// The device answers reliably only when commands are paced: a short
	// delay after the init handshake, between queries, and a closing grace
	// period for late notifications. This is an artifact of the physical
	// link, not a protocol guarantee, so the delays are fixed rather than
	// adaptive.
	InitDelay    time.Duration
	CommandDelay time.Duration
	SettleDelay  time.Duration
}

// DefaultOptions returns production defaults for the given device address.
func DefaultOptions(address string) *Options {
	return &Options{
		Address:         address,
		ConnectTimeout:  30 * time.Second,
		CommandTimeout:  2 * time.Second,
		RefreshAttempts: 3,
		RetryBackoff:    1 * time.Second,
		InitDelay:       100 * time.Millisecond,
		CommandDelay:    100 * time.Millisecond,
		SettleDelay:     500 * time.Millisecond,
	}
}

// Pump is the BLE protocol client for one Grundfos pump. It owns the
// connection lifecycle, channel selection, the request/response correlator,
// and the accumulating device data record.
type Pump struct {
	opts   *Options
	dialer Dialer
	logger *logrus.Logger

	mu          sync.Mutex
	state       State
	transport   Transport
	channels    SelectedChannels
	charsByUUID map[string]Characteristic
	gen         uint64 // connection generation; stale disconnect callbacks are ignored
	infoRead    bool

	// notifyMu is the single mutual-exclusion boundary for the notification
	// path: frame decode, data-store mutation, and correlator fulfillment
	// never race each other.
	notifyMu   sync.Mutex
	correlator *Correlator
	store      *DataStore

	cbMu      sync.RWMutex
	callbacks []func(data []byte)
}

// NewPump creates a pump client. The dialer is the transport collaborator
// that resolves the address and establishes GATT sessions.
func NewPump(dialer Dialer, opts *Options, logger *logrus.Logger) *Pump {
	if logger == nil {
		logger = logrus.New()
	}
	return &Pump{
		opts:       opts,
		dialer:     dialer,
		logger:     logger,
		correlator: NewCorrelator(logger),
		store:      NewDataStore(),
	}
}

// State returns the current lifecycle state.
func (p *Pump) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsConnected reports whether a transport session is established.
func (p *Pump) IsConnected() bool {
	return p.State() == StateConnected
}

// Data returns an immutable snapshot of the accumulated device data.
func (p *Pump) Data() map[string]string {
	return p.store.Snapshot()
}

// RegisterNotificationCallback registers fn to receive every raw inbound
// notification, after codec processing.
func (p *Pump) RegisterNotificationCallback(fn func(data []byte)) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.callbacks = append(p.callbacks, fn)
}

// Connect establishes a fresh transport session, selects the notify and
// write channels, and arms notifications. It is a no-op when already
// connected. A stale handle is never reused: the dialer re-resolves the
// device on every call. Failing to arm notifications when a notify
// characteristic was selected rolls the connection back; having no notify
// characteristic at all is merely degraded functionality.
func (p *Pump) Connect(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case StateConnected:
		p.mu.Unlock()
		return nil
	case StateConnecting:
		p.mu.Unlock()
		return opErr(OpConnect, ErrConnectInProgress)
	}
	p.state = StateConnecting
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	p.logger.WithField("address", p.opts.Address).Info("Connecting to pump...")

	dialCtx, cancel := context.WithTimeout(ctx, p.opts.ConnectTimeout)
	defer cancel()

	t, err := p.dialer.Dial(dialCtx, p.opts.Address, func() { p.handleDisconnect(gen) })
	if err != nil {
		p.rollback(gen)
		return opErr(OpConnect, err)
	}

	chars := t.Characteristics()
	p.logger.WithField("characteristics", len(chars)).Debug("Discovery complete")
	sel := SelectChannels(chars, p.logger)

	if sel.Notify != nil {
		if err := t.Subscribe(sel.Notify, p.handleNotification); err != nil {
			p.logger.WithFields(logrus.Fields{
				"char_uuid": sel.Notify.UUID(),
				"error":     err,
			}).Error("Failed to arm notifications")
			_ = t.Close()
			p.rollback(gen)
			return opErr(OpNotify, err)
		}
		p.logger.WithField("char_uuid", sel.Notify.UUID()).Info("Notifications armed")
	}

	byUUID := make(map[string]Characteristic, len(chars))
	for _, c := range chars {
		byUUID[NormalizeUUID(c.UUID())] = c
	}

	p.mu.Lock()
	if p.gen != gen {
		// A shutdown or a newer attempt superseded this one mid-setup;
		// committing it would resurrect a session that was already torn down.
		p.mu.Unlock()
		if sel.Notify != nil {
			_ = t.Unsubscribe(sel.Notify)
		}
		_ = t.Close()
		p.logger.WithField("address", p.opts.Address).
			Warn("Connection superseded during setup, tearing down")
		return opErr(OpConnect, ErrNotConnected)
	}
	p.transport = t
	p.channels = sel
	p.charsByUUID = byUUID
	p.state = StateConnected
	p.mu.Unlock()

	p.logger.WithField("address", p.opts.Address).Info("Connection established and ready")
	return nil
}

// Disconnect disarms notifications (best-effort) and closes the transport.
// Local references are always cleared regardless of transport-level errors,
// so the manager can never believe it is connected when the transport
// disagrees.
func (p *Pump) Disconnect() error {
	p.mu.Lock()
	t := p.transport
	sel := p.channels
	p.gen++ // the session's own disconnect callback is stale from here on
	p.transport = nil
	p.channels = SelectedChannels{}
	p.charsByUUID = nil
	p.state = StateDisconnected
	p.mu.Unlock()

	if t == nil {
		p.logger.Debug("Already disconnected")
		return nil
	}

	// Disarming is serialized with any in-flight request so it cannot
	// interleave with a pending exchange.
	err := p.correlator.Send(func() error {
		if sel.Notify != nil {
			if err := t.Unsubscribe(sel.Notify); err != nil {
				p.logger.WithError(err).Warn("Error stopping notifications")
			}
		}
		return t.Close()
	})
	if err != nil {
		p.logger.WithError(err).Warn("Pump disconnected with errors")
		return err
	}
	p.logger.Info("Pump disconnected")
	return nil
}

// handleDisconnect is the transport's disconnect callback. It clears the
// Connected state asynchronously; callbacks from superseded sessions are
// ignored by generation.
func (p *Pump) handleDisconnect(gen uint64) {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.transport = nil
	p.channels = SelectedChannels{}
	p.charsByUUID = nil
	p.state = StateDisconnected
	p.mu.Unlock()
	p.logger.WithField("address", p.opts.Address).Warn("Pump disconnected unexpectedly")
}

// rollback returns the pump to Disconnected after a failed connect attempt,
// unless a newer connection attempt has superseded this one.
func (p *Pump) rollback(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return
	}
	p.transport = nil
	p.channels = SelectedChannels{}
	p.charsByUUID = nil
	p.state = StateDisconnected
}

// handleNotification is the sink for the armed notify characteristic. It
// runs on the transport's delivery path, in arrival order.
func (p *Pump) handleNotification(data []byte) {
	p.notifyMu.Lock()
	if f, ok := protocol.Decode(data); ok {
		if f.Header != protocol.ResponseHeader {
			p.logger.WithField("header", f.Header).
				Debug("Unknown frame header, decoding best-effort")
		}
		if cl, ok := protocol.Classify(f); ok {
			p.store.Apply(cl)
			p.logger.WithFields(logrus.Fields{
				"field": cl.Field,
				"value": cl.Value,
			}).Debug("Classified notification payload")
		} else if f.HasCmd && f.HasSubCmd && len(f.Payload) > 0 {
			// Numeric payloads are not reverse-engineered; keep them opaque.
			p.store.SetRaw(f.Cmd, f.SubCmd, f.Payload)
		}
	} else {
		p.logger.WithField("len", len(data)).Debug("Notification too short, skipping parse")
	}
	// The correlator gets the raw bytes even for undecodable frames: the
	// waiter correlates on arrival, not on structure.
	p.correlator.Deliver(data)
	p.notifyMu.Unlock()

	p.cbMu.RLock()
	cbs := make([]func([]byte), len(p.callbacks))
	copy(cbs, p.callbacks)
	p.cbMu.RUnlock()
	for _, cb := range cbs {
		cb(data)
	}
}

// SendCommand writes an opaque command to the write characteristic. With
// waitForResponse it blocks until the next notification or the timeout;
// without, it returns after the write. A write failure invalidates the
// session. Missing transport or write characteristic are precondition
// faults, returned immediately and never retried.
func (p *Pump) SendCommand(cmd []byte, waitForResponse bool, timeout time.Duration) ([]byte, error) {
	p.mu.Lock()
	t := p.transport
	w := p.channels.Write
	connected := p.state == StateConnected
	p.mu.Unlock()

	if t == nil || !connected {
		return nil, opErr(OpWrite, ErrNotConnected)
	}
	if w == nil {
		return nil, opErr(OpWrite, ErrNoWriteCharacteristic)
	}

	send := func() error {
		p.logger.WithFields(logrus.Fields{
			"char_uuid": w.UUID(),
			"data":      hex.EncodeToString(cmd),
		}).Debug("Sending command")
		if err := t.Write(w, cmd, false); err != nil {
			p.invalidateSession(t)
			return opErr(OpWrite, err)
		}
		return nil
	}

	if !waitForResponse {
		return nil, p.correlator.Send(send)
	}
	resp, err := p.correlator.Exchange(send, timeout)
	if errors.Is(err, ErrTimeout) {
		p.logger.WithField("data", hex.EncodeToString(cmd)).
			Warn("Timeout waiting for response to command")
	}
	return resp, err
}

// invalidateSession tears down state after a write failure on t. A newer
// session, if any, is left untouched.
func (p *Pump) invalidateSession(t Transport) {
	p.mu.Lock()
	if p.transport != t {
		p.mu.Unlock()
		return
	}
	p.transport = nil
	p.channels = SelectedChannels{}
	p.charsByUUID = nil
	p.state = StateDisconnected
	p.mu.Unlock()

	p.logger.Warn("Write failed, session invalidated")
	groutine.Go("pump-session-teardown", func() {
		_ = t.Close()
	})
}

// Refresh is the top-level periodic operation: ensure a connection, read
// device info once per physical connection, and return a data snapshot. It
// retries with exponential backoff, fully tearing down and reconnecting
// between attempts; only after the final attempt is a hard failure surfaced.
func (p *Pump) Refresh(ctx context.Context) (map[string]string, error) {
	var lastErr error
	backoff := p.opts.RetryBackoff

	for attempt := 1; attempt <= p.opts.RefreshAttempts; attempt++ {
		if attempt > 1 {
			p.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
			}).Warn("Refresh attempt failed, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, opErr(OpRefresh, ctx.Err())
			}
			backoff *= 2
		}

		snap, err := p.refreshOnce(ctx)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		p.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("Refresh cycle error")
		_ = p.Disconnect()
	}

	return nil, opErr(OpRefresh, fmt.Errorf("%w (%d attempts): %v",
		ErrRetriesExhausted, p.opts.RefreshAttempts, lastErr))
}

func (p *Pump) refreshOnce(ctx context.Context) (map[string]string, error) {
	if !p.IsConnected() {
		if err := p.Connect(ctx); err != nil {
			return nil, err
		}
	}

	if p.needsInfoRead() {
		if err := p.ReadDeviceInfo(); err != nil {
			return nil, err
		}
		if err := p.ReadCustomDeviceInfo(); err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.infoRead = true
		p.mu.Unlock()
	}

	return p.ReadPumpStatus()
}

// needsInfoRead reports whether device info must be (re-)read: always on the
// first connection, and again if the data store turns out to hold no device
// info after a reconnect (a fresh record replaced a stale one).
func (p *Pump) needsInfoRead() bool {
	p.mu.Lock()
	read := p.infoRead
	p.mu.Unlock()
	if !read {
		return true
	}
	for _, f := range []string{
		protocol.FieldManufacturer,
		protocol.FieldModel,
		protocol.FieldDeviceName,
		protocol.FieldSerialNumber,
	} {
		if _, ok := p.store.Get(f); ok {
			return false
		}
	}
	return true
}

// ReadPumpStatus returns the current data snapshot. Status and sensor frames
// arrive via notifications and are recorded by the codec as they come in;
// the command that would solicit them on demand is not yet known, so there
// is nothing to send here.
func (p *Pump) ReadPumpStatus() (map[string]string, error) {
	snap := p.store.Snapshot()
	p.logger.WithField("fields", len(snap)).Debug("Pump status snapshot")
	return snap, nil
}
