package testutils

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/srg/grundble/internal/pump"
)

// FakeCharacteristic is an in-memory GATT characteristic for transport fakes.
type FakeCharacteristic struct {
	uuid  string
	props pump.Properties
}

// NewFakeCharacteristic creates a standalone characteristic for selector tests.
func NewFakeCharacteristic(uuid string, props pump.Properties) *FakeCharacteristic {
	return &FakeCharacteristic{uuid: uuid, props: props}
}

func (c *FakeCharacteristic) UUID() string                { return c.uuid }
func (c *FakeCharacteristic) Properties() pump.Properties { return c.props }

// FakeTransport implements pump.Transport with scripted request/response
// behavior. Writes matching a scripted request deliver the associated
// notifications synchronously through the subscribed handler.
type FakeTransport struct {
	mu sync.Mutex

	chars     []pump.Characteristic
	values    map[string][]byte
	readErrs  map[string]error
	responses map[string][][]byte

	writes     [][]byte
	writeErr   error
	subErr     error
	subscribed string
	handler    func([]byte)
	closed     bool
}

// NewFakeTransport creates an empty transport fake.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		values:    make(map[string][]byte),
		readErrs:  make(map[string]error),
		responses: make(map[string][][]byte),
	}
}

// WithCharacteristic adds a characteristic in discovery order.
func (f *FakeTransport) WithCharacteristic(uuid string, props pump.Properties) *FakeTransport {
	f.chars = append(f.chars, &FakeCharacteristic{uuid: uuid, props: props})
	return f
}

// WithValue sets the value returned by Read for a characteristic.
func (f *FakeTransport) WithValue(uuid string, value []byte) *FakeTransport {
	f.values[uuid] = value
	return f
}

// WithReadError makes Read fail for a characteristic.
func (f *FakeTransport) WithReadError(uuid string, err error) *FakeTransport {
	f.readErrs[uuid] = err
	return f
}

// WithResponse scripts notifications to deliver when request is written.
func (f *FakeTransport) WithResponse(request []byte, notifications ...[]byte) *FakeTransport {
	key := hex.EncodeToString(request)
	f.responses[key] = append(f.responses[key], notifications...)
	return f
}

// WithWriteError makes every Write fail.
func (f *FakeTransport) WithWriteError(err error) *FakeTransport {
	f.writeErr = err
	return f
}

// WithSubscribeError makes Subscribe fail.
func (f *FakeTransport) WithSubscribeError(err error) *FakeTransport {
	f.subErr = err
	return f
}

func (f *FakeTransport) Characteristics() []pump.Characteristic {
	return f.chars
}

func (f *FakeTransport) Read(c pump.Characteristic) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.readErrs[c.UUID()]; ok {
		return nil, err
	}
	value, ok := f.values[c.UUID()]
	if !ok {
		return nil, fmt.Errorf("no value for characteristic %s", c.UUID())
	}
	return value, nil
}

func (f *FakeTransport) Write(c pump.Characteristic, data []byte, withResponse bool) error {
	f.mu.Lock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	if f.writeErr != nil {
		f.mu.Unlock()
		return f.writeErr
	}
	notifications := f.responses[hex.EncodeToString(data)]
	handler := f.handler
	f.mu.Unlock()

	if handler != nil {
		for _, n := range notifications {
			handler(n)
		}
	}
	return nil
}

func (f *FakeTransport) Subscribe(c pump.Characteristic, handler func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.subscribed = c.UUID()
	f.handler = handler
	return nil
}

func (f *FakeTransport) Unsubscribe(c pump.Characteristic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = ""
	f.handler = nil
	return nil
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Notify pushes an unsolicited notification through the subscribed handler.
func (f *FakeTransport) Notify(data []byte) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(data)
	}
}

// Writes returns every payload written so far.
func (f *FakeTransport) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// SubscribedUUID returns the UUID notifications are armed on, or "".
func (f *FakeTransport) SubscribedUUID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed
}

// Closed reports whether Close was called.
func (f *FakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeDialer implements pump.Dialer over a transport factory. The first
// FailFirst dials return an error before any transport is produced.
type FakeDialer struct {
	mu sync.Mutex

	factory      func() *FakeTransport
	failFirst    int
	dials        int
	dialTimes    []time.Time
	transports   []*FakeTransport
	onDisconnect func()
}

// NewFakeDialer creates a dialer producing one fresh transport per Dial.
func NewFakeDialer(factory func() *FakeTransport) *FakeDialer {
	return &FakeDialer{factory: factory}
}

// FailFirst makes the first n dial attempts fail.
func (d *FakeDialer) FailFirst(n int) *FakeDialer {
	d.failFirst = n
	return d
}

func (d *FakeDialer) Dial(ctx context.Context, address string, onDisconnect func()) (pump.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.dialTimes = append(d.dialTimes, time.Now())
	if d.dials <= d.failFirst {
		return nil, fmt.Errorf("dial %s: connection refused", address)
	}
	t := d.factory()
	d.transports = append(d.transports, t)
	d.onDisconnect = onDisconnect
	return t, nil
}

// Dials returns how many dial attempts were made.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// DialTimes returns the wall-clock time of each dial attempt.
func (d *FakeDialer) DialTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]time.Time, len(d.dialTimes))
	copy(out, d.dialTimes)
	return out
}

// LastTransport returns the most recently produced transport, or nil.
func (d *FakeDialer) LastTransport() *FakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// TriggerDisconnect fires the disconnect callback of the latest session.
func (d *FakeDialer) TriggerDisconnect() {
	d.mu.Lock()
	cb := d.onDisconnect
	d.mu.Unlock()
	if cb != nil {
		cb()
	}
}
