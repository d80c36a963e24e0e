package pump

import "context"

// Properties is the typed capability bitset of a GATT characteristic,
// produced once by the transport adapter during discovery.
type Properties uint8

const (
	PropBroadcast Properties = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
)

// CanRead reports whether the characteristic supports direct reads.
func (p Properties) CanRead() bool { return p&PropRead != 0 }

// CanWrite reports whether the characteristic accepts commands, with or
// without response.
func (p Properties) CanWrite() bool { return p&(PropWrite|PropWriteWithoutResponse) != 0 }

// CanNotify reports whether notifications can be armed on the characteristic.
func (p Properties) CanNotify() bool { return p&PropNotify != 0 }

func (p Properties) String() string {
	names := []struct {
		flag Properties
		name string
	}{
		{PropBroadcast, "broadcast"},
		{PropRead, "read"},
		{PropWriteWithoutResponse, "write-without-response"},
		{PropWrite, "write"},
		{PropNotify, "notify"},
		{PropIndicate, "indicate"},
	}
	s := ""
	for _, n := range names {
		if p&n.flag == 0 {
			continue
		}
		if s != "" {
			s += ", "
		}
		s += n.name
	}
	return s
}

// Characteristic is a transport-session-scoped handle. Object identity is
// only valid for the lifetime of the Transport that discovered it; channel
// selection must be re-derived after every reconnect.
type Characteristic interface {
	UUID() string
	Properties() Properties
}

// Transport is one established connection to the device: services already
// discovered, ready for reads, writes, and notification arming. All methods
// may fail once the underlying link drops.
type Transport interface {
	// Characteristics returns every discovered characteristic in discovery
	// order. The slice is stable for the lifetime of the transport.
	Characteristics() []Characteristic

	Read(c Characteristic) ([]byte, error)
	Write(c Characteristic, data []byte, withResponse bool) error

	// Subscribe arms notifications on c; handler runs on the transport's
	// delivery path, in arrival order, potentially concurrently with the
	// caller's flow.
	Subscribe(c Characteristic, handler func(data []byte)) error
	Unsubscribe(c Characteristic) error

	Close() error
}

// Dialer resolves a device by address and establishes a fresh transport
// session. Implementations must never hand back a handle from a previous,
// disconnected session; onDisconnect fires asynchronously when the link is
// lost, at most once per returned Transport.
type Dialer interface {
	Dial(ctx context.Context, address string, onDisconnect func()) (Transport, error)
}
