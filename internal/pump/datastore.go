package pump

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/srg/grundble/internal/protocol"
)

// DataStore is the accumulating record of everything read or decoded from
// the device. It is updated incrementally as frames are parsed and reads
// complete, and spans the device instance: values survive a disconnect,
// since stale data is preferable to none.
type DataStore struct {
	mu   sync.Mutex
	data map[string]string
}

func NewDataStore() *DataStore {
	return &DataStore{data: make(map[string]string)}
}

// Set stores a field, overwriting any previous value.
func (s *DataStore) Set(field, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[field] = value
	s.recombineSerial(field)
}

// Append concatenates onto any existing partial value, for fields that
// arrive multi-part (model names, firmware revisions).
func (s *DataStore) Append(field, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[field] = s.data[field] + value
	s.recombineSerial(field)
}

// Apply stores a classified payload with the semantics the classification
// calls for.
func (s *DataStore) Apply(cl protocol.Classification) {
	if cl.Append {
		s.Append(cl.Field, cl.Value)
		return
	}
	s.Set(cl.Field, cl.Value)
}

// SetRaw preserves the payload of an unclassified frame opaquely, keyed by
// its command ids. The numeric portion of the protocol is not
// reverse-engineered; no field semantics are invented for these bytes.
func (s *DataStore) SetRaw(cmd, sub byte, payload []byte) {
	s.Set(fmt.Sprintf("raw_%02x_%02x", cmd, sub), hex.EncodeToString(payload))
}

// Get returns a field value and whether it is present and non-empty.
func (s *DataStore) Get(field string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[field]
	return v, ok && v != ""
}

// Snapshot returns an independent copy of the current record.
func (s *DataStore) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// recombineSerial derives serial_number once both parts are present,
// regardless of their arrival order. Caller must hold s.mu.
func (s *DataStore) recombineSerial(field string) {
	if field != protocol.FieldSerialPart1 && field != protocol.FieldSerialPart2 {
		return
	}
	p1 := s.data[protocol.FieldSerialPart1]
	p2 := s.data[protocol.FieldSerialPart2]
	if p1 != "" && p2 != "" {
		s.data[protocol.FieldSerialNumber] = p1 + p2
	}
}
