package btsnoop

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/grundble/internal/protocol"
	"github.com/srg/grundble/internal/pump"
)

// EventType classifies an extracted ATT event.
type EventType int

const (
	EventWrite EventType = iota
	EventNotification
	EventReadRequest
	EventReadResponse
)

func (t EventType) String() string {
	switch t {
	case EventWrite:
		return "write"
	case EventNotification:
		return "notification"
	case EventReadRequest:
		return "read-request"
	case EventReadResponse:
		return "read-response"
	default:
		return "unknown"
	}
}

// Event is one ATT-level exchange recovered from the capture.
type Event struct {
	Record int
	Sent   bool
	Type   EventType
	Handle uint16 // zero for read responses (the capture carries no handle)
	Value  []byte
}

// Summary aggregates a capture's traffic and the device fields that the
// current frame codec can recover from its notifications.
type Summary struct {
	DeviceAddress string
	Packets       int
	Events        []Event
	HandleTraffic map[uint16]int
	Decoded       map[string]string
}

// Analyze walks the capture, extracts ATT reads/writes/notifications, picks
// up the device address from advertising reports, and replays every
// notification value through the frame codec into a fresh data store.
func (c *Capture) Analyze(logger *logrus.Logger) *Summary {
	if logger == nil {
		logger = logrus.New()
	}

	store := pump.NewDataStore()
	s := &Summary{
		Packets:       len(c.Records),
		HandleTraffic: make(map[uint16]int),
	}

	for _, rec := range c.Records {
		if len(rec.Data) < 1 {
			continue
		}
		switch rec.Data[0] {
		case pktEvent:
			c.analyzeEvent(rec, s)
		case pktACLData:
			c.analyzeACL(rec, s, store, logger)
		}
	}

	s.Decoded = store.Snapshot()
	return s
}

// analyzeEvent looks for LE advertising reports to recover the address of
// the device the capture talked to.
func (c *Capture) analyzeEvent(rec Record, s *Summary) {
	data := rec.Data
	// HCI Event: type, event code, parameter length.
	if len(data) < 4 || data[1] != 0x3e { // LE Meta Event
		return
	}
	if data[3] != 0x02 { // LE Advertising Report
		return
	}
	// Sub-event payload: num reports, event type, address type, address[6].
	payload := data[4:]
	if len(payload) < 9 || payload[0] == 0 {
		return
	}
	if s.DeviceAddress != "" {
		return
	}
	addr := payload[3:9]
	s.DeviceAddress = fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		addr[5], addr[4], addr[3], addr[2], addr[1], addr[0])
}

// analyzeACL extracts ATT operations from an ACL data packet.
func (c *Capture) analyzeACL(rec Record, s *Summary, store *pump.DataStore, logger *logrus.Logger) {
	data := rec.Data
	if len(data) <= attPayloadOffset {
		return
	}

	opcode := data[attPayloadOffset]
	att := data[attPayloadOffset+1:]

	switch opcode {
	case attWriteCommand, attWriteRequest:
		if len(att) < 2 {
			return
		}
		handle := binary.LittleEndian.Uint16(att[:2])
		s.HandleTraffic[handle]++
		s.Events = append(s.Events, Event{
			Record: rec.Index,
			Sent:   rec.Sent(),
			Type:   EventWrite,
			Handle: handle,
			Value:  att[2:],
		})

	case attValueNotification:
		if len(att) < 2 {
			return
		}
		handle := binary.LittleEndian.Uint16(att[:2])
		value := att[2:]
		s.HandleTraffic[handle]++
		s.Events = append(s.Events, Event{
			Record: rec.Index,
			Sent:   rec.Sent(),
			Type:   EventNotification,
			Handle: handle,
			Value:  value,
		})

		// Replay through the live codec.
		f, ok := protocol.Decode(value)
		if !ok {
			logger.WithField("record", rec.Index).Debug("Notification too short to decode")
			return
		}
		if cl, ok := protocol.Classify(f); ok {
			store.Apply(cl)
			logger.WithFields(logrus.Fields{
				"record": rec.Index,
				"field":  cl.Field,
				"value":  cl.Value,
			}).Debug("Classified captured notification")
		} else if f.HasCmd && f.HasSubCmd && len(f.Payload) > 0 {
			store.SetRaw(f.Cmd, f.SubCmd, f.Payload)
			logger.WithFields(logrus.Fields{
				"record":  rec.Index,
				"payload": hex.EncodeToString(f.Payload),
			}).Debug("Unclassified captured notification")
		}

	case attReadRequest:
		if len(att) < 2 {
			return
		}
		handle := binary.LittleEndian.Uint16(att[:2])
		s.HandleTraffic[handle]++
		s.Events = append(s.Events, Event{
			Record: rec.Index,
			Sent:   rec.Sent(),
			Type:   EventReadRequest,
			Handle: handle,
		})

	case attReadResponse:
		s.Events = append(s.Events, Event{
			Record: rec.Index,
			Sent:   rec.Sent(),
			Type:   EventReadResponse,
			Value:  att,
		})
	}
}

// Count returns the number of events of the given type.
func (s *Summary) Count(t EventType) int {
	n := 0
	for _, e := range s.Events {
		if e.Type == t {
			n++
		}
	}
	return n
}
