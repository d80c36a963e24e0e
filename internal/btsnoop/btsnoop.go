// Package btsnoop parses btsnoop_hci.log capture files for offline protocol
// reverse-engineering. It is a diagnostic tool: nothing here runs on the
// live connection path, but captured notifications are replayed through the
// same frame codec the client uses, so a capture can be checked against the
// current state of the protocol knowledge.
package btsnoop

import (
	"encoding/binary"
	"fmt"
	"io"
)

// File header: 8-byte magic, version, datalink type (both big-endian).
var magic = []byte("btsnoop\x00")

const (
	fileHeaderLen   = 16
	recordHeaderLen = 24
)

// HCI packet types.
const (
	pktCommand byte = 0x01
	pktACLData byte = 0x02
	pktEvent   byte = 0x04
)

// ATT opcodes observed in pump traffic.
const (
	attReadRequest       byte = 0x0a
	attReadResponse      byte = 0x0b
	attWriteRequest      byte = 0x12
	attValueNotification byte = 0x1b
	attWriteCommand      byte = 0x52
)

// attPayloadOffset skips the HCI ACL header (1 type + 2 handle + 2 length)
// and the L2CAP header (2 length + 2 channel) plus the opcode position used
// by the capture layout.
const attPayloadOffset = 9

// Record is one captured HCI packet.
type Record struct {
	Index     int
	Flags     uint32
	Drops     uint32
	Timestamp uint64
	Data      []byte
}

// Sent reports the capture direction flag (host to controller).
func (r Record) Sent() bool { return r.Flags&0x01 != 0 }

// Capture is a fully parsed btsnoop file.
type Capture struct {
	Version  uint32
	Datalink uint32
	Records  []Record
}

// Parse reads a complete btsnoop file. Truncated trailing records are
// ignored, matching how live captures usually end.
func Parse(r io.Reader) (*Capture, error) {
	header := make([]byte, fileHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read btsnoop header: %w", err)
	}
	for i, b := range magic {
		if header[i] != b {
			return nil, fmt.Errorf("not a valid btsnoop file")
		}
	}

	c := &Capture{
		Version:  binary.BigEndian.Uint32(header[8:12]),
		Datalink: binary.BigEndian.Uint32(header[12:16]),
	}

	idx := 0
	for {
		rh := make([]byte, recordHeaderLen)
		if _, err := io.ReadFull(r, rh); err != nil {
			break
		}

		inclLen := binary.BigEndian.Uint32(rh[4:8])
		rec := Record{
			Flags:     binary.BigEndian.Uint32(rh[8:12]),
			Drops:     binary.BigEndian.Uint32(rh[12:16]),
			Timestamp: binary.BigEndian.Uint64(rh[16:24]),
			Data:      make([]byte, inclLen),
		}
		if _, err := io.ReadFull(r, rec.Data); err != nil {
			break
		}

		idx++
		rec.Index = idx
		c.Records = append(c.Records, rec)
	}

	return c, nil
}
