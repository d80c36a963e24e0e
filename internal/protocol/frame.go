package protocol

// Notification frame layout, reverse-engineered from btsnoop captures:
//
//	byte 0      header (0x24 observed for responses)
//	byte 1      declared payload length (informational)
//	bytes 2-3   command-type marker (unparsed)
//	byte 4      command id (present only if total length >= 5)
//	byte 5      sub-command id (present only if total length >= 6)
//	bytes 6..   payload; the final two bytes are a checksum and are trimmed
//	            only when the frame is long enough to hold one (> 8 bytes)
//
// The checksum algorithm is unknown and never validated.
const (
	// ResponseHeader is the only header value confirmed by captured traffic.
	// Frames with other headers are decoded best-effort using the same layout.
	ResponseHeader byte = 0x24

	minDecodableLen = 4
	cmdOffset       = 4
	subCmdOffset    = 5
	payloadOffset   = 6
	checksumLen     = 2
)

// Command and sub-command ids observed in captures.
const (
	CmdDeviceInfo byte = 0x07

	SubModel       byte = 0x01
	SubSerialPart1 byte = 0x08
	SubSerialPart2 byte = 0x09
	SubDeviceName  byte = 0x11
)

// Frame is a structurally decoded notification. It is transient: handlers
// must not retain it beyond the invocation that received it.
type Frame struct {
	Header    byte
	Length    byte // declared length, informational only
	Cmd       byte
	HasCmd    bool
	SubCmd    byte
	HasSubCmd bool
	Payload   []byte
	Raw       []byte // original bytes, for correlator delivery
}

// Decode parses raw notification bytes into a Frame. A frame shorter than
// four bytes is not decodable; this is an expected condition, not a fault,
// so it is reported via ok=false rather than an error.
func Decode(raw []byte) (*Frame, bool) {
	if len(raw) < minDecodableLen {
		return nil, false
	}

	f := &Frame{
		Header: raw[0],
		Length: raw[1],
		Raw:    append([]byte(nil), raw...),
	}

	if len(raw) > cmdOffset {
		f.Cmd = raw[cmdOffset]
		f.HasCmd = true
	}
	if len(raw) > subCmdOffset {
		f.SubCmd = raw[subCmdOffset]
		f.HasSubCmd = true
	}

	if len(raw) > payloadOffset {
		if len(raw) > payloadOffset+checksumLen {
			f.Payload = f.Raw[payloadOffset : len(raw)-checksumLen]
		} else {
			f.Payload = f.Raw[payloadOffset:]
		}
	}

	return f, true
}
