package protocol

import "encoding/hex"

// Outbound commands are opaque literals captured from observed traffic.
// Their trailing bytes look like checksums, but the algorithm is unknown,
// so they must be sent verbatim and never recomputed.
var (
	// CmdInit is the handshake the device expects before answering
	// device-info queries. Sent fire-and-forget.
	CmdInit = mustHex("2707fff802039495964f91")

	// CmdReadDeviceName requests the user-assigned device name (sub 0x11).
	CmdReadDeviceName = mustHex("2705e7f80701114009")

	// CmdReadSerialPart1 requests the first half of the serial number (sub 0x08).
	CmdReadSerialPart1 = mustHex("2705e7f8070108c311")

	// CmdReadSerialPart2 requests the second half of the serial number (sub 0x09).
	CmdReadSerialPart2 = mustHex("2705e7f8070109d330")
)

// Grundfos custom service UUIDs advertised by SCALA pumps (from btsnoop).
const (
	ServiceUUID1 = "9d41001835d6f4adad60e7bd8dc491c0"
	ServiceUUID2 = "9d41001935d6f4adad60e7bd8dc491c0"
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("protocol: invalid command literal: " + s)
	}
	return b
}
