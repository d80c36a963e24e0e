package pump

import "strings"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) once dashes are stripped.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format (lowercase, no
// dashes, no 0x prefix). Full 128-bit UUIDs in the Bluetooth SIG base format
// are reduced to their 16-bit short form so that "2a29" and
// "00002a29-0000-1000-8000-00805f9b34fb" compare equal.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
	s = strings.TrimPrefix(s, "0x")
	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}
