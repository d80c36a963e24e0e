package protocol

import (
	"strings"
	"unicode"
)

// Field names for classified payloads. These are the keys the data store is
// populated under; serial_number itself is derived by the store once both
// parts are present.
const (
	FieldManufacturer    = "manufacturer"
	FieldModel           = "model"
	FieldFirmware        = "firmware"
	FieldFirmwareCustom  = "firmware_custom"
	FieldHardwareVersion = "hardware_version"
	FieldSoftwareVersion = "software_version"
	FieldDeviceName      = "device_name"
	FieldSerialNumber    = "serial_number"
	FieldSerialPart1     = "serial_part1"
	FieldSerialPart2     = "serial_part2"
)

// Classification is the outcome of interpreting a decoded frame's payload.
// Append distinguishes fields that arrive multi-part (model, firmware) from
// fields that are overwritten wholesale (device name, serial parts).
type Classification struct {
	Field  string
	Value  string
	Append bool
}

// Classify attempts to interpret a frame's payload as ASCII device info and
// map it onto a named field, using the command/sub-command table inferred
// from captured traffic. Returns ok=false for payloads that are not
// printable ASCII or that match no known command - those frames are kept
// opaque, since the numeric portion of the protocol is not reverse-engineered.
func Classify(f *Frame) (Classification, bool) {
	decoded := DecodeASCII(f.Payload)
	if decoded == "" {
		return Classification{}, false
	}

	if f.HasCmd && f.Cmd == CmdDeviceInfo {
		switch {
		case f.HasSubCmd && f.SubCmd == SubModel:
			// Model names may arrive multi-part.
			return Classification{Field: FieldModel, Value: decoded, Append: true}, true
		case f.HasSubCmd && f.SubCmd == SubSerialPart1:
			return Classification{Field: FieldSerialPart1, Value: decoded}, true
		case f.HasSubCmd && f.SubCmd == SubSerialPart2:
			return Classification{Field: FieldSerialPart2, Value: decoded}, true
		case f.HasSubCmd && f.SubCmd == SubDeviceName:
			return Classification{Field: FieldDeviceName, Value: decoded}, true
		case strings.HasPrefix(decoded, "V") && strings.Contains(decoded, "."):
			// Firmware revision strings look like "V01.00.02.000001".
			return Classification{Field: FieldFirmwareCustom, Value: decoded, Append: true}, true
		}
	}

	// Fallback heuristic for model frames whose command id is unknown.
	if strings.Contains(decoded, "SCALA") {
		return Classification{Field: FieldModel, Value: decoded, Append: true}, true
	}

	return Classification{}, false
}

// DecodeASCII decodes payload bytes as ASCII with invalid bytes ignored and
// trailing NUL characters stripped. Returns "" unless the result contains at
// least one printable character.
func DecodeASCII(payload []byte) string {
	var b strings.Builder
	for _, c := range payload {
		if c < 0x80 {
			b.WriteByte(c)
		}
	}
	s := strings.TrimRight(b.String(), "\x00")
	if s == "" {
		return ""
	}

	printable := false
	for _, r := range s {
		if unicode.IsPrint(r) {
			printable = true
			break
		}
	}
	if !printable {
		return ""
	}
	return strings.TrimSpace(s)
}
