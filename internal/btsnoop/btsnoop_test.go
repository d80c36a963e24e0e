package btsnoop_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/grundble/internal/btsnoop"
	"github.com/srg/grundble/internal/protocol"
	"github.com/srg/grundble/internal/testutils"
)

// captureBuilder assembles a synthetic btsnoop file in memory.
type captureBuilder struct {
	buf bytes.Buffer
}

func newCapture() *captureBuilder {
	b := &captureBuilder{}
	b.buf.WriteString("btsnoop\x00")
	var tail [8]byte
	binary.BigEndian.PutUint32(tail[0:4], 1)    // version
	binary.BigEndian.PutUint32(tail[4:8], 1002) // HCI UART datalink
	b.buf.Write(tail[:])
	return b
}

func (b *captureBuilder) record(flags uint32, data []byte) *captureBuilder {
	var rh [24]byte
	binary.BigEndian.PutUint32(rh[0:4], uint32(len(data)))
	binary.BigEndian.PutUint32(rh[4:8], uint32(len(data)))
	binary.BigEndian.PutUint32(rh[8:12], flags)
	binary.BigEndian.PutUint64(rh[16:24], uint64(b.buf.Len())) // arbitrary timestamp
	b.buf.Write(rh[:])
	b.buf.Write(data)
	return b
}

// acl wraps an ATT PDU in HCI ACL and L2CAP headers.
func acl(att []byte) []byte {
	data := []byte{
		0x02,       // ACL data packet
		0x40, 0x00, // connection handle
		byte(len(att) + 4), 0x00, // ACL length
		byte(len(att)), 0x00, // L2CAP length
		0x04, 0x00, // ATT channel
	}
	return append(data, att...)
}

func attWrite(handle uint16, value []byte) []byte {
	pdu := []byte{0x52, byte(handle), byte(handle >> 8)}
	return append(pdu, value...)
}

func attNotify(handle uint16, value []byte) []byte {
	pdu := []byte{0x1b, byte(handle), byte(handle >> 8)}
	return append(pdu, value...)
}

// advReport is an LE Meta advertising report for AA:BB:CC:DD:EE:FF.
func advReport() []byte {
	return []byte{
		0x04,       // HCI event packet
		0x3e, 0x0c, // LE Meta Event
		0x02,             // LE Advertising Report
		0x01,             // one report
		0x00, 0x00,       // event type, address type
		0xff, 0xee, 0xdd, 0xcc, 0xbb, 0xaa, // address, little endian
	}
}

func infoFrame(sub byte, payload string) []byte {
	raw := append([]byte{0x24, byte(len(payload) + 4), 0x00, 0x00, protocol.CmdDeviceInfo, sub}, payload...)
	return append(raw, 0x99, 0x98)
}

func TestParse_RejectsBadMagic(t *testing.T) {
	_, err := btsnoop.Parse(bytes.NewReader([]byte("notsnoop01234567")))
	assert.Error(t, err)

	_, err = btsnoop.Parse(bytes.NewReader([]byte("short")))
	assert.Error(t, err)
}

func TestParse_HeaderAndRecords(t *testing.T) {
	// GOAL: Verify file header fields and per-record metadata are recovered

	raw := newCapture().
		record(0x01, advReport()).
		record(0x00, acl(attNotify(0x000c, []byte{0x24, 0x01, 0x00, 0x00}))).
		buf.Bytes()

	c, err := btsnoop.Parse(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, uint32(1), c.Version)
	assert.Equal(t, uint32(1002), c.Datalink)
	require.Len(t, c.Records, 2)

	assert.Equal(t, 1, c.Records[0].Index)
	assert.True(t, c.Records[0].Sent())
	assert.Equal(t, 2, c.Records[1].Index)
	assert.False(t, c.Records[1].Sent())
}

func TestParse_ToleratesTruncatedTail(t *testing.T) {
	// GOAL: Verify a capture cut off mid-record still yields the complete
	// records before the cut

	full := newCapture().
		record(0x01, acl(attWrite(0x000e, protocol.CmdInit))).
		record(0x00, acl(attNotify(0x000c, infoFrame(protocol.SubDeviceName, "DEV")))).
		buf.Bytes()

	c, err := btsnoop.Parse(bytes.NewReader(full[:len(full)-5]))
	require.NoError(t, err)
	require.Len(t, c.Records, 1)
	assert.True(t, c.Records[0].Sent())
}

func TestAnalyze_ExtractsTraffic(t *testing.T) {
	// GOAL: Verify the analyzer recovers the device address, the ATT events
	// and per-handle traffic from a realistic exchange
	//
	// TEST SCENARIO: Advertising report, init write, three info queries with
	// their notifications → address, 4 writes, 3 notifications, handle counts

	h := testutils.NewTestHelper(t)

	raw := newCapture().
		record(0x00, advReport()).
		record(0x01, acl(attWrite(0x000e, protocol.CmdInit))).
		record(0x01, acl(attWrite(0x000e, protocol.CmdReadDeviceName))).
		record(0x00, acl(attNotify(0x000c, infoFrame(protocol.SubDeviceName, "My Pump")))).
		record(0x01, acl(attWrite(0x000e, protocol.CmdReadSerialPart1))).
		record(0x00, acl(attNotify(0x000c, infoFrame(protocol.SubSerialPart1, "1234")))).
		record(0x01, acl(attWrite(0x000e, protocol.CmdReadSerialPart2))).
		record(0x00, acl(attNotify(0x000c, infoFrame(protocol.SubSerialPart2, "5678")))).
		buf.Bytes()

	c, err := btsnoop.Parse(bytes.NewReader(raw))
	require.NoError(t, err)

	s := c.Analyze(h.Logger)

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", s.DeviceAddress)
	assert.Equal(t, 8, s.Packets)
	assert.Equal(t, 4, s.Count(btsnoop.EventWrite))
	assert.Equal(t, 3, s.Count(btsnoop.EventNotification))
	assert.Equal(t, 4, s.HandleTraffic[0x000e])
	assert.Equal(t, 3, s.HandleTraffic[0x000c])
}

func TestAnalyze_ReplaysNotificationsThroughCodec(t *testing.T) {
	// GOAL: Verify captured notification values are decoded with the live
	// codec: classified fields land in the summary, serial parts recombine,
	// unknown payloads stay raw
	//
	// TEST SCENARIO: Name, both serial parts and one binary frame → decoded
	// map has device_name, serial_number and a raw_ entry

	h := testutils.NewTestHelper(t)

	raw := newCapture().
		record(0x00, acl(attNotify(0x000c, infoFrame(protocol.SubDeviceName, "My Pump")))).
		record(0x00, acl(attNotify(0x000c, infoFrame(protocol.SubSerialPart2, "5678")))).
		record(0x00, acl(attNotify(0x000c, infoFrame(protocol.SubSerialPart1, "1234")))).
		record(0x00, acl(attNotify(0x000c, []byte{0x24, 0x06, 0x00, 0x00, 0x02, 0x05, 0x01, 0x02, 0x03, 0x99, 0x98}))).
		buf.Bytes()

	c, err := btsnoop.Parse(bytes.NewReader(raw))
	require.NoError(t, err)

	s := c.Analyze(h.Logger)

	assert.Equal(t, "My Pump", s.Decoded[protocol.FieldDeviceName])
	assert.Equal(t, "12345678", s.Decoded[protocol.FieldSerialNumber])
	assert.Equal(t, "010203", s.Decoded["raw_02_05"])
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "write", btsnoop.EventWrite.String())
	assert.Equal(t, "notification", btsnoop.EventNotification.String())
	assert.Equal(t, "read-request", btsnoop.EventReadRequest.String())
	assert.Equal(t, "read-response", btsnoop.EventReadResponse.String())
}
