package pump_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/grundble/internal/protocol"
	"github.com/srg/grundble/internal/pump"
	"github.com/srg/grundble/internal/testutils"
)

func TestReadDeviceInfo_ToleratesMissingAndFailing(t *testing.T) {
	// GOAL: Verify standard info reads treat missing characteristics and read
	// failures as absence of the field, never as an abort
	//
	// TEST SCENARIO: Manufacturer readable, model read fails, the rest absent
	// → no error, only manufacturer stored

	h := testutils.NewTestHelper(t)
	dialer := testutils.NewFakeDialer(func() *testutils.FakeTransport {
		return testutils.NewFakeTransport().
			WithCharacteristic("2a29", pump.PropRead).
			WithCharacteristic("2a24", pump.PropRead).
			WithCharacteristic(pumpChar, pump.PropNotify|pump.PropWrite).
			WithValue("2a29", []byte("Grundfos")).
			WithReadError("2a24", assert.AnError)
	})
	p := pump.NewPump(dialer, testOptions(), h.Logger)
	require.NoError(t, p.Connect(context.Background()))

	require.NoError(t, p.ReadDeviceInfo())

	data := p.Data()
	assert.Equal(t, "Grundfos", data[protocol.FieldManufacturer])
	_, hasModel := data[protocol.FieldModel]
	assert.False(t, hasModel)
	_, hasFirmware := data[protocol.FieldFirmware]
	assert.False(t, hasFirmware)
}

func TestReadDeviceInfo_MatchesLongFormUUIDs(t *testing.T) {
	// GOAL: Verify characteristics advertised with full 128-bit SIG UUIDs are
	// matched against the short-form table

	h := testutils.NewTestHelper(t)
	dialer := testutils.NewFakeDialer(func() *testutils.FakeTransport {
		return testutils.NewFakeTransport().
			WithCharacteristic("00002a29-0000-1000-8000-00805f9b34fb", pump.PropRead).
			WithCharacteristic(pumpChar, pump.PropNotify|pump.PropWrite).
			WithValue("00002a29-0000-1000-8000-00805f9b34fb", []byte("Grundfos"))
	})
	p := pump.NewPump(dialer, testOptions(), h.Logger)
	require.NoError(t, p.Connect(context.Background()))

	require.NoError(t, p.ReadDeviceInfo())
	assert.Equal(t, "Grundfos", p.Data()[protocol.FieldManufacturer])
}

func TestReadDeviceInfo_RequiresConnection(t *testing.T) {
	h := testutils.NewTestHelper(t)
	p := pump.NewPump(testutils.NewFakeDialer(newInfoTransport), testOptions(), h.Logger)

	err := p.ReadDeviceInfo()
	assert.ErrorIs(t, err, pump.ErrNotConnected)
}

func TestReadCustomDeviceInfo_ToleratesSilence(t *testing.T) {
	// GOAL: Verify the custom info sequence runs to completion when the
	// device never answers; timeouts stay local, fields stay unpopulated
	//
	// TEST SCENARIO: No scripted responses → all three queries time out, no
	// error, all commands still written in capture order

	h := testutils.NewTestHelper(t)
	dialer := testutils.NewFakeDialer(func() *testutils.FakeTransport {
		return testutils.NewFakeTransport().
			WithCharacteristic(pumpChar, pump.PropNotify|pump.PropWrite)
	})
	opts := testOptions()
	opts.CommandTimeout = 10 * time.Millisecond
	p := pump.NewPump(dialer, opts, h.Logger)
	require.NoError(t, p.Connect(context.Background()))

	require.NoError(t, p.ReadCustomDeviceInfo())

	writes := dialer.LastTransport().Writes()
	require.Len(t, writes, 4)
	assert.Equal(t, protocol.CmdInit, writes[0])

	data := p.Data()
	_, hasName := data[protocol.FieldDeviceName]
	assert.False(t, hasName)
	_, hasSerial := data[protocol.FieldSerialNumber]
	assert.False(t, hasSerial)
}

func TestReadCustomDeviceInfo_RequiresConnection(t *testing.T) {
	h := testutils.NewTestHelper(t)
	p := pump.NewPump(testutils.NewFakeDialer(newInfoTransport), testOptions(), h.Logger)

	err := p.ReadCustomDeviceInfo()
	assert.ErrorIs(t, err, pump.ErrNotConnected)
}
