package pump_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/grundble/internal/pump"
	"github.com/srg/grundble/internal/testutils"
)

func char(uuid string, props pump.Properties) pump.Characteristic {
	return testutils.NewFakeCharacteristic(uuid, props)
}

func TestSelectChannels_CombinedPreferred(t *testing.T) {
	// GOAL: Verify a notify+write characteristic is always preferred over any
	// split pair, even when split candidates come first in discovery order
	//
	// TEST SCENARIO: Discovery list with separate notify and write before a
	// combined candidate → combined chosen for both roles

	h := testutils.NewTestHelper(t)
	chars := []pump.Characteristic{
		char("aaaa", pump.PropNotify),
		char("bbbb", pump.PropWrite),
		char("cccc", pump.PropNotify|pump.PropWrite),
	}

	sel := pump.SelectChannels(chars, h.Logger)

	require.NotNil(t, sel.Notify)
	require.NotNil(t, sel.Write)
	assert.True(t, sel.Combined())
	assert.Equal(t, "cccc", sel.Notify.UUID())
	assert.Equal(t, "cccc", sel.Write.UUID())
}

func TestSelectChannels_SplitPair(t *testing.T) {
	// GOAL: Verify fallback to the first notify and first write capable
	// characteristics when no combined candidate exists
	//
	// TEST SCENARIO: Two notify and two write candidates → first of each
	// chosen, in discovery order

	h := testutils.NewTestHelper(t)
	chars := []pump.Characteristic{
		char("1111", pump.PropRead),
		char("2222", pump.PropNotify),
		char("3333", pump.PropNotify),
		char("4444", pump.PropWriteWithoutResponse),
		char("5555", pump.PropWrite),
	}

	sel := pump.SelectChannels(chars, h.Logger)

	require.NotNil(t, sel.Notify)
	require.NotNil(t, sel.Write)
	assert.False(t, sel.Combined())
	assert.Equal(t, "2222", sel.Notify.UUID())
	assert.Equal(t, "4444", sel.Write.UUID())
}

func TestSelectChannels_Deterministic(t *testing.T) {
	// GOAL: Verify repeated selection over an identical discovery list always
	// yields the same choice
	//
	// TEST SCENARIO: Run selection many times on one list → identical result

	h := testutils.NewTestHelper(t)
	chars := []pump.Characteristic{
		char("2222", pump.PropNotify),
		char("4444", pump.PropWrite),
		char("6666", pump.PropNotify|pump.PropWriteWithoutResponse),
	}

	first := pump.SelectChannels(chars, h.Logger)
	for i := 0; i < 50; i++ {
		sel := pump.SelectChannels(chars, h.Logger)
		assert.Equal(t, first.Notify.UUID(), sel.Notify.UUID())
		assert.Equal(t, first.Write.UUID(), sel.Write.UUID())
	}
	assert.True(t, first.Combined())
	assert.Equal(t, "6666", first.Notify.UUID())
}

func TestSelectChannels_MissingRoles(t *testing.T) {
	// GOAL: Verify missing capabilities produce nil channels instead of
	// selection-time errors
	//
	// TEST SCENARIO: Lists lacking notify, write, or both → matching nils

	h := testutils.NewTestHelper(t)

	tests := []struct {
		name       string
		chars      []pump.Characteristic
		wantNotify bool
		wantWrite  bool
	}{
		{
			name:      "write only",
			chars:     []pump.Characteristic{char("aaaa", pump.PropWrite)},
			wantWrite: true,
		},
		{
			name:       "notify only",
			chars:      []pump.Characteristic{char("bbbb", pump.PropNotify)},
			wantNotify: true,
		},
		{
			name:  "read only",
			chars: []pump.Characteristic{char("cccc", pump.PropRead)},
		},
		{
			name: "empty discovery list",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := pump.SelectChannels(tt.chars, h.Logger)
			assert.Equal(t, tt.wantNotify, sel.Notify != nil)
			assert.Equal(t, tt.wantWrite, sel.Write != nil)
			assert.False(t, sel.Combined())
		})
	}
}

func TestProperties_Capabilities(t *testing.T) {
	// GOAL: Verify the capability bitset answers role queries correctly
	//
	// TEST SCENARIO: Probe each capability combination

	assert.True(t, pump.PropRead.CanRead())
	assert.True(t, pump.PropWrite.CanWrite())
	assert.True(t, pump.PropWriteWithoutResponse.CanWrite())
	assert.True(t, pump.PropNotify.CanNotify())

	assert.False(t, pump.PropNotify.CanWrite())
	assert.False(t, pump.PropWrite.CanNotify())
	assert.False(t, pump.PropIndicate.CanNotify())

	combo := pump.PropRead | pump.PropWrite | pump.PropNotify
	assert.Equal(t, "read, write, notify", combo.String())
}
