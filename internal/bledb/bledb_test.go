package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"180f", "180f"},
		{"0x180F", "180f"},
		{"0000180f-0000-1000-8000-00805f9b34fb", "180f"},
		{"0000180F00001000800000805F9B34FB", "180f"},
		{"{00002a19-0000-1000-8000-00805f9b34fb}", "2a19"},
		{"7EAFD361-F150-4785-B307-47D34ED52C3C", "7eafd361f1504785b30747d34ed52c3c"},
		{"aa00180f-0000-1000-8000-00805f9b34fb", "aa00180f00001000800000805f9b34fb"},
		{"not-a-uuid", ""},
		{"  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestLookup(t *testing.T) {
	// GOAL: Verify the UWAVE profile resolves to names in every UUID notation
	//
	// TEST SCENARIO: short, full-SIG and custom 128-bit forms → same name; unknown → ""

	assert.Equal(t, "Battery Service", LookupService("0000180F-0000-1000-8000-00805F9B34FB"))
	assert.Equal(t, "Generic Access", LookupService("0x1800"))
	assert.Equal(t, "UWAVE Measurement", LookupService("7eafd361-f150-4785-b307-47d34ed52c3c"))
	assert.Equal(t, "", LookupService("ffff"))

	assert.Equal(t, "Device Name", LookupCharacteristic("2A00"))
	assert.Equal(t, "Battery Level", LookupCharacteristic("00002a19-0000-1000-8000-00805f9b34fb"))
	assert.Equal(t, "UWAVE Measurement Value", LookupCharacteristic("7EAFD361F1514785B30747D34ED52C3C"))
	assert.Equal(t, "", LookupCharacteristic("1800"), "service UUIDs MUST NOT resolve as characteristics")
}

func TestEqualUUID(t *testing.T) {
	assert.True(t, EqualUUID("180f", "0000180F-0000-1000-8000-00805F9B34FB"))
	assert.True(t, EqualUUID("7eafd361-f151-4785-b307-47d34ed52c3c", "7EAFD361F1514785B30747D34ED52C3C"))
	assert.False(t, EqualUUID("180f", "1800"))
	assert.False(t, EqualUUID("", ""))
}
