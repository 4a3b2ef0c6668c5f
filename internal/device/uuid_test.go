package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit UUID", input: "2A19", expected: "2a19"},
		{name: "16-bit UUID with 0x prefix", input: "0x180F", expected: "180f"},
		{name: "Full Bluetooth SIG UUID", input: "00001800-0000-1000-8000-00805f9b34fb", expected: "1800"},
		{name: "UWAVE service", input: MeasurementServiceUUID, expected: "7eafd361f1504785b30747d34ed52c3c"},
		{name: "UWAVE characteristic", input: MeasurementCharacteristicUUID, expected: "7eafd361f1514785b30747d34ed52c3c"},
		{name: "Custom UUID - wrong prefix", input: "AA002902-0000-1000-8000-00805f9b34fb", expected: "aa00290200001000800000805f9b34fb"},
		{name: "Empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestNotFoundErrorMessage(t *testing.T) {
	// GOAL: Verify lookup failures name the attribute in a readable way
	//
	// TEST SCENARIO: known and unknown UUIDs in one- and two-UUID errors → names resolved where known

	tests := []struct {
		name     string
		err      *NotFoundError
		expected string
	}{
		{
			name:     "no uuid",
			err:      &NotFoundError{Resource: "service"},
			expected: "service not found",
		},
		{
			name:     "known service",
			err:      &NotFoundError{Resource: "service", UUIDs: []string{"0000180F-0000-1000-8000-00805F9B34FB"}},
			expected: `service "180f" (Battery Service) not found`,
		},
		{
			name:     "characteristic in service",
			err:      &NotFoundError{Resource: "characteristic", UUIDs: []string{MeasurementServiceUUID, "abcd"}},
			expected: `characteristic "abcd" not found in service "7eafd361f1504785b30747d34ed52c3c" (UWAVE Measurement)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.expected)
		})
	}
}

func TestFilterMatches(t *testing.T) {
	f := Filter{Services: []string{MeasurementServiceUUID}, Names: []string{AdvertisedName}}

	assert.True(t, f.Matches("UWAVE", nil), "advertised name MUST match")
	assert.True(t, f.Matches("other", []string{"7EAFD361F1504785B30747D34ED52C3C"}), "service UUID MUST match in any notation")
	assert.False(t, f.Matches("other", []string{"180f"}))
	assert.True(t, Filter{}.Matches("", nil), "empty filter MUST match everything")
}

func TestFilterExcludes(t *testing.T) {
	f := Filter{Exclude: []string{"aa:bb:cc:dd:ee:01"}}

	assert.True(t, f.Excludes("AA:BB:CC:DD:EE:01"), "exclusion MUST ignore address case")
	assert.False(t, f.Excludes("AA:BB:CC:DD:EE:02"))
	assert.False(t, Filter{}.Excludes("AA:BB:CC:DD:EE:01"))
}
