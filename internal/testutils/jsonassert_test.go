package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONAsserter(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		actual   string
		expected string
		equal    bool
	}{
		{"key order does not matter", nil, `{"a":1,"b":2}`, `{"b":2,"a":1}`, true},
		{"extra keys ignored by default", nil, `{"a":1,"b":2}`, `{"a":1}`, true},
		{"extra keys significant when disabled", []Option{WithIgnoreExtraKeys(false)}, `{"a":1,"b":2}`, `{"a":1}`, false},
		{"presence placeholder matches any value", nil, `{"a":"2026-01-01T00:00:00Z"}`, `{"a":"<<PRESENCE>>"}`, true},
		{"presence placeholder requires the key", nil, `{}`, `{"a":"<<PRESENCE>>"}`, false},
		{"root arrays compared element-wise", nil, `[{"id":"x","n":1}]`, `[{"id":"x"}]`, true},
		{"root array mismatch", nil, `[{"id":"y"}]`, `[{"id":"x"}]`, false},
		{"ignored fields", []Option{WithIgnoredFields("updated_at")}, `{"id":"x","updated_at":1}`, `{"id":"x","updated_at":2}`, true},
		{"value mismatch", nil, `{"a":1}`, `{"a":2}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			ok := NewJSONAsserter(rec, tt.opts...).Assert(tt.actual, tt.expected)

			assert.Equal(t, tt.equal, ok, "errors: %v", rec.errors)
		})
	}
}

func TestJSONAsserter_InvalidJSON(t *testing.T) {
	ja := NewJSONAsserter(t)

	assert.Contains(t, ja.Diff(`{`, `{}`), "invalid actual JSON")
	assert.Contains(t, ja.Diff(`{}`, `{`), "invalid expected JSON")
}

func TestMustJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, MustJSON(map[string]int{"a": 1}))
	assert.Panics(t, func() { MustJSON(make(chan int)) })
}
