package convert

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumber(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"float64", 12.5, 12.5, true},
		{"int", 7, 7, true},
		{"json number", json.Number("3.25"), 3.25, true},
		{"numeric string", " 82.5 ", 82.5, true},
		{"non-numeric string", "high", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Number(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNumberFromKeys(t *testing.T) {
	m := map[string]any{"strength": "high", "score": 64, "confidence": 0.8}

	t.Run("first parsable key wins", func(t *testing.T) {
		got, ok := NumberFromKeys(m, "strength", "score", "confidence")
		assert.True(t, ok)
		assert.Equal(t, 64.0, got)
	})

	t.Run("no candidate parses", func(t *testing.T) {
		_, ok := NumberFromKeys(m, "strength", "missing")
		assert.False(t, ok)
	})

	t.Run("empty map", func(t *testing.T) {
		_, ok := NumberFromKeys(nil, "score")
		assert.False(t, ok)
	})
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-5, 0, 100))
	assert.Equal(t, 100.0, Clamp(250, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
}
