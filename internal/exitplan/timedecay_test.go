package exitplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateTimeDecay(t *testing.T) {
	cfg := exitCfg()

	t.Run("far from expiry", func(t *testing.T) {
		td := EvaluateTimeDecay(10, -5, cfg)
		assert.Equal(t, UrgencyNone, td.Urgency)
		assert.Equal(t, 1.0, td.Target1Multiplier)
		assert.Equal(t, 1.0, td.Target2Multiplier)
	})

	t.Run("urgent window profitable", func(t *testing.T) {
		td := EvaluateTimeDecay(3, 8, cfg)
		assert.Equal(t, UrgencyMedium, td.Urgency)
		assert.Equal(t, 0.8, td.Target1Multiplier)
		assert.Equal(t, 0.6, td.Target2Multiplier)
	})

	t.Run("urgent window losing", func(t *testing.T) {
		td := EvaluateTimeDecay(2, -3, cfg)
		assert.Equal(t, UrgencyHigh, td.Urgency)
		assert.Equal(t, 0.5, td.Target1Multiplier)
		assert.Equal(t, 0.3, td.Target2Multiplier)
	})

	t.Run("critical losing closes immediately", func(t *testing.T) {
		td := EvaluateTimeDecay(1, -5, cfg)
		assert.Equal(t, UrgencyCritical, td.Urgency)
		assert.Equal(t, 0.0, td.Target1Multiplier)
		assert.Contains(t, td.Action, "immediately")
	})

	t.Run("critical profitable takes profit", func(t *testing.T) {
		td := EvaluateTimeDecay(0, 12, cfg)
		assert.Equal(t, UrgencyHigh, td.Urgency)
		assert.Equal(t, 0.3, td.Target1Multiplier)
		assert.Equal(t, 0.0, td.Target2Multiplier)
	})
}
