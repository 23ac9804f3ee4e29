package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeOverrides(t *testing.T) {
	t.Run("nil overrides returns clone", func(t *testing.T) {
		base := Default()
		merged, err := MergeOverrides(base, nil)
		assert.NoError(t, err)
		assert.NotSame(t, base, merged)
		assert.Equal(t, base.Engine.MinConfidenceToExecute, merged.Engine.MinConfidenceToExecute)
	})

	t.Run("override does not mutate base", func(t *testing.T) {
		base := Default()
		before := base.Engine.MinConfidenceToExecute
		merged, err := MergeOverrides(base, map[string]any{
			"engine": map[string]any{"min_confidence_to_execute": 80},
		})
		assert.NoError(t, err)
		assert.Equal(t, 80.0, merged.Engine.MinConfidenceToExecute)
		assert.Equal(t, before, base.Engine.MinConfidenceToExecute)
	})

	t.Run("weights map is deep copied", func(t *testing.T) {
		base := Default()
		merged, err := MergeOverrides(base, nil)
		assert.NoError(t, err)
		merged.Engine.Weights["gamma"] = 0.99
		assert.NotEqual(t, 0.99, base.Engine.Weights["gamma"])
	})

	t.Run("weakly typed values accepted", func(t *testing.T) {
		merged, err := MergeOverrides(Default(), map[string]any{
			"exit": map[string]any{"stop_atr_multiplier": "2.5"},
		})
		assert.NoError(t, err)
		assert.Equal(t, 2.5, merged.Exit.StopATRMultiplier)
	})

	t.Run("invalid merged config rejected", func(t *testing.T) {
		_, err := MergeOverrides(Default(), map[string]any{
			"sizing": map[string]any{"max_risk_per_trade_percent": -1},
		})
		assert.Error(t, err)
	})

	t.Run("nil base rejected", func(t *testing.T) {
		_, err := MergeOverrides(nil, nil)
		assert.Error(t, err)
	})
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 60.0, cfg.Engine.MinConfidenceToExecute)
	assert.Equal(t, 50.0, cfg.Engine.MinConfluenceScore)
	assert.Equal(t, 900, cfg.Regime.FlipCooldownSeconds)
	assert.Equal(t, 2.0, cfg.Sizing.MaxRiskPerTradePercent)
	assert.Equal(t, 2.0, cfg.Exit.StopATRMultiplier)
	assert.Equal(t, 15.0, cfg.Exit.MinStopPercent)
	assert.Equal(t, 40.0, cfg.Exit.MaxStopPercent)
	assert.Equal(t, 3, cfg.Exit.UrgentDTE)
	assert.Equal(t, 1, cfg.Exit.CriticalDTE)
	assert.InDelta(t, 1.0, sumWeights(cfg.Engine.Weights), 1e-9)
}

func sumWeights(w map[string]float64) float64 {
	var total float64
	for _, v := range w {
		total += v
	}
	return total
}
