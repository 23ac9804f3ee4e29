package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"optiq/internal/config"
	"optiq/internal/rules"
	"optiq/internal/store/model"
)

func tuningCfg() config.TuningConfig {
	return config.TuningConfig{
		MinTriggersForDirection:      30,
		MinTriggersForRecommendation: 20,
		LoosenBelowAccuracy:          0.45,
		TightenAboveAccuracy:         0.65,
		LoosenFactor:                 0.8,
		TightenFactor:                1.2,
	}
}

func TestTunerAnalyze(t *testing.T) {
	tuner := NewTuner(rules.Default(), tuningCfg())

	t.Run("below direction minimum keeps", func(t *testing.T) {
		// 已结算 15 笔也不够：方向门槛看触发量。
		recs := tuner.Analyze([]model.RulePerformanceModel{
			{RuleID: rules.EntryMinConfidence, Triggers: 25, Wins: 12, Losses: 3},
		})
		assert.Len(t, recs, 1)
		assert.Equal(t, TuneKeep, recs[0].Direction)
		assert.Contains(t, recs[0].Rationale, "below direction minimum")
		assert.Zero(t, recs[0].Confidence)
	})

	t.Run("low accuracy loosens threshold", func(t *testing.T) {
		recs := tuner.Analyze([]model.RulePerformanceModel{
			{RuleID: rules.EntryMinConfidence, Triggers: 30, Wins: 12, Losses: 3, AvgPnlPct: 1.5},
		})
		rec := recs[0]
		assert.Equal(t, TuneLoosen, rec.Direction)
		assert.InDelta(t, 0.4, rec.Accuracy, 1e-9) // 12 / 30 次触发
		assert.Equal(t, 60.0, rec.CurrentThreshold)
		assert.InDelta(t, 48, rec.SuggestedThreshold, 1e-9) // 60 × 0.8
		assert.Greater(t, rec.Confidence, 0.0)
	})

	t.Run("unsettled triggers drag accuracy down", func(t *testing.T) {
		// 按已结算样本算准确率是 12/15=0.8，会把该松的规则判成 KEEP。
		recs := tuner.Analyze([]model.RulePerformanceModel{
			{RuleID: rules.EntryMinConfidence, Triggers: 60, Wins: 12, Losses: 3},
		})
		rec := recs[0]
		assert.InDelta(t, 0.2, rec.Accuracy, 1e-9) // 12 / 60
		assert.Equal(t, TuneLoosen, rec.Direction)
		assert.Equal(t, int64(15), rec.Samples)
	})

	t.Run("high accuracy with negative pnl tightens", func(t *testing.T) {
		recs := tuner.Analyze([]model.RulePerformanceModel{
			{RuleID: rules.EntryMinConfluence, Triggers: 40, Wins: 28, Losses: 12, AvgPnlPct: -0.8},
		})
		rec := recs[0]
		assert.Equal(t, TuneTighten, rec.Direction)
		assert.InDelta(t, 0.7, rec.Accuracy, 1e-9)
		assert.InDelta(t, 60, rec.SuggestedThreshold, 1e-9) // 50 × 1.2
	})

	t.Run("high accuracy with positive pnl keeps", func(t *testing.T) {
		recs := tuner.Analyze([]model.RulePerformanceModel{
			{RuleID: rules.EntryMinConfluence, Triggers: 40, Wins: 28, Losses: 12, AvgPnlPct: 2.1},
		})
		assert.Equal(t, TuneKeep, recs[0].Direction)
	})

	t.Run("mid-band accuracy keeps", func(t *testing.T) {
		recs := tuner.Analyze([]model.RulePerformanceModel{
			{RuleID: rules.EntryMinConfidence, Triggers: 40, Wins: 20, Losses: 16, AvgPnlPct: 0.5},
		})
		assert.Equal(t, TuneKeep, recs[0].Direction)
		assert.Equal(t, recs[0].CurrentThreshold, recs[0].SuggestedThreshold)
	})

	t.Run("output sorted by rule id", func(t *testing.T) {
		recs := tuner.Analyze([]model.RulePerformanceModel{
			{RuleID: rules.RegimeStability, Triggers: 5},
			{RuleID: rules.ConfluenceAlignment, Triggers: 5},
		})
		assert.Equal(t, rules.ConfluenceAlignment, recs[0].RuleID)
		assert.Equal(t, rules.RegimeStability, recs[1].RuleID)
	})
}

func TestTunerConfidence(t *testing.T) {
	tuner := NewTuner(rules.Default(), tuningCfg())

	t.Run("more triggers and bigger deviation raise confidence", func(t *testing.T) {
		mild := tuner.Analyze([]model.RulePerformanceModel{
			{RuleID: rules.EntryMinConfidence, Triggers: 30, Wins: 13, Losses: 17}, // acc 0.433
		})[0]
		severe := tuner.Analyze([]model.RulePerformanceModel{
			{RuleID: rules.EntryMinConfidence, Triggers: 100, Wins: 20, Losses: 80}, // acc 0.2
		})[0]
		assert.Equal(t, TuneLoosen, mild.Direction)
		assert.Equal(t, TuneLoosen, severe.Direction)
		assert.Greater(t, severe.Confidence, mild.Confidence)
		assert.LessOrEqual(t, severe.Confidence, 1.0)
	})
}

func TestTunerRecommendations(t *testing.T) {
	tuner := NewTuner(rules.Default(), tuningCfg())

	t.Run("filters keeps and thin triggers, sorts by confidence", func(t *testing.T) {
		recs := tuner.Recommendations([]model.RulePerformanceModel{
			// KEEP：触发量低于方向门槛。
			{RuleID: rules.ConfluenceAlignment, Triggers: 10, Wins: 5, Losses: 5},
			// LOOSEN 轻度偏离。
			{RuleID: rules.EntryMinConfidence, Triggers: 32, Wins: 14, Losses: 18},
			// LOOSEN 重度偏离，置信度更高。
			{RuleID: rules.EntryMinConfluence, Triggers: 75, Wins: 15, Losses: 60},
		})
		assert.Len(t, recs, 2)
		assert.Equal(t, rules.EntryMinConfluence, recs[0].RuleID)
		assert.Equal(t, rules.EntryMinConfidence, recs[1].RuleID)
	})

	t.Run("direction reached but recommendation floor not", func(t *testing.T) {
		strict := tuningCfg()
		strict.MinTriggersForDirection = 10
		strict.MinTriggersForRecommendation = 40
		tight := NewTuner(rules.Default(), strict)
		recs := tight.Recommendations([]model.RulePerformanceModel{
			// acc 0.25，方向 LOOSEN 但触发 20 < 40。
			{RuleID: rules.EntryMinConfidence, Triggers: 20, Wins: 5, Losses: 15},
		})
		assert.Empty(t, recs)
	})
}
