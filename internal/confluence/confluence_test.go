package confluence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"optiq/internal/config"
	"optiq/internal/signal"
)

func confCfg() config.ConfluenceConfig {
	return config.ConfluenceConfig{
		MinScore:           50,
		MinAgreeingSources: 2,
		MajorityMinSources: 2,
		CredibilityEnabled: true,
		CredibilitySource:  signal.SourceGamma,
	}
}

func score(source string, dir signal.Direction, value, weight float64) signal.Score {
	return signal.Score{Source: source, Direction: dir, Value: value, Weight: weight}
}

func TestAggregate(t *testing.T) {
	cfg := confCfg()

	t.Run("weighted average with majority", func(t *testing.T) {
		res := Aggregate([]signal.Score{
			score(signal.SourceTradeSignal, signal.Long, 80, 0.3),
			score(signal.SourceGamma, signal.Long, 60, 0.25),
			score(signal.SourceMarket, signal.Neutral, 50, 0.1),
		}, cfg)
		expected := (80*0.3 + 60*0.25 + 50*0.1) / 0.65
		assert.InDelta(t, expected, res.Score, 1e-9)
		assert.Equal(t, signal.Long, res.MajorityDirection)
		assert.Equal(t, 2, res.ConfluenceCount)
		assert.True(t, res.IsAligned)
	})

	t.Run("zero weights fall back to plain mean", func(t *testing.T) {
		res := Aggregate([]signal.Score{
			score(signal.SourceTradeSignal, signal.Long, 80, 0),
			score(signal.SourceGamma, signal.Long, 40, 0),
		}, cfg)
		assert.InDelta(t, 60, res.Score, 1e-9)
	})

	t.Run("tie is neutral", func(t *testing.T) {
		res := Aggregate([]signal.Score{
			score(signal.SourceTradeSignal, signal.Long, 70, 0.3),
			score(signal.SourceGamma, signal.Short, 70, 0.25),
		}, cfg)
		assert.Equal(t, signal.Neutral, res.MajorityDirection)
	})

	t.Run("empty scores", func(t *testing.T) {
		res := Aggregate(nil, cfg)
		assert.Zero(t, res.Score)
		assert.False(t, res.IsAligned)
	})
}

func TestResolve(t *testing.T) {
	cfg := confCfg()

	t.Run("no conflict when all agree", func(t *testing.T) {
		res := Resolve([]signal.Score{
			score(signal.SourceTradeSignal, signal.Long, 80, 0.3),
			score(signal.SourceGamma, signal.Long, 60, 0.25),
		}, signal.Long, cfg)
		assert.False(t, res.Conflicted)
		assert.Equal(t, MethodNone, res.Method)
		assert.Equal(t, signal.Long, res.ResolvedDirection)
	})

	t.Run("two long one short resolves to majority", func(t *testing.T) {
		res := Resolve([]signal.Score{
			score(signal.SourceTradeSignal, signal.Long, 80, 0.3),
			score(signal.SourceGamma, signal.Long, 60, 0.25),
			score(signal.SourcePositioning, signal.Short, 55, 0.15),
		}, signal.Long, cfg)
		assert.True(t, res.Conflicted)
		assert.Equal(t, MethodMajority, res.Method)
		assert.Equal(t, signal.Long, res.ResolvedDirection)
		assert.Equal(t, []string{signal.SourcePositioning}, res.OverriddenSources)
		assert.False(t, res.Penalized)
	})

	t.Run("credibility override on even split", func(t *testing.T) {
		res := Resolve([]signal.Score{
			score(signal.SourceTradeSignal, signal.Long, 80, 0.3),
			score(signal.SourceGamma, signal.Short, 70, 0.25),
		}, signal.Long, cfg)
		assert.True(t, res.Conflicted)
		assert.Equal(t, MethodCredibility, res.Method)
		assert.Equal(t, signal.Short, res.ResolvedDirection)
	})

	t.Run("unresolved conflict falls back with penalty", func(t *testing.T) {
		noCred := cfg
		noCred.CredibilityEnabled = false
		res := Resolve([]signal.Score{
			score(signal.SourceTradeSignal, signal.Long, 80, 0.3),
			score(signal.SourceTrend, signal.Short, 70, 0.2),
		}, signal.Long, noCred)
		assert.True(t, res.Conflicted)
		assert.Equal(t, MethodNone, res.Method)
		assert.Equal(t, signal.Long, res.ResolvedDirection)
		assert.True(t, res.Penalized)
	})
}
