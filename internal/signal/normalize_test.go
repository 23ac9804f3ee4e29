package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultWeights() map[string]float64 {
	return map[string]float64{
		SourceTradeSignal: 0.30,
		SourceGamma:       0.25,
		SourceTrend:       0.20,
		SourcePositioning: 0.15,
		SourceMarket:      0.10,
	}
}

func TestNormalize(t *testing.T) {
	t.Run("absent sources produce no scores", func(t *testing.T) {
		scores := Normalize(Bundle{
			Signal: TradeSignal{Ticker: "SPY", Direction: Long, Strength: 75},
		}, defaultWeights())
		assert.Len(t, scores, 1)
		assert.Equal(t, SourceTradeSignal, scores[0].Source)
	})

	t.Run("all sources present", func(t *testing.T) {
		scores := Normalize(Bundle{
			Signal:      TradeSignal{Ticker: "SPY", Direction: Long, Strength: 75},
			Gamma:       &GammaExposure{SpotPrice: 103, FlipPoint: 100, DealerPositioning: DealerLongGamma, Confidence: 1},
			Trend:       &TrendBias{Daily: Long, FourHour: Long, Hourly: Short},
			Market:      &MarketContext{VIX: 14, VIXRegime: VolLow},
			Positioning: &Positioning{PutCallRatio: 1.4},
		}, defaultWeights())
		assert.Len(t, scores, 5)
	})
}

func TestScoreGamma(t *testing.T) {
	t.Run("spot above flip is long", func(t *testing.T) {
		s := scoreGamma(GammaExposure{SpotPrice: 103, FlipPoint: 100, Confidence: 1}, 0.25)
		assert.Equal(t, Long, s.Direction)
		// 距离 2.91% / 3% → 97.1 分。
		assert.InDelta(t, 97.1, s.Value, 0.2)
	})

	t.Run("short gamma amplifies", func(t *testing.T) {
		base := scoreGamma(GammaExposure{SpotPrice: 101, FlipPoint: 100, Confidence: 1}, 0.25)
		amp := scoreGamma(GammaExposure{SpotPrice: 101, FlipPoint: 100, DealerPositioning: DealerShortGamma, Confidence: 1}, 0.25)
		assert.Greater(t, amp.Value, base.Value)
	})

	t.Run("confidence discounts", func(t *testing.T) {
		full := scoreGamma(GammaExposure{SpotPrice: 103, FlipPoint: 100, Confidence: 1}, 0.25)
		half := scoreGamma(GammaExposure{SpotPrice: 103, FlipPoint: 100, Confidence: 0.5}, 0.25)
		assert.InDelta(t, full.Value/2, half.Value, 1e-9)
	})

	t.Run("missing spot or flip is measured neutral", func(t *testing.T) {
		s := scoreGamma(GammaExposure{SpotPrice: 0, FlipPoint: 100}, 0.25)
		assert.Equal(t, Neutral, s.Direction)
		assert.Zero(t, s.Value)
	})
}

func TestScoreTrend(t *testing.T) {
	t.Run("full alignment", func(t *testing.T) {
		s := scoreTrend(TrendBias{Daily: Long, FourHour: Long, Hourly: Long}, 0.2)
		assert.Equal(t, Long, s.Direction)
		assert.InDelta(t, 100, s.Value, 1e-9)
	})

	t.Run("two of three", func(t *testing.T) {
		s := scoreTrend(TrendBias{Daily: Short, FourHour: Short, Hourly: Long}, 0.2)
		assert.Equal(t, Short, s.Direction)
		assert.InDelta(t, 66.7, s.Value, 0.1)
	})

	t.Run("split is neutral", func(t *testing.T) {
		s := scoreTrend(TrendBias{Daily: Long, FourHour: Short, Hourly: Neutral}, 0.2)
		assert.Equal(t, Neutral, s.Direction)
		assert.Zero(t, s.Value)
	})
}

func TestScorePositioning(t *testing.T) {
	t.Run("high pcr is contrarian long", func(t *testing.T) {
		s := scorePositioning(Positioning{PutCallRatio: 1.4}, 0.15)
		assert.Equal(t, Long, s.Direction)
		assert.InDelta(t, 50, s.Value, 1e-9) // |1.4-1|×125
	})

	t.Run("low pcr is contrarian short", func(t *testing.T) {
		s := scorePositioning(Positioning{PutCallRatio: 0.6}, 0.15)
		assert.Equal(t, Short, s.Direction)
		assert.InDelta(t, 50, s.Value, 1e-9)
	})

	t.Run("mid range is neutral", func(t *testing.T) {
		s := scorePositioning(Positioning{PutCallRatio: 1.0}, 0.15)
		assert.Equal(t, Neutral, s.Direction)
	})
}

func TestHydrateFromRaw(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"symbol":    "qqq",
		"sentiment": "bullish",
		"score":     72.5,
		"strategy":  "gamma_squeeze",
	})
	s := TradeSignal{Raw: raw}
	s.HydrateFromRaw()
	assert.Equal(t, "QQQ", s.Ticker)
	assert.Equal(t, Long, s.Direction)
	assert.Equal(t, 72.5, s.Strength)
	assert.Equal(t, "gamma_squeeze", s.Strategy)

	t.Run("explicit fields win over raw", func(t *testing.T) {
		s := TradeSignal{Ticker: "SPY", Direction: Short, Strength: 10, Raw: raw}
		s.HydrateFromRaw()
		assert.Equal(t, "SPY", s.Ticker)
		assert.Equal(t, Short, s.Direction)
	})

	t.Run("string-typed strength is coerced", func(t *testing.T) {
		raw, _ := json.Marshal(map[string]any{"ticker": "SPY", "strength": "82.5"})
		s := TradeSignal{Raw: raw}
		s.HydrateFromRaw()
		assert.Equal(t, 82.5, s.Strength)
	})

	t.Run("non-numeric strength candidates are skipped", func(t *testing.T) {
		raw, _ := json.Marshal(map[string]any{"strength": "high", "score": 64})
		s := TradeSignal{Raw: raw}
		s.HydrateFromRaw()
		assert.Equal(t, 64.0, s.Strength)
	})
}

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{
		"LONG": Long, "bullish": Long, "CALL": Long, "buy": Long,
		"short": Short, "BEARISH": Short, "put": Short, "SELL": Short,
		"neutral": Neutral, "flat": Neutral,
	}
	for raw, want := range cases {
		got, ok := ParseDirection(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseDirection("sideways")
	assert.False(t, ok)
}
