package signal

import (
	"fmt"
	"math"

	"optiq/internal/pkg/convert"
)

// 中文说明：
// Normalize 把异构来源统一到 0-100 评分 + 方向。纯函数：
// 不触发 I/O，不修改输入。缺席来源直接跳过，不补 NEUTRAL。

// Normalize 为 bundle 中每个在场来源产出一条 Score。
// weights 缺失的来源权重按 0 处理（仍产出评分，便于审计）。
func Normalize(b Bundle, weights map[string]float64) []Score {
	scores := make([]Score, 0, 5)
	scores = append(scores, scoreTradeSignal(b.Signal, weights[SourceTradeSignal]))
	if b.Gamma != nil {
		scores = append(scores, scoreGamma(*b.Gamma, weights[SourceGamma]))
	}
	if b.Trend != nil {
		scores = append(scores, scoreTrend(*b.Trend, weights[SourceTrend]))
	}
	if b.Market != nil {
		scores = append(scores, scoreMarket(*b.Market, weights[SourceMarket]))
	}
	if b.Positioning != nil {
		scores = append(scores, scorePositioning(*b.Positioning, weights[SourcePositioning]))
	}
	return scores
}

func scoreTradeSignal(s TradeSignal, weight float64) Score {
	dir := s.Direction
	if dir == "" {
		dir = Neutral
	}
	value := convert.Clamp(s.Strength, 0, 100)
	return Score{
		Source:    SourceTradeSignal,
		Direction: dir,
		Value:     value,
		Weight:    weight,
		Reason:    fmt.Sprintf("primary signal %s strength %.0f", dir, value),
	}
}

// scoreGamma：现价相对 flip point 的位置给方向，距离与 NetGamma
// 幅度给强度。做市商 short gamma 会放大趋势，额外加成。
func scoreGamma(g GammaExposure, weight float64) Score {
	if g.SpotPrice <= 0 || g.FlipPoint <= 0 {
		return Score{Source: SourceGamma, Direction: Neutral, Value: 0, Weight: weight,
			Reason: "gamma snapshot missing spot/flip, treated as measured neutral"}
	}
	distPct := (g.SpotPrice - g.FlipPoint) / g.SpotPrice
	dir := Neutral
	switch {
	case distPct > 0:
		dir = Long
	case distPct < 0:
		dir = Short
	}
	// 距 flip point 3% 以上视为满格距离。
	value := convert.Clamp(math.Abs(distPct)/0.03, 0, 1) * 100
	if g.DealerPositioning == DealerShortGamma {
		value = convert.Clamp(value*1.2, 0, 100)
	}
	if g.Confidence > 0 {
		value *= convert.Clamp(g.Confidence, 0, 1)
	}
	return Score{
		Source:    SourceGamma,
		Direction: dir,
		Value:     value,
		Weight:    weight,
		Reason: fmt.Sprintf("spot %.2f vs flip %.2f (%.2f%%), dealers %s",
			g.SpotPrice, g.FlipPoint, distPct*100, g.DealerPositioning),
	}
}

// scoreTrend：三个周期投票，多数方向胜出，一致度决定强度。
func scoreTrend(t TrendBias, weight float64) Score {
	votes := map[Direction]int{}
	for _, d := range []Direction{t.Daily, t.FourHour, t.Hourly} {
		if d == "" {
			d = Neutral
		}
		votes[d]++
	}
	dir, count := Neutral, 0
	for _, d := range []Direction{Long, Short} {
		if votes[d] > count {
			dir, count = d, votes[d]
		}
	}
	if count == 0 || votes[Long] == votes[Short] {
		return Score{Source: SourceTrend, Direction: Neutral, Value: 0, Weight: weight,
			Reason: "timeframes mixed or neutral"}
	}
	value := float64(count) / 3 * 100
	return Score{
		Source:    SourceTrend,
		Direction: dir,
		Value:     value,
		Weight:    weight,
		Reason:    fmt.Sprintf("%d/3 timeframes %s (D=%s 4H=%s 1H=%s)", count, dir, t.Daily, t.FourHour, t.Hourly),
	}
}

// scoreMarket：波动率上下文不给方向，只给环境友好度。
func scoreMarket(m MarketContext, weight float64) Score {
	value := 50.0
	switch m.VIXRegime {
	case VolLow:
		value = 70
	case VolHigh:
		value = 30
	}
	return Score{
		Source:    SourceMarket,
		Direction: Neutral,
		Value:     value,
		Weight:    weight,
		Reason:    fmt.Sprintf("VIX %.1f regime %s, ATR pctile %.0f", m.VIX, m.VIXRegime, m.ATRPercentile),
	}
}

// scorePositioning：put/call ratio 偏离 1.0 给出逆向情绪方向。
// PCR 高（恐慌）视为看多燃料，低（贪婪）视为看空燃料。
func scorePositioning(p Positioning, weight float64) Score {
	if p.PutCallRatio <= 0 {
		return Score{Source: SourcePositioning, Direction: Neutral, Value: 0, Weight: weight,
			Reason: "put/call ratio unavailable, treated as measured neutral"}
	}
	dir := Neutral
	switch {
	case p.PutCallRatio >= 1.2:
		dir = Long
	case p.PutCallRatio <= 0.8:
		dir = Short
	}
	value := convert.Clamp(math.Abs(p.PutCallRatio-1)*125, 0, 100)
	if dir == Neutral {
		value = convert.Clamp(value, 0, 40)
	}
	return Score{
		Source:    SourcePositioning,
		Direction: dir,
		Value:     value,
		Weight:    weight,
		Reason:    fmt.Sprintf("put/call %.2f, oi skew %.2f", p.PutCallRatio, p.OISkew),
	}
}
