package signal

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"optiq/internal/pkg/convert"
)

// 中文说明：
// 本文件定义进入决策引擎的各类信号来源。每个可选来源用指针表达
// “缺席”，与“测得 NEUTRAL”严格区分——缺席的来源不产生评分，
// 也不参与共识计数。

type Direction string

const (
	Long    Direction = "LONG"
	Short   Direction = "SHORT"
	Neutral Direction = "NEUTRAL"
)

// ParseDirection 宽松解析方向字符串；无法识别时返回 NEUTRAL 与 false。
func ParseDirection(raw string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LONG", "BULLISH", "CALL", "BUY":
		return Long, true
	case "SHORT", "BEARISH", "PUT", "SELL":
		return Short, true
	case "NEUTRAL", "FLAT":
		return Neutral, true
	default:
		return Neutral, false
	}
}

// Opposite 返回相反方向；NEUTRAL 的反向仍是 NEUTRAL。
func (d Direction) Opposite() Direction {
	switch d {
	case Long:
		return Short
	case Short:
		return Long
	default:
		return Neutral
	}
}

// 来源 id，与 engine.weights 配置键一致。
const (
	SourceTradeSignal = "trade_signal"
	SourceGamma       = "gamma"
	SourceTrend       = "trend"
	SourceMarket      = "market"
	SourcePositioning = "positioning"
)

// TradeSignal 主交易信号（唯一必填来源）。
type TradeSignal struct {
	Ticker    string          `json:"ticker"`
	Direction Direction       `json:"direction"`
	Strength  float64         `json:"strength"` // 0-100
	Strategy  string          `json:"strategy,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// HydrateFromRaw 用原始 payload 回填缺失字段。
// 上游扫描器的 payload 字段名不统一，这里用 gjson 按别名逐个探测。
func (s *TradeSignal) HydrateFromRaw() {
	if len(s.Raw) == 0 {
		return
	}
	if s.Ticker == "" {
		for _, key := range []string{"ticker", "symbol", "underlying"} {
			if v := gjson.GetBytes(s.Raw, key); v.Exists() {
				s.Ticker = strings.ToUpper(strings.TrimSpace(v.String()))
				break
			}
		}
	}
	if s.Direction == "" {
		for _, key := range []string{"direction", "side", "bias", "sentiment"} {
			if v := gjson.GetBytes(s.Raw, key); v.Exists() {
				if dir, ok := ParseDirection(v.String()); ok {
					s.Direction = dir
					break
				}
			}
		}
	}
	if s.Strength == 0 {
		// 数值字段经常以字符串形式出现（"72.5"），宽松转换后再采信。
		var fields map[string]any
		if err := json.Unmarshal(s.Raw, &fields); err == nil {
			if num, ok := convert.NumberFromKeys(fields, "strength", "score", "confidence"); ok {
				s.Strength = num
			}
		}
	}
	if s.Strategy == "" {
		if v := gjson.GetBytes(s.Raw, "strategy"); v.Exists() {
			s.Strategy = v.String()
		}
	}
}

// 做市商 gamma 持仓状态。
const (
	DealerLongGamma  = "LONG_GAMMA"
	DealerShortGamma = "SHORT_GAMMA"
)

// GammaExposure 做市商 gamma 敞口快照。
type GammaExposure struct {
	NetGamma          float64 `json:"net_gamma"` // 十亿美元/1% move
	FlipPoint         float64 `json:"flip_point"`
	SpotPrice         float64 `json:"spot_price"`
	DealerPositioning string  `json:"dealer_positioning"`
	Confidence        float64 `json:"confidence"` // 0-1
}

// TrendBias 多周期趋势偏向。
type TrendBias struct {
	Daily    Direction `json:"daily"`
	FourHour Direction `json:"four_hour"`
	Hourly   Direction `json:"hourly"`
}

// VIX 波动率分级。
const (
	VolLow    = "LOW_VOL"
	VolNormal = "NORMAL"
	VolHigh   = "HIGH_VOL"
)

// MarketContext VIX/ATR 波动率上下文。
type MarketContext struct {
	VIX           float64 `json:"vix"`
	VIXRegime     string  `json:"vix_regime"`
	ATR           float64 `json:"atr"`
	ATRPercentile float64 `json:"atr_percentile"` // 0-100
}

// Positioning 期权持仓结构（put/call ratio 与 OI 偏斜）。
type Positioning struct {
	PutCallRatio float64 `json:"put_call_ratio"`
	OISkew       float64 `json:"oi_skew,omitempty"` // >0 偏 call，<0 偏 put
}

// Bundle 一次 orchestration 调用的完整上下文快照。
// Signal 必填；其余指针为 nil 即该来源缺席。
type Bundle struct {
	Signal      TradeSignal    `json:"signal"`
	Gamma       *GammaExposure `json:"gamma,omitempty"`
	Trend       *TrendBias     `json:"trend,omitempty"`
	Market      *MarketContext `json:"market,omitempty"`
	Positioning *Positioning   `json:"positioning,omitempty"`
}

// Score 单来源的归一化评分。
type Score struct {
	Source    string    `json:"source"`
	Direction Direction `json:"direction"`
	Value     float64   `json:"value"` // 0-100
	Weight    float64   `json:"weight"`
	Reason    string    `json:"reason"`
}
