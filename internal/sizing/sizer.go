// Package sizing computes risk-bounded contract quantities.
package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"optiq/internal/config"
	"optiq/internal/signal"
)

// Stats 历史胜率统计，凯利缩放的输入。
type Stats struct {
	WinRate float64 `json:"win_rate"` // 0-1
	Payoff  float64 `json:"payoff"`   // 平均盈亏比
	Samples int     `json:"samples"`
}

// Input 一次 sizing 计算的输入。
type Input struct {
	PortfolioValue  float64 `json:"portfolio_value"`
	EntryPrice      float64 `json:"entry_price"`       // 每股权利金
	StopLossPercent float64 `json:"stop_loss_percent"` // 来自 exit planner
	VIXRegime       string  `json:"vix_regime,omitempty"`
	Stats           *Stats  `json:"stats,omitempty"`
}

// Calculation sizing 结果。AdjustedQuantity==0 是合法的
// “不交易”结论，与入场被拒是两回事。
type Calculation struct {
	RiskAmount              float64 `json:"risk_amount"`
	StopDistancePerContract float64 `json:"stop_distance_per_contract"`
	BaseQuantity            int     `json:"base_quantity"`
	AdjustedQuantity        int     `json:"adjusted_quantity"`
	KellyFraction           float64 `json:"kelly_fraction"`
	KellyScalar             float64 `json:"kelly_scalar"`
	VIXScalar               float64 `json:"vix_scalar"`
	RiskCapApplied          bool    `json:"risk_cap_applied"`
}

// Calculate 按风险上限推导基础张数，再施加凯利/波动率缩放。
// 两种缩放只会缩小数量，最终张数恒 <= 风险上限允许的最大张数。
func Calculate(in Input, cfg config.SizingConfig) (Calculation, error) {
	if in.PortfolioValue <= 0 {
		return Calculation{}, fmt.Errorf("sizing: portfolio_value 需 >0，当前=%.2f", in.PortfolioValue)
	}
	if in.EntryPrice <= 0 {
		return Calculation{}, fmt.Errorf("sizing: entry_price 需 >0，当前=%.4f", in.EntryPrice)
	}
	if in.StopLossPercent <= 0 {
		return Calculation{}, fmt.Errorf("sizing: stop_loss_percent 需 >0，当前=%.2f", in.StopLossPercent)
	}

	multiplier := cfg.ContractMultiplier
	if multiplier <= 0 {
		multiplier = 100
	}

	// 资金计算走 decimal，避免大账户 float 误差导致超出风险上限。
	portfolio := decimal.NewFromFloat(in.PortfolioValue)
	riskAmount := portfolio.Mul(decimal.NewFromFloat(cfg.MaxRiskPerTradePercent)).Div(decimal.NewFromInt(100))
	stopPerContract := decimal.NewFromFloat(in.EntryPrice).
		Mul(decimal.NewFromFloat(in.StopLossPercent)).Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromInt(int64(multiplier)))

	calc := Calculation{
		RiskAmount:              riskAmount.InexactFloat64(),
		StopDistancePerContract: stopPerContract.InexactFloat64(),
		KellyScalar:             1,
		VIXScalar:               1,
	}
	if stopPerContract.IsZero() {
		return calc, nil
	}
	base := riskAmount.Div(stopPerContract).IntPart() // 向下取整
	if base < 0 {
		base = 0
	}
	calc.BaseQuantity = int(base)

	if cfg.KellyEnabled && in.Stats != nil && in.Stats.Payoff > 0 {
		calc.KellyFraction, calc.KellyScalar = kellyScalar(*in.Stats, cfg)
	}
	if cfg.VIXScalingEnabled && in.VIXRegime == signal.VolHigh {
		calc.VIXScalar = cfg.HighVolScalar
	}

	adjusted := decimal.NewFromInt(base).
		Mul(decimal.NewFromFloat(calc.KellyScalar)).
		Mul(decimal.NewFromFloat(calc.VIXScalar)).
		IntPart()
	if adjusted > base {
		adjusted = base
	}
	if adjusted < 0 {
		adjusted = 0
	}
	if cfg.MaxContracts > 0 && adjusted > int64(cfg.MaxContracts) {
		adjusted = int64(cfg.MaxContracts)
	}
	calc.AdjustedQuantity = int(adjusted)
	calc.RiskCapApplied = adjusted == base && base > 0
	return calc, nil
}

// kellyScalar：分数凯利。目标风险占比 = f* × kelly_scalar，
// 与 max_risk_per_trade 比较得出缩放系数，只缩不放。
func kellyScalar(stats Stats, cfg config.SizingConfig) (fraction, scalar float64) {
	fraction = stats.WinRate - (1-stats.WinRate)/stats.Payoff
	if fraction <= 0 {
		return fraction, 0
	}
	maxRiskFraction := cfg.MaxRiskPerTradePercent / 100
	if maxRiskFraction <= 0 {
		return fraction, 1
	}
	scalar = fraction * cfg.KellyScalar / maxRiskFraction
	if scalar > 1 {
		scalar = 1
	}
	return fraction, scalar
}
