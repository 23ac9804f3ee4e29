package exitplan

import (
	"optiq/internal/config"
	"optiq/internal/pkg/convert"
)

// 波动率百分位对止损/目标距离的缩放分档。
const (
	widenHighPercentile = 80
	widenMidPercentile  = 60
	tightenPercentile   = 20
	widenHighFactor     = 1.3
	widenMidFactor      = 1.15
	tightenFactor       = 0.85
)

// volMultiplier 按 ATR 历史百分位放宽/收紧距离。
func volMultiplier(atrPercentile float64) float64 {
	switch {
	case atrPercentile > widenHighPercentile:
		return widenHighFactor
	case atrPercentile > widenMidPercentile:
		return widenMidFactor
	case atrPercentile < tightenPercentile:
		return tightenFactor
	default:
		return 1.0
	}
}

// ComputeLevels 由入场权利金、ATR 与其百分位推导离场计划。
// 止损距离 = ATR × 倍数 × 波动率缩放，收敛到 [min,max] 区间；
// 目标按最终止损距离的 R 倍数外推，同样受波动率缩放。
// ATR 缺席（<=0）时退化为 min_stop_percent 基线。
func ComputeLevels(entryPrice, atr, atrPercentile float64, cfg config.ExitConfig) Levels {
	mult := volMultiplier(atrPercentile)

	basePct := 0.0
	if entryPrice > 0 && atr > 0 {
		basePct = atr * cfg.StopATRMultiplier / entryPrice * 100
	}
	stopPct := convert.Clamp(basePct*mult, cfg.MinStopPercent, cfg.MaxStopPercent)

	t1Pct := stopPct * cfg.Target1R * mult
	t2Pct := stopPct * cfg.Target2R * mult
	trailingPct := convert.Clamp(stopPct*cfg.TrailingFactor*mult, cfg.MinTrailingPercent, cfg.MaxTrailingPercent)

	return Levels{
		EntryPrice:      entryPrice,
		StopLoss:        entryPrice * (1 - stopPct/100),
		StopLossPercent: stopPct,
		Target1: Target{
			Price:       entryPrice * (1 + t1Pct/100),
			Percent:     t1Pct,
			ExitPercent: cfg.PartialExitPercent,
		},
		Target2: Target{
			Price:       entryPrice * (1 + t2Pct/100),
			Percent:     t2Pct,
			ExitPercent: 100 - cfg.PartialExitPercent,
		},
		TrailingStopPercent: trailingPct,
		MaxHoldHours:        cfg.MaxHoldHours,
		VolMultiplier:       mult,
	}
}
