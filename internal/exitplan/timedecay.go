package exitplan

import "optiq/internal/config"

// EvaluateTimeDecay 独立于价格位的第二条离场轴：临近到期时，
// theta 衰减会吞掉剩余权利金，紧迫度抬升、目标乘数向 0 收缩。
//
// 分档：
//   - DTE > urgent_dte：无时间压力。
//   - critical_dte < DTE <= urgent_dte：浮亏 HIGH，浮盈 MEDIUM。
//   - DTE <= critical_dte：浮亏 CRITICAL（立即平仓），浮盈 HIGH。
func EvaluateTimeDecay(dte int, unrealizedPnlPct float64, cfg config.ExitConfig) TimeDecay {
	td := TimeDecay{DTE: dte}
	losing := unrealizedPnlPct < 0

	switch {
	case dte > cfg.UrgentDTE:
		td.Urgency = UrgencyNone
		td.Action = "Hold - no immediate time pressure"
		td.Target1Multiplier, td.Target2Multiplier = 1.0, 1.0
	case dte > cfg.CriticalDTE:
		if losing {
			td.Urgency = UrgencyHigh
			td.Action = "Consider closing - theta burn accelerating on a losing position"
			td.Target1Multiplier, td.Target2Multiplier = 0.5, 0.3
		} else {
			td.Urgency = UrgencyMedium
			td.Action = "Tighten targets - expiration approaching"
			td.Target1Multiplier, td.Target2Multiplier = 0.8, 0.6
		}
	default:
		if losing {
			td.Urgency = UrgencyCritical
			td.Action = "Close losing position immediately - theta decay will consume the remaining premium"
			td.Target1Multiplier, td.Target2Multiplier = 0, 0
		} else {
			td.Urgency = UrgencyHigh
			td.Action = "Take profits now - expiration imminent"
			td.Target1Multiplier, td.Target2Multiplier = 0.3, 0
		}
	}
	return td
}
