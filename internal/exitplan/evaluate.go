package exitplan

import (
	"fmt"
	"math"

	"optiq/internal/rules"
)

// EvaluatePosition 对持仓执行严格优先级的离场检查：
//
//	止损 > CRITICAL 时间衰减 > 追踪止损 > target1 分批 > target2 分批 > 持有。
//
// 追踪止损只在已有分批且价格创过新高后生效。目标位先按时间衰减
// 乘数向入场价收缩再比较。对结构合法的持仓本函数从不报错。
func EvaluatePosition(pos Position, price float64, levels Levels, decay TimeDecay) Evaluation {
	eval := Evaluation{
		Action:  ActionHold,
		Urgency: decay.Urgency,
		Levels:  levels,
	}
	if price <= 0 || pos.Quantity <= 0 {
		eval.Reason = "no marketable position or quote, holding"
		return eval
	}

	// 1) 止损优先于一切。
	if price <= levels.StopLoss {
		eval.Action = ActionCloseFull
		eval.ExitQuantity = pos.Quantity
		eval.RuleID = rules.ExitStopLoss
		eval.Reason = fmt.Sprintf("stop loss breached: price %.2f <= stop %.2f", price, levels.StopLoss)
		return eval
	}

	// 2) CRITICAL 时间衰减：到期日亏损仓不等目标。
	if decay.Urgency == UrgencyCritical {
		eval.Action = ActionCloseFull
		eval.ExitQuantity = pos.Quantity
		eval.RuleID = rules.ExitTimeDecay
		eval.Reason = decay.Action
		return eval
	}

	// 3) 追踪止损：需已分批过且创出过新高。
	if pos.PartialExitsTaken >= 1 && pos.HighestPrice > pos.EntryPrice {
		trailingStop := pos.HighestPrice * (1 - levels.TrailingStopPercent/100)
		if price <= trailingStop {
			eval.Action = ActionCloseFull
			eval.ExitQuantity = pos.Quantity
			eval.RuleID = rules.ExitTrailingStop
			eval.Reason = fmt.Sprintf("trailing stop breached: price %.2f <= %.2f (high %.2f, trail %.1f%%)",
				price, trailingStop, pos.HighestPrice, levels.TrailingStopPercent)
			return eval
		}
	}

	effTarget1 := effectiveTarget(pos.EntryPrice, levels.Target1.Price, decay.Target1Multiplier)
	effTarget2 := effectiveTarget(pos.EntryPrice, levels.Target2.Price, decay.Target2Multiplier)

	// 4) target1 首次分批：离场 25%，止损移到保本。
	if pos.PartialExitsTaken == 0 && price >= effTarget1 {
		qty := partialQuantity(pos.Quantity, levels.Target1.ExitPercent)
		eval.Action = ActionClosePartial
		eval.ExitQuantity = qty
		eval.RuleID = rules.ExitTarget1
		eval.NewStopLoss = pos.EntryPrice
		eval.Reason = fmt.Sprintf("target1 %.2f reached at %.2f, scaling out %d, stop to breakeven",
			effTarget1, price, qty)
		return eval
	}

	// 5) target2：已分批过，再清掉剩余的大头并抬高止损。
	if pos.PartialExitsTaken >= 1 && price >= effTarget2 {
		qty := partialQuantity(pos.Quantity, levels.Target2.ExitPercent)
		eval.Action = ActionClosePartial
		eval.ExitQuantity = qty
		eval.RuleID = rules.ExitTarget2
		eval.NewStopLoss = effTarget1
		eval.Reason = fmt.Sprintf("target2 %.2f reached at %.2f, scaling out %d, stop raised to %.2f",
			effTarget2, price, qty, effTarget1)
		return eval
	}

	eval.Reason = fmt.Sprintf("no exit condition met at %.2f (stop %.2f, t1 %.2f, t2 %.2f)",
		price, levels.StopLoss, effTarget1, effTarget2)
	return eval
}

// effectiveTarget 把目标距离乘以时间衰减乘数；乘数 0 时目标塌缩到入场价。
func effectiveTarget(entry, target, multiplier float64) float64 {
	return entry + (target-entry)*multiplier
}

func partialQuantity(quantity int, exitPercent float64) int {
	qty := int(math.Floor(float64(quantity) * exitPercent / 100))
	if qty < 1 {
		qty = 1
	}
	if qty > quantity {
		qty = quantity
	}
	return qty
}
