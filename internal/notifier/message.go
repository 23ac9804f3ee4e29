package notifier

import (
	"fmt"
	"strings"

	"optiq/internal/decision"
)

// FormatDecision 把决策记录折成一条可读的推送文本。
// 只推会动仓位的动作，REJECT/HOLD 在调用方过滤。
func FormatDecision(rec *decision.Record) string {
	var b strings.Builder
	switch rec.Action {
	case decision.ActionExecute:
		fmt.Fprintf(&b, "*%s* %s %s ×%d\n", rec.Ticker, rec.Action, rec.Direction, rec.Quantity)
		fmt.Fprintf(&b, "confidence: %.1f\n", rec.Confidence)
		if rec.Snapshot.Levels != nil {
			lv := rec.Snapshot.Levels
			fmt.Fprintf(&b, "stop %.2f / t1 %.2f / t2 %.2f\n", lv.StopLoss, lv.Target1.Price, lv.Target2.Price)
		}
	case decision.ActionExit, decision.ActionPartialExit:
		fmt.Fprintf(&b, "*%s* %s", rec.Ticker, rec.Action)
		if rec.ExitQuantity > 0 {
			fmt.Fprintf(&b, " ×%d", rec.ExitQuantity)
		}
		b.WriteString("\n")
	default:
		fmt.Fprintf(&b, "*%s* %s\n", rec.Ticker, rec.Action)
	}
	fmt.Fprintf(&b, "%s\n`%s`", rec.Reason, rec.DecisionID)
	return b.String()
}
