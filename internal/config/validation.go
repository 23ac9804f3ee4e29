package config

import (
	"fmt"
	"strings"
)

// validate 在加载与 override 合并后做一致性检查。
func validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("nil config")
	}
	var problems []string

	if c.Engine.MinConfidenceToExecute < 0 || c.Engine.MinConfidenceToExecute > 100 {
		problems = append(problems, "engine.min_confidence_to_execute 需位于 [0,100]")
	}
	if c.Engine.MinConfluenceScore < 0 || c.Engine.MinConfluenceScore > 100 {
		problems = append(problems, "engine.min_confluence_score 需位于 [0,100]")
	}
	for source, w := range c.Engine.Weights {
		if w < 0 {
			problems = append(problems, fmt.Sprintf("engine.weights.%s 不可为负", source))
		}
	}
	if c.Confluence.MinAgreeingSources < 1 {
		problems = append(problems, "confluence.min_agreeing_sources 需 >= 1")
	}
	if c.Regime.MinConfidence < 0 || c.Regime.MinConfidence > 1 {
		problems = append(problems, "regime.min_confidence 需位于 [0,1]")
	}
	switch strings.ToLower(c.Regime.GateMode) {
	case "reject", "penalize":
	default:
		problems = append(problems, fmt.Sprintf("regime.gate_mode 非法: %s", c.Regime.GateMode))
	}
	if c.Sizing.MaxRiskPerTradePercent <= 0 || c.Sizing.MaxRiskPerTradePercent > 100 {
		problems = append(problems, "sizing.max_risk_per_trade_percent 需位于 (0,100]")
	}
	if c.Sizing.HighVolScalar <= 0 || c.Sizing.HighVolScalar > 1 {
		problems = append(problems, "sizing.high_vol_scalar 需位于 (0,1]")
	}
	if c.Exit.MinStopPercent > c.Exit.MaxStopPercent {
		problems = append(problems, "exit.min_stop_percent 不可大于 exit.max_stop_percent")
	}
	if c.Exit.Target1R >= c.Exit.Target2R {
		problems = append(problems, "exit.target1_r 需小于 exit.target2_r")
	}
	if c.Exit.PartialExitPercent <= 0 || c.Exit.PartialExitPercent >= 100 {
		problems = append(problems, "exit.partial_exit_percent 需位于 (0,100)")
	}
	if c.Exit.CriticalDTE > c.Exit.UrgentDTE {
		problems = append(problems, "exit.critical_dte 不可大于 exit.urgent_dte")
	}
	if c.Tuning.LoosenBelowAccuracy >= c.Tuning.TightenAboveAccuracy {
		problems = append(problems, "tuning.loosen_below_accuracy 需小于 tuning.tighten_above_accuracy")
	}
	if c.Tuning.LoosenFactor >= 1 && c.Tuning.LoosenFactor != 0 {
		problems = append(problems, "tuning.loosen_factor 需 < 1")
	}
	if c.Tuning.TightenFactor <= 1 {
		problems = append(problems, "tuning.tighten_factor 需 > 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config invalid:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
