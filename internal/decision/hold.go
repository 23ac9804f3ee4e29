package decision

import (
	"context"
	"fmt"

	"optiq/internal/config"
	"optiq/internal/exitplan"
	"optiq/internal/logger"
	"optiq/internal/regime"
)

// Hold 持仓复核流程。与入场不同，这里从不设闸门：
// 持仓的风险已经在场内，复核只会给出收紧建议，不会拒绝评估。
// 优先级：硬性离场条件 > regime 漂移 > 时间衰减告警 > 持有。
func (o *Orchestrator) Hold(ctx context.Context, req HoldRequest) (*Record, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	cfg, err := config.MergeOverrides(o.cfg, req.Overrides)
	if err != nil {
		return nil, fmt.Errorf("hold: 合并 overrides 失败: %w", err)
	}

	pos := req.Position.toExitplan(req.CurrentPrice)
	rec := &Record{
		DecisionID:    o.newID(),
		SchemaVersion: SchemaVersion,
		Type:          TypeHold,
		Ticker:        req.Position.Ticker,
		CreatedAt:     o.now(),
		Snapshot: Snapshot{
			CurrentPrice: req.CurrentPrice,
			Overrides:    req.Overrides,
		},
	}

	var atr, atrPct float64
	if req.Bundle != nil {
		rec.Snapshot.Bundle = *req.Bundle
		if req.Bundle.Market != nil {
			atr, atrPct = req.Bundle.Market.ATR, req.Bundle.Market.ATRPercentile
		}
	}
	decay := exitplan.EvaluateTimeDecay(pos.DTE, pos.UnrealizedPnlPct, cfg.Exit)
	levels := exitplan.ComputeLevels(pos.EntryPrice, atr, atrPct, cfg.Exit)
	eval := exitplan.EvaluatePosition(pos, req.CurrentPrice, levels, decay)
	rec.Snapshot.Levels = &levels
	rec.Snapshot.TimeDecay = &decay

	// 硬性离场条件优先：复核发现止损/目标/时间衰减触发时直接升级动作。
	if eval.Action != exitplan.ActionHold {
		return o.finishFromEvaluation(ctx, rec, eval)
	}

	profitable := pos.UnrealizedPnlPct > 0

	// Regime 漂移：只读当前状态，不推进状态机。
	if req.Bundle != nil {
		label, _ := regime.Classify(req.Bundle.Gamma, req.Bundle.Market)
		cur, regErr := o.regimes.CurrentRegime(ctx, req.Position.Ticker)
		if regErr != nil {
			logger.Warnf("hold %s: 读取 regime 状态失败: %v", req.Position.Ticker, regErr)
		}
		if cur != nil {
			rec.Snapshot.Regime = cur
		}
		if cur != nil && label != regime.UnknownRegime && label != cur.CurrentRegime {
			rec.Warnings = append(rec.Warnings,
				fmt.Sprintf("regime drifting: stored %s, observed %s", cur.CurrentRegime, label))
			if profitable {
				rec.Action = ActionTightenStop
				rec.NewStopLoss = pos.EntryPrice
				rec.Reason = "regime drifted against stored state, locking in breakeven stop"
				return o.finishHold(ctx, rec)
			}
		}
	}

	// 时间衰减告警不直接动仓位，CRITICAL 已在上面的硬性分支处理。
	switch decay.Urgency {
	case exitplan.UrgencyHigh:
		rec.Warnings = append(rec.Warnings, decay.Action)
		if profitable {
			rec.Action = ActionTightenStop
			rec.NewStopLoss = pos.EntryPrice
			rec.Reason = fmt.Sprintf("%d DTE with profit on the table, stop to breakeven", pos.DTE)
			return o.finishHold(ctx, rec)
		}
	case exitplan.UrgencyMedium:
		rec.Warnings = append(rec.Warnings, decay.Action)
	}

	if cfg.Exit.MaxHoldHours > 0 && req.Position.HoursHeld > float64(cfg.Exit.MaxHoldHours) {
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("held %.0fh, beyond max hold %dh", req.Position.HoursHeld, cfg.Exit.MaxHoldHours))
	}

	rec.Action = ActionHold
	rec.Reason = eval.Reason
	return o.finishHold(ctx, rec)
}

func (o *Orchestrator) finishFromEvaluation(ctx context.Context, rec *Record, eval exitplan.Evaluation) (*Record, error) {
	switch eval.Action {
	case exitplan.ActionCloseFull:
		rec.Action = ActionExit
	case exitplan.ActionClosePartial:
		rec.Action = ActionPartialExit
	default:
		rec.Action = ActionHold
	}
	rec.ExitQuantity = eval.ExitQuantity
	rec.NewStopLoss = eval.NewStopLoss
	rec.Reason = eval.Reason
	if eval.RuleID != "" {
		o.trigger(rec, RuleTrigger{RuleID: eval.RuleID, Passed: true, Detail: eval.Reason})
	}
	return o.finishHold(ctx, rec)
}

func (o *Orchestrator) finishHold(ctx context.Context, rec *Record) (*Record, error) {
	rec.DurationMs = o.now().Sub(rec.CreatedAt).Milliseconds()
	if err := o.recorder.LogDecision(ctx, rec); err != nil {
		return nil, fmt.Errorf("%s: 决策持久化失败: %w", rec.Type, err)
	}
	logger.Infof("%s %s: %s — %s (decision=%s)", rec.Type, rec.Ticker, rec.Action, rec.Reason, rec.DecisionID)
	return rec, nil
}
