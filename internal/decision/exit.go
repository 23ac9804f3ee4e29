package decision

import (
	"context"
	"fmt"

	"optiq/internal/config"
	"optiq/internal/exitplan"
)

// Exit 离场评估流程：重算离场位，跑严格优先级的条件梯子，
// 把离场计划的动作映射为决策动作。
func (o *Orchestrator) Exit(ctx context.Context, req ExitRequest) (*Record, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	cfg, err := config.MergeOverrides(o.cfg, req.Overrides)
	if err != nil {
		return nil, fmt.Errorf("exit: 合并 overrides 失败: %w", err)
	}

	pos := req.Position.toExitplan(req.CurrentPrice)
	decay := exitplan.EvaluateTimeDecay(pos.DTE, pos.UnrealizedPnlPct, cfg.Exit)
	levels := exitplan.ComputeLevels(pos.EntryPrice, req.ATR, req.ATRPercentile, cfg.Exit)
	eval := exitplan.EvaluatePosition(pos, req.CurrentPrice, levels, decay)

	rec := &Record{
		DecisionID:    o.newID(),
		SchemaVersion: SchemaVersion,
		Type:          TypeExit,
		Ticker:        req.Position.Ticker,
		CreatedAt:     o.now(),
		Snapshot: Snapshot{
			CurrentPrice: req.CurrentPrice,
			Levels:       &levels,
			TimeDecay:    &decay,
			Overrides:    req.Overrides,
		},
	}
	return o.finishFromEvaluation(ctx, rec, eval)
}
