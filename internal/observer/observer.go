package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"optiq/internal/config"
	"optiq/internal/decision"
	"optiq/internal/logger"
	"optiq/internal/regime"
	"optiq/internal/sizing"
	"optiq/internal/store/auditlog"
	"optiq/internal/store/model"
)

// 决策 outcome 终值。
const (
	OutcomeWin     = "WIN"
	OutcomeLoss    = "LOSS"
	OutcomeScratch = "SCRATCH"
)

var (
	_ decision.Recorder   = (*Ledger)(nil)
	_ decision.RegimeGate = (*Ledger)(nil)
)

// LogDecision 持久化决策并为每条触发的规则累加 trigger 计数。
// 两步在同一条命令里执行，决策与计数不会只落其一。
func (l *Ledger) LogDecision(ctx context.Context, rec *decision.Record) error {
	if rec == nil {
		return fmt.Errorf("observer: decision 记录为空")
	}
	return l.submit(ctx, "log_decision", func(ctx context.Context) error {
		row, err := decisionToModel(rec)
		if err != nil {
			return err
		}
		if err := l.store.SaveDecision(ctx, row); err != nil {
			return fmt.Errorf("observer: 保存决策 %s 失败: %w", rec.DecisionID, err)
		}
		for _, ruleID := range rec.TriggeredRuleIDs() {
			perf, err := l.store.FindRulePerformance(ctx, ruleID)
			if err != nil {
				return err
			}
			if perf == nil {
				perf = &model.RulePerformanceModel{RuleID: ruleID}
			}
			perf.Triggers++
			if err := l.store.SaveRulePerformance(ctx, perf); err != nil {
				return err
			}
		}
		l.auditAppend(ctx, rec.DecisionID, rec.Ticker, auditlog.KindDecision, rec)
		return nil
	})
}

// RecordOutcome 记录决策的最终盈亏与方向判定，并把结果摊给当时触发的每条规则。
// 盈亏分级（WIN/LOSS/SCRATCH）与 wasCorrect 各自独立：判断对了仍可能亏给
// 时间衰减，规则统计按 wasCorrect 计对错，盈亏只进均值。
// outcome 只允许设置一次；重复提交同值幂等，异值报错。
func (l *Ledger) RecordOutcome(ctx context.Context, decisionID string, pnlPct float64, wasCorrect bool) error {
	decisionID = strings.TrimSpace(decisionID)
	if decisionID == "" {
		return fmt.Errorf("observer: decision id 不能为空")
	}
	outcome := OutcomeScratch
	switch {
	case pnlPct > 0:
		outcome = OutcomeWin
	case pnlPct < 0:
		outcome = OutcomeLoss
	}
	return l.submit(ctx, "record_outcome", func(ctx context.Context) error {
		row, err := l.store.FindDecision(ctx, decisionID)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("observer: decision %s 不存在", decisionID)
		}
		alreadySet := row.Outcome != ""
		if err := l.store.SetDecisionOutcome(ctx, decisionID, outcome, pnlPct, wasCorrect, l.now().Unix()); err != nil {
			return err
		}
		if alreadySet {
			return nil // 幂等重放，统计不再累加
		}
		var triggers []decision.RuleTrigger
		if len(row.RulesJSON) > 0 {
			if err := json.Unmarshal(row.RulesJSON, &triggers); err != nil {
				logger.Warnf("observer: decision %s 触发列表解析失败: %v", decisionID, err)
			}
		}
		for _, t := range triggers {
			if err := l.applyOutcome(ctx, t.RuleID, wasCorrect, pnlPct); err != nil {
				return err
			}
		}
		l.auditAppend(ctx, decisionID, row.Ticker, auditlog.KindOutcome,
			map[string]any{"outcome": outcome, "pnl_pct": pnlPct, "was_correct": wasCorrect})
		return nil
	})
}

// applyOutcome 增量刷新单条规则的对错计数与平均盈亏。
func (l *Ledger) applyOutcome(ctx context.Context, ruleID string, wasCorrect bool, pnlPct float64) error {
	perf, err := l.store.FindRulePerformance(ctx, ruleID)
	if err != nil {
		return err
	}
	if perf == nil {
		perf = &model.RulePerformanceModel{RuleID: ruleID}
	}
	if wasCorrect {
		perf.Wins++
	} else {
		perf.Losses++
	}
	n := perf.Wins + perf.Losses
	perf.AvgPnlPct = (perf.AvgPnlPct*float64(n-1) + pnlPct) / float64(n)
	return l.store.SaveRulePerformance(ctx, perf)
}

// EvaluateRegime 在事件循环内推进 regime 状态机。
// 同一 ticker 的并发评估按入队顺序依次应用。
func (l *Ledger) EvaluateRegime(ctx context.Context, ticker, incoming string, confidence float64, cfg config.RegimeConfig) (regime.Record, error) {
	var out regime.Record
	err := l.submit(ctx, "evaluate_regime", func(ctx context.Context) error {
		gate := regime.NewGate(l.store, l.now)
		rec, err := gate.Evaluate(ctx, ticker, incoming, confidence, cfg)
		if err != nil {
			return err
		}
		if rec.State == regime.StateFlipped {
			l.auditAppend(ctx, "", ticker, auditlog.KindRegimeFlip, rec)
		}
		out = rec
		return nil
	})
	return out, err
}

// CurrentRegime 读取当前 regime 状态（不推进状态机）。
func (l *Ledger) CurrentRegime(ctx context.Context, ticker string) (*regime.Record, error) {
	var out *regime.Record
	err := l.submit(ctx, "current_regime", func(ctx context.Context) error {
		rec, err := l.store.GetRegimeState(ctx, ticker)
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// SizingStats 从最近已结算的入场决策推导胜率与盈亏比。
// 样本不足时返回 nil，sizing 退回纯风险上限模式。
func (l *Ledger) SizingStats(ctx context.Context, ticker string) (*sizing.Stats, error) {
	var out *sizing.Stats
	err := l.submit(ctx, "sizing_stats", func(ctx context.Context) error {
		recs, err := l.store.ListRecentDecisions(ctx, ticker, 200)
		if err != nil {
			return err
		}
		var wins, losses int
		var winSum, lossSum float64
		for _, r := range recs {
			if r.Type != model.DecisionTypeEntry {
				continue
			}
			switch r.Outcome {
			case OutcomeWin:
				wins++
				winSum += r.OutcomePnlPct
			case OutcomeLoss:
				losses++
				lossSum += -r.OutcomePnlPct
			}
		}
		samples := wins + losses
		if samples < 10 || losses == 0 || lossSum == 0 {
			return nil
		}
		avgWin := winSum / float64(maxInt(wins, 1))
		avgLoss := lossSum / float64(losses)
		out = &sizing.Stats{
			WinRate: float64(wins) / float64(samples),
			Payoff:  avgWin / avgLoss,
			Samples: samples,
		}
		return nil
	})
	return out, err
}

// RulePerformance 返回全部规则统计（报表/调参入口）。
func (l *Ledger) RulePerformance(ctx context.Context) ([]model.RulePerformanceModel, error) {
	var out []model.RulePerformanceModel
	err := l.submit(ctx, "rule_performance", func(ctx context.Context) error {
		recs, err := l.store.ListRulePerformance(ctx)
		if err != nil {
			return err
		}
		out = recs
		return nil
	})
	return out, err
}

func (l *Ledger) auditAppend(ctx context.Context, decisionID, ticker, kind string, payload any) {
	if l.audit == nil {
		return
	}
	if err := l.audit.AppendJSON(ctx, decisionID, ticker, kind, payload); err != nil {
		logger.Warnf("observer: 审计追加失败 kind=%s: %v", kind, err)
	}
}

func decisionToModel(rec *decision.Record) (*model.DecisionModel, error) {
	scores, err := json.Marshal(rec.Snapshot.Scores)
	if err != nil {
		return nil, fmt.Errorf("observer: scores 序列化失败: %w", err)
	}
	triggers, err := json.Marshal(rec.Triggers)
	if err != nil {
		return nil, fmt.Errorf("observer: triggers 序列化失败: %w", err)
	}
	snapshot, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("observer: snapshot 序列化失败: %w", err)
	}
	var levels []byte
	if rec.Snapshot.Levels != nil {
		levels, err = json.Marshal(rec.Snapshot.Levels)
		if err != nil {
			return nil, fmt.Errorf("observer: levels 序列化失败: %w", err)
		}
	}
	return &model.DecisionModel{
		DecisionID:    rec.DecisionID,
		SchemaVersion: rec.SchemaVersion,
		Ticker:        rec.Ticker,
		Type:          decisionTypeToInt(rec.Type),
		Action:        string(rec.Action),
		Direction:     string(rec.Direction),
		Confidence:    rec.Confidence,
		Quantity:      rec.Quantity,
		Reason:        rec.Reason,
		ScoresJSON:    scores,
		RulesJSON:     triggers,
		SnapshotJSON:  snapshot,
		LevelsJSON:    levels,
		DurationMs:    rec.DurationMs,
		CreatedAtUnix: rec.CreatedAt.Unix(),
	}, nil
}

func decisionTypeToInt(t decision.Type) model.DecisionType {
	switch t {
	case decision.TypeEntry:
		return model.DecisionTypeEntry
	case decision.TypeHold:
		return model.DecisionTypeHold
	case decision.TypeExit:
		return model.DecisionTypeExit
	default:
		return model.DecisionTypeUnknown
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
