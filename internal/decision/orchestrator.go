// Package decision orchestrates entry/hold/exit evaluation flows.
//
// 中文说明：
// Orchestrator 是唯一的决策入口。核心函数全部确定性：相同输入 +
// 相同配置必然给出相同动作；时钟与 id 生成通过注入点替换。
// 所有 I/O（持久化、regime 状态读写）走 Recorder / RegimeGate 接口，
// 由 observer 的单协程信箱实现串行化。
package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"optiq/internal/config"
	"optiq/internal/confluence"
	"optiq/internal/exitplan"
	"optiq/internal/logger"
	"optiq/internal/regime"
	"optiq/internal/rules"
	"optiq/internal/signal"
	"optiq/internal/sizing"
)

// Recorder 决策记录与统计的持久化边界。
type Recorder interface {
	LogDecision(ctx context.Context, rec *Record) error
	SizingStats(ctx context.Context, ticker string) (*sizing.Stats, error)
}

// RegimeGate regime 状态机的读写边界。EvaluateRegime 是读改写，
// 实现方必须对同一 ticker 串行执行。
type RegimeGate interface {
	EvaluateRegime(ctx context.Context, ticker, incoming string, confidence float64, cfg config.RegimeConfig) (regime.Record, error)
	CurrentRegime(ctx context.Context, ticker string) (*regime.Record, error)
}

type Orchestrator struct {
	cfg      *config.Config
	catalog  *rules.Catalog
	recorder Recorder
	regimes  RegimeGate

	now   func() time.Time
	newID func() string
}

func NewOrchestrator(cfg *config.Config, catalog *rules.Catalog, recorder Recorder, regimes RegimeGate) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		catalog:  catalog,
		recorder: recorder,
		regimes:  regimes,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetConfig 热加载后替换基准配置（调用方保证替换期间无并发决策，
// 见 app 层的 watcher 接线）。
func (o *Orchestrator) SetConfig(cfg *config.Config) {
	if cfg != nil {
		o.cfg = cfg
	}
}

// Entry 入场决策主流程：
// 归一化 → 共识 → 冲突解决 → regime 闸门 → 离场计划 → 仓位 → 置信度合成。
func (o *Orchestrator) Entry(ctx context.Context, req EntryRequest) (*Record, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	cfg, err := config.MergeOverrides(o.cfg, req.Overrides)
	if err != nil {
		return nil, fmt.Errorf("entry: 合并 overrides 失败: %w", err)
	}
	ticker := req.Bundle.Signal.Ticker

	rec := &Record{
		DecisionID:    o.newID(),
		SchemaVersion: SchemaVersion,
		Type:          TypeEntry,
		Ticker:        ticker,
		CreatedAt:     o.now(),
		Snapshot: Snapshot{
			Bundle:         req.Bundle,
			PortfolioValue: req.PortfolioValue,
			OptionPrice:    req.OptionPrice,
			Overrides:      req.Overrides,
		},
	}

	scores := signal.Normalize(req.Bundle, cfg.Engine.Weights)
	conf := confluence.Aggregate(scores, cfg.Confluence)
	res := confluence.Resolve(scores, req.Bundle.Signal.Direction, cfg.Confluence)
	rec.Snapshot.Scores = scores
	rec.Snapshot.Confluence = &conf
	rec.Snapshot.Resolution = &res

	o.trigger(rec, RuleTrigger{
		RuleID: rules.ConfluenceAlignment, Passed: conf.IsAligned,
		Observed: conf.Score, Threshold: cfg.Confluence.MinScore,
		Detail: fmt.Sprintf("%d sources agree on %s", conf.ConfluenceCount, conf.MajorityDirection),
	})
	if res.Conflicted {
		switch res.Method {
		case confluence.MethodCredibility:
			o.trigger(rec, RuleTrigger{RuleID: rules.ConflictCredibility, Passed: true, Detail: res.Detail})
		case confluence.MethodMajority:
			// majority 胜出不单独记规则，解决详情在快照里。
		default:
			o.trigger(rec, RuleTrigger{RuleID: rules.ConflictUnresolved, Passed: false, Detail: res.Detail})
		}
	}

	// Regime 状态机推进 + 入场闸门。状态推进无论最终动作都要发生，
	// 否则 flip 历史会有空洞。
	label, rconf := regime.Classify(req.Bundle.Gamma, req.Bundle.Market)
	regRec, err := o.regimes.EvaluateRegime(ctx, ticker, label, rconf, cfg.Regime)
	if err != nil {
		return nil, fmt.Errorf("entry: regime 推进失败: %w", err)
	}
	gate := regime.CheckEntry(regRec, cfg.Regime)
	rec.Snapshot.Regime = &regRec
	rec.Snapshot.Gate = &gate
	if !o.catalog.Enabled(rules.RegimeStability) {
		gate = regime.GateResult{}
	}
	o.trigger(rec, RuleTrigger{
		RuleID: rules.RegimeStability, Passed: !gate.Blocked,
		Detail: fmt.Sprintf("regime %s state=%s", regRec.CurrentRegime, regRec.State),
	})
	if regRec.Confidence < cfg.Regime.MinConfidence {
		o.trigger(rec, RuleTrigger{
			RuleID: rules.RegimeLowConfidence, Passed: false,
			Observed: regRec.Confidence, Threshold: cfg.Regime.MinConfidence,
		})
	}
	o.contextTriggers(rec, req.Bundle, scores, res.ResolvedDirection)

	conflictPenalty := 0.0
	if res.Penalized {
		conflictPenalty = cfg.Engine.ConflictPenalty
	}
	rec.Breakdown = composeConfidence(conf.Score, conflictPenalty, gate.Penalty)
	rec.Confidence = rec.Breakdown.Final
	rec.Direction = res.ResolvedDirection

	if gate.Blocked {
		return o.finishEntry(ctx, rec, ActionReject, fmt.Sprintf("regime gate: %s", gate.Reason))
	}
	if res.ResolvedDirection == signal.Neutral {
		return o.finishEntry(ctx, rec, ActionReject, "no directional consensus after conflict resolution")
	}

	// 离场计划先于 sizing：止损距离是 sizing 的输入。
	var atr, atrPct float64
	if req.Bundle.Market != nil {
		atr, atrPct = req.Bundle.Market.ATR, req.Bundle.Market.ATRPercentile
	}
	levels := exitplan.ComputeLevels(req.OptionPrice, atr, atrPct, cfg.Exit)
	rec.Snapshot.Levels = &levels

	stats, statsErr := o.recorder.SizingStats(ctx, ticker)
	if statsErr != nil {
		logger.Warnf("entry %s: 读取历史胜率失败，退回无统计 sizing: %v", ticker, statsErr)
	}
	vixRegime := ""
	if req.Bundle.Market != nil {
		vixRegime = req.Bundle.Market.VIXRegime
	}
	calc, err := sizing.Calculate(sizing.Input{
		PortfolioValue:  req.PortfolioValue,
		EntryPrice:      req.OptionPrice,
		StopLossPercent: levels.StopLossPercent,
		VIXRegime:       vixRegime,
		Stats:           stats,
	}, cfg.Sizing)
	if err != nil {
		return nil, fmt.Errorf("entry: sizing 计算失败: %w", err)
	}
	rec.Snapshot.Sizing = &calc
	if calc.KellyScalar < 1 {
		o.trigger(rec, RuleTrigger{RuleID: rules.SizingKelly, Passed: true,
			Observed: calc.KellyScalar, Detail: fmt.Sprintf("kelly fraction %.3f", calc.KellyFraction)})
	}
	if calc.VIXScalar < 1 {
		o.trigger(rec, RuleTrigger{RuleID: rules.SizingHighVol, Passed: true, Observed: calc.VIXScalar})
	}

	o.trigger(rec, RuleTrigger{
		RuleID: rules.EntryMinConfluence, Passed: conf.Score >= cfg.Engine.MinConfluenceScore,
		Observed: conf.Score, Threshold: cfg.Engine.MinConfluenceScore,
	})
	o.trigger(rec, RuleTrigger{
		RuleID: rules.EntryMinConfidence, Passed: rec.Confidence >= cfg.Engine.MinConfidenceToExecute,
		Observed: rec.Confidence, Threshold: cfg.Engine.MinConfidenceToExecute,
	})

	switch {
	case conf.Score < cfg.Engine.MinConfluenceScore:
		return o.finishEntry(ctx, rec, ActionReject,
			fmt.Sprintf("confluence score %.1f below minimum %.1f", conf.Score, cfg.Engine.MinConfluenceScore))
	case rec.Confidence < cfg.Engine.MinConfidenceToExecute:
		return o.finishEntry(ctx, rec, ActionReject,
			fmt.Sprintf("confidence %.1f below minimum %.1f", rec.Confidence, cfg.Engine.MinConfidenceToExecute))
	case calc.AdjustedQuantity == 0:
		return o.finishEntry(ctx, rec, ActionReject,
			"risk budget yields zero contracts at this premium and stop distance")
	}

	rec.Quantity = calc.AdjustedQuantity
	return o.finishEntry(ctx, rec, ActionExecute,
		fmt.Sprintf("%s %d contracts, confidence %.1f, stop %.2f, targets %.2f/%.2f",
			rec.Direction, rec.Quantity, rec.Confidence,
			levels.StopLoss, levels.Target1.Price, levels.Target2.Price))
}

func (o *Orchestrator) finishEntry(ctx context.Context, rec *Record, action Action, reason string) (*Record, error) {
	rec.Action = action
	rec.Reason = reason
	rec.DurationMs = o.now().Sub(rec.CreatedAt).Milliseconds()
	if err := o.recorder.LogDecision(ctx, rec); err != nil {
		return nil, fmt.Errorf("entry: 决策持久化失败: %w", err)
	}
	logger.Infof("entry %s: %s — %s (decision=%s)", rec.Ticker, action, reason, rec.DecisionID)
	return rec, nil
}

// trigger 记录一次规则触发；目录中被禁用的规则不记录也不生效。
func (o *Orchestrator) trigger(rec *Record, t RuleTrigger) {
	if !o.catalog.Enabled(t.RuleID) {
		return
	}
	rec.Triggers = append(rec.Triggers, t)
}

// contextTriggers 记录趋势/持仓结构/波动率环境类规则，
// 这些规则不单独否决入场，但参与调参闭环的命中统计。
func (o *Orchestrator) contextTriggers(rec *Record, b signal.Bundle, scores []signal.Score, dir signal.Direction) {
	for _, s := range scores {
		switch s.Source {
		case signal.SourceTrend:
			o.trigger(rec, RuleTrigger{RuleID: rules.TrendAlignment,
				Passed: s.Direction == dir, Observed: s.Value, Detail: s.Reason})
		case signal.SourcePositioning:
			o.trigger(rec, RuleTrigger{RuleID: rules.PositioningAlignment,
				Passed: s.Direction == dir, Observed: s.Value, Detail: s.Reason})
		}
	}
	if b.Market != nil {
		switch b.Market.VIXRegime {
		case signal.VolHigh:
			o.trigger(rec, RuleTrigger{RuleID: rules.MarketHighVol, Passed: false, Observed: b.Market.VIX})
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("high volatility regime (VIX %.1f), size reduced", b.Market.VIX))
		case signal.VolLow:
			o.trigger(rec, RuleTrigger{RuleID: rules.MarketLowVol, Passed: true, Observed: b.Market.VIX})
		}
	}
}
