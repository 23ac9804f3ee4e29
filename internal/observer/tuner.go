package observer

import (
	"context"
	"fmt"
	"sort"

	"optiq/internal/config"
	"optiq/internal/pkg/convert"
	"optiq/internal/rules"
	"optiq/internal/store/model"
)

// TuneDirection 调参方向。建议只产出，不自动应用：
// 阈值变更永远由人确认后写进 rules.yaml。
type TuneDirection string

const (
	TuneKeep    TuneDirection = "KEEP"
	TuneLoosen  TuneDirection = "LOOSEN"
	TuneTighten TuneDirection = "TIGHTEN"
)

// Recommendation 单条规则的调参建议。准确率分母是触发次数：
// 规则每拦截/放行一次就算一次表态，未结算的表态压低准确率是预期行为。
// Confidence 取值 0-1。
type Recommendation struct {
	RuleID             string        `json:"rule_id"`
	Direction          TuneDirection `json:"direction"`
	CurrentThreshold   float64       `json:"current_threshold"`
	SuggestedThreshold float64       `json:"suggested_threshold"`
	Accuracy           float64       `json:"accuracy"`
	AvgPnlPct          float64       `json:"avg_pnl_pct"`
	Triggers           int64         `json:"triggers"`
	Samples            int64         `json:"samples"` // 已结算的对+错，仅作展示
	Confidence         float64       `json:"confidence"`
	Rationale          string        `json:"rationale"`
}

// Tuner 把规则统计折算成调参建议。纯计算，无 I/O。
type Tuner struct {
	catalog *rules.Catalog
	cfg     config.TuningConfig
}

func NewTuner(catalog *rules.Catalog, cfg config.TuningConfig) *Tuner {
	return &Tuner{catalog: catalog, cfg: cfg}
}

// Analyze 对每条有统计的规则给出方向判断。
// 触发量不足方向门槛的一律 KEEP，不猜。
func (t *Tuner) Analyze(perf []model.RulePerformanceModel) []Recommendation {
	out := make([]Recommendation, 0, len(perf))
	for _, p := range perf {
		out = append(out, t.analyzeOne(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

func (t *Tuner) analyzeOne(p model.RulePerformanceModel) Recommendation {
	rec := Recommendation{
		RuleID:           p.RuleID,
		Direction:        TuneKeep,
		CurrentThreshold: t.catalog.Threshold(p.RuleID),
		Triggers:         p.Triggers,
		AvgPnlPct:        p.AvgPnlPct,
	}
	rec.SuggestedThreshold = rec.CurrentThreshold
	rec.Samples = p.Wins + p.Losses
	if p.Triggers > 0 {
		rec.Accuracy = float64(p.Wins) / float64(p.Triggers)
	}
	if p.Triggers < int64(t.cfg.MinTriggersForDirection) {
		rec.Rationale = fmt.Sprintf("only %d triggers, below direction minimum %d",
			p.Triggers, t.cfg.MinTriggersForDirection)
		return rec
	}

	switch {
	case rec.Accuracy < t.cfg.LoosenBelowAccuracy:
		rec.Direction = TuneLoosen
		rec.SuggestedThreshold = rec.CurrentThreshold * t.cfg.LoosenFactor
		rec.Rationale = fmt.Sprintf("accuracy %.2f below %.2f, rule blocks more good trades than bad",
			rec.Accuracy, t.cfg.LoosenBelowAccuracy)
	case rec.Accuracy > t.cfg.TightenAboveAccuracy && rec.AvgPnlPct < 0:
		rec.Direction = TuneTighten
		rec.SuggestedThreshold = rec.CurrentThreshold * t.cfg.TightenFactor
		rec.Rationale = fmt.Sprintf("accuracy %.2f is high but average pnl %.2f%% is negative, wins too small",
			rec.Accuracy, rec.AvgPnlPct)
	default:
		rec.Rationale = fmt.Sprintf("accuracy %.2f within acceptable band", rec.Accuracy)
	}
	rec.Confidence = t.confidence(rec)
	return rec
}

// confidence：触发量给基础分，偏离 KEEP 区间的幅度给放大系数。
func (t *Tuner) confidence(rec Recommendation) float64 {
	if rec.Direction == TuneKeep {
		return 0
	}
	base := convert.Clamp(float64(rec.Triggers)/100, 0, 1)
	var dist float64
	switch rec.Direction {
	case TuneLoosen:
		if t.cfg.LoosenBelowAccuracy > 0 {
			dist = (t.cfg.LoosenBelowAccuracy - rec.Accuracy) / t.cfg.LoosenBelowAccuracy
		}
	case TuneTighten:
		if t.cfg.TightenAboveAccuracy < 1 {
			dist = (rec.Accuracy - t.cfg.TightenAboveAccuracy) / (1 - t.cfg.TightenAboveAccuracy)
		}
	}
	return base * convert.Clamp(dist, 0, 1)
}

// Recommendations 过滤出触发量达标且方向非 KEEP 的建议，按置信度降序。
func (t *Tuner) Recommendations(perf []model.RulePerformanceModel) []Recommendation {
	all := t.Analyze(perf)
	out := make([]Recommendation, 0, len(all))
	for _, r := range all {
		if r.Direction == TuneKeep {
			continue
		}
		if r.Triggers < int64(t.cfg.MinTriggersForRecommendation) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// TuningReport 读取最新统计并产出完整分析（HTTP 报表入口）。
func (l *Ledger) TuningReport(ctx context.Context, tuner *Tuner) ([]Recommendation, error) {
	perf, err := l.RulePerformance(ctx)
	if err != nil {
		return nil, err
	}
	return tuner.Analyze(perf), nil
}
