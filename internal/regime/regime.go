// Package regime tracks per-ticker market-regime stability and gates entries.
package regime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"optiq/internal/config"
	"optiq/internal/signal"
)

// State regime 稳定性状态机的三个状态。
type State string

const (
	StateStable      State = "STABLE"
	StateFlipped     State = "FLIPPED"
	StateCoolingDown State = "COOLING_DOWN"
)

// UnknownRegime 某一维度缺席时的占位分类。
const UnknownRegime = "UNKNOWN"

// Record 单 ticker 的 regime 稳定性记录，按 ticker 持久化。
// 不变量：CooldownUntil >= LastFlipAt 恒成立。
type Record struct {
	Ticker         string    `json:"ticker"`
	CurrentRegime  string    `json:"current_regime"`
	PreviousRegime string    `json:"previous_regime,omitempty"`
	Confidence     float64   `json:"regime_confidence"`
	State          State     `json:"state"`
	LastFlipAt     time.Time `json:"last_flip_at,omitempty"`
	CooldownUntil  time.Time `json:"cooldown_until,omitempty"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}

// IsStable 状态为 STABLE 且置信度达标。
func (r Record) IsStable(minConfidence float64) bool {
	return r.State == StateStable && r.Confidence >= minConfidence
}

// Store 持久化接口。调用方负责串行化同一 ticker 的读改写
// （见 observer.Ledger）。
type Store interface {
	GetRegimeState(ctx context.Context, ticker string) (*Record, error)
	SaveRegimeState(ctx context.Context, rec Record) error
}

// Classify 从 gamma 持仓与 VIX 分级推导 regime 标签与置信度。
// 任一维度缺席时以 UNKNOWN 占位，置信度相应打折。
func Classify(gamma *signal.GammaExposure, market *signal.MarketContext) (string, float64) {
	dealer, vol := UnknownRegime, UnknownRegime
	conf := 0.0
	if gamma != nil {
		dealer = gamma.DealerPositioning
		if dealer == "" {
			dealer = UnknownRegime
		}
		conf = gamma.Confidence
	}
	if market != nil {
		vol = market.VIXRegime
		if vol == "" {
			vol = UnknownRegime
		}
		if conf == 0 {
			conf = 0.6
		}
	}
	if dealer == UnknownRegime && vol == UnknownRegime {
		return UnknownRegime, 0
	}
	if dealer == UnknownRegime || vol == UnknownRegime {
		conf *= 0.7
	}
	return dealer + "/" + vol, conf
}

// Gate 执行 regime 稳定性状态机。
type Gate struct {
	store Store
	now   func() time.Time
}

func NewGate(store Store, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{store: store, now: now}
}

// Evaluate 用 incoming 分类推进状态机并持久化更新后的记录。
//
// 转移规则：
//   - 分类不变：冷却期内为 COOLING_DOWN，否则 STABLE；只刷新置信度。
//   - 分类改变：进入 FLIPPED，lastFlipAt=now，cooldownUntil 只向前延伸。
func (g *Gate) Evaluate(ctx context.Context, ticker, incoming string, confidence float64, cfg config.RegimeConfig) (Record, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return Record{}, fmt.Errorf("regime gate: ticker 不能为空")
	}
	if incoming == "" {
		incoming = UnknownRegime
	}
	now := g.now()

	prev, err := g.store.GetRegimeState(ctx, ticker)
	if err != nil {
		return Record{}, fmt.Errorf("regime gate: load state for %s: %w", ticker, err)
	}
	var rec Record
	if prev == nil {
		// 首次观察：视为稳定基线，不触发冷却。
		rec = Record{
			Ticker:        ticker,
			CurrentRegime: incoming,
			Confidence:    confidence,
			State:         StateStable,
			EvaluatedAt:   now,
		}
	} else {
		rec = *prev
		rec.Confidence = confidence
		rec.EvaluatedAt = now
		if incoming == rec.CurrentRegime {
			if now.Before(rec.CooldownUntil) {
				rec.State = StateCoolingDown
			} else {
				rec.State = StateStable
			}
		} else {
			rec.PreviousRegime = rec.CurrentRegime
			rec.CurrentRegime = incoming
			rec.State = StateFlipped
			rec.LastFlipAt = now
			until := now.Add(time.Duration(cfg.FlipCooldownSeconds) * time.Second)
			// 冷却只延长不回退：flip 连发时窗口向前滚动。
			if until.After(rec.CooldownUntil) {
				rec.CooldownUntil = until
			}
		}
	}

	if err := g.store.SaveRegimeState(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("regime gate: save state for %s: %w", ticker, err)
	}
	return rec, nil
}

// GateResult 入场闸门结论。Hold/Exit 流程不经过此判定。
type GateResult struct {
	Blocked bool    `json:"blocked"`
	Penalty float64 `json:"penalty"`
	Reason  string  `json:"reason,omitempty"`
}

// CheckEntry 根据配置判定是否拦截入场或施加罚分。
func CheckEntry(rec Record, cfg config.RegimeConfig) GateResult {
	unstable := cfg.RequireStable && rec.State != StateStable
	lowConf := rec.Confidence < cfg.MinConfidence
	if !unstable && !lowConf {
		return GateResult{}
	}
	reason := ""
	switch {
	case unstable && lowConf:
		reason = fmt.Sprintf("regime %s (%s) with low confidence %.2f", rec.CurrentRegime, rec.State, rec.Confidence)
	case unstable:
		reason = fmt.Sprintf("regime %s not stable (%s, cooldown until %s)",
			rec.CurrentRegime, rec.State, rec.CooldownUntil.Format(time.RFC3339))
	default:
		reason = fmt.Sprintf("regime confidence %.2f below minimum %.2f", rec.Confidence, cfg.MinConfidence)
	}
	if strings.EqualFold(cfg.GateMode, "penalize") {
		return GateResult{Penalty: cfg.Penalty, Reason: reason}
	}
	return GateResult{Blocked: true, Reason: reason}
}
