package decision

import (
	"time"

	"optiq/internal/confluence"
	"optiq/internal/exitplan"
	"optiq/internal/regime"
	"optiq/internal/signal"
	"optiq/internal/sizing"
)

// SchemaVersion 决策记录结构版本。字段演进时递增，
// 回放旧记录时据此区分解析方式。
const SchemaVersion = 2

// Type 决策流程类型。
type Type string

const (
	TypeEntry Type = "ENTRY"
	TypeHold  Type = "HOLD"
	TypeExit  Type = "EXIT"
)

// Action 决策动作。
type Action string

const (
	ActionExecute     Action = "EXECUTE"
	ActionReject      Action = "REJECT"
	ActionHold        Action = "HOLD"
	ActionTightenStop Action = "TIGHTEN_STOP"
	ActionPartialExit Action = "PARTIAL_EXIT"
	ActionExit        Action = "EXIT"
)

// RuleTrigger 一条规则在本次决策中的触发情况。
// Passed 表示规则条件对入场有利；阈值类规则附带当时的观测值。
type RuleTrigger struct {
	RuleID    string  `json:"rule_id"`
	Passed    bool    `json:"passed"`
	Observed  float64 `json:"observed,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}

// Snapshot 决策时刻的完整输入上下文，随记录持久化。
// 复盘时不依赖任何外部状态即可重演该决策。
type Snapshot struct {
	Bundle         signal.Bundle          `json:"bundle"`
	Scores         []signal.Score         `json:"scores,omitempty"`
	Confluence     *confluence.Result     `json:"confluence,omitempty"`
	Resolution     *confluence.Resolution `json:"resolution,omitempty"`
	Regime         *regime.Record         `json:"regime,omitempty"`
	Gate           *regime.GateResult     `json:"gate,omitempty"`
	Sizing         *sizing.Calculation    `json:"sizing,omitempty"`
	Levels         *exitplan.Levels       `json:"levels,omitempty"`
	TimeDecay      *exitplan.TimeDecay    `json:"time_decay,omitempty"`
	PortfolioValue float64                `json:"portfolio_value,omitempty"`
	OptionPrice    float64                `json:"option_price,omitempty"`
	CurrentPrice   float64                `json:"current_price,omitempty"`
	Overrides      map[string]any         `json:"overrides,omitempty"`
}

// Record 一次决策的完整结论。所有流程共用同一记录结构，
// 未涉及的字段留零值。
type Record struct {
	DecisionID    string           `json:"decision_id"`
	SchemaVersion int              `json:"schema_version"`
	Type          Type             `json:"type"`
	Ticker        string           `json:"ticker"`
	Direction     signal.Direction `json:"direction,omitempty"`
	Action        Action           `json:"action"`
	Confidence    float64          `json:"confidence"`
	Quantity      int              `json:"quantity,omitempty"`
	ExitQuantity  int              `json:"exit_quantity,omitempty"`
	NewStopLoss   float64          `json:"new_stop_loss,omitempty"`
	Reason        string           `json:"reason"`
	Warnings      []string         `json:"warnings,omitempty"`
	Triggers      []RuleTrigger    `json:"triggers,omitempty"`
	Breakdown     Breakdown        `json:"confidence_breakdown"`
	Snapshot      Snapshot         `json:"snapshot"`
	CreatedAt     time.Time        `json:"created_at"`
	DurationMs    int64            `json:"duration_ms"`
}

// TriggeredRuleIDs 返回本次决策引用过的规则 id（观测层按此累计触发数）。
func (r *Record) TriggeredRuleIDs() []string {
	ids := make([]string, 0, len(r.Triggers))
	for _, t := range r.Triggers {
		ids = append(ids, t.RuleID)
	}
	return ids
}

// EntryRequest 入场决策请求。
type EntryRequest struct {
	Bundle         signal.Bundle  `json:"bundle"`
	OptionSymbol   string         `json:"option_symbol,omitempty"`
	OptionPrice    float64        `json:"option_price"` // 每股权利金
	PortfolioValue float64        `json:"portfolio_value"`
	DTE            int            `json:"dte"`
	Overrides      map[string]any `json:"overrides,omitempty"`
}

// PositionState 持仓快照（Hold/Exit 请求共用）。
type PositionState struct {
	PositionID        string  `json:"position_id,omitempty"`
	Ticker            string  `json:"ticker"`
	EntryPrice        float64 `json:"entry_price"`
	Quantity          int     `json:"quantity"`
	InitialQuantity   int     `json:"initial_quantity,omitempty"`
	PartialExitsTaken int     `json:"partial_exits_taken"`
	HighestPrice      float64 `json:"highest_price"`
	DTE               int     `json:"dte"`
	HoursHeld         float64 `json:"hours_held,omitempty"`
}

// HoldRequest 持仓复核请求。Bundle 可选：在场时参与 regime 漂移检测。
type HoldRequest struct {
	Position     PositionState  `json:"position"`
	CurrentPrice float64        `json:"current_price"`
	Bundle       *signal.Bundle `json:"bundle,omitempty"`
	Overrides    map[string]any `json:"overrides,omitempty"`
}

// ExitRequest 离场评估请求。
type ExitRequest struct {
	Position      PositionState  `json:"position"`
	CurrentPrice  float64        `json:"current_price"`
	ATR           float64        `json:"atr,omitempty"`
	ATRPercentile float64        `json:"atr_percentile,omitempty"`
	Overrides     map[string]any `json:"overrides,omitempty"`
}

func (p PositionState) toExitplan(currentPrice float64) exitplan.Position {
	pnlPct := 0.0
	if p.EntryPrice > 0 && currentPrice > 0 {
		pnlPct = (currentPrice - p.EntryPrice) / p.EntryPrice * 100
	}
	initial := p.InitialQuantity
	if initial == 0 {
		initial = p.Quantity
	}
	return exitplan.Position{
		Ticker:            p.Ticker,
		EntryPrice:        p.EntryPrice,
		Quantity:          p.Quantity,
		InitialQuantity:   initial,
		PartialExitsTaken: p.PartialExitsTaken,
		HighestPrice:      p.HighestPrice,
		DTE:               p.DTE,
		UnrealizedPnlPct:  pnlPct,
	}
}
