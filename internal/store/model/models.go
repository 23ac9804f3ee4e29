package model

import "gorm.io/datatypes"

type DecisionType int

const (
	DecisionTypeUnknown DecisionType = 0
	DecisionTypeEntry   DecisionType = 1
	DecisionTypeHold    DecisionType = 2
	DecisionTypeExit    DecisionType = 3
)

type PositionStatus int

const (
	PositionStatusUnknown PositionStatus = 0
	PositionStatusOpen    PositionStatus = 1
	PositionStatusClosed  PositionStatus = 2
)

type RegimeGateState int

const (
	RegimeGateUnknown     RegimeGateState = 0
	RegimeGateStable      RegimeGateState = 1
	RegimeGateFlipped     RegimeGateState = 2
	RegimeGateCoolingDown RegimeGateState = 3
)

// DecisionModel maps to 'decisions' table. 快照列保存完整输入上下文，
// 便于事后复盘同一决策在当时参数下为何给出该动作。
type DecisionModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	DecisionID    string         `gorm:"column:decision_id;uniqueIndex"`
	SchemaVersion int            `gorm:"column:schema_version"`
	Ticker        string         `gorm:"column:ticker;index"`
	Type          DecisionType   `gorm:"column:type"`
	Action        string         `gorm:"column:action"`
	Direction     string         `gorm:"column:direction"`
	Confidence    float64        `gorm:"column:confidence"`
	Quantity      int            `gorm:"column:quantity"`
	Reason        string         `gorm:"column:reason"`
	ScoresJSON    datatypes.JSON `gorm:"column:scores_json;type:TEXT"`
	RulesJSON     datatypes.JSON `gorm:"column:rules_json;type:TEXT"`
	SnapshotJSON  datatypes.JSON `gorm:"column:snapshot_json;type:TEXT"`
	LevelsJSON    datatypes.JSON `gorm:"column:levels_json;type:TEXT"`
	DurationMs    int64          `gorm:"column:duration_ms"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`

	// Outcome 按盈亏分级（WIN/LOSS/SCRATCH），OutcomeCorrect 记方向判断对错；
	// 亏给 theta 的正确判断两个字段会不一致，这是有意的。
	Outcome        string  `gorm:"column:outcome"`
	OutcomePnlPct  float64 `gorm:"column:outcome_pnl_pct"`
	OutcomeCorrect bool    `gorm:"column:outcome_correct"`
	OutcomeAtUnix  int64   `gorm:"column:outcome_at"`
}

func (DecisionModel) TableName() string { return "decisions" }

// RulePerformanceModel maps to 'rule_performance' table，每条规则一行累计统计。
// Wins/Losses 计的是方向判断的对错次数，不是盈亏笔数；准确率分母用 Triggers。
type RulePerformanceModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	RuleID        string  `gorm:"column:rule_id;uniqueIndex"`
	Triggers      int64   `gorm:"column:triggers"`
	Wins          int64   `gorm:"column:wins"`
	Losses        int64   `gorm:"column:losses"`
	AvgPnlPct     float64 `gorm:"column:avg_pnl_pct"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (RulePerformanceModel) TableName() string { return "rule_performance" }

// RegimeStateModel maps to 'regime_states' table，每个 ticker 一行当前状态。
type RegimeStateModel struct {
	ID               int64           `gorm:"column:id;primaryKey"`
	Ticker           string          `gorm:"column:ticker;uniqueIndex"`
	CurrentRegime    string          `gorm:"column:current_regime"`
	PreviousRegime   string          `gorm:"column:previous_regime"`
	Confidence       float64         `gorm:"column:confidence"`
	State            RegimeGateState `gorm:"column:state"`
	LastFlipAtUnix   int64           `gorm:"column:last_flip_at"`
	CooldownUntilUnx int64           `gorm:"column:cooldown_until"`
	EvaluatedAtUnix  int64           `gorm:"column:evaluated_at"`
}

func (RegimeStateModel) TableName() string { return "regime_states" }

// PositionModel maps to 'positions' table。Hold/Exit 流程按此回放持仓。
type PositionModel struct {
	ID                int64          `gorm:"column:id;primaryKey"`
	PositionID        string         `gorm:"column:position_id;uniqueIndex"`
	Ticker            string         `gorm:"column:ticker;index"`
	Symbol            string         `gorm:"column:symbol"`
	Direction         string         `gorm:"column:direction"`
	EntryPrice        float64        `gorm:"column:entry_price"`
	Quantity          int            `gorm:"column:quantity"`
	InitialQuantity   int            `gorm:"column:initial_quantity"`
	PartialExitsTaken int            `gorm:"column:partial_exits_taken"`
	HighestPrice      float64        `gorm:"column:highest_price"`
	StopLoss          float64        `gorm:"column:stop_loss"`
	DTE               int            `gorm:"column:dte"`
	Status            PositionStatus `gorm:"column:status;index"`
	LevelsJSON        datatypes.JSON `gorm:"column:levels_json;type:TEXT"`
	EntryDecisionID   string         `gorm:"column:entry_decision_id"`
	OpenedAtUnix      int64          `gorm:"column:opened_at"`
	ClosedAtUnix      int64          `gorm:"column:closed_at"`
	UpdatedAtUnix     int64          `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }
