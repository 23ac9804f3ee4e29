package exitplan

// 中文说明：
// Exit planner 是纯函数集合：入场价 + ATR + 配置 → 止损/目标/追踪位，
// DTE + 浮盈 → 时间衰减紧迫度，持仓 + 现价 → 分批离场动作。
// 全部不做 I/O；ATR 由 internal/market 提供。

// Target 单个目标位：价格、相对入场的百分比、触发时的离场比例。
type Target struct {
	Price       float64 `json:"price"`
	Percent     float64 `json:"percent"`
	ExitPercent float64 `json:"exit_percent"`
}

// Levels 入场时生成的完整离场计划。创建后不再修改；
// 持仓的实际分批进度记录在 position 行上。
type Levels struct {
	EntryPrice          float64 `json:"entry_price"`
	StopLoss            float64 `json:"stop_loss"`
	StopLossPercent     float64 `json:"stop_loss_percent"`
	Target1             Target  `json:"target1"`
	Target2             Target  `json:"target2"`
	TrailingStopPercent float64 `json:"trailing_stop_percent"`
	MaxHoldHours        int     `json:"max_hold_hours"`
	VolMultiplier       float64 `json:"vol_multiplier"`
}

// Urgency 时间衰减紧迫度。
type Urgency string

const (
	UrgencyNone     Urgency = "NONE"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// TimeDecay DTE 紧迫度评估结果。目标乘数向 0 收缩时，
// 有效目标位向入场价塌缩，倾向尽快离场。
type TimeDecay struct {
	Urgency           Urgency `json:"urgency"`
	Action            string  `json:"action"`
	DTE               int     `json:"dte"`
	Target1Multiplier float64 `json:"target1_multiplier"`
	Target2Multiplier float64 `json:"target2_multiplier"`
}

// Position 离场评估所需的持仓快照（来自 position 行）。
type Position struct {
	Ticker            string  `json:"ticker"`
	EntryPrice        float64 `json:"entry_price"`
	Quantity          int     `json:"quantity"`
	InitialQuantity   int     `json:"initial_quantity"`
	PartialExitsTaken int     `json:"partial_exits_taken"`
	HighestPrice      float64 `json:"highest_price"`
	DTE               int     `json:"dte"`
	UnrealizedPnlPct  float64 `json:"unrealized_pnl_pct"`
}

// Action 离场评估动作。
type Action string

const (
	ActionHold         Action = "HOLD"
	ActionClosePartial Action = "CLOSE_PARTIAL"
	ActionCloseFull    Action = "CLOSE_FULL"
)

// Evaluation 单次离场评估结论，附带重算的离场位便于审计。
type Evaluation struct {
	Action       Action  `json:"action"`
	ExitQuantity int     `json:"exit_quantity"`
	RuleID       string  `json:"rule_id"`
	Reason       string  `json:"reason"`
	NewStopLoss  float64 `json:"new_stop_loss,omitempty"` // 0 表示不动
	Urgency      Urgency `json:"urgency"`
	Levels       Levels  `json:"levels"`
}
