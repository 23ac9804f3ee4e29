package config

import "strings"

// Config 是决策引擎的主配置载体。
// 所有 §4 可调参数都可通过 per-call override 覆盖（见 override.go）。
type Config struct {
	App        AppConfig        `toml:"app"`
	Engine     EngineConfig     `toml:"engine"`
	Confluence ConfluenceConfig `toml:"confluence"`
	Regime     RegimeConfig     `toml:"regime"`
	Sizing     SizingConfig     `toml:"sizing"`
	Exit       ExitConfig       `toml:"exit"`
	Tuning     TuningConfig     `toml:"tuning"`
	Market     MarketConfig     `toml:"market"`
	Store      StoreConfig      `toml:"store"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Notify     NotifyConfig     `toml:"notify"`
	RulesPath  string           `toml:"rules_path"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// EngineConfig 控制 orchestrator 的准入阈值与各来源权重。
type EngineConfig struct {
	MinConfidenceToExecute float64            `toml:"min_confidence_to_execute"`
	MinConfluenceScore     float64            `toml:"min_confluence_score"`
	Weights                map[string]float64 `toml:"weights"`
	ConflictPenalty        float64            `toml:"conflict_penalty"`
}

// ConfluenceConfig 控制共识判定与冲突解决策略。
type ConfluenceConfig struct {
	MinScore           float64 `toml:"min_score"`
	MinAgreeingSources int     `toml:"min_agreeing_sources"`
	MajorityMinSources int     `toml:"majority_min_sources"`
	CredibilityEnabled bool    `toml:"credibility_enabled"`
	CredibilitySource  string  `toml:"credibility_source"`
}

// RegimeConfig 控制 regime 稳定性闸门。
type RegimeConfig struct {
	FlipCooldownSeconds int     `toml:"flip_cooldown_seconds"`
	MinConfidence       float64 `toml:"min_confidence"`
	RequireStable       bool    `toml:"require_stable"`
	// GateMode: "reject" 直接拒绝入场；"penalize" 仅扣减置信度。
	GateMode string  `toml:"gate_mode"`
	Penalty  float64 `toml:"penalty"`
}

// SizingConfig 控制风险上限与仓位缩放。
type SizingConfig struct {
	MaxRiskPerTradePercent float64 `toml:"max_risk_per_trade_percent"`
	ContractMultiplier     int     `toml:"contract_multiplier"`
	MaxContracts           int     `toml:"max_contracts"`
	KellyEnabled           bool    `toml:"kelly_enabled"`
	// KellyScalar 为分数凯利系数（0.25 = quarter-Kelly）。
	KellyScalar       float64 `toml:"kelly_scalar"`
	VIXScalingEnabled bool    `toml:"vix_scaling_enabled"`
	HighVolScalar     float64 `toml:"high_vol_scalar"`
}

// ExitConfig 控制止损/目标/追踪与时间衰减参数。
type ExitConfig struct {
	StopATRMultiplier  float64 `toml:"stop_atr_multiplier"`
	MinStopPercent     float64 `toml:"min_stop_percent"`
	MaxStopPercent     float64 `toml:"max_stop_percent"`
	Target1R           float64 `toml:"target1_r"`
	Target2R           float64 `toml:"target2_r"`
	PartialExitPercent float64 `toml:"partial_exit_percent"`
	TrailingFactor     float64 `toml:"trailing_factor"`
	MinTrailingPercent float64 `toml:"min_trailing_percent"`
	MaxTrailingPercent float64 `toml:"max_trailing_percent"`
	UrgentDTE          int     `toml:"urgent_dte"`
	CriticalDTE        int     `toml:"critical_dte"`
	MaxHoldHours       int     `toml:"max_hold_hours"`
}

// TuningConfig 控制规则自动调参的统计门槛。
type TuningConfig struct {
	MinTriggersForDirection      int     `toml:"min_triggers_for_direction"`
	MinTriggersForRecommendation int     `toml:"min_triggers_for_recommendation"`
	LoosenBelowAccuracy          float64 `toml:"loosen_below_accuracy"`
	TightenAboveAccuracy         float64 `toml:"tighten_above_accuracy"`
	LoosenFactor                 float64 `toml:"loosen_factor"`
	TightenFactor                float64 `toml:"tighten_factor"`
}

type MarketConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ATRPeriod      int    `toml:"atr_period"`
	CandleLimit    int    `toml:"candle_limit"`
}

type StoreConfig struct {
	Path      string `toml:"path"`
	AuditPath string `toml:"audit_path"`
}

type MonitorConfig struct {
	Enabled              bool `toml:"enabled"`
	IntervalSeconds      int  `toml:"interval_seconds"`
	MaxConcurrentTickers int  `toml:"max_concurrent_tickers"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
