package config

// 默认值常量
const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9885"
	defaultAppLogPath  = ""

	defaultMinConfidence     = 60
	defaultMinConfluence     = 50
	defaultConflictPenalty   = 10
	defaultConfluenceMin     = 50
	defaultMinAgreeing       = 2
	defaultMajorityMin       = 3
	defaultCredibilitySource = "gamma"

	defaultRegimeCooldown      = 900
	defaultRegimeMinConfidence = 0.75
	defaultRegimeGateMode      = "reject"
	defaultRegimePenalty       = 15

	defaultMaxRiskPercent     = 2.0
	defaultContractMultiplier = 100
	defaultKellyScalar        = 0.25
	defaultHighVolScalar      = 0.5

	defaultStopATRMultiplier = 2.0
	defaultMinStopPercent    = 15
	defaultMaxStopPercent    = 40
	defaultTarget1R          = 1.5
	defaultTarget2R          = 3.0
	defaultPartialExitPct    = 25
	defaultTrailingFactor    = 0.5
	defaultMinTrailingPct    = 5
	defaultMaxTrailingPct    = 25
	defaultUrgentDTE         = 3
	defaultCriticalDTE       = 1
	defaultMaxHoldHours      = 48

	defaultTuneDirectionFloor = 30
	defaultTuneRecFloor       = 20
	defaultLoosenAccuracy     = 0.45
	defaultTightenAccuracy    = 0.65
	defaultLoosenFactor       = 0.8
	defaultTightenFactor      = 1.2

	defaultMarketTimeout = 10
	defaultATRPeriod     = 14
	defaultCandleLimit   = 120

	defaultStorePath   = "data/optiq.db"
	defaultAuditPath   = "data/audit.db"
	defaultMonitorSecs = 300
	defaultMonitorConc = 4
	defaultRulesPath   = "configs/rules.yaml"
)

// defaultWeights 各来源在共识评分中的权重。
func defaultWeights() map[string]float64 {
	return map[string]float64{
		"trade_signal": 0.30,
		"gamma":        0.25,
		"trend":        0.20,
		"positioning":  0.15,
		"market":       0.10,
	}
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Confluence.applyDefaults(keys)
	c.Regime.applyDefaults(keys)
	c.Sizing.applyDefaults(keys)
	c.Exit.applyDefaults(keys)
	c.Tuning.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Monitor.applyDefaults(keys)
	applyFieldDefaults(keys,
		stringFieldDefault("rules_path", &c.RulesPath, defaultRulesPath),
	)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("engine.min_confidence_to_execute", &e.MinConfidenceToExecute, defaultMinConfidence),
		floatFieldDefault("engine.min_confluence_score", &e.MinConfluenceScore, defaultMinConfluence),
		floatFieldDefault("engine.conflict_penalty", &e.ConflictPenalty, defaultConflictPenalty),
	)
	if len(e.Weights) == 0 {
		e.Weights = defaultWeights()
	}
}

func (c *ConfluenceConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("confluence.min_score", &c.MinScore, defaultConfluenceMin),
		intFieldDefault("confluence.min_agreeing_sources", &c.MinAgreeingSources, defaultMinAgreeing),
		intFieldDefault("confluence.majority_min_sources", &c.MajorityMinSources, defaultMajorityMin),
		stringFieldDefault("confluence.credibility_source", &c.CredibilitySource, defaultCredibilitySource),
	)
}

func (r *RegimeConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("regime.flip_cooldown_seconds", &r.FlipCooldownSeconds, defaultRegimeCooldown),
		floatFieldDefault("regime.min_confidence", &r.MinConfidence, defaultRegimeMinConfidence),
		boolFieldDefault("regime.require_stable", &r.RequireStable, true),
		stringFieldDefault("regime.gate_mode", &r.GateMode, defaultRegimeGateMode),
		floatFieldDefault("regime.penalty", &r.Penalty, defaultRegimePenalty),
	)
}

func (s *SizingConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("sizing.max_risk_per_trade_percent", &s.MaxRiskPerTradePercent, defaultMaxRiskPercent),
		intFieldDefault("sizing.contract_multiplier", &s.ContractMultiplier, defaultContractMultiplier),
		boolFieldDefault("sizing.kelly_enabled", &s.KellyEnabled, true),
		floatFieldDefault("sizing.kelly_scalar", &s.KellyScalar, defaultKellyScalar),
		boolFieldDefault("sizing.vix_scaling_enabled", &s.VIXScalingEnabled, true),
		floatFieldDefault("sizing.high_vol_scalar", &s.HighVolScalar, defaultHighVolScalar),
	)
	if s.MaxContracts < 0 {
		s.MaxContracts = 0
	}
}

func (e *ExitConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("exit.stop_atr_multiplier", &e.StopATRMultiplier, defaultStopATRMultiplier),
		floatFieldDefault("exit.min_stop_percent", &e.MinStopPercent, defaultMinStopPercent),
		floatFieldDefault("exit.max_stop_percent", &e.MaxStopPercent, defaultMaxStopPercent),
		floatFieldDefault("exit.target1_r", &e.Target1R, defaultTarget1R),
		floatFieldDefault("exit.target2_r", &e.Target2R, defaultTarget2R),
		floatFieldDefault("exit.partial_exit_percent", &e.PartialExitPercent, defaultPartialExitPct),
		floatFieldDefault("exit.trailing_factor", &e.TrailingFactor, defaultTrailingFactor),
		floatFieldDefault("exit.min_trailing_percent", &e.MinTrailingPercent, defaultMinTrailingPct),
		floatFieldDefault("exit.max_trailing_percent", &e.MaxTrailingPercent, defaultMaxTrailingPct),
		intFieldDefault("exit.urgent_dte", &e.UrgentDTE, defaultUrgentDTE),
		intFieldDefault("exit.critical_dte", &e.CriticalDTE, defaultCriticalDTE),
		intFieldDefault("exit.max_hold_hours", &e.MaxHoldHours, defaultMaxHoldHours),
	)
}

func (t *TuningConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("tuning.min_triggers_for_direction", &t.MinTriggersForDirection, defaultTuneDirectionFloor),
		intFieldDefault("tuning.min_triggers_for_recommendation", &t.MinTriggersForRecommendation, defaultTuneRecFloor),
		floatFieldDefault("tuning.loosen_below_accuracy", &t.LoosenBelowAccuracy, defaultLoosenAccuracy),
		floatFieldDefault("tuning.tighten_above_accuracy", &t.TightenAboveAccuracy, defaultTightenAccuracy),
		floatFieldDefault("tuning.loosen_factor", &t.LoosenFactor, defaultLoosenFactor),
		floatFieldDefault("tuning.tighten_factor", &t.TightenFactor, defaultTightenFactor),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("market.timeout_seconds", &m.TimeoutSeconds, defaultMarketTimeout),
		intFieldDefault("market.atr_period", &m.ATRPeriod, defaultATRPeriod),
		intFieldDefault("market.candle_limit", &m.CandleLimit, defaultCandleLimit),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
		stringFieldDefault("store.audit_path", &s.AuditPath, defaultAuditPath),
	)
}

func (m *MonitorConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("monitor.enabled", &m.Enabled, true),
		intFieldDefault("monitor.interval_seconds", &m.IntervalSeconds, defaultMonitorSecs),
		intFieldDefault("monitor.max_concurrent_tickers", &m.MaxConcurrentTickers, defaultMonitorConc),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == "" },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
