// Package rules defines the declarative rule catalog.
// 规则目录是调参闭环的锚点：每条规则有稳定的 id、分类与基础阈值，
// orchestrator 触发规则时引用 id，auto-tuner 围绕阈值给出调整建议。
package rules

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Rule struct {
	ID        string  `yaml:"id"`
	Category  string  `yaml:"category"`
	Condition string  `yaml:"condition"`
	Threshold float64 `yaml:"threshold"`
	Disabled  bool    `yaml:"disabled"`
}

type Catalog struct {
	byID map[string]Rule
}

type catalogFile struct {
	Rules []Rule `yaml:"rules"`
}

// 内建规则 id。
const (
	EntryMinConfidence   = "entry_min_confidence"
	EntryMinConfluence   = "entry_min_confluence"
	ConfluenceAlignment  = "confluence_alignment"
	ConflictUnresolved   = "conflict_unresolved"
	ConflictCredibility  = "conflict_credibility_override"
	RegimeStability      = "regime_stability"
	RegimeLowConfidence  = "regime_low_confidence"
	PositioningAlignment = "positioning_alignment"
	MarketHighVol        = "market_high_vol"
	MarketLowVol         = "market_low_vol"
	TrendAlignment       = "mtf_alignment"
	SizingKelly          = "sizing_kelly_reduction"
	SizingHighVol        = "sizing_high_vol_reduction"
	ExitStopLoss         = "exit_stop_loss"
	ExitTimeDecay        = "exit_time_decay"
	ExitTrailingStop     = "exit_trailing_stop"
	ExitTarget1          = "exit_target1"
	ExitTarget2          = "exit_target2"
)

// Default 返回内建规则目录（rules.yaml 缺失时使用）。
func Default() *Catalog {
	builtin := []Rule{
		{ID: EntryMinConfidence, Category: "entry", Condition: "confidence >= threshold", Threshold: 60},
		{ID: EntryMinConfluence, Category: "entry", Condition: "confluence score >= threshold", Threshold: 50},
		{ID: ConfluenceAlignment, Category: "confluence", Condition: "sources aligned on one direction", Threshold: 50},
		{ID: ConflictUnresolved, Category: "conflict", Condition: "no majority and no credibility override", Threshold: 0},
		{ID: ConflictCredibility, Category: "conflict", Condition: "credibility source overrides majority", Threshold: 0},
		{ID: RegimeStability, Category: "regime", Condition: "regime stable outside flip cooldown", Threshold: 0},
		{ID: RegimeLowConfidence, Category: "regime", Condition: "regime confidence >= threshold", Threshold: 0.75},
		{ID: PositioningAlignment, Category: "positioning", Condition: "options positioning agrees with direction", Threshold: 0},
		{ID: MarketHighVol, Category: "market", Condition: "VIX regime HIGH_VOL", Threshold: 0},
		{ID: MarketLowVol, Category: "market", Condition: "VIX regime LOW_VOL", Threshold: 0},
		{ID: TrendAlignment, Category: "trend", Condition: "multi-timeframe bias agrees with direction", Threshold: 0},
		{ID: SizingKelly, Category: "sizing", Condition: "kelly scalar reduces quantity", Threshold: 0},
		{ID: SizingHighVol, Category: "sizing", Condition: "high-vol scalar reduces quantity", Threshold: 0},
		{ID: ExitStopLoss, Category: "exit", Condition: "price breached stop loss", Threshold: 0},
		{ID: ExitTimeDecay, Category: "exit", Condition: "time decay urgency critical", Threshold: 0},
		{ID: ExitTrailingStop, Category: "exit", Condition: "price breached trailing stop after partial", Threshold: 0},
		{ID: ExitTarget1, Category: "exit", Condition: "target1 reached, no partial taken", Threshold: 0},
		{ID: ExitTarget2, Category: "exit", Condition: "target2 reached after partial", Threshold: 0},
	}
	byID := make(map[string]Rule, len(builtin))
	for _, r := range builtin {
		byID[r.ID] = r
	}
	return &Catalog{byID: byID}
}

// Load 读取 rules.yaml 并覆盖内建目录；文件里未出现的规则保留内建定义。
func Load(path string) (*Catalog, error) {
	cat := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cat, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cat, nil
		}
		return nil, err
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing rules file failed (%s): %w", path, err)
	}
	for _, r := range file.Rules {
		r.ID = strings.TrimSpace(r.ID)
		if r.ID == "" {
			return nil, fmt.Errorf("rules file %s: rule id 不能为空", path)
		}
		if base, ok := cat.byID[r.ID]; ok {
			if r.Category == "" {
				r.Category = base.Category
			}
			if r.Condition == "" {
				r.Condition = base.Condition
			}
			if r.Threshold == 0 {
				r.Threshold = base.Threshold
			}
		}
		cat.byID[r.ID] = r
	}
	return cat, nil
}

func (c *Catalog) Get(id string) (Rule, bool) {
	if c == nil {
		return Rule{}, false
	}
	r, ok := c.byID[id]
	return r, ok
}

// Threshold 返回规则基础阈值；未知规则返回 0。
func (c *Catalog) Threshold(id string) float64 {
	r, _ := c.Get(id)
	return r.Threshold
}

func (c *Catalog) Enabled(id string) bool {
	r, ok := c.Get(id)
	return ok && !r.Disabled
}

// All 返回按 id 排序的全部规则（展示/持久化初始化用）。
func (c *Catalog) All() []Rule {
	if c == nil {
		return nil
	}
	out := make([]Rule, 0, len(c.byID))
	for _, r := range c.byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
