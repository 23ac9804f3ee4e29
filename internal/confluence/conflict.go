package confluence

import (
	"fmt"

	"optiq/internal/config"
	"optiq/internal/signal"
)

// Method 冲突解决方式。
type Method string

const (
	MethodMajority    Method = "MAJORITY"
	MethodCredibility Method = "CREDIBILITY"
	MethodNone        Method = "NONE"
)

// Resolution 冲突解决结果。分歧是数据不是故障：本函数从不报错。
type Resolution struct {
	Method            Method           `json:"method"`
	ResolvedDirection signal.Direction `json:"resolved_direction"`
	OverriddenSources []string         `json:"overridden_sources,omitempty"`
	Conflicted        bool             `json:"conflicted"`
	// Penalized 为真时 orchestrator 对置信度施加 conflict penalty。
	Penalized bool   `json:"penalized"`
	Detail    string `json:"detail"`
}

// Resolve 依次尝试 majority 与 credibility override；
// 都不成立时回退主信号方向并标记罚分。
func Resolve(scores []signal.Score, primary signal.Direction, cfg config.ConfluenceConfig) Resolution {
	directional := make([]signal.Score, 0, len(scores))
	votes := map[signal.Direction]int{}
	for _, s := range scores {
		if s.Direction == signal.Long || s.Direction == signal.Short {
			directional = append(directional, s)
			votes[s.Direction]++
		}
	}

	// 无分歧：0/1 个方向票，或全体同向。
	if votes[signal.Long] == 0 || votes[signal.Short] == 0 {
		dir := primary
		if votes[signal.Long] > 0 {
			dir = signal.Long
		} else if votes[signal.Short] > 0 {
			dir = signal.Short
		}
		return Resolution{
			Method:            MethodNone,
			ResolvedDirection: dir,
			Detail:            "sources agree, nothing to resolve",
		}
	}

	// Majority：多数方向票数达到下限即胜出。
	majorityDir := signal.Long
	if votes[signal.Short] > votes[signal.Long] {
		majorityDir = signal.Short
	}
	if votes[majorityDir] > votes[majorityDir.Opposite()] && votes[majorityDir] >= cfg.MajorityMinSources {
		return Resolution{
			Method:            MethodMajority,
			ResolvedDirection: majorityDir,
			OverriddenSources: disagreeing(directional, majorityDir),
			Conflicted:        true,
			Detail: fmt.Sprintf("majority %s (%d vs %d)",
				majorityDir, votes[majorityDir], votes[majorityDir.Opposite()]),
		}
	}

	// Credibility override：配置的高可信来源单票定向。
	if cfg.CredibilityEnabled {
		for _, s := range directional {
			if s.Source == cfg.CredibilitySource {
				return Resolution{
					Method:            MethodCredibility,
					ResolvedDirection: s.Direction,
					OverriddenSources: disagreeing(directional, s.Direction),
					Conflicted:        true,
					Detail:            fmt.Sprintf("credibility source %s forces %s", s.Source, s.Direction),
				}
			}
		}
	}

	// 回退主信号方向，置信度罚分。
	return Resolution{
		Method:            MethodNone,
		ResolvedDirection: primary,
		OverriddenSources: disagreeing(directional, primary),
		Conflicted:        true,
		Penalized:         true,
		Detail:            fmt.Sprintf("unresolved conflict, falling back to primary %s", primary),
	}
}

func disagreeing(scores []signal.Score, dir signal.Direction) []string {
	var out []string
	for _, s := range scores {
		if s.Direction != dir {
			out = append(out, s.Source)
		}
	}
	return out
}
