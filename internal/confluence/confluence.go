// Package confluence aggregates per-source scores and resolves disagreement.
package confluence

import (
	"fmt"

	"optiq/internal/config"
	"optiq/internal/pkg/convert"
	"optiq/internal/signal"
)

// Result 加权共识评分。
type Result struct {
	Score             float64          `json:"score"` // 0-100
	ConfluenceCount   int              `json:"confluence_count"`
	MajorityDirection signal.Direction `json:"majority_direction"`
	IsAligned         bool             `json:"is_aligned"`
	Reasons           []string         `json:"reasons"`
}

// Aggregate 对在场来源做加权平均，并统计与多数方向一致的来源数。
// 缺席来源不在 scores 里，天然不参与计数。
func Aggregate(scores []signal.Score, cfg config.ConfluenceConfig) Result {
	res := Result{MajorityDirection: signal.Neutral}
	if len(scores) == 0 {
		return res
	}
	var weighted, totalWeight, plain float64
	for _, s := range scores {
		weighted += s.Value * s.Weight
		totalWeight += s.Weight
		plain += s.Value
		res.Reasons = append(res.Reasons, fmt.Sprintf("[%s] %s", s.Source, s.Reason))
	}
	if totalWeight > 0 {
		res.Score = weighted / totalWeight
	} else {
		res.Score = plain / float64(len(scores))
	}
	res.Score = convert.Clamp(res.Score, 0, 100)

	res.MajorityDirection, res.ConfluenceCount = majority(scores)
	res.IsAligned = res.Score >= cfg.MinScore && res.ConfluenceCount >= cfg.MinAgreeingSources
	return res
}

// majority 统计非 NEUTRAL 来源中的多数方向；平票记 NEUTRAL。
func majority(scores []signal.Score) (signal.Direction, int) {
	votes := map[signal.Direction]int{}
	for _, s := range scores {
		if s.Direction == signal.Long || s.Direction == signal.Short {
			votes[s.Direction]++
		}
	}
	switch {
	case votes[signal.Long] > votes[signal.Short]:
		return signal.Long, votes[signal.Long]
	case votes[signal.Short] > votes[signal.Long]:
		return signal.Short, votes[signal.Short]
	case votes[signal.Long] > 0:
		return signal.Neutral, votes[signal.Long]
	default:
		return signal.Neutral, 0
	}
}
