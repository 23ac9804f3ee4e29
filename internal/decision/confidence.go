package decision

import (
	"optiq/internal/pkg/convert"
)

// Breakdown 置信度合成明细。Final 恒在 [0,100]，
// 各罚项只减不加，复盘时能逐项对账。
type Breakdown struct {
	Base            float64 `json:"base"` // 共识加权分
	ConflictPenalty float64 `json:"conflict_penalty,omitempty"`
	RegimePenalty   float64 `json:"regime_penalty,omitempty"`
	Final           float64 `json:"final"`
}

func composeConfidence(base, conflictPenalty, regimePenalty float64) Breakdown {
	b := Breakdown{
		Base:            base,
		ConflictPenalty: conflictPenalty,
		RegimePenalty:   regimePenalty,
	}
	b.Final = convert.Clamp(base-conflictPenalty-regimePenalty, 0, 100)
	return b
}
