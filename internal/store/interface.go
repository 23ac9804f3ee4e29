package store

import (
	"context"

	"optiq/internal/regime"
	"optiq/internal/store/model"
)

// DecisionRepository 决策记录的读写。Outcome 只允许从空设为终值，
// 写入序由 observer 的单协程信箱保证，仓储层不做并发合并。
type DecisionRepository interface {
	SaveDecision(ctx context.Context, rec *model.DecisionModel) error
	FindDecision(ctx context.Context, decisionID string) (*model.DecisionModel, error)
	SetDecisionOutcome(ctx context.Context, decisionID, outcome string, pnlPct float64, correct bool, at int64) error
	ListRecentDecisions(ctx context.Context, ticker string, limit int) ([]model.DecisionModel, error)
}

// RuleStatsRepository 规则触发/胜率统计。
type RuleStatsRepository interface {
	FindRulePerformance(ctx context.Context, ruleID string) (*model.RulePerformanceModel, error)
	SaveRulePerformance(ctx context.Context, rec *model.RulePerformanceModel) error
	ListRulePerformance(ctx context.Context) ([]model.RulePerformanceModel, error)
}

// PositionRepository 持仓快照。
type PositionRepository interface {
	SavePosition(ctx context.Context, rec *model.PositionModel) error
	FindPosition(ctx context.Context, positionID string) (*model.PositionModel, error)
	ListOpenPositions(ctx context.Context) ([]model.PositionModel, error)
}

// Store is the entry point for database access.
type Store interface {
	DecisionRepository
	RuleStatsRepository
	PositionRepository
	// regime.Store 由同一个库实现，保证 regime 状态与决策同库同事务语义。
	regime.Store
	Close() error
}
