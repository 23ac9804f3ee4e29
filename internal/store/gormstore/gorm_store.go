package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"optiq/internal/regime"
	"optiq/internal/store"
	storemodel "optiq/internal/store/model"
)

var _ store.Store = (*GormStore)(nil)

type decisionModel = storemodel.DecisionModel
type rulePerformanceModel = storemodel.RulePerformanceModel
type regimeStateModel = storemodel.RegimeStateModel
type positionModel = storemodel.PositionModel

// GormStore implements decision, rule-stats, regime and position storage
// using Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore initializes a new GormStore instance.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&decisionModel{},
		&rulePerformanceModel{},
		&regimeStateModel{},
		&positionModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	return s.db.DB()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// ---- decisions ----

func (s *GormStore) SaveDecision(ctx context.Context, rec *decisionModel) error {
	if rec == nil {
		return fmt.Errorf("gorm store: decision 记录为空")
	}
	if rec.CreatedAtUnix == 0 {
		rec.CreatedAtUnix = time.Now().Unix()
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "decision_id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
}

func (s *GormStore) FindDecision(ctx context.Context, decisionID string) (*decisionModel, error) {
	var rec decisionModel
	err := s.db.WithContext(ctx).Where("decision_id = ?", decisionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SetDecisionOutcome 只允许把空 outcome 写成终值；重复写入同值视为幂等成功，
// 写入不同值（盈亏分级或方向判定任一不符）则报错。
func (s *GormStore) SetDecisionOutcome(ctx context.Context, decisionID, outcome string, pnlPct float64, correct bool, at int64) error {
	existing, err := s.FindDecision(ctx, decisionID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("gorm store: decision %s 不存在", decisionID)
	}
	if existing.Outcome != "" {
		if existing.Outcome == outcome && existing.OutcomeCorrect == correct {
			return nil
		}
		return fmt.Errorf("gorm store: decision %s outcome 已定为 %s，拒绝改写为 %s", decisionID, existing.Outcome, outcome)
	}
	return s.db.WithContext(ctx).Model(&decisionModel{}).
		Where("decision_id = ?", decisionID).
		Updates(map[string]interface{}{
			"outcome":         outcome,
			"outcome_pnl_pct": pnlPct,
			"outcome_correct": correct,
			"outcome_at":      at,
		}).Error
}

func (s *GormStore) ListRecentDecisions(ctx context.Context, ticker string, limit int) ([]decisionModel, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&decisionModel{}).Order("created_at DESC").Limit(limit)
	if ticker != "" {
		q = q.Where("ticker = ?", strings.ToUpper(ticker))
	}
	var recs []decisionModel
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// ---- rule performance ----

func (s *GormStore) FindRulePerformance(ctx context.Context, ruleID string) (*rulePerformanceModel, error) {
	var rec rulePerformanceModel
	err := s.db.WithContext(ctx).Where("rule_id = ?", ruleID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) SaveRulePerformance(ctx context.Context, rec *rulePerformanceModel) error {
	if rec == nil || rec.RuleID == "" {
		return fmt.Errorf("gorm store: rule performance 记录不完整")
	}
	rec.UpdatedAtUnix = time.Now().Unix()
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "rule_id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
}

func (s *GormStore) ListRulePerformance(ctx context.Context) ([]rulePerformanceModel, error) {
	var recs []rulePerformanceModel
	if err := s.db.WithContext(ctx).Order("rule_id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// ---- regime states ----

func (s *GormStore) GetRegimeState(ctx context.Context, ticker string) (*regime.Record, error) {
	var rec regimeStateModel
	err := s.db.WithContext(ctx).Where("ticker = ?", strings.ToUpper(ticker)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := regimeRecordFromModel(rec)
	return &out, nil
}

func (s *GormStore) SaveRegimeState(ctx context.Context, rec regime.Record) error {
	if rec.Ticker == "" {
		return fmt.Errorf("gorm store: regime 记录缺少 ticker")
	}
	row := regimeModelFromRecord(rec)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ticker"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

func regimeRecordFromModel(m regimeStateModel) regime.Record {
	return regime.Record{
		Ticker:         m.Ticker,
		CurrentRegime:  m.CurrentRegime,
		PreviousRegime: m.PreviousRegime,
		Confidence:     m.Confidence,
		State:          regimeStateFromInt(m.State),
		LastFlipAt:     unixToTime(m.LastFlipAtUnix),
		CooldownUntil:  unixToTime(m.CooldownUntilUnx),
		EvaluatedAt:    unixToTime(m.EvaluatedAtUnix),
	}
}

func regimeModelFromRecord(r regime.Record) regimeStateModel {
	return regimeStateModel{
		Ticker:           strings.ToUpper(r.Ticker),
		CurrentRegime:    r.CurrentRegime,
		PreviousRegime:   r.PreviousRegime,
		Confidence:       r.Confidence,
		State:            regimeStateToInt(r.State),
		LastFlipAtUnix:   timeToUnix(r.LastFlipAt),
		CooldownUntilUnx: timeToUnix(r.CooldownUntil),
		EvaluatedAtUnix:  timeToUnix(r.EvaluatedAt),
	}
}

func regimeStateToInt(s regime.State) storemodel.RegimeGateState {
	switch s {
	case regime.StateStable:
		return storemodel.RegimeGateStable
	case regime.StateFlipped:
		return storemodel.RegimeGateFlipped
	case regime.StateCoolingDown:
		return storemodel.RegimeGateCoolingDown
	default:
		return storemodel.RegimeGateUnknown
	}
}

func regimeStateFromInt(s storemodel.RegimeGateState) regime.State {
	switch s {
	case storemodel.RegimeGateStable:
		return regime.StateStable
	case storemodel.RegimeGateFlipped:
		return regime.StateFlipped
	case storemodel.RegimeGateCoolingDown:
		return regime.StateCoolingDown
	default:
		return regime.StateStable
	}
}

func unixToTime(ts int64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// ---- positions ----

func (s *GormStore) SavePosition(ctx context.Context, rec *positionModel) error {
	if rec == nil || rec.PositionID == "" {
		return fmt.Errorf("gorm store: position 记录不完整")
	}
	rec.UpdatedAtUnix = time.Now().Unix()
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "position_id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
}

func (s *GormStore) FindPosition(ctx context.Context, positionID string) (*positionModel, error) {
	var rec positionModel
	err := s.db.WithContext(ctx).Where("position_id = ?", positionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) ListOpenPositions(ctx context.Context) ([]positionModel, error) {
	var recs []positionModel
	err := s.db.WithContext(ctx).
		Where("status = ?", storemodel.PositionStatusOpen).
		Order("ticker ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}
