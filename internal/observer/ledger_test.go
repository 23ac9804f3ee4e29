package observer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"optiq/internal/config"
	"optiq/internal/decision"
	"optiq/internal/regime"
	"optiq/internal/store/model"
)

// memStore 内存版 store.Store，语义对齐 gormstore：
// outcome 只允许空→终值，同值幂等，异值报错。
type memStore struct {
	mu        sync.Mutex
	decisions map[string]*model.DecisionModel
	rules     map[string]*model.RulePerformanceModel
	positions map[string]*model.PositionModel
	regimes   map[string]regime.Record
}

func newMemStore() *memStore {
	return &memStore{
		decisions: map[string]*model.DecisionModel{},
		rules:     map[string]*model.RulePerformanceModel{},
		positions: map[string]*model.PositionModel{},
		regimes:   map[string]regime.Record{},
	}
}

func (m *memStore) SaveDecision(_ context.Context, rec *model.DecisionModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.decisions[rec.DecisionID] = &cp
	return nil
}

func (m *memStore) FindDecision(_ context.Context, decisionID string) (*model.DecisionModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.decisions[decisionID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) SetDecisionOutcome(_ context.Context, decisionID, outcome string, pnlPct float64, correct bool, at int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.decisions[decisionID]
	if !ok {
		return fmt.Errorf("decision %s 不存在", decisionID)
	}
	if rec.Outcome != "" {
		if rec.Outcome == outcome && rec.OutcomeCorrect == correct {
			return nil
		}
		return fmt.Errorf("decision %s outcome 已是 %s，拒绝改写为 %s", decisionID, rec.Outcome, outcome)
	}
	rec.Outcome = outcome
	rec.OutcomePnlPct = pnlPct
	rec.OutcomeCorrect = correct
	rec.OutcomeAtUnix = at
	return nil
}

func (m *memStore) ListRecentDecisions(_ context.Context, ticker string, limit int) ([]model.DecisionModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.DecisionModel, 0, len(m.decisions))
	for _, rec := range m.decisions {
		if ticker != "" && rec.Ticker != ticker {
			continue
		}
		out = append(out, *rec)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) FindRulePerformance(_ context.Context, ruleID string) (*model.RulePerformanceModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rules[ruleID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) SaveRulePerformance(_ context.Context, rec *model.RulePerformanceModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.rules[rec.RuleID] = &cp
	return nil
}

func (m *memStore) ListRulePerformance(context.Context) ([]model.RulePerformanceModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.RulePerformanceModel, 0, len(m.rules))
	for _, rec := range m.rules {
		out = append(out, *rec)
	}
	return out, nil
}

func (m *memStore) SavePosition(_ context.Context, rec *model.PositionModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.positions[rec.PositionID] = &cp
	return nil
}

func (m *memStore) FindPosition(_ context.Context, positionID string) (*model.PositionModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.positions[positionID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) ListOpenPositions(context.Context) ([]model.PositionModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PositionModel, 0)
	for _, rec := range m.positions {
		if rec.Status == model.PositionStatusOpen {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memStore) GetRegimeState(_ context.Context, ticker string) (*regime.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.regimes[ticker]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memStore) SaveRegimeState(_ context.Context, rec regime.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regimes[rec.Ticker] = rec
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) rulePerf(ruleID string) model.RulePerformanceModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rules[ruleID]
	if !ok {
		return model.RulePerformanceModel{}
	}
	return *rec
}

func startLedger(t *testing.T, st *memStore) *Ledger {
	t.Helper()
	l := NewLedger(st, nil)
	l.now = func() time.Time { return time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC) }
	l.Start()
	t.Cleanup(l.Stop)
	return l
}

func entryRecord(id string, ruleIDs ...string) *decision.Record {
	rec := &decision.Record{
		DecisionID:    id,
		SchemaVersion: decision.SchemaVersion,
		Type:          decision.TypeEntry,
		Ticker:        "SPY",
		Action:        decision.ActionExecute,
		CreatedAt:     time.Date(2026, 8, 24, 14, 30, 0, 0, time.UTC),
	}
	for _, ruleID := range ruleIDs {
		rec.Triggers = append(rec.Triggers, decision.RuleTrigger{RuleID: ruleID, Passed: true})
	}
	return rec
}

func TestLogDecision(t *testing.T) {
	t.Run("saves decision and counts triggers atomically", func(t *testing.T) {
		st := newMemStore()
		l := startLedger(t, st)
		ctx := context.Background()

		err := l.LogDecision(ctx, entryRecord("d1", "entry_min_confidence", "confluence_alignment"))
		assert.NoError(t, err)

		saved, err := st.FindDecision(ctx, "d1")
		assert.NoError(t, err)
		assert.NotNil(t, saved)
		assert.Equal(t, "SPY", saved.Ticker)
		assert.Equal(t, model.DecisionTypeEntry, saved.Type)
		assert.Equal(t, int64(1), st.rulePerf("entry_min_confidence").Triggers)
		assert.Equal(t, int64(1), st.rulePerf("confluence_alignment").Triggers)
	})

	t.Run("concurrent submits never lose an increment", func(t *testing.T) {
		st := newMemStore()
		l := startLedger(t, st)
		ctx := context.Background()

		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, l.LogDecision(ctx, entryRecord(fmt.Sprintf("d%03d", i), "confluence_alignment")))
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int64(n), st.rulePerf("confluence_alignment").Triggers)
	})

	t.Run("nil record rejected", func(t *testing.T) {
		l := startLedger(t, newMemStore())
		assert.Error(t, l.LogDecision(context.Background(), nil))
	})
}

func TestRecordOutcome(t *testing.T) {
	ctx := context.Background()

	t.Run("correct win flows into rule stats", func(t *testing.T) {
		st := newMemStore()
		l := startLedger(t, st)
		assert.NoError(t, l.LogDecision(ctx, entryRecord("d1", "confluence_alignment")))

		assert.NoError(t, l.RecordOutcome(ctx, "d1", 12.5, true))

		perf := st.rulePerf("confluence_alignment")
		assert.Equal(t, int64(1), perf.Wins)
		assert.Equal(t, int64(0), perf.Losses)
		assert.InDelta(t, 12.5, perf.AvgPnlPct, 1e-9)

		saved, _ := st.FindDecision(ctx, "d1")
		assert.Equal(t, OutcomeWin, saved.Outcome)
		assert.Equal(t, 12.5, saved.OutcomePnlPct)
		assert.True(t, saved.OutcomeCorrect)
	})

	t.Run("correct call losing to theta splits pnl from correctness", func(t *testing.T) {
		st := newMemStore()
		l := startLedger(t, st)
		assert.NoError(t, l.LogDecision(ctx, entryRecord("d1", "confluence_alignment")))

		// 方向判断对了，但权利金衰减吃掉了盈利。
		assert.NoError(t, l.RecordOutcome(ctx, "d1", -3, true))

		perf := st.rulePerf("confluence_alignment")
		assert.Equal(t, int64(1), perf.Wins)
		assert.Equal(t, int64(0), perf.Losses)
		assert.InDelta(t, -3, perf.AvgPnlPct, 1e-9)

		saved, _ := st.FindDecision(ctx, "d1")
		assert.Equal(t, OutcomeLoss, saved.Outcome)
		assert.True(t, saved.OutcomeCorrect)
	})

	t.Run("average is incremental over settlements", func(t *testing.T) {
		st := newMemStore()
		l := startLedger(t, st)
		assert.NoError(t, l.LogDecision(ctx, entryRecord("d1", "confluence_alignment")))
		assert.NoError(t, l.LogDecision(ctx, entryRecord("d2", "confluence_alignment")))

		assert.NoError(t, l.RecordOutcome(ctx, "d1", 10, true))
		assert.NoError(t, l.RecordOutcome(ctx, "d2", -4, false))

		perf := st.rulePerf("confluence_alignment")
		assert.Equal(t, int64(1), perf.Wins)
		assert.Equal(t, int64(1), perf.Losses)
		assert.InDelta(t, 3, perf.AvgPnlPct, 1e-9) // (10 + (-4)) / 2
	})

	t.Run("replaying same outcome is idempotent", func(t *testing.T) {
		st := newMemStore()
		l := startLedger(t, st)
		assert.NoError(t, l.LogDecision(ctx, entryRecord("d1", "confluence_alignment")))

		assert.NoError(t, l.RecordOutcome(ctx, "d1", 10, true))
		assert.NoError(t, l.RecordOutcome(ctx, "d1", 10, true))

		perf := st.rulePerf("confluence_alignment")
		assert.Equal(t, int64(1), perf.Wins)
		assert.InDelta(t, 10, perf.AvgPnlPct, 1e-9)
	})

	t.Run("conflicting outcome rejected", func(t *testing.T) {
		st := newMemStore()
		l := startLedger(t, st)
		assert.NoError(t, l.LogDecision(ctx, entryRecord("d1")))
		assert.NoError(t, l.RecordOutcome(ctx, "d1", 10, true))
		assert.Error(t, l.RecordOutcome(ctx, "d1", -5, false))
		// 盈亏一致但判定翻转同样拒绝。
		assert.Error(t, l.RecordOutcome(ctx, "d1", 10, false))
	})

	t.Run("scratch still settles correctness", func(t *testing.T) {
		st := newMemStore()
		l := startLedger(t, st)
		assert.NoError(t, l.LogDecision(ctx, entryRecord("d1", "confluence_alignment")))
		assert.NoError(t, l.RecordOutcome(ctx, "d1", 0, true))

		perf := st.rulePerf("confluence_alignment")
		assert.Equal(t, int64(1), perf.Wins)
		assert.Equal(t, int64(0), perf.Losses)
		assert.InDelta(t, 0, perf.AvgPnlPct, 1e-9)
		saved, _ := st.FindDecision(ctx, "d1")
		assert.Equal(t, OutcomeScratch, saved.Outcome)
		assert.True(t, saved.OutcomeCorrect)
	})

	t.Run("unknown decision errors", func(t *testing.T) {
		l := startLedger(t, newMemStore())
		assert.Error(t, l.RecordOutcome(ctx, "missing", 5, true))
	})

	t.Run("empty id rejected", func(t *testing.T) {
		l := startLedger(t, newMemStore())
		assert.Error(t, l.RecordOutcome(ctx, "  ", 5, true))
	})
}

func TestLedgerRegime(t *testing.T) {
	cfg := config.RegimeConfig{FlipCooldownSeconds: 900, MinConfidence: 0.7, RequireStable: true, GateMode: "reject"}
	ctx := context.Background()

	t.Run("evaluate advances state machine through mailbox", func(t *testing.T) {
		st := newMemStore()
		l := startLedger(t, st)

		rec, err := l.EvaluateRegime(ctx, "SPY", "LONG_GAMMA/NORMAL", 0.9, cfg)
		assert.NoError(t, err)
		assert.Equal(t, regime.StateStable, rec.State)

		rec, err = l.EvaluateRegime(ctx, "SPY", "SHORT_GAMMA/HIGH_VOL", 0.85, cfg)
		assert.NoError(t, err)
		assert.Equal(t, regime.StateFlipped, rec.State)

		cur, err := l.CurrentRegime(ctx, "SPY")
		assert.NoError(t, err)
		assert.NotNil(t, cur)
		assert.Equal(t, "SHORT_GAMMA/HIGH_VOL", cur.CurrentRegime)
	})

	t.Run("current regime for unknown ticker is nil", func(t *testing.T) {
		l := startLedger(t, newMemStore())
		cur, err := l.CurrentRegime(ctx, "QQQ")
		assert.NoError(t, err)
		assert.Nil(t, cur)
	})
}

func TestSizingStats(t *testing.T) {
	ctx := context.Background()

	seed := func(st *memStore, wins, losses int, winPnl, lossPnl float64) {
		for i := 0; i < wins; i++ {
			id := fmt.Sprintf("w%03d", i)
			st.decisions[id] = &model.DecisionModel{
				DecisionID: id, Ticker: "SPY", Type: model.DecisionTypeEntry,
				Outcome: OutcomeWin, OutcomePnlPct: winPnl,
			}
		}
		for i := 0; i < losses; i++ {
			id := fmt.Sprintf("l%03d", i)
			st.decisions[id] = &model.DecisionModel{
				DecisionID: id, Ticker: "SPY", Type: model.DecisionTypeEntry,
				Outcome: OutcomeLoss, OutcomePnlPct: lossPnl,
			}
		}
	}

	t.Run("derives win rate and payoff from settled entries", func(t *testing.T) {
		st := newMemStore()
		seed(st, 7, 5, 10, -5)
		l := startLedger(t, st)

		stats, err := l.SizingStats(ctx, "SPY")
		assert.NoError(t, err)
		assert.NotNil(t, stats)
		assert.InDelta(t, 7.0/12.0, stats.WinRate, 1e-9)
		assert.InDelta(t, 2.0, stats.Payoff, 1e-9)
		assert.Equal(t, 12, stats.Samples)
	})

	t.Run("insufficient samples returns nil", func(t *testing.T) {
		st := newMemStore()
		seed(st, 4, 3, 10, -5)
		l := startLedger(t, st)

		stats, err := l.SizingStats(ctx, "SPY")
		assert.NoError(t, err)
		assert.Nil(t, stats)
	})

	t.Run("all wins returns nil, payoff undefined", func(t *testing.T) {
		st := newMemStore()
		seed(st, 15, 0, 10, 0)
		l := startLedger(t, st)

		stats, err := l.SizingStats(ctx, "SPY")
		assert.NoError(t, err)
		assert.Nil(t, stats)
	})
}

func TestLedgerStop(t *testing.T) {
	t.Run("submit after stop is refused", func(t *testing.T) {
		st := newMemStore()
		l := NewLedger(st, nil)
		l.Start()
		l.Stop()
		assert.Error(t, l.LogDecision(context.Background(), entryRecord("d1")))
	})
}
