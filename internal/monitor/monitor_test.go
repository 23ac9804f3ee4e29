package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"optiq/internal/config"
	"optiq/internal/decision"
	"optiq/internal/market"
	"optiq/internal/regime"
	"optiq/internal/rules"
	"optiq/internal/sizing"
	"optiq/internal/store/model"
)

type fakeStore struct {
	mu        sync.Mutex
	positions map[string]*model.PositionModel
}

func newFakeStore(positions ...model.PositionModel) *fakeStore {
	st := &fakeStore{positions: map[string]*model.PositionModel{}}
	for i := range positions {
		p := positions[i]
		st.positions[p.PositionID] = &p
	}
	return st
}

func (f *fakeStore) SaveDecision(context.Context, *model.DecisionModel) error { return nil }
func (f *fakeStore) FindDecision(context.Context, string) (*model.DecisionModel, error) {
	return nil, nil
}
func (f *fakeStore) SetDecisionOutcome(context.Context, string, string, float64, bool, int64) error {
	return nil
}
func (f *fakeStore) ListRecentDecisions(context.Context, string, int) ([]model.DecisionModel, error) {
	return nil, nil
}
func (f *fakeStore) FindRulePerformance(context.Context, string) (*model.RulePerformanceModel, error) {
	return nil, nil
}
func (f *fakeStore) SaveRulePerformance(context.Context, *model.RulePerformanceModel) error {
	return nil
}
func (f *fakeStore) ListRulePerformance(context.Context) ([]model.RulePerformanceModel, error) {
	return nil, nil
}
func (f *fakeStore) GetRegimeState(context.Context, string) (*regime.Record, error) {
	return nil, nil
}
func (f *fakeStore) SaveRegimeState(context.Context, regime.Record) error { return nil }

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) SavePosition(_ context.Context, rec *model.PositionModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.positions[rec.PositionID] = &cp
	return nil
}

func (f *fakeStore) FindPosition(_ context.Context, positionID string) (*model.PositionModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.positions[positionID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) ListOpenPositions(context.Context) ([]model.PositionModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.PositionModel, 0, len(f.positions))
	for _, rec := range f.positions {
		if rec.Status == model.PositionStatusOpen {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeStore) position(t *testing.T, id string) model.PositionModel {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.positions[id]
	if !ok {
		t.Fatalf("position %s 不存在", id)
	}
	return *rec
}

type fakeMarket struct {
	quotes  map[string]market.Quote
	candles []market.Candle
}

func (f *fakeMarket) OptionQuote(_ context.Context, symbol string) (market.Quote, error) {
	q, ok := f.quotes[symbol]
	if !ok {
		return market.Quote{}, fmt.Errorf("quote %s 不可用", symbol)
	}
	return q, nil
}

func (f *fakeMarket) OptionChain(context.Context, string, string) (market.Chain, error) {
	return market.Chain{}, fmt.Errorf("not implemented")
}

func (f *fakeMarket) Candles(context.Context, string, int) ([]market.Candle, error) {
	if len(f.candles) == 0 {
		return nil, fmt.Errorf("candles unavailable")
	}
	return f.candles, nil
}

// 高低收同价 → ATR 0，止损落在百分比下限，方便用整数价位断言。
func calmCandles(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = market.Candle{Time: int64(i), Open: 100, High: 100, Low: 100, Close: 100}
	}
	return out
}

type nopRecorder struct{}

func (nopRecorder) LogDecision(context.Context, *decision.Record) error { return nil }
func (nopRecorder) SizingStats(context.Context, string) (*sizing.Stats, error) {
	return nil, nil
}

type nopRegimes struct{}

func (nopRegimes) EvaluateRegime(_ context.Context, ticker, incoming string, confidence float64, _ config.RegimeConfig) (regime.Record, error) {
	return regime.Record{Ticker: ticker, CurrentRegime: incoming, Confidence: confidence, State: regime.StateStable}, nil
}

func (nopRegimes) CurrentRegime(context.Context, string) (*regime.Record, error) {
	return nil, nil
}

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (c *captureNotifier) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, text)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func openPosition(id, ticker, symbol string, entry float64, qty int) model.PositionModel {
	return model.PositionModel{
		PositionID: id, Ticker: ticker, Symbol: symbol,
		EntryPrice: entry, Quantity: qty, InitialQuantity: qty,
		HighestPrice: entry, DTE: 10, Status: model.PositionStatusOpen,
	}
}

func newTestMonitor(st *fakeStore, mkt market.Client, notify *captureNotifier) *Monitor {
	orch := decision.NewOrchestrator(config.Default(), rules.Default(), nopRecorder{}, nopRegimes{})
	atr := market.NewATRService(mkt, config.MarketConfig{ATRPeriod: 14, CandleLimit: 120})
	return New(st, mkt, atr, orch, notify, config.MonitorConfig{MaxConcurrentTickers: 2})
}

func TestSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("no open positions is a no-op", func(t *testing.T) {
		m := newTestMonitor(newFakeStore(), &fakeMarket{}, &captureNotifier{})
		sum, err := m.Sweep(ctx)
		assert.NoError(t, err)
		assert.Equal(t, Summary{}, sum)
	})

	t.Run("stop breach closes position and notifies", func(t *testing.T) {
		st := newFakeStore(openPosition("p1", "SPY", "SPY260918C00500000", 100, 5))
		notify := &captureNotifier{}
		// ATR 为 0 → 止损退回 15% 下限，止损价 85。
		m := newTestMonitor(st, &fakeMarket{quotes: map[string]market.Quote{
			"SPY260918C00500000": {Mid: 80},
		}, candles: calmCandles(120)}, notify)

		sum, err := m.Sweep(ctx)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), sum.Processed)
		assert.Equal(t, int64(1), sum.Exits)
		assert.Equal(t, int64(0), sum.Errors)

		pos := st.position(t, "p1")
		assert.Equal(t, model.PositionStatusClosed, pos.Status)
		assert.Equal(t, 0, pos.Quantity)
		assert.NotZero(t, pos.ClosedAtUnix)
		assert.Equal(t, 1, notify.count())
	})

	t.Run("quiet position holds and refreshes watermark", func(t *testing.T) {
		st := newFakeStore(openPosition("p1", "SPY", "SPY-C", 100, 5))
		m := newTestMonitor(st, &fakeMarket{quotes: map[string]market.Quote{
			"SPY-C": {Mid: 106},
		}, candles: calmCandles(120)}, &captureNotifier{})

		sum, err := m.Sweep(ctx)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), sum.Processed)
		assert.Equal(t, int64(0), sum.Exits)

		pos := st.position(t, "p1")
		assert.Equal(t, model.PositionStatusOpen, pos.Status)
		assert.Equal(t, 106.0, pos.HighestPrice)
	})

	t.Run("target1 partial scales out and tightens stop", func(t *testing.T) {
		st := newFakeStore(openPosition("p1", "QQQ", "QQQ-C", 100, 8))
		m := newTestMonitor(st, &fakeMarket{quotes: map[string]market.Quote{
			"QQQ-C": {Mid: 123}, // target1 122.5
		}, candles: calmCandles(120)}, &captureNotifier{})

		sum, err := m.Sweep(ctx)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), sum.Exits)

		pos := st.position(t, "p1")
		assert.Equal(t, model.PositionStatusOpen, pos.Status)
		assert.Equal(t, 6, pos.Quantity)
		assert.Equal(t, 1, pos.PartialExitsTaken)
		assert.Equal(t, 100.0, pos.StopLoss)
	})

	t.Run("missing quote counts an error without aborting the sweep", func(t *testing.T) {
		st := newFakeStore(
			openPosition("p1", "SPY", "KNOWN", 100, 5),
			openPosition("p2", "SPY", "UNKNOWN", 100, 5),
		)
		m := newTestMonitor(st, &fakeMarket{quotes: map[string]market.Quote{
			"KNOWN": {Mid: 105},
		}, candles: calmCandles(120)}, &captureNotifier{})

		sum, err := m.Sweep(ctx)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), sum.Processed)
		assert.Equal(t, int64(1), sum.Errors)
	})

	t.Run("degraded atr keeps evaluating but counts an error", func(t *testing.T) {
		st := newFakeStore(openPosition("p1", "SPY", "SPY-C", 100, 5))
		m := newTestMonitor(st, &fakeMarket{quotes: map[string]market.Quote{
			"SPY-C": {Mid: 105},
		}}, &captureNotifier{})

		sum, err := m.Sweep(ctx)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), sum.Processed)
		assert.Equal(t, int64(0), sum.Exits)
		assert.Equal(t, int64(1), sum.Errors)
		assert.Equal(t, model.PositionStatusOpen, st.position(t, "p1").Status)
	})

	t.Run("tickers are swept independently", func(t *testing.T) {
		st := newFakeStore(
			openPosition("p1", "SPY", "SPY-C", 100, 5),
			openPosition("p2", "QQQ", "QQQ-C", 100, 5),
		)
		m := newTestMonitor(st, &fakeMarket{quotes: map[string]market.Quote{
			"SPY-C": {Mid: 105},
			"QQQ-C": {Mid: 80},
		}, candles: calmCandles(120)}, &captureNotifier{})

		sum, err := m.Sweep(ctx)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), sum.Processed)
		assert.Equal(t, int64(1), sum.Exits)
		assert.Equal(t, model.PositionStatusOpen, st.position(t, "p1").Status)
		assert.Equal(t, model.PositionStatusClosed, st.position(t, "p2").Status)
	})
}
