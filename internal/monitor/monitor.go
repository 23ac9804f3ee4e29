// Package monitor sweeps open positions and runs exit evaluation in batch.
//
// 中文说明：
// 扫描按 ticker 分组并发执行，单 ticker 内的持仓串行处理。
// 单个持仓失败只计数不中断：一次行情故障不应拖垮整轮扫描。
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"optiq/internal/config"
	"optiq/internal/decision"
	"optiq/internal/logger"
	"optiq/internal/market"
	"optiq/internal/notifier"
	"optiq/internal/store"
	"optiq/internal/store/model"
)

// Summary 一轮扫描的结果计数。
type Summary struct {
	Processed int64 `json:"processed"`
	Exits     int64 `json:"exits"`
	Errors    int64 `json:"errors"`
}

type Monitor struct {
	store    store.Store
	client   market.Client
	atr      *market.ATRService
	orch     *decision.Orchestrator
	notify   notifier.TextNotifier
	maxLimit int
}

func New(st store.Store, client market.Client, atr *market.ATRService, orch *decision.Orchestrator, notify notifier.TextNotifier, cfg config.MonitorConfig) *Monitor {
	limit := cfg.MaxConcurrentTickers
	if limit <= 0 {
		limit = 4
	}
	if notify == nil {
		notify = notifier.Nop{}
	}
	return &Monitor{
		store:    st,
		client:   client,
		atr:      atr,
		orch:     orch,
		notify:   notify,
		maxLimit: limit,
	}
}

// Sweep 对全部未平仓持仓跑一轮离场评估。
func (m *Monitor) Sweep(ctx context.Context) (Summary, error) {
	positions, err := m.store.ListOpenPositions(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("monitor: 读取持仓失败: %w", err)
	}
	if len(positions) == 0 {
		return Summary{}, nil
	}

	byTicker := map[string][]model.PositionModel{}
	for _, p := range positions {
		byTicker[p.Ticker] = append(byTicker[p.Ticker], p)
	}

	var sum Summary
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxLimit)
	for ticker, group := range byTicker {
		ticker, group := ticker, group
		g.Go(func() error {
			m.sweepTicker(gctx, ticker, group, &sum)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}
	logger.Infof("monitor: sweep done processed=%d exits=%d errors=%d",
		sum.Processed, sum.Exits, sum.Errors)
	return sum, nil
}

func (m *Monitor) sweepTicker(ctx context.Context, ticker string, positions []model.PositionModel, sum *Summary) {
	atrSnap, err := m.atr.Snapshot(ctx, ticker)
	if err != nil {
		// 退化继续评估，但这轮的汇总里要能看到数据源出过问题。
		atomic.AddInt64(&sum.Errors, 1)
		logger.Warnf("monitor %s: ATR 快照失败，退回无 ATR 评估: %v", ticker, err)
	}
	for i := range positions {
		pos := positions[i]
		atomic.AddInt64(&sum.Processed, 1)
		if err := m.evaluateOne(ctx, ticker, pos, atrSnap, sum); err != nil {
			atomic.AddInt64(&sum.Errors, 1)
			logger.Errorf("monitor %s: 持仓 %s 评估失败: %v", ticker, pos.PositionID, err)
		}
	}
}

func (m *Monitor) evaluateOne(ctx context.Context, ticker string, pos model.PositionModel, atrSnap market.ATRSnapshot, sum *Summary) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	quote, err := m.client.OptionQuote(ctx, pos.Symbol)
	if err != nil {
		return err
	}
	price := quote.Price()
	if price <= 0 {
		return fmt.Errorf("quote for %s 无有效价格", pos.Symbol)
	}

	rec, err := m.orch.Exit(ctx, decision.ExitRequest{
		Position: decision.PositionState{
			PositionID:        pos.PositionID,
			Ticker:            ticker,
			EntryPrice:        pos.EntryPrice,
			Quantity:          pos.Quantity,
			InitialQuantity:   pos.InitialQuantity,
			PartialExitsTaken: pos.PartialExitsTaken,
			HighestPrice:      pos.HighestPrice,
			DTE:               pos.DTE,
		},
		CurrentPrice:  price,
		ATR:           atrSnap.ATR,
		ATRPercentile: atrSnap.Percentile,
	})
	if err != nil {
		return err
	}
	if err := m.applyDecision(ctx, &pos, rec, price); err != nil {
		return err
	}
	if rec.Action == decision.ActionExit || rec.Action == decision.ActionPartialExit {
		atomic.AddInt64(&sum.Exits, 1)
		if nerr := m.notify.SendText(notifier.FormatDecision(rec)); nerr != nil {
			logger.Warnf("monitor %s: 通知发送失败: %v", ticker, nerr)
		}
	}
	return nil
}

// applyDecision 把离场决策回写到持仓行。最高价水位每轮都刷新，
// 追踪止损依赖它。
func (m *Monitor) applyDecision(ctx context.Context, pos *model.PositionModel, rec *decision.Record, price float64) error {
	if price > pos.HighestPrice {
		pos.HighestPrice = price
	}
	switch rec.Action {
	case decision.ActionExit:
		pos.Quantity = 0
		pos.Status = model.PositionStatusClosed
		pos.ClosedAtUnix = time.Now().Unix()
	case decision.ActionPartialExit:
		pos.Quantity -= rec.ExitQuantity
		pos.PartialExitsTaken++
		if pos.Quantity <= 0 {
			pos.Quantity = 0
			pos.Status = model.PositionStatusClosed
			pos.ClosedAtUnix = time.Now().Unix()
		}
		if rec.NewStopLoss > 0 {
			pos.StopLoss = rec.NewStopLoss
			m.refreshLevels(pos, rec.NewStopLoss)
		}
	}
	return m.store.SavePosition(ctx, pos)
}

// refreshLevels 同步 levels 快照里的止损位，保持行内冗余一致。
func (m *Monitor) refreshLevels(pos *model.PositionModel, newStop float64) {
	if len(pos.LevelsJSON) == 0 {
		return
	}
	var levels map[string]any
	if err := json.Unmarshal(pos.LevelsJSON, &levels); err != nil {
		return
	}
	levels["stop_loss"] = newStop
	if data, err := json.Marshal(levels); err == nil {
		pos.LevelsJSON = data
	}
}
