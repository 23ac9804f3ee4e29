package market

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"optiq/internal/config"
)

// ATRSnapshot ATR 绝对值及其历史百分位（exit planner 的输入）。
type ATRSnapshot struct {
	ATR        float64 `json:"atr"`
	Percentile float64 `json:"percentile"` // 0-100
}

// ATRService 拉日线并用 talib 计算 ATR 与百分位。
type ATRService struct {
	client Client
	period int
	limit  int
}

func NewATRService(client Client, cfg config.MarketConfig) *ATRService {
	return &ATRService{client: client, period: cfg.ATRPeriod, limit: cfg.CandleLimit}
}

// Snapshot 取最新 ATR 及其在回看窗口内的百分位。
func (s *ATRService) Snapshot(ctx context.Context, ticker string) (ATRSnapshot, error) {
	candles, err := s.client.Candles(ctx, ticker, s.limit)
	if err != nil {
		return ATRSnapshot{}, err
	}
	if len(candles) < s.period+1 {
		return ATRSnapshot{}, fmt.Errorf("market: atr %s: 仅有 %d 根K线，需至少 %d", ticker, len(candles), s.period+1)
	}
	high := make([]float64, len(candles))
	low := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		high[i], low[i], closes[i] = c.High, c.Low, c.Close
	}
	series := talib.Atr(high, low, closes, s.period)
	// talib 前 period 位为 0 占位，截掉再排名。
	valid := series[s.period:]
	if len(valid) == 0 {
		return ATRSnapshot{}, fmt.Errorf("market: atr %s: 序列为空", ticker)
	}
	latest := valid[len(valid)-1]
	return ATRSnapshot{
		ATR:        latest,
		Percentile: PercentileRank(valid, latest),
	}, nil
}

// PercentileRank value 在 series 中的百分位（0-100）。
func PercentileRank(series []float64, value float64) float64 {
	if len(series) == 0 {
		return 0
	}
	below := 0
	for _, v := range series {
		if v < value {
			below++
		}
	}
	return float64(below) / float64(len(series)) * 100
}
