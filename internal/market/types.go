package market

import (
	"context"
	"time"
)

// Quote 期权腿的即时报价与希腊值。
type Quote struct {
	Symbol    string    `json:"symbol"`
	Last      float64   `json:"last"`
	Mid       float64   `json:"mid"`
	Delta     float64   `json:"delta"`
	Gamma     float64   `json:"gamma"`
	Theta     float64   `json:"theta"`
	IV        float64   `json:"iv"`
	Timestamp time.Time `json:"timestamp"`
}

// Price 优先取 mid，缺失时退回 last。
func (q Quote) Price() float64 {
	if q.Mid > 0 {
		return q.Mid
	}
	return q.Last
}

// ChainEntry 期权链单行（按行权价聚合的持仓/成交）。
type ChainEntry struct {
	Strike     float64 `json:"strike"`
	CallOI     int64   `json:"call_oi"`
	PutOI      int64   `json:"put_oi"`
	CallVolume int64   `json:"call_volume"`
	PutVolume  int64   `json:"put_volume"`
}

// Chain ticker+到期日的期权链，gamma 敞口与持仓结构的上游原料。
type Chain struct {
	Ticker     string       `json:"ticker"`
	Expiration string       `json:"expiration"`
	Entries    []ChainEntry `json:"entries"`
}

// PutCallRatio 按未平仓合约计算 put/call 比；无 call 持仓时返回 0。
func (c Chain) PutCallRatio() float64 {
	var calls, puts int64
	for _, e := range c.Entries {
		calls += e.CallOI
		puts += e.PutOI
	}
	if calls == 0 {
		return 0
	}
	return float64(puts) / float64(calls)
}

// Candle 标的日线（ATR 输入）。
type Candle struct {
	Time   int64   `json:"t"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

// Client 市场数据边界。决策核心不直接做 I/O，
// 所有行情获取在 orchestration 调用之外完成。
type Client interface {
	OptionQuote(ctx context.Context, symbol string) (Quote, error)
	OptionChain(ctx context.Context, ticker, expiration string) (Chain, error)
	Candles(ctx context.Context, ticker string, limit int) ([]Candle, error)
}
