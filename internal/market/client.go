package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"optiq/internal/config"
)

// RESTClient 通过内部行情网关取数（REST+JSON）。
type RESTClient struct {
	http *resty.Client
}

func NewRESTClient(cfg config.MarketConfig) (*RESTClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("market: base_url 不能为空")
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &RESTClient{http: client}, nil
}

func (c *RESTClient) OptionQuote(ctx context.Context, symbol string) (Quote, error) {
	var quote Quote
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&quote).
		Get("/v1/options/quote")
	if err != nil {
		return Quote{}, fmt.Errorf("market: quote %s: %w", symbol, err)
	}
	if resp.IsError() {
		return Quote{}, fmt.Errorf("market: quote %s: status=%d", symbol, resp.StatusCode())
	}
	return quote, nil
}

func (c *RESTClient) OptionChain(ctx context.Context, ticker, expiration string) (Chain, error) {
	var chain Chain
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"ticker": ticker, "expiration": expiration}).
		SetResult(&chain).
		Get("/v1/options/chain")
	if err != nil {
		return Chain{}, fmt.Errorf("market: chain %s %s: %w", ticker, expiration, err)
	}
	if resp.IsError() {
		return Chain{}, fmt.Errorf("market: chain %s %s: status=%d", ticker, expiration, resp.StatusCode())
	}
	return chain, nil
}

func (c *RESTClient) Candles(ctx context.Context, ticker string, limit int) ([]Candle, error) {
	var candles []Candle
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"ticker": ticker, "limit": strconv.Itoa(limit)}).
		SetResult(&candles).
		Get("/v1/candles/daily")
	if err != nil {
		return nil, fmt.Errorf("market: candles %s: %w", ticker, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("market: candles %s: status=%d", ticker, resp.StatusCode())
	}
	return candles, nil
}
