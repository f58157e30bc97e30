// Package alpaca serves bars, quotes and account state from Alpaca for
// deployments that screen US equities instead of the default broker.
package alpaca

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	applogger "SwingDesk/pkg/logger"
)

// Config holds Alpaca credentials.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Feed      string
}

type marketAPI interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetLatestTrades(symbols []string, req marketdata.GetLatestTradeRequest) (map[string]marketdata.Trade, error)
}

type tradingAPI interface {
	GetPositions() ([]alpaca.Position, error)
	GetAccount() (*alpaca.Account, error)
}

// Client adapts the Alpaca SDK clients to the domain providers.
type Client struct {
	md   marketAPI
	tr   tradingAPI
	feed marketdata.Feed
	l    *applogger.Logger
}

var (
	_ domrepo.MarketData    = (*Client)(nil)
	_ domrepo.QuoteProvider = (*Client)(nil)
	_ domrepo.BrokerAccount = (*Client)(nil)
)

func NewClient(cfg Config, l *applogger.Logger) *Client {
	md := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	})
	tr := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})
	return newClient(md, tr, cfg.Feed, l)
}

func newClient(md marketAPI, tr tradingAPI, feed string, l *applogger.Logger) *Client {
	if l == nil {
		l = applogger.Nop()
	}
	return &Client{md: md, tr: tr, feed: marketdata.Feed(feed), l: l}
}

func timeFrame(iv domrepo.Interval) marketdata.TimeFrame {
	switch iv {
	case domrepo.IntervalWeek:
		return marketdata.NewTimeFrame(1, marketdata.Week)
	case domrepo.IntervalHour:
		return marketdata.OneHour
	default:
		return marketdata.OneDay
	}
}

// GetCandles returns split-adjusted bars for symbol.
func (c *Client) GetCandles(ctx context.Context, symbol string, from, to time.Time, iv domrepo.Interval) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars, err := c.md.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  timeFrame(iv),
		Start:      from,
		End:        to,
		Adjustment: marketdata.Split,
		Feed:       c.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: alpaca bars %s: %v", models.ErrExternalService, symbol, err)
	}
	out := make([]models.Candle, len(bars))
	for i, b := range bars {
		out[i] = models.Candle{
			Time:   b.Timestamp,
			Symbol: symbol,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		}
	}
	return out, nil
}

// GetQuotes returns the latest trade price per symbol.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	trades, err := c.md.GetLatestTrades(symbols, marketdata.GetLatestTradeRequest{Feed: c.feed})
	if err != nil {
		return nil, fmt.Errorf("%w: alpaca latest trades: %v", models.ErrExternalService, err)
	}
	out := make(map[string]models.Quote, len(trades))
	for sym, t := range trades {
		out[sym] = models.Quote{Symbol: sym, LastPrice: t.Price, Time: t.Timestamp}
	}
	return out, nil
}

// Holdings returns every open Alpaca position.
func (c *Client) Holdings(ctx context.Context) ([]models.ExternalHolding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	positions, err := c.tr.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("%w: alpaca positions: %v", models.ErrExternalService, err)
	}
	out := make([]models.ExternalHolding, 0, len(positions))
	for _, p := range positions {
		h := models.ExternalHolding{
			Symbol:   p.Symbol,
			Quantity: int(p.Qty.Abs().IntPart()),
			AvgPrice: p.AvgEntryPrice.InexactFloat64(),
		}
		if p.CurrentPrice != nil {
			h.LastPrice = p.CurrentPrice.InexactFloat64()
		}
		out = append(out, h)
	}
	return out, nil
}

// Positions is empty: Alpaca reports a single position book, served by Holdings.
func (c *Client) Positions(ctx context.Context) ([]models.ExternalHolding, error) {
	return nil, ctx.Err()
}

// AvailableFunds returns account cash.
func (c *Client) AvailableFunds(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	acct, err := c.tr.GetAccount()
	if err != nil {
		return 0, fmt.Errorf("%w: alpaca account: %v", models.ErrExternalService, err)
	}
	return acct.Cash.InexactFloat64(), nil
}
