// Package broker adapts a Kite-style brokerage REST API to the market data,
// quote and account interfaces used by screening and reconciliation.
package broker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
	applogger "SwingDesk/pkg/logger"
)

const (
	classHistorical = "historical"
	classQuote      = "quote"
	classDefault    = "default"

	quoteBatch = 250
	timeLayout = "2006-01-02 15:04:05"
)

// Config holds broker connection settings.
type Config struct {
	BaseURL     string
	APIKey      string
	AccessToken string
	Exchange    string
	Timeout     time.Duration
	Attempts    int
	Backoff     time.Duration
	Limits      map[string]Limit
}

// Client implements MarketData, QuoteProvider and BrokerAccount.
type Client struct {
	rest     *restBase
	exchange string
	tokens   *instrumentTokens
	l        *applogger.Logger
	now      func() time.Time
}

var (
	_ domrepo.MarketData    = (*Client)(nil)
	_ domrepo.QuoteProvider = (*Client)(nil)
	_ domrepo.BrokerAccount = (*Client)(nil)
)

func NewClient(cfg Config, l *applogger.Logger) *Client {
	if cfg.Exchange == "" {
		cfg.Exchange = "NSE"
	}
	if l == nil {
		l = applogger.Nop()
	}
	rest := newRestBase(cfg)
	return &Client{
		rest:     rest,
		exchange: cfg.Exchange,
		tokens:   newInstrumentTokens(rest, cfg.Exchange),
		l:        l,
		now:      time.Now,
	}
}

type envelope[T any] struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
	Data      T      `json:"data"`
}

func (e *envelope[T]) err() error {
	if e.Status != "" && e.Status != "success" {
		return fmt.Errorf("%s: %s", e.ErrorType, e.Message)
	}
	return nil
}

func (c *Client) get(ctx context.Context, class, path string, query map[string][]string, dest interface{ err() error }) error {
	if err := c.rest.GetJSONWithRetry(ctx, class, path, query, dest); err != nil {
		return fmt.Errorf("%w: %v", models.ErrExternalService, err)
	}
	if err := dest.err(); err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrExternalService, path, err)
	}
	return nil
}

// GetCandles fetches historical bars for symbol between from and to.
func (c *Client) GetCandles(ctx context.Context, symbol string, from, to time.Time, iv domrepo.Interval) ([]models.Candle, error) {
	token, err := c.tokens.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	interval := string(iv)
	if iv == domrepo.IntervalWeek {
		// Weekly bars are resampled from daily.
		interval = string(domrepo.IntervalDay)
	}
	var resp envelope[struct {
		Candles [][]interface{} `json:"candles"`
	}]
	path := fmt.Sprintf("/instruments/historical/%d/%s", token, url.PathEscape(interval))
	query := map[string][]string{
		"from": {from.Format(timeLayout)},
		"to":   {to.Format(timeLayout)},
	}
	if err := c.get(ctx, classHistorical, path, query, &resp); err != nil {
		return nil, err
	}
	bars := make([]models.Candle, 0, len(resp.Data.Candles))
	for i, row := range resp.Data.Candles {
		bar, err := parseCandle(row)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", models.ErrExternalService, symbol, i, err)
		}
		bar.Symbol = symbol
		bars = append(bars, bar)
	}
	if iv == domrepo.IntervalWeek {
		bars = weekly(bars)
	}
	c.l.Debug("broker.candles", applogger.String("symbol", symbol), applogger.Int("bars", len(bars)))
	return bars, nil
}

type quoteRow struct {
	LastPrice     float64 `json:"last_price"`
	LastTradeTime string  `json:"last_trade_time"`
}

// GetQuotes returns last prices keyed by symbol. Symbols the broker does not
// know are absent from the result.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote, len(symbols))
	for start := 0; start < len(symbols); start += quoteBatch {
		end := start + quoteBatch
		if end > len(symbols) {
			end = len(symbols)
		}
		keys := make([]string, 0, end-start)
		for _, s := range symbols[start:end] {
			keys = append(keys, c.exchange+":"+s)
		}
		var resp envelope[map[string]quoteRow]
		if err := c.get(ctx, classQuote, "/quote", map[string][]string{"i": keys}, &resp); err != nil {
			return nil, err
		}
		for key, row := range resp.Data {
			sym := strings.TrimPrefix(key, c.exchange+":")
			at, err := time.Parse(timeLayout, row.LastTradeTime)
			if err != nil {
				at = c.now()
			}
			out[sym] = models.Quote{Symbol: sym, LastPrice: row.LastPrice, Time: at}
		}
	}
	return out, nil
}

type holdingRow struct {
	TradingSymbol string  `json:"tradingsymbol"`
	Quantity      int     `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
}

func (r holdingRow) external() models.ExternalHolding {
	return models.ExternalHolding{
		Symbol:    r.TradingSymbol,
		Quantity:  r.Quantity,
		AvgPrice:  r.AveragePrice,
		LastPrice: r.LastPrice,
	}
}

// Holdings returns delivery holdings.
func (c *Client) Holdings(ctx context.Context) ([]models.ExternalHolding, error) {
	var resp envelope[[]holdingRow]
	if err := c.get(ctx, classDefault, "/portfolio/holdings", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]models.ExternalHolding, 0, len(resp.Data))
	for _, r := range resp.Data {
		out = append(out, r.external())
	}
	return out, nil
}

// Positions returns net intraday and carry-forward positions.
func (c *Client) Positions(ctx context.Context) ([]models.ExternalHolding, error) {
	var resp envelope[struct {
		Net []holdingRow `json:"net"`
	}]
	if err := c.get(ctx, classDefault, "/portfolio/positions", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]models.ExternalHolding, 0, len(resp.Data.Net))
	for _, r := range resp.Data.Net {
		out = append(out, r.external())
	}
	return out, nil
}

// AvailableFunds returns the equity segment net margin.
func (c *Client) AvailableFunds(ctx context.Context) (float64, error) {
	var resp envelope[struct {
		Equity struct {
			Net float64 `json:"net"`
		} `json:"equity"`
	}]
	if err := c.get(ctx, classDefault, "/user/margins", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Data.Equity.Net, nil
}

// parseCandle decodes one [timestamp, open, high, low, close, volume] row.
func parseCandle(row []interface{}) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("expected 6 fields, got %d", len(row))
	}
	ts, ok := row[0].(string)
	if !ok {
		return models.Candle{}, fmt.Errorf("timestamp is %T", row[0])
	}
	at, err := time.Parse("2006-01-02T15:04:05-0700", ts)
	if err != nil {
		if at, err = time.Parse(time.RFC3339, ts); err != nil {
			return models.Candle{}, fmt.Errorf("timestamp %q: %w", ts, err)
		}
	}
	var vals [5]float64
	for i := range vals {
		v, ok := row[i+1].(float64)
		if !ok {
			return models.Candle{}, fmt.Errorf("field %d is %T", i+1, row[i+1])
		}
		vals[i] = v
	}
	return models.Candle{
		Time:   at,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// weekly folds ascending daily bars into ISO weeks stamped with the week's first bar.
func weekly(daily []models.Candle) []models.Candle {
	out := make([]models.Candle, 0, len(daily)/5+1)
	var curYear, curWeek int
	for _, d := range daily {
		y, w := d.Time.ISOWeek()
		if len(out) == 0 || y != curYear || w != curWeek {
			out = append(out, d)
			curYear, curWeek = y, w
			continue
		}
		last := &out[len(out)-1]
		if d.High > last.High {
			last.High = d.High
		}
		if d.Low < last.Low {
			last.Low = d.Low
		}
		last.Close = d.Close
		last.Volume += d.Volume
	}
	return out
}
