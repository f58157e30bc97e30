package alpaca

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
)

type fakeMarket struct {
	bars    []marketdata.Bar
	req     marketdata.GetBarsRequest
	trades  map[string]marketdata.Trade
	barsErr error
}

func (f *fakeMarket) GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.req = req
	return f.bars, f.barsErr
}

func (f *fakeMarket) GetLatestTrades(symbols []string, req marketdata.GetLatestTradeRequest) (map[string]marketdata.Trade, error) {
	return f.trades, nil
}

type fakeTrading struct {
	positions []alpaca.Position
	account   *alpaca.Account
}

func (f *fakeTrading) GetPositions() ([]alpaca.Position, error) { return f.positions, nil }
func (f *fakeTrading) GetAccount() (*alpaca.Account, error)     { return f.account, nil }

func TestGetCandlesMapsBars(t *testing.T) {
	ts := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)
	md := &fakeMarket{bars: []marketdata.Bar{{Timestamp: ts, Open: 10, High: 12, Low: 9, Close: 11, Volume: 300}}}
	c := newClient(md, &fakeTrading{}, "iex", nil)

	got, err := c.GetCandles(context.Background(), "AAPL", ts.AddDate(0, -1, 0), ts, domrepo.IntervalWeek)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(got) != 1 || got[0].Close != 11 || got[0].Volume != 300 || got[0].Symbol != "AAPL" {
		t.Fatalf("unexpected candles %+v", got)
	}
	if md.req.TimeFrame.Unit != marketdata.Week || md.req.Adjustment != marketdata.Split {
		t.Fatalf("unexpected request %+v", md.req)
	}
}

func TestGetCandlesWrapsError(t *testing.T) {
	c := newClient(&fakeMarket{barsErr: errors.New("boom")}, &fakeTrading{}, "", nil)
	_, err := c.GetCandles(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now(), domrepo.IntervalDay)
	if !errors.Is(err, models.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

func TestAccountMapping(t *testing.T) {
	cur := decimal.NewFromFloat(187.5)
	tr := &fakeTrading{
		positions: []alpaca.Position{{
			Symbol:        "MSFT",
			Qty:           decimal.NewFromInt(-4),
			AvgEntryPrice: decimal.NewFromFloat(180.25),
			CurrentPrice:  &cur,
		}},
		account: &alpaca.Account{Cash: decimal.NewFromFloat(10500.5)},
	}
	md := &fakeMarket{trades: map[string]marketdata.Trade{"MSFT": {Price: 188}}}
	c := newClient(md, tr, "", nil)
	ctx := context.Background()

	h, err := c.Holdings(ctx)
	if err != nil || len(h) != 1 || h[0].Quantity != 4 || h[0].LastPrice != 187.5 || h[0].AvgPrice != 180.25 {
		t.Fatalf("unexpected holdings %+v err=%v", h, err)
	}
	funds, err := c.AvailableFunds(ctx)
	if err != nil || funds != 10500.5 {
		t.Fatalf("unexpected funds %v err=%v", funds, err)
	}
	q, err := c.GetQuotes(ctx, []string{"MSFT"})
	if err != nil || q["MSFT"].LastPrice != 188 {
		t.Fatalf("unexpected quotes %+v err=%v", q, err)
	}
}
