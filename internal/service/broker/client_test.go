package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
)

const instrumentsCSV = `instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange
738561,2885,RELIANCE,RELIANCE INDUSTRIES,0,,0,0.05,1,EQ,NSE,NSE
341249,1333,HDFCBANK,HDFC BANK,0,,0,0.05,1,EQ,NSE,NSE
999999,1,RELIANCE,RELIANCE BSE,0,,0,0.05,1,EQ,BSE,BSE
`

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	fast := Limit{Burst: 100, PerSec: 1000}
	return NewClient(Config{
		BaseURL:     srv.URL,
		APIKey:      "key",
		AccessToken: "tok",
		Timeout:     2 * time.Second,
		Attempts:    3,
		Backoff:     time.Millisecond,
		Limits:      map[string]Limit{classHistorical: fast, classQuote: fast, classDefault: fast},
	}, nil)
}

func TestGetCandlesResolvesTokenAndParsesRows(t *testing.T) {
	var gotAuth, gotFrom string
	mux := http.NewServeMux()
	mux.HandleFunc("/instruments/NSE", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(instrumentsCSV))
	})
	mux.HandleFunc("/instruments/historical/738561/day", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotFrom = r.URL.Query().Get("from")
		_, _ = w.Write([]byte(`{"status":"success","data":{"candles":[
			["2024-01-01T00:00:00+0530",100,105,99,104,1000],
			["2024-01-02T00:00:00+0530",104,108,103,107,1500]
		]}}`))
	})
	c := newTestClient(t, mux)

	from := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	bars, err := c.GetCandles(context.Background(), "RELIANCE", from, from.AddDate(0, 2, 0), domrepo.IntervalDay)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[1].Close != 107 || bars[1].Volume != 1500 || bars[1].Symbol != "RELIANCE" {
		t.Fatalf("unexpected bar %+v", bars[1])
	}
	if gotAuth != "token key:tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotFrom != "2023-12-01 00:00:00" {
		t.Fatalf("unexpected from %q", gotFrom)
	}
}

func TestGetCandlesUnknownSymbol(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/instruments/NSE", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(instrumentsCSV))
	})
	c := newTestClient(t, mux)
	_, err := c.GetCandles(context.Background(), "NOPE", time.Now().AddDate(0, -1, 0), time.Now(), domrepo.IntervalDay)
	if !errors.Is(err, models.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestGetQuotesRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		keys := r.URL.Query()["i"]
		if len(keys) != 2 {
			t.Errorf("expected 2 instrument keys, got %v", keys)
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{
			"NSE:RELIANCE":{"last_price":2500.5,"last_trade_time":"2024-01-02 15:29:59"},
			"NSE:HDFCBANK":{"last_price":1600}
		}}`))
	})
	c := newTestClient(t, mux)

	quotes, err := c.GetQuotes(context.Background(), []string{"RELIANCE", "HDFCBANK"})
	if err != nil {
		t.Fatalf("GetQuotes: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
	if quotes["RELIANCE"].LastPrice != 2500.5 || quotes["HDFCBANK"].LastPrice != 1600 {
		t.Fatalf("unexpected quotes %+v", quotes)
	}
	if quotes["RELIANCE"].Time.Hour() != 15 {
		t.Fatalf("expected trade time to be parsed, got %v", quotes["RELIANCE"].Time)
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/portfolio/holdings", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":"error","message":"invalid token","error_type":"TokenException"}`))
	})
	c := newTestClient(t, mux)

	_, err := c.Holdings(context.Background())
	if !errors.Is(err, models.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestAccountEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/portfolio/holdings", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":[
			{"tradingsymbol":"ABC","quantity":10,"average_price":100,"last_price":110}
		]}`))
	})
	mux.HandleFunc("/portfolio/positions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"net":[
			{"tradingsymbol":"XYZ","quantity":0,"average_price":50,"last_price":55}
		],"day":[]}}`))
	})
	mux.HandleFunc("/user/margins", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"equity":{"net":125000.75}}}`))
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	h, err := c.Holdings(ctx)
	if err != nil || len(h) != 1 || h[0].Symbol != "ABC" || h[0].AvgPrice != 100 {
		t.Fatalf("unexpected holdings %+v err=%v", h, err)
	}
	p, err := c.Positions(ctx)
	if err != nil || len(p) != 1 || p[0].Quantity != 0 || p[0].LastPrice != 55 {
		t.Fatalf("unexpected positions %+v err=%v", p, err)
	}
	funds, err := c.AvailableFunds(ctx)
	if err != nil || funds != 125000.75 {
		t.Fatalf("unexpected funds %v err=%v", funds, err)
	}
}

func TestWeeklyResample(t *testing.T) {
	// Mon 2024-01-01 .. Mon 2024-01-08
	var daily []models.Candle
	for i := 0; i < 6; i++ {
		day := time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC)
		if day.Weekday() == time.Saturday {
			continue
		}
		p := float64(100 + i)
		daily = append(daily, models.Candle{Time: day, Open: p, High: p + 2, Low: p - 2, Close: p + 1, Volume: 10})
	}
	daily = append(daily, models.Candle{Time: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), Open: 200, High: 201, Low: 199, Close: 200, Volume: 5})

	weeks := weekly(daily)
	if len(weeks) != 2 {
		t.Fatalf("expected 2 weeks, got %d", len(weeks))
	}
	w := weeks[0]
	if w.Open != 100 || w.Close != 105 || w.High != 106 || w.Low != 98 || w.Volume != 50 {
		t.Fatalf("unexpected first week %s", fmt.Sprintf("%+v", w))
	}
}
