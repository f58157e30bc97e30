package models

import (
	"fmt"
	"math"
	"time"
)

// Candle represents one OHLCV bar of an instrument.
type Candle struct {
	Time   time.Time `json:"time"`
	Symbol string    `json:"symbol,omitempty"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate checks the OHLC envelope of a single bar.
func (c Candle) Validate() error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bar %s: non-finite value", c.Time.Format(time.DateOnly))
		}
	}
	if c.Low < 0 || c.Volume < 0 {
		return fmt.Errorf("bar %s: negative low or volume", c.Time.Format(time.DateOnly))
	}
	hi := math.Max(c.Open, c.Close)
	lo := math.Min(c.Open, c.Close)
	if c.High < hi || lo < c.Low {
		return fmt.Errorf("bar %s: ohlc envelope violated", c.Time.Format(time.DateOnly))
	}
	return nil
}

// ValidateSeries checks every bar and strict timestamp ordering.
func ValidateSeries(series []Candle) error {
	for i, c := range series {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && !c.Time.After(series[i-1].Time) {
			return fmt.Errorf("bar %d: timestamps not strictly ascending", i)
		}
	}
	return nil
}

// Quote is a live price observation.
type Quote struct {
	Symbol    string    `json:"symbol"`
	LastPrice float64   `json:"last_price"`
	Time      time.Time `json:"time"`
}
