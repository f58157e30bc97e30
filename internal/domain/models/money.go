package models

import "github.com/shopspring/decimal"

// RoundTo rounds half away from zero at the given decimal places.
func RoundTo(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// Price rounds a price level to two decimals.
func Price(v float64) float64 { return RoundTo(v, 2) }

// Strength rounds a detector strength to three decimals.
func Strength(v float64) float64 { return RoundTo(v, 3) }

// Notional returns price*qty rounded to two decimals.
func Notional(price float64, qty int) float64 {
	d := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty)))
	f, _ := d.Round(2).Float64()
	return f
}
