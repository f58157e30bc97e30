package config

import (
	"strings"
	"testing"
	"time"
)

const minimal = `
environment: test
broker:
  api_key: k
  access_token: t
screening:
  universe: [ABC, XYZ]
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.Screening.LookbackDays != 180 || c.Screening.MinBars != 60 || c.Screening.MinRiskReward != 2.0 {
		t.Fatalf("unexpected screening defaults %+v", c.Screening)
	}
	if c.Reconcile.FundNoiseThreshold != 500 || c.Reconcile.StopPct != 0.06 {
		t.Fatalf("unexpected reconcile defaults %+v", c.Reconcile)
	}
	if c.Learning.LockTTL != 5*time.Minute || c.Learning.Alpha != 0.1 {
		t.Fatalf("unexpected learning defaults %+v", c.Learning)
	}
	if c.MarketData.Provider != "broker" || !c.Metrics.Enabled {
		t.Fatalf("unexpected provider defaults")
	}
}

func TestValidateRejects(t *testing.T) {
	weights := "environment: x\nbroker: {api_key: k, access_token: t}\n" +
		"screening:\n  universe: [A]\n  weights: {trend_crossover/daily: 3}\n"
	cases := map[string]string{
		"universe": "environment: x\nbroker: {api_key: k, access_token: t}\n",
		"provider": minimal + "market_data:\n  provider: ftp\n",
		"weights":  weights,
		"store":    minimal + "market_data:\n  store_bars: true\n",
		"alpaca":   minimal + "market_data:\n  provider: alpaca\n",
	}
	for name, doc := range cases {
		c, err := Parse([]byte(doc))
		if err != nil {
			t.Fatalf("%s: parse: %v", name, err)
		}
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	env := map[string]string{
		"UNIVERSE":      " AAA, BBB ,,CCC",
		"KAFKA_BROKERS": "k1:9092,k2:9092",
		"FUND_SIZE":     "250000",
		"CORS_ORIGINS":  "https://desk.example.com",
	}
	c.applyEnv(func(k string) string { return env[k] })

	if strings.Join(c.Screening.Universe, "|") != "AAA|BBB|CCC" {
		t.Fatalf("unexpected universe %v", c.Screening.Universe)
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("expected kafka enabled with 2 brokers")
	}
	if c.Risk.FundSize != 250000 {
		t.Fatalf("unexpected fund size %v", c.Risk.FundSize)
	}
	if len(c.Server.CORSOrigins) != 1 || c.Server.CORSOrigins[0] != "https://desk.example.com" {
		t.Fatalf("unexpected cors origins %v", c.Server.CORSOrigins)
	}
}
