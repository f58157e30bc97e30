package repository

import (
	"strings"
	"testing"
	"time"

	"SwingDesk/internal/domain/models"
	domrepo "SwingDesk/internal/domain/repository"
)

func TestStaleAllowsForWeekends(t *testing.T) {
	friday := time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC)
	bars := []models.Candle{{Time: friday.AddDate(0, 0, -1)}, {Time: friday}}

	cases := []struct {
		name string
		bars []models.Candle
		to   time.Time
		iv   domrepo.Interval
		want bool
	}{
		{"empty", nil, friday, domrepo.IntervalDay, true},
		{"monday after friday close", bars, friday.AddDate(0, 0, 3), domrepo.IntervalDay, false},
		{"a week old daily", bars, friday.AddDate(0, 0, 7), domrepo.IntervalDay, true},
		{"a week old weekly", bars, friday.AddDate(0, 0, 7), domrepo.IntervalWeek, false},
		{"four days old hourly", bars, friday.AddDate(0, 0, 4), domrepo.IntervalHour, true},
	}
	for _, c := range cases {
		if got := stale(c.bars, c.to, c.iv); got != c.want {
			t.Fatalf("%s: expected stale=%v, got %v", c.name, c.want, got)
		}
	}
}

func TestTableForInterval(t *testing.T) {
	if tbl, err := tableForInterval("desk_test", domrepo.IntervalWeek); err != nil || tbl != "desk_test.bars_week" {
		t.Fatalf("unexpected table %q err=%v", tbl, err)
	}
	if _, err := tableForInterval("desk_test", "5minute"); err == nil {
		t.Fatalf("expected unsupported interval error")
	}
}

func TestBarSchemaUsesDatabase(t *testing.T) {
	ddl := BarSchema("research")
	if len(ddl) != 3 {
		t.Fatalf("expected one table per interval, got %d", len(ddl))
	}
	for _, stmt := range ddl {
		if !strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS research.bars_") {
			t.Fatalf("statement not bound to database: %s", stmt)
		}
	}
}
