package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

func TestOptionsFromConfig(t *testing.T) {
	o := options(Config{
		Host:             "ch.internal",
		UseHTTP:          true,
		User:             "desk",
		AsyncInsert:      true,
		WaitForAsync:     true,
		MaxExecutionTime: 90 * time.Second,
	})
	if o.Protocol != clickhouse.HTTP || o.Addr[0] != "ch.internal:8123" {
		t.Fatalf("expected http on 8123, got %v %v", o.Protocol, o.Addr)
	}
	if o.Settings["max_execution_time"] != 90 || o.Settings["async_insert"] != 1 || o.Settings["wait_for_async_insert"] != 1 {
		t.Fatalf("unexpected settings %v", o.Settings)
	}
	if o.Auth.Username != "desk" || o.MaxOpenConns != 10 {
		t.Fatalf("unexpected auth or pool %+v", o)
	}

	o = options(Config{Host: "::1", Port: 9440})
	if o.Protocol != clickhouse.Native || o.Addr[0] != "[::1]:9440" || len(o.Settings) != 0 {
		t.Fatalf("unexpected native options %v %v %v", o.Protocol, o.Addr, o.Settings)
	}
}

func TestTableIsQualified(t *testing.T) {
	c := &Client{database: database(Config{Database: "desk_test"})}
	if got := c.Table("bars_day"); got != "desk_test.bars_day" {
		t.Fatalf("unexpected table %q", got)
	}
	if database(Config{}) != "default" {
		t.Fatalf("empty database should fall back to default")
	}
}

func TestInsertQuery(t *testing.T) {
	got := insertQuery("desk.bars_day", []string{"symbol", "ts"}, 2)
	want := "INSERT INTO desk.bars_day (symbol, ts) VALUES (?, ?),(?, ?)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
