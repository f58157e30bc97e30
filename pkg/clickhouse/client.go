package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Config describes one ClickHouse server and the settings sent with every
// query.
type Config struct {
	Host             string
	Port             int
	Database         string
	User             string
	Password         string
	UseHTTP          bool
	AsyncInsert      bool
	WaitForAsync     bool
	DialTimeout      time.Duration
	ReadTimeout      time.Duration
	MaxExecutionTime time.Duration
	MaxOpenConns     int
	MaxIdleConns     int
}

// Client is a pooled ClickHouse connection bound to one database.
type Client struct {
	db       *sql.DB
	database string
}

// NewClient opens the pool and pings the server.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("clickhouse: host is required")
	}
	db := clickhouse.OpenDB(options(cfg))
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse: ping %s: %w", cfg.Host, err)
	}
	return &Client{db: db, database: database(cfg)}, nil
}

func database(cfg Config) string {
	if cfg.Database == "" {
		return "default"
	}
	return cfg.Database
}

func options(cfg Config) *clickhouse.Options {
	proto, port := clickhouse.Native, 9000
	if cfg.UseHTTP {
		proto, port = clickhouse.HTTP, 8123
	}
	if cfg.Port > 0 {
		port = cfg.Port
	}

	settings := clickhouse.Settings{}
	if cfg.MaxExecutionTime > 0 {
		settings["max_execution_time"] = int(cfg.MaxExecutionTime.Seconds())
	}
	if cfg.AsyncInsert {
		settings["async_insert"] = 1
		if cfg.WaitForAsync {
			settings["wait_for_async_insert"] = 1
		}
	}

	o := &clickhouse.Options{
		Protocol: proto,
		Addr:     []string{net.JoinHostPort(cfg.Host, strconv.Itoa(port))},
		Auth: clickhouse.Auth{
			// connect to default so Migrate can create the configured database
			Database: "default",
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings:        settings,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: 5 * time.Minute,
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 10
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = 5
	}
	return o
}

func (c *Client) DB() *sql.DB { return c.db }

// Database is the database tables are qualified with.
func (c *Client) Database() string { return c.database }

// Table qualifies name with the client's database.
func (c *Client) Table(name string) string { return c.database + "." + name }

func (c *Client) Health(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Migrate creates the client's database and runs the DDL statements in
// order. Statements must be idempotent.
func (c *Client) Migrate(ctx context.Context, ddl ...string) error {
	stmts := append([]string{"CREATE DATABASE IF NOT EXISTS " + c.database}, ddl...)
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse: migrate step %d: %w", i, err)
		}
	}
	return nil
}

// InsertRows writes rows with multi-row VALUES statements of at most chunk
// rows each. Every row must have len(cols) values.
func (c *Client) InsertRows(ctx context.Context, table string, cols []string, rows [][]any, chunk int) error {
	if chunk <= 0 {
		chunk = 1000
	}
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		args := make([]any, 0, (end-start)*len(cols))
		for i, r := range rows[start:end] {
			if len(r) != len(cols) {
				return fmt.Errorf("clickhouse: row %d has %d values, want %d", start+i, len(r), len(cols))
			}
			args = append(args, r...)
		}
		if _, err := c.db.ExecContext(ctx, insertQuery(table, cols, end-start), args...); err != nil {
			return fmt.Errorf("clickhouse: insert %s rows %d-%d: %w", table, start, end, err)
		}
	}
	return nil
}

func insertQuery(table string, cols []string, n int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	values := make([]string, n)
	for i := range values {
		values[i] = row
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(values, ","))
}
