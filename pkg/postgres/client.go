package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config describes the ledger database. Zero values take the defaults
// applied by NewClient.
type Config struct {
	Host           string
	Port           int
	Database       string
	User           string
	Password       string
	SSLMode        string
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration
}

// Client owns a pgx pool.
type Client struct {
	pool *pgxpool.Pool
}

// NewClient opens the pool and pings it within cfg.ConnectTimeout.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping %s: %w", pc.ConnConfig.Host, err)
	}
	return &Client{pool: pool}, nil
}

func poolConfig(cfg Config) (*pgxpool.Config, error) {
	if cfg.Host == "" {
		return nil, errors.New("postgres: host is required")
	}
	pc, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	pc.MaxConns, pc.MinConns = 25, 5
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	pc.MinConns = min(pc.MinConns, pc.MaxConns)
	pc.MaxConnLifetime = time.Hour
	pc.MaxConnIdleTime = 30 * time.Minute
	pc.HealthCheckPeriod = time.Minute
	return pc, nil
}

// dsn builds a URL so credentials with spaces or quotes survive.
func dsn(cfg Config) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	mode := cfg.SSLMode
	if mode == "" {
		mode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {mode}}.Encode(),
	}
	return u.String()
}

func (c *Client) Pool() *pgxpool.Pool { return c.pool }

func (c *Client) Health(ctx context.Context) error { return c.pool.Ping(ctx) }

func (c *Client) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

// RunMigrations executes idempotent schema statements in order.
func (c *Client) RunMigrations(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
