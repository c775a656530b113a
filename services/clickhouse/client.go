// Package clickhouse wraps the native ClickHouse connection used for bar
// storage and the trade journal.
package clickhouse

import (
	"context"
	"fmt"
	"regexp"

	chgo "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"sp500-backtest/services/config"
)

// Rows is the subset of driver.Rows the services read from
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Batch is the subset of driver.Batch used for inserts
type Batch interface {
	Append(v ...any) error
	Send() error
}

// Client is a thin wrapper over a native driver connection
type Client struct {
	conn driver.Conn
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether name is safe to splice into a query as a table name
func ValidIdentifier(name string) bool { return identRe.MatchString(name) }

// NewClient opens and pings a connection
func NewClient(ctx context.Context, cfg config.ClickHouseConfig) (*Client, error) {
	conn, err := chgo.Open(&chgo.Options{
		Addr: []string{cfg.Addr},
		Auth: chgo.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: chgo.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return c.conn.Query(ctx, query, args...)
}

func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *Client) PrepareBatch(ctx context.Context, query string) (Batch, error) {
	return c.conn.PrepareBatch(ctx, query)
}

func (c *Client) Close() error { return c.conn.Close() }
