package marketdata

import (
	"context"
	"fmt"

	"sp500-backtest/services/clickhouse"
	"sp500-backtest/services/engine"
)

// Inserter is satisfied by *clickhouse.Client
type Inserter interface {
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string) (clickhouse.Batch, error)
}

// EnsureBarsTable creates the table read by ClickHouseSource. Re-ingesting a
// bar replaces it on merge.
func EnsureBarsTable(ctx context.Context, db Inserter, table string) error {
	if !clickhouse.ValidIdentifier(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol  LowCardinality(String),
			ts      DateTime64(3, 'UTC'),
			open    Decimal(38, 10),
			high    Decimal(38, 10),
			low     Decimal(38, 10),
			close   Decimal(38, 10),
			volume  Decimal(38, 4),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, ts)`, table)
	if err := db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", table, err)
	}
	return nil
}

// Ingest batch-inserts a validated series for symbol. version orders
// duplicate rows; the newest wins.
func Ingest(ctx context.Context, db Inserter, table, symbol string, bars []engine.Bar, version uint64) error {
	if !clickhouse.ValidIdentifier(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	if err := engine.ValidateSeries(bars); err != nil {
		return fmt.Errorf("refusing to ingest %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil
	}

	batch, err := db.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (symbol, ts, open, high, low, close, volume, version)", table))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, b := range bars {
		if err := batch.Append(symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, version); err != nil {
			return fmt.Errorf("failed to append bar %s: %w", b.Date, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}
