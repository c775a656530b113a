package journal

import (
	"context"
	"fmt"
	"sync"

	"sp500-backtest/services/clickhouse"
)

// Inserter is satisfied by *clickhouse.Client
type Inserter interface {
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string) (clickhouse.Batch, error)
}

// ClickHouseExporter batch-inserts journal rows, creating the table on first use
type ClickHouseExporter struct {
	db    Inserter
	table string

	mu      sync.Mutex
	created bool
}

func NewClickHouseExporter(db Inserter, table string) (*ClickHouseExporter, error) {
	if !clickhouse.ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ClickHouseExporter{db: db, table: table}, nil
}

func (e *ClickHouseExporter) Name() string { return "clickhouse" }

func (e *ClickHouseExporter) ensureTable(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.created {
		return nil
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id     String,
			asset      LowCardinality(String),
			ts         DateTime64(3, 'UTC'),
			direction  LowCardinality(String),
			entry      Decimal(38, 10),
			exit       Decimal(38, 10),
			pnl        Decimal(38, 10),
			created_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		ORDER BY (asset, run_id, ts)`, e.table)
	if err := e.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create journal table: %w", err)
	}
	e.created = true
	return nil
}

func (e *ClickHouseExporter) Export(ctx context.Context, rec Record) error {
	entries := rec.Entries()
	if len(entries) == 0 {
		return nil
	}
	if err := e.ensureTable(ctx); err != nil {
		return err
	}

	batch, err := e.db.PrepareBatch(ctx, "INSERT INTO "+e.table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, en := range entries {
		if err := batch.Append(
			en.RunID,
			en.Asset,
			en.Date,
			en.Direction.String(),
			en.Entry,
			en.Exit,
			en.PnL,
			rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to append journal row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}
