package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sp500-backtest/services/clickhouse"
	"sp500-backtest/services/engine"
)

// Querier is satisfied by *clickhouse.Client
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (clickhouse.Rows, error)
}

// ClickHouseSource reads bars from a table with columns
// symbol, ts, open, high, low, close, volume
type ClickHouseSource struct {
	db    Querier
	table string
	// Optional window; zero values leave that side open
	From time.Time
	To   time.Time
}

func NewClickHouseSource(db Querier, table string) (*ClickHouseSource, error) {
	if !clickhouse.ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ClickHouseSource{db: db, table: table}, nil
}

func (s *ClickHouseSource) Load(ctx context.Context, asset string) ([]engine.Bar, error) {
	return s.LoadRange(ctx, asset, s.From, s.To)
}

// LoadRange returns bars with from <= ts < to, ordered by ts
func (s *ClickHouseSource) LoadRange(ctx context.Context, symbol string, from, to time.Time) ([]engine.Bar, error) {
	conds := []string{"symbol = ?"}
	args := []any{symbol}
	if !from.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, from)
	}
	if !to.IsZero() {
		conds = append(conds, "ts < ?")
		args = append(args, to)
	}
	query := fmt.Sprintf(`
		SELECT
			ts,
			toString(open),
			toString(high),
			toString(low),
			toString(close),
			toString(volume)
		FROM %s
		WHERE %s
		ORDER BY ts`, s.table, strings.Join(conds, " AND "))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query market data: %w", err)
	}
	defer rows.Close()

	var bars []engine.Bar
	for rows.Next() {
		var (
			ts                        time.Time
			open, high, low, cls, vol string
		)
		if err := rows.Scan(&ts, &open, &high, &low, &cls, &vol); err != nil {
			return nil, fmt.Errorf("failed to scan bar data: %w", err)
		}
		b := engine.Bar{Date: ts.UTC()}
		for _, f := range []struct {
			col string
			src string
			dst *decimal.Decimal
		}{
			{ColOpen, open, &b.Open},
			{ColHigh, high, &b.High},
			{ColLow, low, &b.Low},
			{ColClose, cls, &b.Close},
			{ColVolume, vol, &b.Volume},
		} {
			v, err := decimal.NewFromString(f.src)
			if err != nil {
				return nil, &ParseError{Line: len(bars) + 1, Column: f.col, Value: f.src, Err: ErrBadNumber}
			}
			*f.dst = v
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read market data: %w", err)
	}
	return bars, nil
}
