package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sp500-backtest/services/report"
)

var csvHeader = []string{"Date", "Type", "Entry", "Exit", "P&L", "Asset", "RunID"}

// CSVExporter appends journal rows to a local file, writing the header when
// the file is new
type CSVExporter struct {
	Path string
	mu   sync.Mutex
}

func NewCSVExporter(path string) *CSVExporter { return &CSVExporter{Path: path} }

func (e *CSVExporter) Name() string { return "csv" }

func (e *CSVExporter) Export(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if dir := filepath.Dir(e.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create journal dir: %w", err)
		}
	}
	file, err := os.OpenFile(e.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat journal: %w", err)
	}

	w := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, en := range rec.Entries() {
		row := []string{
			report.FormatDate(en.Date),
			en.Direction.String(),
			en.Entry.String(),
			en.Exit.String(),
			en.PnL.String(),
			en.Asset,
			en.RunID,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
