package marketdata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sp500-backtest/services/engine"
)

// Assets offered by the dashboard
var Assets = []string{"SPX", "EURUSD", "GOLD"}

var ErrUnknownAsset = errors.New("unknown asset")

// Source provides the full series of one instrument
type Source interface {
	Load(ctx context.Context, asset string) ([]engine.Bar, error)
}

// DatasetPath is the CSV file backing an asset: <dir>/<asset>.csv
func DatasetPath(dir, asset string) string {
	return filepath.Join(dir, asset+".csv")
}

// CSVSource reads one CSV file per asset from a directory
type CSVSource struct {
	Dir string
}

func (s CSVSource) Load(ctx context.Context, asset string) ([]engine.Bar, error) {
	if err := checkAssetName(asset); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := DatasetPath(s.Dir, asset)
	bars, err := LoadCSV(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (no dataset at %s)", ErrUnknownAsset, asset, path)
	}
	return bars, err
}

// checkAssetName keeps request-supplied names inside the data directory
func checkAssetName(asset string) error {
	if asset == "" || strings.ContainsAny(asset, `/\`) || strings.Contains(asset, "..") {
		return fmt.Errorf("%w: %q", ErrUnknownAsset, asset)
	}
	return nil
}
