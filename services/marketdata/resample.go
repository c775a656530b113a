package marketdata

import (
	"encoding/csv"
	"errors"
	"io"
	"sort"
	"time"

	"sp500-backtest/services/engine"
)

// Resample aggregates bars into buckets of the given width aligned to the
// UTC epoch: first open, max high, min low, last close, summed volume. A bucket
// is stamped with its start time.
func Resample(bars []engine.Bar, every time.Duration) ([]engine.Bar, error) {
	if every <= 0 {
		return nil, errors.New("resample width must be positive")
	}
	sorted := make([]engine.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := make([]engine.Bar, 0, len(sorted))
	for _, b := range sorted {
		bucket := b.Date.UTC().Truncate(every)
		if n := len(out); n > 0 && out[n-1].Date.Equal(bucket) {
			agg := &out[n-1]
			if b.High.GreaterThan(agg.High) {
				agg.High = b.High
			}
			if b.Low.LessThan(agg.Low) {
				agg.Low = b.Low
			}
			agg.Close = b.Close
			agg.Volume = agg.Volume.Add(b.Volume)
			continue
		}
		nb := b
		nb.Date = bucket
		out = append(out, nb)
	}
	return out, nil
}

// WriteCSV writes bars in the dataset format read by ReadCSV
func WriteCSV(w io.Writer, bars []engine.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RequiredColumns); err != nil {
		return err
	}
	for _, b := range bars {
		date := b.Date.UTC().Format(time.DateTime)
		if b.Date.Equal(b.Date.Truncate(24 * time.Hour)) {
			date = b.Date.UTC().Format(time.DateOnly)
		}
		if err := cw.Write([]string{
			date,
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			b.Volume.String(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
