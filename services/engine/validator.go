package engine

import (
	"errors"
	"fmt"
)

// Input validation errors. Everything here fails the run before simulation starts.
var (
	ErrInvalidCapital   = errors.New("starting capital must be positive")
	ErrUnknownSignal    = errors.New("unknown signal")
	ErrUnorderedSeries  = errors.New("dates must be strictly increasing")
	ErrNonPositivePrice = errors.New("prices must be positive")
	ErrNegativeVolume   = errors.New("volume must not be negative")
)

// ValidationError points at the offending bar
type ValidationError struct {
	Index int
	Err   error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("bar %d: %v", e.Index, e.Err) }

func (e *ValidationError) Unwrap() error { return e.Err }

// ValidateSeries checks ordering and value ranges of a loaded series.
func ValidateSeries(bars []Bar) error {
	for i, b := range bars {
		if i > 0 && !b.Date.After(bars[i-1].Date) {
			return &ValidationError{Index: i, Err: fmt.Errorf("%w: %s after %s", ErrUnorderedSeries,
				b.Date.Format("2006-01-02 15:04:05"), bars[i-1].Date.Format("2006-01-02 15:04:05"))}
		}
		if !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive() {
			return &ValidationError{Index: i, Err: ErrNonPositivePrice}
		}
		if b.Volume.IsNegative() {
			return &ValidationError{Index: i, Err: ErrNegativeVolume}
		}
	}
	return nil
}
