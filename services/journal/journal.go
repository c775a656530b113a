// Package journal exports finished runs to external trade journals. Export is
// fire-and-forget from the run's point of view: a failing sink produces a
// Notice and never changes the result.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sp500-backtest/services/engine"
)

// Record is one finished run as handed to the sinks
type Record struct {
	RunID     string         `json:"run_id"`
	Asset     string         `json:"asset"`
	Trades    []engine.Trade `json:"trades"`
	Summary   engine.Summary `json:"summary"`
	CreatedAt time.Time      `json:"created_at"`
}

// Entry is a single journal row: a trade tagged with its asset and run
type Entry struct {
	RunID     string           `json:"run_id"`
	Asset     string           `json:"asset"`
	Date      time.Time        `json:"date"`
	Direction engine.Direction `json:"type"`
	Entry     decimal.Decimal  `json:"entry"`
	Exit      decimal.Decimal  `json:"exit"`
	PnL       decimal.Decimal  `json:"pnl"`
}

// Entries flattens the record into journal rows
func (r Record) Entries() []Entry {
	out := make([]Entry, len(r.Trades))
	for i, t := range r.Trades {
		out[i] = Entry{
			RunID:     r.RunID,
			Asset:     r.Asset,
			Date:      t.Date,
			Direction: t.Direction,
			Entry:     t.Entry,
			Exit:      t.Exit,
			PnL:       t.PnL,
		}
	}
	return out
}

// Exporter appends a record to one journal
type Exporter interface {
	Name() string
	Export(ctx context.Context, rec Record) error
}

// Notice reports a sink that could not take the record
type Notice struct {
	Sink    string `json:"sink"`
	Message string `json:"message"`
}

func (n Notice) String() string { return n.Sink + ": " + n.Message }

// Publish hands rec to every exporter in turn. Errors and panics are turned
// into notices so one bad sink does not stop the others.
func Publish(ctx context.Context, logger *zap.Logger, rec Record, exporters ...Exporter) []Notice {
	if logger == nil {
		logger = zap.NewNop()
	}
	var notices []Notice
	for _, ex := range exporters {
		err := export(ctx, ex, rec)
		if err == nil {
			logger.Debug("Journal export done",
				zap.String("sink", ex.Name()),
				zap.String("run_id", rec.RunID),
				zap.Int("trades", len(rec.Trades)),
			)
			continue
		}
		logger.Warn("Journal export failed",
			zap.String("sink", ex.Name()),
			zap.String("run_id", rec.RunID),
			zap.Error(err),
		)
		notices = append(notices, Notice{Sink: ex.Name(), Message: err.Error()})
	}
	return notices
}

var errPanic = errors.New("exporter panicked")

func export(ctx context.Context, ex Exporter, rec Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return ex.Export(ctx, rec)
}
