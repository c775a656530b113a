// Package engine implements the single-asset signal backtest: pattern
// annotation, the one-bar-hold trade simulation and summary aggregation.
package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Engine runs backtests. It holds no state between runs.
type Engine struct {
	logger *zap.Logger
}

// New creates an engine; a nil logger disables logging.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Run executes one backtest with a default engine.
func Run(bars []Bar, cfg RunConfig) (*Result, error) {
	return New(nil).Run(bars, cfg)
}

// Run validates the input, annotates the series, simulates and summarizes.
// Series shorter than WarmupBars+1 give an empty but valid result.
func (e *Engine) Run(bars []Bar, cfg RunConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}
	if err := ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("invalid series: %w", err)
	}
	cfg.Filters = cfg.Filters.Clone()

	start := time.Now()
	rule := SelectRule(cfg.Filters)
	e.logger.Debug("Starting backtest",
		zap.Int("bars", len(bars)),
		zap.Stringer("rule", rule.Kind),
		zap.String("starting_capital", cfg.StartingCapital.String()),
	)

	annotated := Annotate(bars)
	trades, curve, final := NewSimulator(rule).Run(annotated, cfg.StartingCapital)

	series := []AnnotatedBar{}
	if len(annotated) > WarmupBars {
		series = annotated[WarmupBars:]
		for i := range series {
			series[i].Equity = curve[i]
		}
	}

	res := &Result{
		Series:  series,
		Trades:  trades,
		Equity:  curve,
		Summary: Summarize(trades, cfg.StartingCapital, final, curve),
		Rule:    rule.Kind,
		Config:  cfg,
	}

	e.logger.Info("Backtest completed",
		zap.Stringer("rule", rule.Kind),
		zap.Int("bars", len(bars)),
		zap.Int("trades", res.Summary.TotalTrades),
		zap.String("total_pnl", res.Summary.TotalPnL.String()),
		zap.Float64("win_rate", res.Summary.WinRate),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}
