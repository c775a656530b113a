package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents one OHLCV row of the input series
type Bar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// AnnotatedBar is a Bar plus the pattern flags derived from prior bars.
// Equity is only populated on bars returned in Result.Series.
type AnnotatedBar struct {
	Bar
	LiquiditySweep bool            `json:"liquidity_sweep"`
	BOSUp          bool            `json:"bos_up"`
	BOSDown        bool            `json:"bos_down"`
	OrderBlock     bool            `json:"order_block"`
	FVG            bool            `json:"fvg"`
	Equity         decimal.Decimal `json:"equity"`
}

// Signal names a filter category that can be toggled by the caller
type Signal string

const (
	SignalLiquiditySweep Signal = "LiquiditySweep"
	SignalBOS            Signal = "BOS"
	SignalOrderBlock     Signal = "OB"
	SignalFVG            Signal = "FVG"
)

// Signals lists every known filter in display order
var Signals = []Signal{SignalLiquiditySweep, SignalBOS, SignalOrderBlock, SignalFVG}

// ParseSignal maps a settings key to a Signal.
func ParseSignal(name string) (Signal, error) {
	for _, s := range Signals {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSignal, name)
}

// LookupSignal is ParseSignal ignoring case, for keys coming from settings
// files and request bodies.
func LookupSignal(name string) (Signal, error) {
	for _, s := range Signals {
		if strings.EqualFold(string(s), name) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSignal, name)
}

// NewFilterSet builds a FilterSet from loosely cased keys.
func NewFilterSet(m map[string]bool) (FilterSet, error) {
	out := make(FilterSet, len(m))
	for k, v := range m {
		s, err := LookupSignal(k)
		if err != nil {
			return nil, err
		}
		out[s] = v
	}
	return out, nil
}

// FilterSet maps a signal to enabled/disabled. Absent keys are disabled.
type FilterSet map[Signal]bool

// Enabled reports whether every given signal is switched on.
func (f FilterSet) Enabled(signals ...Signal) bool {
	for _, s := range signals {
		if !f[s] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy so a run never shares the caller's map.
func (f FilterSet) Clone() FilterSet {
	out := make(FilterSet, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Direction of a simulated trade
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "Long"
	case Short:
		return "Short"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Long":
		*d = Long
	case "Short":
		*d = Short
	default:
		return fmt.Errorf("unknown direction %q", string(b))
	}
	return nil
}

// Trade is one simulated round trip, entered on a bar close and exited on the next close
type Trade struct {
	Date      time.Time       `json:"date"`
	Direction Direction       `json:"type"`
	Entry     decimal.Decimal `json:"entry"`
	Exit      decimal.Decimal `json:"exit"`
	PnL       decimal.Decimal `json:"pnl"`
}

// Summary contains aggregated statistics for one run
type Summary struct {
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	TotalTrades    int             `json:"total_trades"`
	WinRate        float64         `json:"win_rate"`
	Wins           int             `json:"wins"`
	Losses         int             `json:"losses"`
	FinalEquity    decimal.Decimal `json:"final_equity"`
	MaxDrawdownPct float64         `json:"max_drawdown_pct"`
}

// RunConfig is the immutable input contract of a backtest run.
//
// RiskPerTradePct, MultiTakeProfit and NewsFilter are accepted and carried into
// the Result untouched; no computation reads them.
type RunConfig struct {
	Filters         FilterSet       `json:"filters"`
	StartingCapital decimal.Decimal `json:"starting_capital"`
	RiskPerTradePct float64         `json:"risk_per_trade_percent"`
	MultiTakeProfit bool            `json:"multi_tp"`
	NewsFilter      bool            `json:"news_filter"`
}

// Validate checks the parts of the config the engine depends on.
func (c RunConfig) Validate() error {
	if !c.StartingCapital.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidCapital, c.StartingCapital)
	}
	for s := range c.Filters {
		if _, err := ParseSignal(string(s)); err != nil {
			return err
		}
	}
	return nil
}

// Result holds everything a run produces
type Result struct {
	Series  []AnnotatedBar    `json:"series"`
	Trades  []Trade           `json:"trades"`
	Equity  []decimal.Decimal `json:"equity"`
	Summary Summary           `json:"summary"`
	Rule    RuleKind          `json:"rule"`
	Config  RunConfig         `json:"config"`
}
