package engine

// One-bar-hold simulator: enter on the signal bar close, exit on the next close

import "github.com/shopspring/decimal"

// WarmupBars is the number of leading bars never evaluated for entry
// (the fair value gap looks two bars back).
const WarmupBars = fvgLookback

// Simulator walks an annotated series with a fixed decision rule
type Simulator struct {
	rule DecisionRule
}

func NewSimulator(rule DecisionRule) *Simulator { return &Simulator{rule: rule} }

// simulation is the state owned by a single pass
type simulation struct {
	equity decimal.Decimal
	trades []Trade
	curve  []decimal.Decimal
}

// Run processes bars WarmupBars..n-1 and returns the trade log, the equity
// curve (one value per processed bar) and the final equity.
func (s *Simulator) Run(series []AnnotatedBar, startingCapital decimal.Decimal) ([]Trade, []decimal.Decimal, decimal.Decimal) {
	st := simulation{equity: startingCapital, trades: []Trade{}, curve: []decimal.Decimal{}}
	if len(series) > WarmupBars {
		st.curve = make([]decimal.Decimal, 0, len(series)-WarmupBars)
	}
	for i := WarmupBars; i < len(series); i++ {
		bar := series[i]
		if dir, ok := s.rule.Decide(bar); ok {
			st.trades = append(st.trades, s.execute(series, i, dir))
			st.equity = st.equity.Add(st.trades[len(st.trades)-1].PnL)
		}
		st.curve = append(st.curve, st.equity)
	}
	return st.trades, st.curve, st.equity
}

// execute closes the position at the next bar's close, or flat on the last bar.
func (s *Simulator) execute(series []AnnotatedBar, i int, dir Direction) Trade {
	entry := series[i].Close
	exit := entry
	if i+1 < len(series) {
		exit = series[i+1].Close
	}
	pnl := exit.Sub(entry)
	if dir == Short {
		pnl = entry.Sub(exit)
	}
	return Trade{
		Date:      series[i].Date,
		Direction: dir,
		Entry:     entry,
		Exit:      exit,
		PnL:       pnl,
	}
}
