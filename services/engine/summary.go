package engine

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Summarize aggregates a finished run. Win rate is the share of trades with
// strictly positive P&L, in percent, and 0 when there are no trades.
func Summarize(trades []Trade, startingCapital, finalEquity decimal.Decimal, curve []decimal.Decimal) Summary {
	sum := Summary{
		TotalPnL:    finalEquity.Sub(startingCapital),
		TotalTrades: len(trades),
		FinalEquity: finalEquity,
	}
	for _, t := range trades {
		if t.PnL.IsPositive() {
			sum.Wins++
		} else {
			sum.Losses++
		}
	}
	if sum.TotalTrades > 0 {
		sum.WinRate = float64(sum.Wins) / float64(sum.TotalTrades) * 100
	}
	sum.MaxDrawdownPct = maxDrawdownPct(startingCapital, curve)
	return sum
}

// maxDrawdownPct is the largest peak-to-trough fall of the curve, in percent of the peak
func maxDrawdownPct(startingCapital decimal.Decimal, curve []decimal.Decimal) float64 {
	peak := startingCapital
	maxDD := decimal.Zero
	for _, eq := range curve {
		if eq.GreaterThan(peak) {
			peak = eq
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(eq).Div(peak)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD.Mul(hundred).InexactFloat64()
}
