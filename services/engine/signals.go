package engine

import "github.com/shopspring/decimal"

// Detector lookbacks, in bars before the current one
const (
	sweepLookback       = 1
	structureLookback   = 1
	fvgLookback         = 2
	orderBlockVolWindow = 5 // trailing window, current bar included
)

var orderBlockWindowLen = decimal.NewFromInt(orderBlockVolWindow)

// Annotate derives the pattern flags for every bar. Each flag at i only reads
// bars at or before i; references before the start of the series are false.
// The input slice is not modified.
func Annotate(bars []Bar) []AnnotatedBar {
	out := make([]AnnotatedBar, len(bars))
	for i := range bars {
		out[i].Bar = bars[i]
	}
	for i := range out {
		cur := &out[i]
		if i >= sweepLookback {
			cur.LiquiditySweep = isLiquiditySweep(bars[i-1], bars[i])
		}
		if i >= structureLookback {
			cur.BOSUp = bars[i].Close.GreaterThan(bars[i-1].High)
			cur.BOSDown = bars[i].Close.LessThan(bars[i-1].Low)
		}
		if i >= orderBlockVolWindow-1 {
			prev := out[i-1]
			cur.OrderBlock = (prev.BOSUp || prev.BOSDown) && volumeAboveMean(bars[i-orderBlockVolWindow+1:i+1])
		}
		if i >= fvgLookback {
			cur.FVG = isFairValueGap(bars[i-2], bars[i])
		}
	}
	return out
}

// isLiquiditySweep: current range engulfs the previous bar's range on both sides
func isLiquiditySweep(prev, cur Bar) bool {
	return prev.Low.GreaterThan(cur.Low) && prev.High.LessThan(cur.High)
}

// isFairValueGap: no overlap between the current bar and the bar two back
func isFairValueGap(back2, cur Bar) bool {
	return cur.Low.GreaterThan(back2.High) || cur.High.LessThan(back2.Low)
}

// volumeAboveMean reports last.Volume > mean(window). Compared as
// n*last > sum to keep the test exact.
func volumeAboveMean(window []Bar) bool {
	sum := decimal.Zero
	for _, b := range window {
		sum = sum.Add(b.Volume)
	}
	last := window[len(window)-1].Volume
	return last.Mul(orderBlockWindowLen).GreaterThan(sum)
}
