package engine

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func bar(i int, o, h, l, c, v float64) Bar {
	return Bar{Date: day0.AddDate(0, 0, i), Open: d(o), High: d(h), Low: d(l), Close: d(c), Volume: d(v)}
}

// closesToBars builds bars with a one point range around each close
func closesToBars(closes ...float64) []Bar {
	out := make([]Bar, len(closes))
	for i, c := range closes {
		out[i] = bar(i, c, c+1, c-1, c, 1000)
	}
	return out
}

func cfg(capital float64, on ...Signal) RunConfig {
	f := FilterSet{}
	for _, s := range on {
		f[s] = true
	}
	return RunConfig{Filters: f, StartingCapital: d(capital), RiskPerTradePct: 1}
}

// sampleSeries is a deterministic zig-zag with volume spikes
func sampleSeries(n int) []Bar {
	out := make([]Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		step := float64((i*7)%11) - 5
		price += step
		if price < 10 {
			price = 10
		}
		vol := 1000.0
		if i%4 == 0 {
			vol = 3000
		}
		hi := price + float64((i*3)%5) + 0.5
		lo := price - float64((i*5)%7) - 0.5
		out[i] = bar(i, price, hi, lo, price, vol)
	}
	return out
}

func TestBreakOfStructureScenario(t *testing.T) {
	bars := closesToBars(100, 105, 95, 110)
	res, err := Run(bars, cfg(10000, SignalBOS))
	if err != nil {
		t.Fatal(err)
	}
	an := Annotate(bars)
	if an[2].BOSUp {
		t.Fatal("bar 2 closes below prior high, BOSUp must be false")
	}
	if !an[2].BOSDown {
		t.Fatal("bar 2 closes below prior low 104, expected BOSDown")
	}
	if len(res.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(res.Trades))
	}
	short := res.Trades[0]
	if short.Direction != Short || !short.Entry.Equal(d(95)) || !short.Exit.Equal(d(110)) || !short.PnL.Equal(d(-15)) {
		t.Fatalf("unexpected first trade: %+v", short)
	}
	long := res.Trades[1]
	if long.Direction != Long || !long.Entry.Equal(long.Exit) || !long.PnL.IsZero() {
		t.Fatalf("terminal trade must be flat: %+v", long)
	}
	if len(res.Equity) != 2 || !res.Equity[0].Equal(d(9985)) || !res.Equity[1].Equal(d(9985)) {
		t.Fatalf("unexpected equity curve %v", res.Equity)
	}
}

func TestWinLossSummaryScenario(t *testing.T) {
	bars := []Bar{
		bar(0, 100, 101, 99, 100, 1000),
		bar(1, 100, 101, 99, 100, 1000),
		bar(2, 90, 91, 89, 90, 1000),     // BOS down, short 90 -> 110
		bar(3, 110, 170, 100, 110, 1000), // BOS up, long 110 -> 160
		bar(4, 160, 165, 155, 160, 1000), // inside prior range
	}
	res, err := Run(bars, cfg(10000, SignalBOS))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %+v", res.Trades)
	}
	if res.Trades[0].Direction != Short || !res.Trades[0].PnL.Equal(d(-20)) {
		t.Fatalf("expected losing short, got %+v", res.Trades[0])
	}
	if res.Trades[1].Direction != Long || !res.Trades[1].PnL.Equal(d(50)) {
		t.Fatalf("expected winning long, got %+v", res.Trades[1])
	}
	s := res.Summary
	if !s.TotalPnL.Equal(d(30)) || !s.FinalEquity.Equal(d(10030)) || s.WinRate != 50.0 || s.TotalTrades != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestSummarizeFromTrades(t *testing.T) {
	trades := []Trade{
		{Direction: Long, PnL: d(50)},
		{Direction: Short, PnL: d(-20)},
	}
	s := Summarize(trades, d(10000), d(10030), []decimal.Decimal{d(10050), d(10030)})
	if !s.TotalPnL.Equal(d(30)) || s.WinRate != 50.0 || s.Wins != 1 || s.Losses != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.MaxDrawdownPct <= 0 {
		t.Fatalf("expected drawdown after falling from 10050, got %f", s.MaxDrawdownPct)
	}
}

func TestSummarizeNoTrades(t *testing.T) {
	s := Summarize(nil, d(5000), d(5000), nil)
	if s.WinRate != 0.0 || s.TotalTrades != 0 || !s.TotalPnL.IsZero() {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestFVGOnlyNeverTrades(t *testing.T) {
	bars := sampleSeries(60)
	res, err := Run(bars, cfg(2500, SignalFVG))
	if err != nil {
		t.Fatal(err)
	}
	fired := false
	for _, b := range Annotate(bars) {
		fired = fired || b.FVG
	}
	if !fired {
		t.Fatal("sample series should contain at least one fair value gap")
	}
	if len(res.Trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(res.Trades))
	}
	if len(res.Equity) != len(bars)-WarmupBars {
		t.Fatalf("equity curve length %d, want %d", len(res.Equity), len(bars)-WarmupBars)
	}
	for i, eq := range res.Equity {
		if !eq.Equal(d(2500)) {
			t.Fatalf("equity[%d] = %s, want flat 2500", i, eq)
		}
	}
	if res.Summary.WinRate != 0.0 {
		t.Fatalf("win rate %f", res.Summary.WinRate)
	}
}

func TestEquityIdentityAndWinRateBound(t *testing.T) {
	bars := sampleSeries(200)
	for _, c := range []RunConfig{
		cfg(10000, SignalBOS),
		cfg(10000, SignalLiquiditySweep, SignalBOS, SignalOrderBlock),
		cfg(10000, SignalLiquiditySweep, SignalBOS, SignalOrderBlock, SignalFVG),
		cfg(10000),
	} {
		res, err := Run(bars, c)
		if err != nil {
			t.Fatal(err)
		}
		total := c.StartingCapital
		for _, tr := range res.Trades {
			total = total.Add(tr.PnL)
		}
		if len(res.Equity) == 0 || !res.Equity[len(res.Equity)-1].Equal(total) {
			t.Fatalf("final equity %v != capital + sum(pnl) %s", res.Equity, total)
		}
		if res.Summary.WinRate < 0 || res.Summary.WinRate > 100 {
			t.Fatalf("win rate out of range: %f", res.Summary.WinRate)
		}
		if len(res.Series) != len(res.Equity) {
			t.Fatalf("series length %d, equity length %d", len(res.Series), len(res.Equity))
		}
		for i := range res.Series {
			if !res.Series[i].Equity.Equal(res.Equity[i]) || !res.Series[i].Date.Equal(bars[i+WarmupBars].Date) {
				t.Fatalf("series row %d not aligned with its equity value", i)
			}
		}
	}
}

func TestDeterminism(t *testing.T) {
	bars := sampleSeries(150)
	c := cfg(10000, SignalBOS)
	a, err := Run(bars, c)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Run(bars, c)
	if err != nil {
		t.Fatal(err)
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatal("identical inputs produced different results")
	}
}

func TestNoLookahead(t *testing.T) {
	bars := sampleSeries(80)
	base := Annotate(bars)
	rule := SelectRule(FilterSet{SignalBOS: true})
	for _, cut := range []int{5, 20, 40, 79} {
		changed := make([]Bar, len(bars))
		copy(changed, bars)
		for j := cut + 1; j < len(changed); j++ {
			changed[j] = bar(j, 999, 1500, 1, 999, 99999)
		}
		got := Annotate(changed)
		for i := 0; i <= cut; i++ {
			a, b := base[i], got[i]
			if a.LiquiditySweep != b.LiquiditySweep || a.BOSUp != b.BOSUp || a.BOSDown != b.BOSDown ||
				a.OrderBlock != b.OrderBlock || a.FVG != b.FVG {
				t.Fatalf("cut %d: flags at %d changed after editing later bars", cut, i)
			}
			da, oka := rule.Decide(a)
			db, okb := rule.Decide(b)
			if da != db || oka != okb {
				t.Fatalf("cut %d: decision at %d changed", cut, i)
			}
		}
	}
}

func TestWarmupBoundary(t *testing.T) {
	// bar 1 breaks structure against bar 0; bar 2 is an inside bar
	bars := []Bar{
		bar(0, 100, 101, 99, 100, 1000),
		bar(1, 110, 111, 109, 110, 1000),
		bar(2, 110, 111, 109, 110, 1000),
	}
	if !Annotate(bars)[1].BOSUp {
		t.Fatal("setup: expected BOSUp on bar 1")
	}
	res, err := Run(bars, cfg(1000, SignalBOS))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Equity) != 1 || len(res.Series) != 1 {
		t.Fatalf("exactly one bar should be processed, curve=%v", res.Equity)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("warm-up bars must not trade, got %+v", res.Trades)
	}
}

func TestShortSeriesIsDegenerateNotError(t *testing.T) {
	for n := 0; n < 3; n++ {
		res, err := Run(sampleSeries(n), cfg(1000, SignalBOS))
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if len(res.Trades) != 0 || len(res.Equity) != 0 || len(res.Series) != 0 {
			t.Fatalf("n=%d: expected empty result, got %+v", n, res)
		}
		if !res.Summary.TotalPnL.IsZero() || res.Summary.WinRate != 0 {
			t.Fatalf("n=%d: unexpected summary %+v", n, res.Summary)
		}
	}
}

func TestRunRejectsMalformedInput(t *testing.T) {
	good := closesToBars(100, 101, 102)

	unordered := closesToBars(100, 101, 102)
	unordered[2].Date = unordered[1].Date
	if _, err := Run(unordered, cfg(1000, SignalBOS)); !errors.Is(err, ErrUnorderedSeries) {
		t.Fatalf("expected ErrUnorderedSeries, got %v", err)
	}

	zero := closesToBars(100, 101, 102)
	zero[1].Low = decimal.Zero
	var verr *ValidationError
	if _, err := Run(zero, cfg(1000, SignalBOS)); !errors.Is(err, ErrNonPositivePrice) || !errors.As(err, &verr) || verr.Index != 1 {
		t.Fatalf("expected ErrNonPositivePrice at bar 1, got %v", err)
	}

	neg := closesToBars(100, 101, 102)
	neg[0].Volume = d(-1)
	if _, err := Run(neg, cfg(1000, SignalBOS)); !errors.Is(err, ErrNegativeVolume) {
		t.Fatalf("expected ErrNegativeVolume, got %v", err)
	}

	if _, err := Run(good, cfg(0, SignalBOS)); !errors.Is(err, ErrInvalidCapital) {
		t.Fatalf("expected ErrInvalidCapital, got %v", err)
	}

	bad := cfg(1000)
	bad.Filters["RSI"] = true
	if _, err := Run(good, bad); !errors.Is(err, ErrUnknownSignal) {
		t.Fatalf("expected ErrUnknownSignal, got %v", err)
	}
}

func TestReservedParametersPassThrough(t *testing.T) {
	bars := sampleSeries(40)
	plain := cfg(10000, SignalBOS)
	reserved := plain
	reserved.Filters = plain.Filters.Clone()
	reserved.RiskPerTradePct = 4.5
	reserved.MultiTakeProfit = true
	reserved.NewsFilter = true

	a, err := Run(bars, plain)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Run(bars, reserved)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Summary.TotalPnL.Equal(b.Summary.TotalPnL) || len(a.Trades) != len(b.Trades) {
		t.Fatal("reserved parameters changed the outcome")
	}
	if b.Config.RiskPerTradePct != 4.5 || !b.Config.MultiTakeProfit || !b.Config.NewsFilter {
		t.Fatalf("reserved parameters not carried into result: %+v", b.Config)
	}
}

func TestRunDoesNotAliasCallerFilters(t *testing.T) {
	c := cfg(1000, SignalBOS)
	res, err := Run(sampleSeries(10), c)
	if err != nil {
		t.Fatal(err)
	}
	c.Filters[SignalBOS] = false
	if !res.Config.Filters[SignalBOS] {
		t.Fatal("result config shares the caller's filter map")
	}
}
