package engine

import "testing"

func TestSelectRule(t *testing.T) {
	cases := []struct {
		name    string
		filters FilterSet
		want    RuleKind
	}{
		{"empty", FilterSet{}, RuleNone},
		{"nil", nil, RuleNone},
		{"bos only", FilterSet{SignalBOS: true}, RuleBreakOfStructure},
		{"bos explicit false others", FilterSet{SignalBOS: true, SignalFVG: false, SignalOrderBlock: false}, RuleBreakOfStructure},
		{"sweep+bos", FilterSet{SignalLiquiditySweep: true, SignalBOS: true}, RuleBreakOfStructure},
		{"bos+ob", FilterSet{SignalBOS: true, SignalOrderBlock: true}, RuleBreakOfStructure},
		{"all three", FilterSet{SignalLiquiditySweep: true, SignalBOS: true, SignalOrderBlock: true}, RuleConfluence},
		{"all four", FilterSet{SignalLiquiditySweep: true, SignalBOS: true, SignalOrderBlock: true, SignalFVG: true}, RuleConfluence},
		{"fvg only", FilterSet{SignalFVG: true}, RuleNone},
		{"ob only", FilterSet{SignalOrderBlock: true}, RuleNone},
		{"sweep+ob", FilterSet{SignalLiquiditySweep: true, SignalOrderBlock: true}, RuleNone},
		{"bos disabled", FilterSet{SignalBOS: false, SignalLiquiditySweep: true}, RuleNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SelectRule(tc.filters).Kind; got != tc.want {
				t.Fatalf("SelectRule = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDecideLongWinsOverShort(t *testing.T) {
	both := AnnotatedBar{LiquiditySweep: true, BOSUp: true, BOSDown: true, OrderBlock: true}
	for _, kind := range []RuleKind{RuleConfluence, RuleBreakOfStructure} {
		dir, ok := DecisionRule{Kind: kind}.Decide(both)
		if !ok || dir != Long {
			t.Fatalf("%s: expected Long, got %s ok=%v", kind, dir, ok)
		}
	}
	if _, ok := (DecisionRule{Kind: RuleNone}).Decide(both); ok {
		t.Fatal("RuleNone must never enter")
	}
}

func TestDecideConfluenceNeedsAllThree(t *testing.T) {
	r := DecisionRule{Kind: RuleConfluence}
	if _, ok := r.Decide(AnnotatedBar{BOSUp: true, OrderBlock: true}); ok {
		t.Fatal("missing sweep must not enter")
	}
	if _, ok := r.Decide(AnnotatedBar{LiquiditySweep: true, BOSUp: true}); ok {
		t.Fatal("missing order block must not enter")
	}
	dir, ok := r.Decide(AnnotatedBar{LiquiditySweep: true, BOSDown: true, OrderBlock: true})
	if !ok || dir != Short {
		t.Fatalf("expected Short, got %s ok=%v", dir, ok)
	}
}

func TestConfluenceScenario(t *testing.T) {
	bars := []Bar{
		bar(0, 100, 101, 99, 100, 1000),
		bar(1, 100, 101, 99, 100, 1000),
		bar(2, 100, 101, 99, 100, 1000),
		bar(3, 101, 104, 100, 103, 1000),  // structure break up
		bar(4, 103, 110, 99.5, 108, 5000), // sweep + break + volume spike
		bar(5, 106, 106, 104, 105, 1000),
	}
	an := Annotate(bars)
	if !an[4].LiquiditySweep || !an[4].BOSUp || !an[4].OrderBlock {
		t.Fatalf("setup: bar 4 flags %+v", an[4])
	}
	res, err := Run(bars, cfg(10000, SignalLiquiditySweep, SignalBOS, SignalOrderBlock))
	if err != nil {
		t.Fatal(err)
	}
	if res.Rule != RuleConfluence {
		t.Fatalf("rule %s", res.Rule)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected one trade, got %+v", res.Trades)
	}
	tr := res.Trades[0]
	if tr.Direction != Long || !tr.Date.Equal(bars[4].Date) || !tr.PnL.Equal(d(-3)) {
		t.Fatalf("unexpected trade %+v", tr)
	}
	if res.Summary.WinRate != 0 || res.Summary.Losses != 1 {
		t.Fatalf("unexpected summary %+v", res.Summary)
	}
}

func TestOrderBlockNeedsPriorBreakAndVolume(t *testing.T) {
	bars := []Bar{
		bar(0, 100, 101, 99, 100, 1000),
		bar(1, 100, 101, 99, 100, 1000),
		bar(2, 100, 101, 99, 100, 1000),
		bar(3, 101, 104, 100, 103, 1000), // break up
		bar(4, 103, 104, 102, 103, 1000), // volume equals the mean
		bar(5, 103, 104, 102, 103, 9000), // no break on bar 4
	}
	an := Annotate(bars)
	for i := 0; i < 4; i++ {
		if an[i].OrderBlock {
			t.Fatalf("order block at %d inside the volume window warm-up", i)
		}
	}
	if an[4].OrderBlock {
		t.Fatal("volume equal to the mean is not above it")
	}
	if an[5].OrderBlock {
		t.Fatal("bar 4 had no structure break")
	}

	bars[4].Volume = d(1001)
	if !Annotate(bars)[4].OrderBlock {
		t.Fatal("expected order block once volume exceeds the trailing mean")
	}
}

func TestAnnotateEdges(t *testing.T) {
	bars := []Bar{
		bar(0, 100, 101, 99, 100, 1000),
		bar(1, 90, 110, 80, 90, 1000), // engulfs bar 0
		bar(2, 130, 135, 120, 130, 1000),
	}
	an := Annotate(bars)
	if an[0] != (AnnotatedBar{Bar: bars[0]}) {
		t.Fatalf("first bar must carry no flags: %+v", an[0])
	}
	if !an[1].LiquiditySweep {
		t.Fatal("expected sweep on bar 1")
	}
	if an[1].FVG {
		t.Fatal("fvg needs two prior bars")
	}
	if !an[2].FVG {
		t.Fatal("bar 2 low 120 above bar 0 high 101 is a gap")
	}
	if !an[2].BOSUp || an[2].BOSDown {
		t.Fatalf("bar 2 structure flags %+v", an[2])
	}
}
