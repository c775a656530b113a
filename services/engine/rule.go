package engine

import "fmt"

// RuleKind identifies the entry rule chosen for a run
type RuleKind int

const (
	// RuleNone never enters. Selected for every filter combination other than
	// the two below, including FVG-only and OB-only.
	RuleNone RuleKind = iota
	// RuleConfluence needs sweep, structure break and order block together.
	RuleConfluence
	// RuleBreakOfStructure trades the structure break alone.
	RuleBreakOfStructure
)

func (k RuleKind) String() string {
	switch k {
	case RuleConfluence:
		return "confluence"
	case RuleBreakOfStructure:
		return "break_of_structure"
	default:
		return "none"
	}
}

func (k RuleKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *RuleKind) UnmarshalText(b []byte) error {
	for _, kind := range []RuleKind{RuleNone, RuleConfluence, RuleBreakOfStructure} {
		if kind.String() == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown rule %q", string(b))
}

// DecisionRule decides entries bar by bar. It is fixed for the whole run.
type DecisionRule struct {
	Kind RuleKind
}

// SelectRule picks the rule once from the enabled filters.
func SelectRule(f FilterSet) DecisionRule {
	switch {
	case f.Enabled(SignalLiquiditySweep, SignalBOS, SignalOrderBlock):
		return DecisionRule{Kind: RuleConfluence}
	case f.Enabled(SignalBOS):
		return DecisionRule{Kind: RuleBreakOfStructure}
	default:
		return DecisionRule{Kind: RuleNone}
	}
}

// Decide returns the entry direction for a bar, if any. Long wins when both
// sides qualify.
func (r DecisionRule) Decide(b AnnotatedBar) (Direction, bool) {
	switch r.Kind {
	case RuleConfluence:
		if b.LiquiditySweep && b.BOSUp && b.OrderBlock {
			return Long, true
		}
		if b.LiquiditySweep && b.BOSDown && b.OrderBlock {
			return Short, true
		}
	case RuleBreakOfStructure:
		if b.BOSUp {
			return Long, true
		}
		if b.BOSDown {
			return Short, true
		}
	}
	return Long, false
}
