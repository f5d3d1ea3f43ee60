package strategy

import "github.com/yohannesjx/futures-predator/internal/metrics"

type framework struct {
	parentLabel string
	childLabel  string
	parent      frameworkScores
	child       frameworkScores
}

// selectFramework picks the parent/child timeframe pair.
func selectFramework(byTf map[string]metrics.SymbolTimeframeMetric) (framework, bool) {
	h1, hasH1 := byTf["1h"]
	m30, has30 := byTf["30m"]
	m10, has10 := byTf["10m"]

	if hasH1 && has30 {
		h1Scores := scoresFor(h1)
		if h1Scores.trend >= 70 && h1Scores.efficiency >= 55 {
			return framework{parentLabel: "1h", childLabel: "30m", parent: h1Scores, child: scoresFor(m30)}, true
		}
	}
	if has30 && has10 {
		return framework{parentLabel: "30m", childLabel: "10m", parent: scoresFor(m30), child: scoresFor(m10)}, true
	}
	if hasH1 && has30 {
		return framework{parentLabel: "1h", childLabel: "30m", parent: scoresFor(h1), child: scoresFor(m30)}, true
	}
	return framework{}, false
}

// direction derives LONG/SHORT/none from the parent framework scores.
func (f framework) direction() (Direction, bool) {
	if f.parent.trend >= 65 && f.parent.align >= 60 && f.parent.netChange >= 0 {
		return Long, true
	}
	if f.parent.trend <= -65 && f.parent.align >= 60 && f.parent.netChange <= 0 {
		return Short, true
	}
	return "", false
}

// trigger is the child-timeframe confirmation gate.
func (f framework) trigger(dir Direction) bool {
	momentumSignConsistent := (dir == Long && f.child.netChange >= 0) || (dir == Short && f.child.netChange <= 0)
	if f.child.smallMoveGate >= 0.65 && f.child.momentumAtr >= 0.5 && momentumSignConsistent {
		return true
	}
	if f.child.efficiency >= 55 && (f.child.volume >= 55 || f.child.flow >= 55) {
		return true
	}
	return false
}

// entryGates records every must-pass entry gate, the child trigger
// included; pass reports whether all of them hold.
type entryGates struct {
	notManaged           bool
	canOpenPosition      bool
	parentEfficiencyOK   bool
	parentAlignOK        bool
	liquidityOK          bool
	triggerOK            bool
}

func (g entryGates) pass() bool {
	return g.notManaged && g.canOpenPosition && g.parentEfficiencyOK && g.parentAlignOK && g.liquidityOK && g.triggerOK
}

func evaluateGates(f framework, dir Direction, liquidityPenalty float64, notManaged, canOpen bool) entryGates {
	return entryGates{
		notManaged:         notManaged,
		canOpenPosition:    canOpen,
		parentEfficiencyOK: f.parent.efficiency >= 45,
		parentAlignOK:      f.parent.align >= 50,
		liquidityOK:        liquidityPenalty*100 < 40,
		triggerOK:          f.trigger(dir),
	}
}

// cleanScore (`cleanP`) measures how clean the parent trend is.
func (f framework) cleanScore() float64 {
	return (abs(f.parent.trend) + f.parent.efficiency + f.parent.align) / 300
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// kSl computes the initial stop multiple, clamped [1.2, 2.8].
func kSl(cleanP, gateC float64) float64 {
	return clampF(1.2+0.9*cleanP+0.3*gateC, 1.2, 2.8)
}

// trailMultiple computes the trailing ATR multiple, clamped [1.6, 3.2].
func trailMultiple(cleanP, gateC float64) float64 {
	return clampF(2.0+1.2*cleanP-0.6*(1-gateC), 1.6, 3.2)
}

func sizeScale(liquidityPenalty float64) float64 {
	liqPenPct := liquidityPenalty * 100
	f := (100 - liqPenPct) / 100
	return clampF(f*f, 0.2, 1.0)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
