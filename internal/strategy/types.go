// Package strategy implements the Strategy Engine (C9): candidate gating,
// the managed-position state machine, and partials/adds/trailing/time/
// structure-break logic over an R-multiple, ATR-scaled position lifecycle.
package strategy

import (
	"time"

	"github.com/yohannesjx/futures-predator/internal/metrics"
)

// Direction is a managed position's side.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

func (d Direction) sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

func (d Direction) opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// Candidate is one symbol's per-cycle metric bundle, the Strategy Engine's
// input alongside last price.
type Candidate struct {
	Symbol    string
	LastPrice float64
	Metrics   map[string]metrics.SymbolTimeframeMetric // keyed by timeframe label
	LiquidityPenalty float64 // [0,1]
}

// frameworkScores is the {trend, efficiency, align, volume, flow} bundle
// derived per timeframe.
type frameworkScores struct {
	trend      float64
	efficiency float64
	align      float64
	volume     float64
	flow       float64
	netChange  float64
	smallMoveGate float64
	momentumAtr   float64
	atrValue      float64
}

func scoresFor(m metrics.SymbolTimeframeMetric) frameworkScores {
	signedTrend := (1 - m.Chop) * 100 * sign(m.NetChange)
	flowBoost := m.ActiveFlow
	if flowBoost == 0 {
		flowBoost = m.FlowImmediateBase
	}
	return frameworkScores{
		trend:         signedTrend,
		efficiency:    m.Efficiency * 100,
		align:         m.Align * 100,
		volume:        m.VolumeBoost * 100,
		flow:          flowBoost * 100,
		netChange:     m.NetChange,
		smallMoveGate: m.SmallMoveGate,
		momentumAtr:   m.MomentumAtr,
		atrValue:      m.AtrValue,
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// ManagedPositionState is the Strategy Engine's owned record for one open
// position.
type ManagedPositionState struct {
	Symbol         string
	Direction      Direction
	ParentTimeframe string
	ChildTimeframe  string

	EntryPrice       float64
	BaseQuantity     float64
	TotalQuantity    float64
	KSl              float64
	InitialSlDistance float64
	SlDistance       float64
	StopPrice        float64
	TrailAtrMultiple float64

	CleanScore float64
	GateScore  float64

	OpenedAt time.Time
	AddCount int

	BeMoved bool

	HighestObserved float64
	LowestObserved  float64
	TrailPrice      float64

	PartialOneTaken bool
	PartialTwoTaken bool

	TimeStopStage     int
	TimeStopTimestamp time.Time

	StructureBreakCounter int

	ParentAtr     float64
	ChildAtr      float64
	ParentMinutes int
	ChildMinutes  int

	ChildVolumeScore     float64
	ChildFlowScore       float64
	ChildEfficiencyScore float64

	RiskAmount float64
	MaxR       float64

	LastPrice float64

	childEfficiencyHistory []float64
	childMomentumHistory   []float64
	childCloseHistory      []float64
}

func minuteFor(label string) int {
	switch label {
	case "10m":
		return 10
	case "30m":
		return 30
	case "1h":
		return 60
	case "2h":
		return 120
	}
	return 0
}
