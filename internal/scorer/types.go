// Package scorer implements the Score Fuser (C5): cross-symbol
// normalization, alignment, multi-timeframe consistency, and the final
// ranked boards, blending volume, flow, and trend quality into a single
// continuous [0,1] score per symbol and timeframe.
package scorer

import "github.com/yohannesjx/futures-predator/internal/metrics"

// SymbolData is one symbol's survivor record entering the fuser: its
// per-timeframe metric bundle plus whatever the Liquidity Probe found.
type SymbolData struct {
	Symbol           string
	LastPrice        float64
	Metrics          map[string]metrics.SymbolTimeframeMetric
	LiquidityPenalty float64
}

// Window marks a snapshot's observed time span.
type Window struct {
	Start int64
	End   int64
}

// MoversEntry is one ranked row in a gainers/losers board.
type MoversEntry struct {
	Symbol        string
	LastPrice     float64
	ChangePercent float64
	HasFlow       bool
	FlowPercent   float64
	FlowLabel     string
	Scores        metrics.SymbolTimeframeMetric
}

// MoversSnapshot is the per-timeframe gainers/losers board.
type MoversSnapshot struct {
	Timeframe  string
	TopGainers []MoversEntry
	TopLosers  []MoversEntry
	Changes    map[string]float64
	Window     Window
}

// AggregatedMoversEntry is one row of the cross-timeframe top list.
type AggregatedMoversEntry struct {
	Entry     MoversEntry
	Timeframe string
	Window    Window
	Changes   map[string]float64
	Metrics   metrics.SymbolTimeframeMetric
}

// Result is the full per-cycle output.
type Result struct {
	Snapshots     map[string]MoversSnapshot
	AggregatedTop []AggregatedMoversEntry
	Metrics       map[string]map[string]metrics.SymbolTimeframeMetric

	// LastPrices and LiquidityPenalties carry each survivor's raw inputs
	// forward (FinalScore already folds the penalty in, but the Strategy
	// Engine's entry gates and order-sizing need the raw values too).
	LastPrices         map[string]float64
	LiquidityPenalties map[string]float64
}
