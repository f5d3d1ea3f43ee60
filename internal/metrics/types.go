// Package metrics derives per-symbol, per-timeframe movement-quality
// metrics — efficiency, chop, momentum-ATR, and flow — from a shared 24h
// 1-minute candle buffer.
package metrics

// Candle mirrors exchange.Candle; kept as its own type so this package has
// no dependency on the exchange wire client.
type Candle struct {
	OpenTime            int64
	Open                float64
	High                float64
	Low                 float64
	Close               float64
	Volume              float64
	QuoteVolume         float64
	TakerBuyQuoteVolume float64
}

const HistoryCap = 240

// Timeframe names one of the four configured windows.
type Timeframe struct {
	Minutes int
	Label   string
}

// Timeframes is the fixed set every symbol is scored across.
var Timeframes = []Timeframe{
	{Minutes: 10, Label: "10m"},
	{Minutes: 30, Label: "30m"},
	{Minutes: 60, Label: "1h"},
	{Minutes: 120, Label: "2h"},
}

// SymbolTimeframeMetric is the per-(symbol,timeframe) metric bundle.
// Cross-timeframe and cross-symbol fields (Align, MtfConsistency,
// VolumeBoost, ActiveFlow, CoreScore, ConfirmScore, FinalScore) are filled
// in by the Score Fuser, not this package; FlowPersistence is computed here.
type SymbolTimeframeMetric struct {
	Timeframe string

	NetChange     float64
	ChangePercent float64
	Efficiency    float64
	Chop          float64
	MomentumAtr   float64
	SmallMoveGate float64
	AtrValue      float64

	TotalQuoteVolume float64

	HasFlow  bool
	FlowRatio float64
	FlowLabel string

	FlowImmediateBase float64
	FlowPersistence   float64

	Align           float64
	MtfConsistency  float64
	VolumeBoost     float64
	ActiveFlow      float64

	CoreScore    float64
	ConfirmScore float64
	FinalScore   float64

	LatestClose  float64
	HighestClose float64
	LowestClose  float64

	CloseHistory      []float64
	EfficiencyHistory []float64
	MomentumHistory   []float64
}

// pushCapped appends v to hist, keeping at most HistoryCap entries (drops
// from the front — oldest first).
func pushCapped(hist []float64, v float64) []float64 {
	hist = append(hist, v)
	if len(hist) > HistoryCap {
		hist = hist[len(hist)-HistoryCap:]
	}
	return hist
}
