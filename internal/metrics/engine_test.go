package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildPureTrend builds a reference candle plus `minutes` candles that each
// close 0.1% above their open, with no retrace and no wicks — scenario S2.
func buildPureTrend(minutes int) []Candle {
	const step int64 = 60_000
	price := 100.0
	candles := make([]Candle, 0, minutes+1)

	refTime := int64(0)
	candles = append(candles, Candle{OpenTime: refTime, Open: price, High: price, Low: price, Close: price, QuoteVolume: 1000, TakerBuyQuoteVolume: 500})

	for i := 1; i <= minutes; i++ {
		open := price
		close := open * 1.001
		candles = append(candles, Candle{
			OpenTime:            refTime + int64(i)*step,
			Open:                open,
			High:                close,
			Low:                 open,
			Close:               close,
			Volume:              10,
			QuoteVolume:         1000,
			TakerBuyQuoteVolume: 500,
		})
		price = close
	}
	return candles
}

func TestCompute_PureTrendMaximizesEfficiency(t *testing.T) {
	candles := buildPureTrend(60)
	out := Compute(candles, nil)

	m, ok := out["1h"]
	require.True(t, ok)
	require.InDelta(t, 1.0, m.Efficiency, 1e-9)
	require.InDelta(t, 0.0, m.Chop, 1e-9)
	require.InDelta(t, 0.0616, m.NetChange, 0.002)
	require.InDelta(t, 1.0, m.SmallMoveGate, 1e-9)
	require.InDelta(t, 1.0, m.MomentumAtr, 1e-9)
}

func TestCompute_MissingReferenceCandleIsSkipped(t *testing.T) {
	candles := buildPureTrend(30) // no 60m or 120m reference exists
	out := Compute(candles, nil)

	_, has1h := out["1h"]
	require.False(t, has1h)
	_, has30m := out["30m"]
	require.True(t, has30m)
}

func TestCompute_EfficiencyZeroWhenReturnsCancel(t *testing.T) {
	const step int64 = 60_000
	candles := []Candle{
		{OpenTime: 0, Open: 100, High: 100, Low: 100, Close: 100, QuoteVolume: 1, TakerBuyQuoteVolume: 0.5},
	}
	price := 100.0
	for i := 1; i <= 10; i++ {
		open := price
		var close float64
		if i%2 == 1 {
			close = open * 1.01
		} else {
			close = open / 1.01
		}
		candles = append(candles, Candle{OpenTime: int64(i) * step, Open: open, High: math.Max(open, close), Low: math.Min(open, close), Close: close, QuoteVolume: 1, TakerBuyQuoteVolume: 0.5})
		price = close
	}

	out := Compute(candles, nil)
	m, ok := out["10m"]
	require.True(t, ok)
	require.InDelta(t, 0.0, m.Efficiency, 1e-6)
}

func TestCompute_BuyFlowLabel(t *testing.T) {
	const step int64 = 60_000
	candles := []Candle{{OpenTime: 0, Open: 100, High: 100, Low: 100, Close: 100, QuoteVolume: 1000, TakerBuyQuoteVolume: 700}}
	price := 100.0
	for i := 1; i <= 10; i++ {
		open := price
		close := open * 1.0005
		candles = append(candles, Candle{
			OpenTime: int64(i) * step, Open: open, High: close, Low: open, Close: close,
			QuoteVolume: 1000, TakerBuyQuoteVolume: 700,
		})
		price = close
	}

	out := Compute(candles, nil)
	m, ok := out["10m"]
	require.True(t, ok)
	require.InDelta(t, 0.7, m.FlowRatio, 1e-9)
	require.Equal(t, "buy-strong", m.FlowLabel)
	require.InDelta(t, 70.0, m.FlowRatio*100, 1e-9)
}

func TestCompute_HistoryCapped(t *testing.T) {
	candles := buildPureTrend(10)
	prev := map[string]SymbolTimeframeMetric{
		"10m": {CloseHistory: make([]float64, HistoryCap), EfficiencyHistory: make([]float64, HistoryCap), MomentumHistory: make([]float64, HistoryCap)},
	}
	out := Compute(candles, prev)
	m := out["10m"]
	require.Len(t, m.CloseHistory, HistoryCap)
	require.Len(t, m.EfficiencyHistory, HistoryCap)
}
