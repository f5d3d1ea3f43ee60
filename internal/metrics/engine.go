package metrics

import "math"

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Compute derives every configured timeframe's metric bundle from a
// symbol's 1-minute candle buffer. candles must be ordered ascending by
// OpenTime and deduped by the caller (the exchange facade already does
// this). Timeframes without a matching reference candle, or whose window
// doesn't have the exact expected length, are omitted from the result
// (a data-insufficient skip, not an error).
func Compute(candles []Candle, prevHistory map[string]SymbolTimeframeMetric) map[string]SymbolTimeframeMetric {
	out := make(map[string]SymbolTimeframeMetric)
	if len(candles) == 0 {
		return out
	}

	latest := candles[len(candles)-1]
	indexByOpenTime := make(map[int64]int, len(candles))
	for i, c := range candles {
		indexByOpenTime[c.OpenTime] = i
	}

	for _, tf := range Timeframes {
		refOpenTime := latest.OpenTime - int64(tf.Minutes)*60_000
		refIdx, ok := indexByOpenTime[refOpenTime]
		if !ok {
			continue
		}

		window := candles[refIdx+1:]
		if len(window) != tf.Minutes {
			continue
		}

		m, ok := computeTimeframe(tf, candles[refIdx], window)
		if !ok {
			continue
		}

		if prev, ok := prevHistory[tf.Label]; ok {
			m.CloseHistory = pushCapped(prev.CloseHistory, m.LatestClose)
			m.EfficiencyHistory = pushCapped(prev.EfficiencyHistory, m.Efficiency)
			m.MomentumHistory = pushCapped(prev.MomentumHistory, m.MomentumAtr)
		} else {
			m.CloseHistory = []float64{m.LatestClose}
			m.EfficiencyHistory = []float64{m.Efficiency}
			m.MomentumHistory = []float64{m.MomentumAtr}
		}

		out[tf.Label] = m
	}

	return out
}

func computeTimeframe(tf Timeframe, reference Candle, window []Candle) (SymbolTimeframeMetric, bool) {
	first := window[0]
	last := window[len(window)-1]

	if first.Open <= 0 || last.Close <= 0 {
		return SymbolTimeframeMetric{}, false
	}

	netChange := (last.Close - first.Open) / first.Open

	logReturnSum, logReturnAbsSum := 0.0, 0.0
	incSum := 0.0
	for _, c := range window {
		if c.Open <= 0 || c.Close <= 0 {
			return SymbolTimeframeMetric{}, false
		}
		lr := math.Log(c.Close / c.Open)
		logReturnSum += lr
		logReturnAbsSum += math.Abs(lr)
		incSum += (c.Close - c.Open) / c.Open
	}

	efficiency := 0.0
	if logReturnAbsSum > 0 {
		efficiency = clamp(math.Abs(logReturnSum)/logReturnAbsSum, 0, 1)
	}

	waste := incSum - netChange
	if waste < 0 {
		waste = 0
	}
	chop := 0.0
	if denom := waste + math.Abs(netChange); denom > 1e-12 {
		chop = clamp(waste/denom, 0, 1)
	}

	atrValue := averageTrueRange(reference, window)
	atrPct := 0.0
	if last.Close > 0 {
		atrPct = atrValue / last.Close
	}

	momentumAtr := 0.0
	if atrPct > 0 {
		momentumAtr = clamp(math.Abs(netChange)/(2*atrPct), 0, 1)
	}

	smallMoveGate := clamp(math.Abs(netChange)/(3*0.01), 0, 1)

	quoteSum, takerSum := 0.0, 0.0
	for _, c := range window {
		quoteSum += c.QuoteVolume
		takerSum += c.TakerBuyQuoteVolume
	}

	m := SymbolTimeframeMetric{
		Timeframe:        tf.Label,
		NetChange:        netChange,
		ChangePercent:    netChange * 100,
		Efficiency:       efficiency,
		Chop:             chop,
		MomentumAtr:      momentumAtr,
		SmallMoveGate:    smallMoveGate,
		AtrValue:         atrValue,
		TotalQuoteVolume: quoteSum,
		LatestClose:      last.Close,
	}

	m.HighestClose, m.LowestClose = last.Close, last.Close
	for _, c := range window {
		if c.Close > m.HighestClose {
			m.HighestClose = c.Close
		}
		if c.Close < m.LowestClose {
			m.LowestClose = c.Close
		}
	}

	if quoteSum > 0 {
		m.HasFlow = true
		m.FlowRatio = takerSum / quoteSum
		switch {
		case m.FlowRatio >= 0.62:
			m.FlowLabel = "buy-strong"
		case m.FlowRatio <= 0.38:
			m.FlowLabel = "sell-strong"
		default:
			m.FlowLabel = "balanced"
		}
		m.FlowImmediateBase = (math.Tanh((m.FlowRatio-0.5)/0.2) + 1) / 2
	} else {
		m.FlowImmediateBase = 0.5
	}

	m.FlowPersistence = flowPersistence(reference, window)

	return m, true
}

// averageTrueRange is the mean true range over window, using reference.Close
// as the "previous close" for window[0].
func averageTrueRange(reference Candle, window []Candle) float64 {
	prevClose := reference.Close
	sum := 0.0
	for _, c := range window {
		tr1 := c.High - c.Low
		tr2 := math.Abs(c.High - prevClose)
		tr3 := math.Abs(c.Low - prevClose)
		tr := math.Max(tr1, math.Max(tr2, tr3))
		sum += tr
		prevClose = c.Close
	}
	return sum / float64(len(window))
}

// flowPersistence correlates the per-minute order-flow signal with
// per-minute returns.
func flowPersistence(reference Candle, window []Candle) float64 {
	n := len(window)
	flows := make([]float64, n)
	returns := make([]float64, n)

	prevClose := reference.Close
	for i, c := range window {
		flow := 0.5
		if c.QuoteVolume > 0 {
			flow = c.TakerBuyQuoteVolume / c.QuoteVolume
		}
		flows[i] = flow - 0.5

		ret := 0.0
		if prevClose > 0 {
			ret = (c.Close - prevClose) / prevClose
		}
		returns[i] = ret
		prevClose = c.Close
	}

	zFlows := zscore(flows)
	zReturns := zscore(returns)

	product := 0.0
	for i := range zFlows {
		product += zFlows[i] * zReturns[i]
	}
	corr := clamp(product/float64(n), -1, 1)

	agree, compared := 0, 0
	for i := range flows {
		if flows[i] == 0 || returns[i] == 0 {
			continue
		}
		compared++
		if sign(flows[i]) == sign(returns[i]) {
			agree++
		}
	}
	agreeRatio := 0.0
	if compared > 0 {
		agreeRatio = float64(agree) / float64(compared)
	}

	return clamp(((corr+1)/2)*agreeRatio, 0, 1)
}

func zscore(values []float64) []float64 {
	n := float64(len(values))
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= n

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= n
	std := math.Sqrt(variance)
	if std < 1e-12 {
		return make([]float64, len(values))
	}

	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
