package scorer

import (
	"math"
	"sort"

	"github.com/yohannesjx/futures-predator/internal/metrics"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sigmoid(v float64) float64 { return 1 / (1 + math.Exp(-v)) }

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

var mtfWeights = map[string]float64{"10m": 1, "30m": 1, "1h": 1.5, "2h": 1.5}

// Fuse runs the full C5 pipeline over one cycle's surviving symbols and
// window bounds per timeframe, producing the ranked boards and aggregated
// top list.
func Fuse(symbols []SymbolData, windows map[string]Window) Result {
	volStats := computeVolumeStats(symbols)

	finalized := make(map[string]map[string]metrics.SymbolTimeframeMetric, len(symbols))
	for _, s := range symbols {
		finalized[s.Symbol] = fuseSymbol(s)
	}
	applyVolumeNormalization(finalized, volStats)
	recomputeScores(finalized)

	snapshots := make(map[string]MoversSnapshot, len(metrics.Timeframes))
	for _, tf := range metrics.Timeframes {
		snapshots[tf.Label] = buildSnapshot(tf.Label, symbols, finalized, windows[tf.Label])
	}

	aggregated := buildAggregatedTop(symbols, finalized, windows)

	lastPrices := make(map[string]float64, len(symbols))
	liquidityPenalties := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		lastPrices[s.Symbol] = s.LastPrice
		liquidityPenalties[s.Symbol] = s.LiquidityPenalty
	}

	return Result{
		Snapshots:          snapshots,
		AggregatedTop:      aggregated,
		Metrics:            finalized,
		LastPrices:         lastPrices,
		LiquidityPenalties: liquidityPenalties,
	}
}

// fuseSymbol copies a symbol's per-timeframe metrics (without the
// cross-symbol-dependent fields, filled in later) so later passes can
// mutate a private copy instead of the caller's SymbolData.
func fuseSymbol(s SymbolData) map[string]metrics.SymbolTimeframeMetric {
	out := make(map[string]metrics.SymbolTimeframeMetric, len(s.Metrics))
	for label, m := range s.Metrics {
		out[label] = m
	}
	computeAlignment(out)
	computeMtfConsistency(out)
	return out
}

// computeAlignment fills Align for every timeframe of one symbol using the
// other timeframes' net-change signs.
func computeAlignment(byTf map[string]metrics.SymbolTimeframeMetric) {
	for label, m := range byTf {
		base := sign(m.NetChange)
		sum, n := 0.0, 0.0
		for otherLabel, other := range byTf {
			if otherLabel == label {
				continue
			}
			otherSign := sign(other.NetChange)
			if otherSign == 0 {
				continue
			}
			n++
			if otherSign == base {
				sum += 1
			} else {
				sum -= 0.5
			}
		}
		align := 0.5
		if n > 0 {
			align = clamp((sum+0.5*n)/(1.5*n), 0, 1)
		}
		m.Align = align
		byTf[label] = m
	}
}

// computeMtfConsistency fills MtfConsistency: weighted sign-agreement
// across the OTHER timeframes, times their mean momentum, both clamped
// and multiplied.
func computeMtfConsistency(byTf map[string]metrics.SymbolTimeframeMetric) {
	for label, m := range byTf {
		base := sign(m.NetChange)

		weightSum, agreementSum, momentumSum := 0.0, 0.0, 0.0
		n := 0
		for otherLabel, other := range byTf {
			if otherLabel == label {
				continue
			}
			w := mtfWeights[otherLabel]
			if w == 0 {
				w = 1
			}
			weightSum += w
			if sign(other.NetChange) == base && base != 0 {
				agreementSum += w
			}
			momentumSum += other.MomentumAtr
			n++
		}

		consistency := 0.0
		if n > 0 && weightSum > 0 {
			weightedAgreement := clamp(agreementSum/weightSum, 0, 1)
			meanMomentum := clamp(momentumSum/float64(n), 0, 1)
			consistency = weightedAgreement * meanMomentum
		}
		m.MtfConsistency = consistency
		byTf[label] = m
	}
}

type volumeStat struct {
	mean float64
	std  float64
}

// computeVolumeStats computes per-timeframe mean/std of TotalQuoteVolume
// across all symbols (std floor 1e-9 treated as 1 to avoid a divide blowup).
func computeVolumeStats(symbols []SymbolData) map[string]volumeStat {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, s := range symbols {
		for label, m := range s.Metrics {
			sums[label] += m.TotalQuoteVolume
			counts[label]++
		}
	}

	means := map[string]float64{}
	for label, sum := range sums {
		means[label] = sum / float64(counts[label])
	}

	variances := map[string]float64{}
	for _, s := range symbols {
		for label, m := range s.Metrics {
			d := m.TotalQuoteVolume - means[label]
			variances[label] += d * d
		}
	}

	out := make(map[string]volumeStat, len(means))
	for label, mean := range means {
		n := counts[label]
		variance := 0.0
		if n > 1 {
			variance = variances[label] / float64(n-1)
		}
		std := math.Sqrt(variance)
		if std < 1e-9 {
			std = 1
		}
		out[label] = volumeStat{mean: mean, std: std}
	}
	return out
}

// applyVolumeNormalization fills VolumeBoost and ActiveFlow from the
// per-timeframe volume z-score.
func applyVolumeNormalization(byTf map[string]map[string]metrics.SymbolTimeframeMetric, stats map[string]volumeStat) {
	for _, symbolMetrics := range byTf {
		for label, m := range symbolMetrics {
			st := stats[label]
			volZ := clamp((m.TotalQuoteVolume-st.mean)/st.std, -3, 3)
			m.VolumeBoost = sigmoid(volZ)
			gVol := clamp(volZ/3, 0, 1)
			m.ActiveFlow = clamp(m.FlowImmediateBase*gVol, 0, 1)
			symbolMetrics[label] = m
		}
	}
}

func weightedAvg(pairs [][2]float64) float64 {
	sumVal, sumWeight := 0.0, 0.0
	for _, p := range pairs {
		sumVal += p[0] * p[1]
		sumWeight += p[1]
	}
	if sumWeight == 0 {
		return 0
	}
	return sumVal / sumWeight
}

// recomputeScores fills CoreScore and ConfirmScore from the weighted blend
// of trend, flow, and volume signals; FinalScore is folded in afterward
// once the per-symbol liquidity penalty is known.
func recomputeScores(byTf map[string]map[string]metrics.SymbolTimeframeMetric) {
	for _, symbolMetrics := range byTf {
		for label, m := range symbolMetrics {
			core := m.SmallMoveGate * weightedAvg([][2]float64{
				{m.Efficiency, 1},
				{1 - m.Chop, 1},
				{m.MomentumAtr, 1},
				{m.Align, 1},
				{m.MtfConsistency, 0.8},
			})
			confirm := weightedAvg([][2]float64{
				{m.VolumeBoost, 0.5},
				{m.ActiveFlow, 0.3},
				{m.FlowPersistence, 0.2},
			})

			m.CoreScore = core
			m.ConfirmScore = confirm
			symbolMetrics[label] = m
		}
	}
}

// applyFinalScore folds in the symbol's liquidity penalty (done after
// recomputeScores, for each of the symbol's timeframes; the same
// per-symbol penalty is subtracted from every timeframe's score).
func applyFinalScore(m metrics.SymbolTimeframeMetric, liquidityPenalty float64) metrics.SymbolTimeframeMetric {
	m.FinalScore = clamp(0.67*m.CoreScore+0.33*m.ConfirmScore-liquidityPenalty, 0, 1)
	return m
}

func buildSnapshot(label string, symbols []SymbolData, finalized map[string]map[string]metrics.SymbolTimeframeMetric, window Window) MoversSnapshot {
	entries := make([]MoversEntry, 0, len(symbols))
	changes := make(map[string]float64, len(symbols))

	for _, s := range symbols {
		m, ok := finalized[s.Symbol][label]
		if !ok {
			continue
		}
		m = applyFinalScore(m, s.LiquidityPenalty)
		finalized[s.Symbol][label] = m

		changes[s.Symbol] = m.ChangePercent
		entry := MoversEntry{
			Symbol:        s.Symbol,
			LastPrice:     s.LastPrice,
			ChangePercent: m.ChangePercent,
			HasFlow:       m.HasFlow,
			FlowPercent:   m.FlowRatio * 100,
			FlowLabel:     m.FlowLabel,
			Scores:        m,
		}
		entries = append(entries, entry)
	}

	gainers := append([]MoversEntry(nil), entries...)
	sort.Slice(gainers, func(i, j int) bool { return gainers[i].ChangePercent > gainers[j].ChangePercent })
	if len(gainers) > 10 {
		gainers = gainers[:10]
	}

	losers := append([]MoversEntry(nil), entries...)
	sort.Slice(losers, func(i, j int) bool { return losers[i].ChangePercent < losers[j].ChangePercent })
	if len(losers) > 10 {
		losers = losers[:10]
	}

	return MoversSnapshot{
		Timeframe:  label,
		TopGainers: gainers,
		TopLosers:  losers,
		Changes:    changes,
		Window:     window,
	}
}

// buildAggregatedTop picks the single highest-FinalScore timeframe per
// symbol, then the top 20 of those across all symbols.
func buildAggregatedTop(symbols []SymbolData, finalized map[string]map[string]metrics.SymbolTimeframeMetric, windows map[string]Window) []AggregatedMoversEntry {
	bySymbol := make(map[string]SymbolData, len(symbols))
	for _, s := range symbols {
		bySymbol[s.Symbol] = s
	}

	candidates := make([]AggregatedMoversEntry, 0, len(symbols))
	for symbol, byTf := range finalized {
		var bestLabel string
		var best metrics.SymbolTimeframeMetric
		found := false
		for label, m := range byTf {
			if !found || m.FinalScore > best.FinalScore {
				bestLabel, best, found = label, m, true
			}
		}
		if !found {
			continue
		}

		s := bySymbol[symbol]
		candidates = append(candidates, AggregatedMoversEntry{
			Entry: MoversEntry{
				Symbol:        symbol,
				LastPrice:     s.LastPrice,
				ChangePercent: best.ChangePercent,
				HasFlow:       best.HasFlow,
				FlowPercent:   best.FlowRatio * 100,
				FlowLabel:     best.FlowLabel,
				Scores:        best,
			},
			Timeframe: bestLabel,
			Window:    windows[bestLabel],
			Metrics:   best,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Metrics.FinalScore > candidates[j].Metrics.FinalScore
	})
	if len(candidates) > 20 {
		candidates = candidates[:20]
	}
	return candidates
}
