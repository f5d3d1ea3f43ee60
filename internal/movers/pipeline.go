// Package movers implements the Movers Pipeline (C7): it orchestrates the
// Universe Selector, Exchange Facade, Metric Engine, Liquidity Probe, and
// Score Fuser once per cycle and produces a MoversResult, fanning the
// universe out across chunked, concurrency-bounded workers.
package movers

import (
	"context"
	"log"
	"sync"

	"github.com/yohannesjx/futures-predator/internal/liquidity"
	"github.com/yohannesjx/futures-predator/internal/metrics"
	"github.com/yohannesjx/futures-predator/internal/scorer"
)

const (
	klineLimit  = 1440
	concurrency = 8
)

// CandleFetcher fetches a symbol's recent 1-minute candle buffer.
type CandleFetcher interface {
	GetKlines(ctx context.Context, symbol string, limit int) ([]metrics.Candle, error)
}

// UniverseSource resolves the current tradable symbol set.
type UniverseSource interface {
	Symbols(ctx context.Context) ([]string, error)
}

// Pipeline wires the fan-out fetch and cross-symbol fusion together.
type Pipeline struct {
	universe  UniverseSource
	candles   CandleFetcher
	liquidity liquidity.Fetcher

	mu      sync.Mutex
	history map[string]map[string]metrics.SymbolTimeframeMetric // symbol -> timeframe -> prev metric (for bounded history arrays)
	lastPrice map[string]float64
}

// New builds a Pipeline.
func New(universe UniverseSource, candles CandleFetcher, liq liquidity.Fetcher) *Pipeline {
	return &Pipeline{
		universe:  universe,
		candles:   candles,
		liquidity: liq,
		history:   make(map[string]map[string]metrics.SymbolTimeframeMetric),
		lastPrice: make(map[string]float64),
	}
}

type fetchOutcome struct {
	symbol           string
	candles          []metrics.Candle
	liquidityPenalty float64
	ok               bool
}

// Run executes one full cycle: resolve universe, fan out candle+liquidity
// fetches in chunks of 8, compute metrics, fuse scores, and return the
// MoversResult. Symbols whose candle buffer is empty or whose last close is
// non-finite are dropped rather than failing the cycle.
func (p *Pipeline) Run(ctx context.Context) (scorer.Result, error) {
	symbols, err := p.universe.Symbols(ctx)
	if err != nil {
		return scorer.Result{}, err
	}

	outcomes := p.fanOut(ctx, symbols)

	survivors := make([]scorer.SymbolData, 0, len(outcomes))
	latestOpenTimes := make(map[string]int64, len(outcomes))
	for _, o := range outcomes {
		if !o.ok {
			continue
		}
		p.mu.Lock()
		prev := p.history[o.symbol]
		p.mu.Unlock()

		m := metrics.Compute(o.candles, prev)
		if len(m) == 0 {
			continue
		}

		p.mu.Lock()
		p.history[o.symbol] = m
		lastClose := o.candles[len(o.candles)-1].Close
		p.lastPrice[o.symbol] = lastClose
		p.mu.Unlock()
		latestOpenTimes[o.symbol] = o.candles[len(o.candles)-1].OpenTime

		survivors = append(survivors, scorer.SymbolData{
			Symbol:           o.symbol,
			LastPrice:        lastClose,
			Metrics:          m,
			LiquidityPenalty: o.liquidityPenalty,
		})
	}

	windows := windowsFor(survivors, latestOpenTimes)
	return scorer.Fuse(survivors, windows), nil
}

// fanOut processes symbols in chunks of `concurrency`, each chunk awaited
// before the next starts, as a simple back-pressure valve.
func (p *Pipeline) fanOut(ctx context.Context, symbols []string) []fetchOutcome {
	results := make([]fetchOutcome, len(symbols))

	for start := 0; start < len(symbols); start += concurrency {
		end := start + concurrency
		if end > len(symbols) {
			end = len(symbols)
		}
		chunk := symbols[start:end]

		var wg sync.WaitGroup
		for i, symbol := range chunk {
			wg.Add(1)
			go func(idx int, sym string) {
				defer wg.Done()
				results[start+idx] = p.fetchOne(ctx, sym)
			}(i, symbol)
		}
		wg.Wait()
	}

	return results
}

func (p *Pipeline) fetchOne(ctx context.Context, symbol string) fetchOutcome {
	candles, err := p.candles.GetKlines(ctx, symbol, klineLimit)
	if err != nil {
		log.Printf("[movers] candle fetch failed for %s: %v", symbol, err)
		return fetchOutcome{symbol: symbol}
	}
	if len(candles) == 0 {
		return fetchOutcome{symbol: symbol}
	}

	last := candles[len(candles)-1].Close
	if isNonFinite(last) || last <= 0 {
		return fetchOutcome{symbol: symbol}
	}

	penalty := liquidity.Probe(ctx, p.liquidity, symbol)

	return fetchOutcome{symbol: symbol, candles: candles, liquidityPenalty: penalty, ok: true}
}

func isNonFinite(v float64) bool { return v != v || v > 1e300 || v < -1e300 }

// windowsFor derives each timeframe's observed {start,end} openTime bounds:
// End is the latest candle's openTime and Start the openTime of the first
// candle inside that timeframe's window. All surviving symbols share the
// same 1-minute buffer cadence, so any symbol's bounds are representative;
// we simply report the first symbol that carries the timeframe.
func windowsFor(symbols []scorer.SymbolData, latestOpenTimes map[string]int64) map[string]scorer.Window {
	out := make(map[string]scorer.Window, len(metrics.Timeframes))
	for _, tf := range metrics.Timeframes {
		for _, s := range symbols {
			if _, ok := s.Metrics[tf.Label]; !ok {
				continue
			}
			end := latestOpenTimes[s.Symbol]
			out[tf.Label] = scorer.Window{Start: end - int64(tf.Minutes-1)*60_000, End: end}
			break
		}
	}
	return out
}
