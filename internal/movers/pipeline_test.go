package movers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yohannesjx/futures-predator/internal/liquidity"
	"github.com/yohannesjx/futures-predator/internal/metrics"
)

type fakeUniverse struct{ symbols []string }

func (f fakeUniverse) Symbols(ctx context.Context) ([]string, error) { return f.symbols, nil }

type fakeCandles struct {
	bySymbol map[string][]metrics.Candle
	fail     map[string]bool
}

func (f fakeCandles) GetKlines(ctx context.Context, symbol string, limit int) ([]metrics.Candle, error) {
	if f.fail[symbol] {
		return nil, errors.New("fetch failed")
	}
	return f.bySymbol[symbol], nil
}

type noopLiquidity struct{}

func (noopLiquidity) GetBookTicker(ctx context.Context, symbol string) (liquidity.BookTicker, error) {
	return liquidity.BookTicker{}, errors.New("no book")
}
func (noopLiquidity) GetDepth(ctx context.Context, symbol string) (liquidity.Depth, error) {
	return liquidity.Depth{}, errors.New("no depth")
}

func buildCandles(n int, closeStep float64) []metrics.Candle {
	const step int64 = 60_000
	price := 100.0
	out := make([]metrics.Candle, 0, n)
	for i := 0; i < n; i++ {
		open := price
		close := open * (1 + closeStep)
		out = append(out, metrics.Candle{
			OpenTime: int64(i) * step, Open: open, High: close, Low: open, Close: close,
			Volume: 1, QuoteVolume: 1000, TakerBuyQuoteVolume: 600,
		})
		price = close
	}
	return out
}

func TestPipeline_DropsSymbolsWithEmptyOrFailedFetch(t *testing.T) {
	universe := fakeUniverse{symbols: []string{"GOODUSDT", "EMPTYUSDT", "FAILUSDT"}}
	candles := fakeCandles{
		bySymbol: map[string][]metrics.Candle{
			"GOODUSDT":  buildCandles(130, 0.001),
			"EMPTYUSDT": {},
		},
		fail: map[string]bool{"FAILUSDT": true},
	}

	p := New(universe, candles, noopLiquidity{})
	result, err := p.Run(context.Background())
	require.NoError(t, err)

	_, has := result.Metrics["GOODUSDT"]
	require.True(t, has)
	_, hasEmpty := result.Metrics["EMPTYUSDT"]
	require.False(t, hasEmpty)
	_, hasFail := result.Metrics["FAILUSDT"]
	require.False(t, hasFail)
}

func TestPipeline_ProducesSnapshotsForAllTimeframesWithEnoughHistory(t *testing.T) {
	universe := fakeUniverse{symbols: []string{"AUSDT"}}
	candles := fakeCandles{bySymbol: map[string][]metrics.Candle{"AUSDT": buildCandles(130, 0.001)}}

	p := New(universe, candles, noopLiquidity{})
	result, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Contains(t, result.Snapshots, "10m")
	require.Contains(t, result.Snapshots, "30m")
	require.Contains(t, result.Snapshots, "1h")
}

func TestPipeline_FanOutHandlesMoreSymbolsThanConcurrency(t *testing.T) {
	symbols := make([]string, 0, 20)
	bySymbol := make(map[string][]metrics.Candle, 20)
	for i := 0; i < 20; i++ {
		sym := string(rune('A'+i)) + "USDT"
		symbols = append(symbols, sym)
		bySymbol[sym] = buildCandles(20, 0.0005)
	}

	universe := fakeUniverse{symbols: symbols}
	candles := fakeCandles{bySymbol: bySymbol}

	p := New(universe, candles, noopLiquidity{})
	result, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Metrics, 20)
}
