package universe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	symbols []string
	volumes map[string]float64
	calls   int
}

func (f *fakeFetcher) ListPerpetuals(ctx context.Context) ([]string, error) {
	f.calls++
	return f.symbols, nil
}

func (f *fakeFetcher) Get24hQuoteVolumes(ctx context.Context) (map[string]float64, error) {
	return f.volumes, nil
}

func TestSelector_RanksByVolumeDescAndCaps(t *testing.T) {
	fetcher := &fakeFetcher{
		symbols: []string{"AAA", "BBB", "CCC", "DDD"},
		volumes: map[string]float64{"AAA": 10, "BBB": 40, "CCC": 30, "DDD": 20},
	}
	sel := New(fetcher, time.Hour, 80)

	symbols, err := sel.Symbols(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"BBB", "CCC"}, symbols) // ceil(4/2)=2, top-2 by volume
}

func TestSelector_EmptyUniverseIsCachedNotErrored(t *testing.T) {
	fetcher := &fakeFetcher{symbols: nil, volumes: map[string]float64{}}
	sel := New(fetcher, time.Hour, 80)

	symbols, err := sel.Symbols(context.Background())
	require.NoError(t, err)
	require.Empty(t, symbols)
	require.Equal(t, 1, fetcher.calls)

	_, err = sel.Symbols(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls, "second call within TTL must not refetch")
}

func TestSelector_RespectsMaxSelectedSymbols(t *testing.T) {
	fetcher := &fakeFetcher{volumes: map[string]float64{}}
	for i := 0; i < 10; i++ {
		sym := string(rune('A' + i))
		fetcher.symbols = append(fetcher.symbols, sym)
		fetcher.volumes[sym] = float64(10 - i)
	}
	sel := New(fetcher, time.Hour, 3)

	symbols, err := sel.Symbols(context.Background())
	require.NoError(t, err)
	require.Len(t, symbols, 3)
	require.Equal(t, []string{"A", "B", "C"}, symbols)
}
