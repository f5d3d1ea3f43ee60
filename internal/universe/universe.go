// Package universe caches the tradable-perpetual symbol list ranked by 24h
// quote volume, refreshed on a TTL.
package universe

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// Fetcher is the subset of the exchange facade the selector needs. ListPerpetuals is
// expected to already intersect contractType=PERPETUAL, quoteAsset=USDT,
// status=TRADING (the facade does this filtering); the Selector only ranks
// and truncates.
type Fetcher interface {
	ListPerpetuals(ctx context.Context) ([]string, error)
	Get24hQuoteVolumes(ctx context.Context) (map[string]float64, error)
}

// Selector caches the ranked universe for VolumeRefreshInterval.
type Selector struct {
	fetcher Fetcher

	refreshInterval time.Duration
	maxSymbols      int

	mu         sync.Mutex
	cached     []string
	lastRefresh time.Time
}

// New builds a Selector. maxSymbols is MAX_SELECTED_SYMBOLS (80).
func New(fetcher Fetcher, refreshInterval time.Duration, maxSymbols int) *Selector {
	return &Selector{
		fetcher:         fetcher,
		refreshInterval: refreshInterval,
		maxSymbols:      maxSymbols,
	}
}

// Symbols returns the cached universe, refreshing it first if the TTL has
// elapsed. An empty universe is a valid, cached result.
func (s *Selector) Symbols(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	stale := time.Since(s.lastRefresh) >= s.refreshInterval || s.lastRefresh.IsZero()
	s.mu.Unlock()

	if !stale {
		s.mu.Lock()
		defer s.mu.Unlock()
		return append([]string(nil), s.cached...), nil
	}

	return s.refresh(ctx)
}

func (s *Selector) refresh(ctx context.Context) ([]string, error) {
	perpetuals, err := s.fetcher.ListPerpetuals(ctx)
	if err != nil {
		return nil, err
	}

	volumes, err := s.fetcher.Get24hQuoteVolumes(ctx)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		symbol string
		volume float64
	}
	candidates := make([]ranked, 0, len(perpetuals))
	for _, symbol := range perpetuals {
		if qv, ok := volumes[symbol]; ok {
			candidates = append(candidates, ranked{symbol: symbol, volume: qv})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].volume > candidates[j].volume
	})

	take := int(math.Ceil(float64(len(candidates)) / 2))
	if take > s.maxSymbols {
		take = s.maxSymbols
	}
	if take > len(candidates) {
		take = len(candidates)
	}

	out := make([]string, take)
	for i := 0; i < take; i++ {
		out[i] = candidates[i].symbol
	}

	s.mu.Lock()
	s.cached = out
	s.lastRefresh = time.Now()
	s.mu.Unlock()

	return append([]string(nil), out...), nil
}
