// Package liquidity implements the Liquidity Probe (C6): a best-effort
// spread + walk-the-book slippage estimate that folds into a [0,1] penalty
// the Score Fuser subtracts from finalScore.
package liquidity

import (
	"context"
	"math"
)

// BookTicker is the best bid/ask snapshot this package needs. Decoupled
// from the exchange package's wire type so this package has no dependency
// on the exchange client.
type BookTicker struct {
	BidPrice float64
	AskPrice float64
}

// DepthLevel is one (price, quantity) rung of the order book.
type DepthLevel struct {
	Price float64
	Qty   float64
}

// Depth is a single order-book snapshot, best levels first.
type Depth struct {
	Bids []DepthLevel
	Asks []DepthLevel
}

// Fetcher is the subset of exchange.Facade the probe needs.
type Fetcher interface {
	GetBookTicker(ctx context.Context, symbol string) (BookTicker, error)
	GetDepth(ctx context.Context, symbol string) (Depth, error)
}

const slippageTargetQuote = 10_000.0

// Probe computes a symbol's liquidity penalty. Best-effort: any fetch
// failure, or a crossed/invalid book, yields penalty 0 so the symbol is
// kept rather than dropped (fail open).
func Probe(ctx context.Context, fetcher Fetcher, symbol string) float64 {
	ticker, err := fetcher.GetBookTicker(ctx, symbol)
	if err != nil {
		return 0
	}
	if ticker.BidPrice <= 0 || ticker.AskPrice <= 0 || ticker.AskPrice <= ticker.BidPrice {
		return 0
	}

	depth, err := fetcher.GetDepth(ctx, symbol)
	if err != nil {
		return 0
	}

	mid := (ticker.BidPrice + ticker.AskPrice) / 2
	spreadBps := (ticker.AskPrice - ticker.BidPrice) / mid * 10_000

	buySlipBps, buyOK := walk(depth.Asks, mid, slippageTargetQuote, false)
	sellSlipBps, sellOK := walk(depth.Bids, mid, slippageTargetQuote, true)

	if !buyOK || !sellOK {
		return clamp(clamp(spreadBps/10, 0, 1)*0.6+0.4, 0, 1)
	}

	slippageBps := math.Max(buySlipBps, sellSlipBps)
	penalty := clamp(spreadBps/10, 0, 1)*0.6 + clamp(slippageBps/20, 0, 1)*0.4
	return clamp(penalty, 0, 1)
}

// walk consumes ladder levels up to targetQuote notional and returns the
// slippage in bps of the resulting average fill price versus mid. ok is
// false when more than 5% of the target notional couldn't be filled from
// the available levels.
func walk(levels []DepthLevel, mid, targetQuote float64, isBid bool) (slippageBps float64, ok bool) {
	remaining := targetQuote
	filledQuote, filledBase := 0.0, 0.0

	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		if lvl.Price <= 0 || lvl.Qty <= 0 {
			continue
		}
		levelQuote := lvl.Price * lvl.Qty
		take := math.Min(levelQuote, remaining)
		takeBase := take / lvl.Price

		filledQuote += take
		filledBase += takeBase
		remaining -= take
	}

	if remaining > targetQuote*0.05 {
		return 0, false
	}
	if filledBase <= 0 {
		return 0, false
	}

	avgFill := filledQuote / filledBase
	if isBid {
		return (mid - avgFill) / mid * 10_000, true
	}
	return (avgFill - mid) / mid * 10_000, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
