// Package executor implements the Trading Executor (C8): account state
// cache, leverage/margin-mode setup, market/stop/reduce-only orders, and
// quantity/price quantization, driven per-cycle by whichever symbols the
// Strategy Engine wants opened, sized, or closed.
package executor

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/yohannesjx/futures-predator/internal/exchange"
)

const (
	filterCacheTTL = 30 * time.Minute
	epsilon        = 1e-6
	defaultMargin  = "CROSSED"
)

// Facade is the subset of exchange.Facade the executor drives.
type Facade interface {
	ListPerpetuals(ctx context.Context) ([]exchange.SymbolFilters, error)
	GetBalances(ctx context.Context) ([]exchange.Balance, error)
	GetPositions(ctx context.Context) (map[string]*exchange.PositionSummary, error)
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)
	SetDualSidePosition(ctx context.Context, dual bool) error
	SetMarginType(ctx context.Context, symbol string, marginType futures.MarginType) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PostOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error)
	CancelAllOpenOrders(ctx context.Context, symbol string) error
}

// Executor owns the account-state cache and mutating operations. All
// operations are no-ops returning (nil, nil) when tradingEnabled is false.
type Executor struct {
	facade         Facade
	tradingEnabled bool
	leverage       int
	maxPositions   int

	mu                 sync.Mutex
	totalWalletBalance float64
	availableBalance   float64
	unrealizedPnl      float64
	positions          map[string]*exchange.PositionSummary
	managedSymbols     map[string]bool
	dualSideConfigured bool

	filters       map[string]exchange.SymbolFilters
	filtersExpiry time.Time

	leveraged map[string]bool // symbols for which leverage has already been set
}

// New builds an Executor.
func New(facade Facade, tradingEnabled bool, leverage, maxPositions int) *Executor {
	return &Executor{
		facade:         facade,
		tradingEnabled: tradingEnabled,
		leverage:       leverage,
		maxPositions:   maxPositions,
		positions:      make(map[string]*exchange.PositionSummary),
		managedSymbols: make(map[string]bool),
		filters:        make(map[string]exchange.SymbolFilters),
		leveraged:      make(map[string]bool),
	}
}

// Initialize enables dual-side position mode (idempotent) and seeds the
// balance/position cache.
func (e *Executor) Initialize(ctx context.Context) error {
	if !e.tradingEnabled {
		return nil
	}
	if err := e.facade.SetDualSidePosition(ctx, true); err != nil {
		log.Printf("[executor] dual-side position mode: %v", err)
	} else {
		e.mu.Lock()
		e.dualSideConfigured = true
		e.mu.Unlock()
	}
	return e.RefreshState(ctx)
}

// RefreshState re-fetches balances and positions from the exchange.
func (e *Executor) RefreshState(ctx context.Context) error {
	if !e.tradingEnabled {
		return nil
	}

	balances, err := e.facade.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("refresh balances: %w", err)
	}
	positions, err := e.facade.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("refresh positions: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range balances {
		if b.Asset == "USDT" {
			e.totalWalletBalance = b.Balance
			e.availableBalance = b.AvailableBalance
			e.unrealizedPnl = b.CrossUnrealizedPnl
		}
	}
	e.positions = positions
	return nil
}

// CanOpenPosition reports whether a new managed position may be opened for
// symbol: trading must be enabled, the symbol not already managed, and the
// managed-symbol count below MAX_POSITIONS.
func (e *Executor) CanOpenPosition(symbol string) bool {
	if !e.tradingEnabled {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.managedSymbols[symbol] {
		return false
	}
	return len(e.managedSymbols) < e.maxPositions
}

// MarkManaged / Unmark track which symbols the strategy currently manages,
// feeding CanOpenPosition's slot count.
func (e *Executor) MarkManaged(symbol string)   { e.setManaged(symbol, true) }
func (e *Executor) UnmarkManaged(symbol string) { e.setManaged(symbol, false) }

func (e *Executor) setManaged(symbol string, managed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if managed {
		e.managedSymbols[symbol] = true
	} else {
		delete(e.managedSymbols, symbol)
	}
}

// PositionQuantity reports the exchange-reported quantity on the given
// direction, used by the strategy's reconciliation pass.
func (e *Executor) PositionQuantity(symbol, direction string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	summary, ok := e.positions[symbol]
	if !ok {
		return 0
	}
	var leg *exchange.PositionLeg
	if direction == "LONG" {
		leg = summary.Long
	} else {
		leg = summary.Short
	}
	if leg == nil {
		return 0
	}
	return math.Abs(leg.Quantity)
}

// GetMarkPrice delegates to the facade.
func (e *Executor) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	return e.facade.GetMarkPrice(ctx, symbol)
}

func (e *Executor) symbolFilters(ctx context.Context, symbol string) (exchange.SymbolFilters, bool) {
	e.mu.Lock()
	if time.Now().Before(e.filtersExpiry) {
		f, ok := e.filters[symbol]
		e.mu.Unlock()
		if ok {
			return f, true
		}
		return exchange.SymbolFilters{}, false
	}
	e.mu.Unlock()

	all, err := e.facade.ListPerpetuals(ctx)
	if err != nil {
		log.Printf("[executor] refresh symbol filters: %v", err)
		e.mu.Lock()
		f, ok := e.filters[symbol]
		e.mu.Unlock()
		return f, ok
	}

	e.mu.Lock()
	e.filters = make(map[string]exchange.SymbolFilters, len(all))
	for _, sf := range all {
		e.filters[sf.Symbol] = sf
	}
	e.filtersExpiry = time.Now().Add(filterCacheTTL)
	f, ok := e.filters[symbol]
	e.mu.Unlock()
	return f, ok
}

func (e *Executor) ensureLeverageAndMargin(ctx context.Context, symbol string) {
	e.mu.Lock()
	already := e.leveraged[symbol]
	e.mu.Unlock()
	if already {
		return
	}

	if err := e.facade.SetMarginType(ctx, symbol, futures.MarginType(defaultMargin)); err != nil {
		log.Printf("[executor] set margin type %s: %v", symbol, err)
	}
	if err := e.facade.SetLeverage(ctx, symbol, e.leverage); err != nil {
		log.Printf("[executor] set leverage %s: %v", symbol, err)
		return
	}

	e.mu.Lock()
	e.leveraged[symbol] = true
	e.mu.Unlock()
}

// CreateMarketOrder opens a new position using the sizing formula:
// margin = (wallet/5)*sizeScale; notional = margin*leverage; qty derived
// from mark price, clamped to minQty, floored to stepSize, bumped to
// minNotional if needed.
func (e *Executor) CreateMarketOrder(ctx context.Context, symbol, direction string, sizeScale float64) (*exchange.OrderResult, error) {
	if !e.tradingEnabled {
		return nil, nil
	}
	sizeScale = clamp(sizeScale, 0.1, 1.0)

	markPrice, err := e.facade.GetMarkPrice(ctx, symbol)
	if err != nil || markPrice <= 0 {
		log.Printf("[executor] mark price unavailable for %s: %v", symbol, err)
		return nil, nil
	}

	e.ensureLeverageAndMargin(ctx, symbol)

	e.mu.Lock()
	wallet := e.totalWalletBalance
	e.mu.Unlock()

	margin := (wallet / 5.0) * sizeScale
	notional := margin * float64(e.leverage)
	rawQty := notional / markPrice

	filters, _ := e.symbolFilters(ctx, symbol)
	qty := quantize(rawQty, markPrice, filters)
	if qty <= 0 {
		return nil, nil
	}

	side := "BUY"
	if direction == "SHORT" {
		side = "SELL"
	}

	res, err := e.facade.PostOrder(ctx, exchange.OrderRequest{
		Symbol:       symbol,
		Side:         side,
		PositionSide: direction,
		Type:         "MARKET",
		Quantity:     qty,
	})
	if err != nil {
		return nil, nil
	}

	if stateErr := e.RefreshState(ctx); stateErr != nil {
		log.Printf("[executor] post-order refresh: %v", stateErr)
	}
	return res, nil
}

// PlaceStopLoss places a reduce-only STOP_MARKET closing the given
// direction at stopPrice.
func (e *Executor) PlaceStopLoss(ctx context.Context, symbol, direction string, qty, stopPrice float64) (*exchange.OrderResult, error) {
	if !e.tradingEnabled {
		return nil, nil
	}
	return e.facade.PostOrder(ctx, exchange.OrderRequest{
		Symbol:       symbol,
		Side:         closingSide(direction),
		PositionSide: direction,
		Type:         "STOP_MARKET",
		Quantity:     qty,
		StopPrice:    math.Max(stopPrice, 0.0001),
		ReduceOnly:   true,
		WorkingType:  "CONTRACT_PRICE",
	})
}

// ReplaceStopLoss cancels every open order on the symbol then places a
// fresh stop.
func (e *Executor) ReplaceStopLoss(ctx context.Context, symbol, direction string, qty, stopPrice float64) (*exchange.OrderResult, error) {
	if !e.tradingEnabled {
		return nil, nil
	}
	if err := e.facade.CancelAllOpenOrders(ctx, symbol); err != nil {
		log.Printf("[executor] cancel open orders %s: %v", symbol, err)
	}
	return e.PlaceStopLoss(ctx, symbol, direction, qty, stopPrice)
}

// ReducePosition sends a reduce-only MARKET order against an existing leg.
func (e *Executor) ReducePosition(ctx context.Context, symbol, direction string, qty float64) (*exchange.OrderResult, error) {
	if !e.tradingEnabled || qty <= epsilon {
		return nil, nil
	}
	return e.facade.PostOrder(ctx, exchange.OrderRequest{
		Symbol:       symbol,
		Side:         closingSide(direction),
		PositionSide: direction,
		Type:         "MARKET",
		Quantity:     qty,
		ReduceOnly:   true,
	})
}

// IncreasePosition sends a same-side MARKET order adding to an existing leg.
func (e *Executor) IncreasePosition(ctx context.Context, symbol, direction string, qty float64) (*exchange.OrderResult, error) {
	if !e.tradingEnabled || qty <= epsilon {
		return nil, nil
	}
	side := "BUY"
	if direction == "SHORT" {
		side = "SELL"
	}
	return e.facade.PostOrder(ctx, exchange.OrderRequest{
		Symbol:       symbol,
		Side:         side,
		PositionSide: direction,
		Type:         "MARKET",
		Quantity:     qty,
	})
}

// FlattenResidualPositions closes any leg below threshold quantity, a dust
// cleanup pass run after strategy state is torn down.
func (e *Executor) FlattenResidualPositions(ctx context.Context, threshold float64) {
	if !e.tradingEnabled {
		return
	}
	e.mu.Lock()
	snapshot := make(map[string]*exchange.PositionSummary, len(e.positions))
	for k, v := range e.positions {
		snapshot[k] = v
	}
	e.mu.Unlock()

	for symbol, summary := range snapshot {
		if summary.Long != nil && summary.Long.Quantity > 0 && summary.Long.Quantity < threshold {
			e.ReducePosition(ctx, symbol, "LONG", summary.Long.Quantity)
		}
		if summary.Short != nil && math.Abs(summary.Short.Quantity) > 0 && math.Abs(summary.Short.Quantity) < threshold {
			e.ReducePosition(ctx, symbol, "SHORT", math.Abs(summary.Short.Quantity))
		}
	}
}

// Close cancels every open order on symbol then reduces the remaining
// quantity to zero.
func (e *Executor) Close(ctx context.Context, symbol, direction string, qty float64) (*exchange.OrderResult, error) {
	if !e.tradingEnabled {
		return nil, nil
	}
	if err := e.facade.CancelAllOpenOrders(ctx, symbol); err != nil {
		log.Printf("[executor] cancel open orders on close %s: %v", symbol, err)
	}
	e.UnmarkManaged(symbol)
	return e.ReducePosition(ctx, symbol, direction, qty)
}

func closingSide(direction string) string {
	if direction == "LONG" {
		return "SELL"
	}
	return "BUY"
}

// quantize clamps to minQty, floors to stepSize, and bumps to minNotional
// if the floored qty would undercut it.
func quantize(rawQty, markPrice float64, filters exchange.SymbolFilters) float64 {
	qty := rawQty
	if filters.MinQty > 0 && qty < filters.MinQty {
		qty = filters.MinQty
	}
	if filters.StepSize > 0 {
		qty = floorToStep(qty, filters.StepSize)
	}
	if filters.MinNotional > 0 && markPrice > 0 && qty*markPrice < filters.MinNotional {
		bumped := filters.MinNotional / markPrice
		if filters.StepSize > 0 {
			bumped = ceilToStep(bumped, filters.StepSize)
		}
		qty = bumped
	}
	return qty
}

func floorToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	steps := v.Div(s).Floor()
	return steps.Mul(s).InexactFloat64()
}

func ceilToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	steps := v.Div(s).Ceil()
	return steps.Mul(s).InexactFloat64()
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
