package strategy

import (
	"context"

	"github.com/yohannesjx/futures-predator/internal/exchange"
)

type stopCall struct {
	symbol, direction string
	qty, stopPrice    float64
}

type qtyCall struct {
	symbol, direction string
	qty               float64
}

type fakeExecutor struct {
	canOpen      bool
	managed      map[string]bool
	orderResult  *exchange.OrderResult
	orderErr     error
	positionQty  map[string]float64

	stopCalls     []stopCall
	replaceCalls  []stopCall
	reduceCalls   []qtyCall
	increaseCalls []qtyCall
	closeCalls    []qtyCall
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		canOpen:     true,
		managed:     make(map[string]bool),
		positionQty: make(map[string]float64),
	}
}

func (f *fakeExecutor) CanOpenPosition(symbol string) bool { return f.canOpen && !f.managed[symbol] }
func (f *fakeExecutor) MarkManaged(symbol string)           { f.managed[symbol] = true }
func (f *fakeExecutor) UnmarkManaged(symbol string)         { delete(f.managed, symbol) }
func (f *fakeExecutor) PositionQuantity(symbol, direction string) float64 {
	return f.positionQty[symbol]
}

func (f *fakeExecutor) CreateMarketOrder(ctx context.Context, symbol, direction string, sizeScale float64) (*exchange.OrderResult, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	return f.orderResult, nil
}

func (f *fakeExecutor) PlaceStopLoss(ctx context.Context, symbol, direction string, qty, stopPrice float64) (*exchange.OrderResult, error) {
	f.stopCalls = append(f.stopCalls, stopCall{symbol, direction, qty, stopPrice})
	return &exchange.OrderResult{Symbol: symbol}, nil
}

func (f *fakeExecutor) ReplaceStopLoss(ctx context.Context, symbol, direction string, qty, stopPrice float64) (*exchange.OrderResult, error) {
	f.replaceCalls = append(f.replaceCalls, stopCall{symbol, direction, qty, stopPrice})
	return &exchange.OrderResult{Symbol: symbol}, nil
}

func (f *fakeExecutor) ReducePosition(ctx context.Context, symbol, direction string, qty float64) (*exchange.OrderResult, error) {
	f.reduceCalls = append(f.reduceCalls, qtyCall{symbol, direction, qty})
	return &exchange.OrderResult{Symbol: symbol}, nil
}

func (f *fakeExecutor) IncreasePosition(ctx context.Context, symbol, direction string, qty float64) (*exchange.OrderResult, error) {
	f.increaseCalls = append(f.increaseCalls, qtyCall{symbol, direction, qty})
	return &exchange.OrderResult{Symbol: symbol}, nil
}

func (f *fakeExecutor) Close(ctx context.Context, symbol, direction string, qty float64) (*exchange.OrderResult, error) {
	f.closeCalls = append(f.closeCalls, qtyCall{symbol, direction, qty})
	delete(f.managed, symbol)
	return &exchange.OrderResult{Symbol: symbol}, nil
}
