package executor

import (
	"context"
	"testing"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/require"
	"github.com/yohannesjx/futures-predator/internal/exchange"
)

type fakeFacade struct {
	perpetuals []exchange.SymbolFilters
	balances   []exchange.Balance
	positions  map[string]*exchange.PositionSummary
	markPrice  float64

	orders []exchange.OrderRequest
}

func (f *fakeFacade) ListPerpetuals(ctx context.Context) ([]exchange.SymbolFilters, error) {
	return f.perpetuals, nil
}
func (f *fakeFacade) GetBalances(ctx context.Context) ([]exchange.Balance, error) {
	return f.balances, nil
}
func (f *fakeFacade) GetPositions(ctx context.Context) (map[string]*exchange.PositionSummary, error) {
	return f.positions, nil
}
func (f *fakeFacade) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	return f.markPrice, nil
}
func (f *fakeFacade) SetDualSidePosition(ctx context.Context, dual bool) error { return nil }
func (f *fakeFacade) SetMarginType(ctx context.Context, symbol string, marginType futures.MarginType) error {
	return nil
}
func (f *fakeFacade) SetLeverage(ctx context.Context, symbol string, leverage int) error { return nil }
func (f *fakeFacade) PostOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	f.orders = append(f.orders, req)
	return &exchange.OrderResult{OrderID: int64(len(f.orders)), Symbol: req.Symbol, ExecutedQty: req.Quantity, AvgPrice: f.markPrice, Status: "FILLED"}, nil
}
func (f *fakeFacade) CancelAllOpenOrders(ctx context.Context, symbol string) error { return nil }

func newTestExecutor(f *fakeFacade) *Executor {
	e := New(f, true, 5, 5)
	e.totalWalletBalance = 1000
	return e
}

func TestCanOpenPosition_RespectsMaxPositionsAndDuplicates(t *testing.T) {
	e := newTestExecutor(&fakeFacade{})
	for i := 0; i < 5; i++ {
		sym := string(rune('A'+i)) + "USDT"
		require.True(t, e.CanOpenPosition(sym))
		e.MarkManaged(sym)
	}
	require.False(t, e.CanOpenPosition("ZUSDT"))
	require.False(t, e.CanOpenPosition("AUSDT")) // already managed
}

func TestCanOpenPosition_FalseWhenTradingDisabled(t *testing.T) {
	e := New(&fakeFacade{}, false, 5, 5)
	require.False(t, e.CanOpenPosition("BTCUSDT"))
}

func TestCreateMarketOrder_SizesAndQuantizes(t *testing.T) {
	f := &fakeFacade{
		markPrice:  100,
		perpetuals: []exchange.SymbolFilters{{Symbol: "BTCUSDT", StepSize: 0.001, MinQty: 0.001, MinNotional: 5}},
	}
	e := newTestExecutor(f)

	res, err := e.CreateMarketOrder(context.Background(), "BTCUSDT", "LONG", 1.0)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Len(t, f.orders, 1)
	require.Equal(t, "MARKET", f.orders[0].Type)
	require.Equal(t, "BUY", f.orders[0].Side)
	// margin = (1000/5)*1 = 200; notional = 200*5 = 1000; qty = 1000/100 = 10
	require.InDelta(t, 10.0, f.orders[0].Quantity, 1e-9)
}

func TestCreateMarketOrder_BumpsBelowMinNotional(t *testing.T) {
	f := &fakeFacade{
		markPrice:  100,
		perpetuals: []exchange.SymbolFilters{{Symbol: "TINYUSDT", StepSize: 0.01, MinQty: 0.01, MinNotional: 2000}},
	}
	e := newTestExecutor(f)

	_, err := e.CreateMarketOrder(context.Background(), "TINYUSDT", "SHORT", 0.1)
	require.NoError(t, err)
	require.Len(t, f.orders, 1)
	// raw qty = (1000/5*0.1*5)/100 = 1.0, notional 100 < minNotional 2000 -> bumped to 2000/100=20
	require.InDelta(t, 20.0, f.orders[0].Quantity, 1e-9)
	require.Equal(t, "SELL", f.orders[0].Side)
}

func TestPlaceStopLoss_ReduceOnlyStopMarket(t *testing.T) {
	f := &fakeFacade{}
	e := newTestExecutor(f)

	_, err := e.PlaceStopLoss(context.Background(), "BTCUSDT", "LONG", 1.0, 95.0)
	require.NoError(t, err)
	require.Len(t, f.orders, 1)
	require.Equal(t, "STOP_MARKET", f.orders[0].Type)
	require.True(t, f.orders[0].ReduceOnly)
	require.Equal(t, "SELL", f.orders[0].Side)
}

func TestReplaceStopLoss_CancelsThenPlaces(t *testing.T) {
	f := &fakeFacade{}
	e := newTestExecutor(f)

	_, err := e.ReplaceStopLoss(context.Background(), "ETHUSDT", "SHORT", 2.0, 110.0)
	require.NoError(t, err)
	require.Len(t, f.orders, 1)
	require.Equal(t, "BUY", f.orders[0].Side) // closing a short is a buy
}

func TestNoOpsWhenTradingDisabled(t *testing.T) {
	f := &fakeFacade{}
	e := New(f, false, 5, 5)

	res, err := e.CreateMarketOrder(context.Background(), "BTCUSDT", "LONG", 1.0)
	require.NoError(t, err)
	require.Nil(t, res)
	require.Empty(t, f.orders)
}
