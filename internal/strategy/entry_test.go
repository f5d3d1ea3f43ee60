package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yohannesjx/futures-predator/internal/exchange"
	"github.com/yohannesjx/futures-predator/internal/metrics"
)

func longCandidate() Candidate {
	return Candidate{
		Symbol:    "BTCUSDT",
		LastPrice: 100,
		Metrics: map[string]metrics.SymbolTimeframeMetric{
			"1h": {
				Timeframe:  "1h",
				NetChange:  1,
				Chop:       0.2,
				Efficiency: 0.6,
				Align:      0.7,
				AtrValue:   2.0,
			},
			"30m": {
				Timeframe:     "30m",
				NetChange:     1,
				Chop:          0.3,
				Efficiency:    0.6,
				VolumeBoost:   0.6,
				SmallMoveGate: 0.6,
				AtrValue:      1.0,
			},
		},
		LiquidityPenalty: 0.1,
	}
}

func TestTryOpen_EntersOnAllGatesPass(t *testing.T) {
	exec := newFakeExecutor()
	exec.orderResult = &exchange.OrderResult{OrderID: 1, Symbol: "BTCUSDT", ExecutedQty: 10, AvgPrice: 100, Status: "FILLED"}
	e := New(exec)

	err := e.tryOpen(context.Background(), longCandidate(), false)
	require.NoError(t, err)

	e.mu.Lock()
	state := e.positions["BTCUSDT"]
	e.mu.Unlock()
	require.NotNil(t, state)
	require.Equal(t, Long, state.Direction)
	require.Equal(t, "1h", state.ParentTimeframe)
	require.Equal(t, "30m", state.ChildTimeframe)
	require.InDelta(t, 100.0, state.EntryPrice, 1e-9)
	require.InDelta(t, 2.01, state.KSl, 1e-6)
	require.InDelta(t, 2.01, state.InitialSlDistance, 1e-6)
	require.InDelta(t, 97.99, state.StopPrice, 1e-6)
	require.InDelta(t, 0.81, sizeScale(0.1), 1e-9)
	require.True(t, exec.managed["BTCUSDT"])
	require.Len(t, exec.stopCalls, 1)
}

func TestTryOpen_SkipsWhenAlreadyManaged(t *testing.T) {
	exec := newFakeExecutor()
	exec.orderResult = &exchange.OrderResult{OrderID: 1, Symbol: "BTCUSDT", ExecutedQty: 10, AvgPrice: 100}
	e := New(exec)

	err := e.tryOpen(context.Background(), longCandidate(), true)
	require.NoError(t, err)
	require.Empty(t, exec.stopCalls)
}

func TestTryOpen_SkipsWhenLiquidityPenaltyTooHigh(t *testing.T) {
	exec := newFakeExecutor()
	exec.orderResult = &exchange.OrderResult{OrderID: 1, Symbol: "BTCUSDT", ExecutedQty: 10, AvgPrice: 100}
	e := New(exec)

	c := longCandidate()
	c.LiquidityPenalty = 0.9 // 90% >> 40% gate
	err := e.tryOpen(context.Background(), c, false)
	require.NoError(t, err)
	require.Empty(t, exec.stopCalls)
}

func TestTryOpen_SkipsWhenCanOpenPositionFalse(t *testing.T) {
	exec := newFakeExecutor()
	exec.canOpen = false
	exec.orderResult = &exchange.OrderResult{OrderID: 1, Symbol: "BTCUSDT", ExecutedQty: 10, AvgPrice: 100}
	e := New(exec)

	err := e.tryOpen(context.Background(), longCandidate(), false)
	require.NoError(t, err)
	require.Empty(t, exec.stopCalls)
}
