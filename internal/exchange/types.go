// Package exchange wraps the Binance USDT-M futures API behind a rate
// limited, retrying facade, exposing typed operations any caller can drive
// for an arbitrary symbol.
package exchange

import "errors"

// Candle is one 1-minute bucket. openTime is strictly increasing within a
// buffer; rows with non-finite fields never reach here (dropped by the
// caller that parses raw kline rows).
type Candle struct {
	OpenTime            int64
	Open                float64
	High                float64
	Low                 float64
	Close               float64
	Volume              float64
	QuoteVolume         float64
	TakerBuyQuoteVolume float64
}

// SymbolFilters carries the exchange-info precision/size constraints a
// symbol trades under.
type SymbolFilters struct {
	Symbol             string
	StepSize           float64
	MinQty             float64
	MinNotional        float64
	PricePrecision     int
	QuantityPrecision  int
	TickSize           float64
}

// BookTicker is the best bid/ask snapshot.
type BookTicker struct {
	Symbol   string
	BidPrice float64
	BidQty   float64
	AskPrice float64
	AskQty   float64
}

// DepthLevel is one (price, quantity) rung of the order book.
type DepthLevel struct {
	Price float64
	Qty   float64
}

// Depth is a single order-book snapshot.
type Depth struct {
	Symbol string
	Bids   []DepthLevel
	Asks   []DepthLevel
}

// Balance is one asset line from the futures wallet.
type Balance struct {
	Asset              string
	Balance            float64
	AvailableBalance   float64
	CrossUnrealizedPnl float64
}

// PositionLeg is one side (long or short) of a symbol's exchange-reported
// position under dual-side mode.
type PositionLeg struct {
	Quantity      float64
	EntryPrice    float64
	UnrealizedPnl float64
}

// PositionSummary reports both sides of a hedge-mode position: a symbol
// may carry simultaneous long and short legs.
type PositionSummary struct {
	Symbol        string
	Net           float64
	Long          *PositionLeg
	Short         *PositionLeg
	UnrealizedPnl float64
}

// OrderRequest is a signed order instruction.
type OrderRequest struct {
	Symbol       string
	Side         string // BUY, SELL
	PositionSide string // LONG, SHORT
	Type         string // MARKET, STOP_MARKET
	Quantity     float64
	StopPrice    float64
	ReduceOnly   bool
	WorkingType  string // CONTRACT_PRICE
}

// OrderResult is what the facade hands back after a successful POST.
type OrderResult struct {
	OrderID       int64
	Symbol        string
	ExecutedQty   float64
	AvgPrice      float64
	Status        string
}

// Sentinel error kinds. No Facade or Limiter operation returns either of
// them: permanent rejections surface as an *HTTPStatusError with a 4xx
// status, and -4046 is swallowed inside SetMarginType.
var (
	// ErrPermanent marks a non-retryable 4xx (excluding 429) response.
	ErrPermanent = errors.New("exchange: permanent rejection")
	// ErrMarginTypeUnchanged is Binance code -4046, swallowed as success.
	ErrMarginTypeUnchanged = errors.New("exchange: margin type already set")
)
