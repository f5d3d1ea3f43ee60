package exchange

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"
)

// Facade offers the typed operations the rest of the module needs,
// wrapping a *futures.Client so every call is routed through the shared
// Limiter instead of firing directly.
type Facade struct {
	client  *futures.Client
	limiter *Limiter
}

// New builds a Facade. useTestnet routes the client at Binance's futures
// testnet instead of the production API.
func New(apiKey, apiSecret string, useTestnet bool, limiter *Limiter) *Facade {
	if useTestnet {
		futures.UseTestnet = true
	}
	return &Facade{
		client:  futures.NewClient(apiKey, apiSecret),
		limiter: limiter,
	}
}

// ListPerpetuals returns tradable USDT-margined perpetuals with their
// quantization filters: the contractType=PERPETUAL, quoteAsset=USDT,
// status=TRADING intersection.
func (f *Facade) ListPerpetuals(ctx context.Context) ([]SymbolFilters, error) {
	var info *futures.ExchangeInfo
	err := f.limiter.Do(ctx, func(ctx context.Context) error {
		var e error
		info, e = f.client.NewExchangeInfoService().Do(ctx)
		return classify(e)
	})
	if err != nil {
		return nil, fmt.Errorf("list perpetuals: %w", err)
	}

	out := make([]SymbolFilters, 0, len(info.Symbols))
	for _, sym := range info.Symbols {
		if sym.ContractType != "PERPETUAL" || sym.QuoteAsset != "USDT" || sym.Status != "TRADING" {
			continue
		}
		sf := SymbolFilters{
			Symbol:            sym.Symbol,
			PricePrecision:    sym.PricePrecision,
			QuantityPrecision: sym.QuantityPrecision,
		}
		if lot := sym.LotSizeFilter(); lot != nil {
			sf.StepSize, _ = strconv.ParseFloat(lot.StepSize, 64)
			sf.MinQty, _ = strconv.ParseFloat(lot.MinQuantity, 64)
		}
		if mn := sym.MinNotionalFilter(); mn != nil {
			sf.MinNotional, _ = strconv.ParseFloat(mn.Notional, 64)
		}
		if pf := sym.PriceFilter(); pf != nil {
			sf.TickSize, _ = strconv.ParseFloat(pf.TickSize, 64)
		}
		out = append(out, sf)
	}
	return out, nil
}

// Get24hQuoteVolumes returns the rolling 24h quote-asset volume per symbol.
func (f *Facade) Get24hQuoteVolumes(ctx context.Context) (map[string]float64, error) {
	var stats []*futures.PriceChangeStats
	err := f.limiter.Do(ctx, func(ctx context.Context) error {
		var e error
		stats, e = f.client.NewListPriceChangeStatsService().Do(ctx)
		return classify(e)
	})
	if err != nil {
		return nil, fmt.Errorf("24h quote volumes: %w", err)
	}

	out := make(map[string]float64, len(stats))
	for _, s := range stats {
		qv, err := strconv.ParseFloat(s.QuoteVolume, 64)
		if err != nil {
			continue
		}
		out[s.Symbol] = qv
	}
	return out, nil
}

// GetKlines fetches 1-minute candles, deduped and ordered by openTime, with
// non-finite rows dropped.
func (f *Facade) GetKlines(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	var raw []*futures.Kline
	err := f.limiter.Do(ctx, func(ctx context.Context) error {
		var e error
		raw, e = f.client.NewKlinesService().Symbol(symbol).Interval("1m").Limit(limit).Do(ctx)
		return classify(e)
	})
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}

	out := make([]Candle, 0, len(raw))
	var lastOpenTime int64 = -1
	for _, k := range raw {
		c, ok := parseCandle(k)
		if !ok || c.OpenTime <= lastOpenTime {
			continue
		}
		out = append(out, c)
		lastOpenTime = c.OpenTime
	}
	return out, nil
}

func parseCandle(k *futures.Kline) (Candle, bool) {
	fields := make([]float64, 7)
	raws := []string{k.Open, k.High, k.Low, k.Close, k.Volume, k.QuoteAssetVolume, k.TakerBuyQuoteAssetVolume}
	for i, r := range raws {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil || isNonFinite(v) {
			return Candle{}, false
		}
		fields[i] = v
	}
	return Candle{
		OpenTime:            k.OpenTime,
		Open:                fields[0],
		High:                fields[1],
		Low:                 fields[2],
		Close:               fields[3],
		Volume:              fields[4],
		QuoteVolume:         fields[5],
		TakerBuyQuoteVolume: fields[6],
	}, true
}

func isNonFinite(v float64) bool { return v != v || v > 1e300 || v < -1e300 }

// GetBookTicker fetches the best bid/ask for a symbol.
func (f *Facade) GetBookTicker(ctx context.Context, symbol string) (*BookTicker, error) {
	var tickers []*futures.BookTicker
	err := f.limiter.Do(ctx, func(ctx context.Context) error {
		var e error
		tickers, e = f.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
		return classify(e)
	})
	if err != nil || len(tickers) == 0 {
		if err == nil {
			err = fmt.Errorf("no book ticker for %s", symbol)
		}
		return nil, err
	}

	t := tickers[0]
	bid, _ := strconv.ParseFloat(t.BidPrice, 64)
	ask, _ := strconv.ParseFloat(t.AskPrice, 64)
	bidQty, _ := strconv.ParseFloat(t.BidQuantity, 64)
	askQty, _ := strconv.ParseFloat(t.AskQuantity, 64)
	return &BookTicker{Symbol: symbol, BidPrice: bid, BidQty: bidQty, AskPrice: ask, AskQty: askQty}, nil
}

// GetDepth fetches an order-book snapshot at the given level count.
func (f *Facade) GetDepth(ctx context.Context, symbol string, limit int) (*Depth, error) {
	var resp *futures.DepthResponse
	err := f.limiter.Do(ctx, func(ctx context.Context) error {
		var e error
		resp, e = f.client.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
		return classify(e)
	})
	if err != nil {
		return nil, fmt.Errorf("depth %s: %w", symbol, err)
	}

	d := &Depth{Symbol: symbol}
	for _, b := range resp.Bids {
		price, _ := strconv.ParseFloat(b.Price, 64)
		qty, _ := strconv.ParseFloat(b.Quantity, 64)
		d.Bids = append(d.Bids, DepthLevel{Price: price, Qty: qty})
	}
	for _, a := range resp.Asks {
		price, _ := strconv.ParseFloat(a.Price, 64)
		qty, _ := strconv.ParseFloat(a.Quantity, 64)
		d.Asks = append(d.Asks, DepthLevel{Price: price, Qty: qty})
	}
	return d, nil
}

// GetBalances fetches the futures wallet balances.
func (f *Facade) GetBalances(ctx context.Context) ([]Balance, error) {
	var raw []*futures.Balance
	err := f.limiter.Do(ctx, func(ctx context.Context) error {
		var e error
		raw, e = f.client.NewGetBalanceService().Do(ctx)
		return classify(e)
	})
	if err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}

	out := make([]Balance, 0, len(raw))
	for _, b := range raw {
		bal, _ := strconv.ParseFloat(b.Balance, 64)
		avail, _ := strconv.ParseFloat(b.AvailableBalance, 64)
		pnl, _ := strconv.ParseFloat(b.CrossUnPnl, 64)
		out = append(out, Balance{Asset: b.Asset, Balance: bal, AvailableBalance: avail, CrossUnrealizedPnl: pnl})
	}
	return out, nil
}

// GetPositions fetches all open positions, folding long/short legs of the
// same symbol into one PositionSummary (dual-side mode).
func (f *Facade) GetPositions(ctx context.Context) (map[string]*PositionSummary, error) {
	var raw []*futures.PositionRisk
	err := f.limiter.Do(ctx, func(ctx context.Context) error {
		var e error
		raw, e = f.client.NewGetPositionRiskService().Do(ctx)
		return classify(e)
	})
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}

	out := make(map[string]*PositionSummary)
	for _, p := range raw {
		qty, _ := strconv.ParseFloat(p.PositionAmt, 64)
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		pnl, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)

		summary, ok := out[p.Symbol]
		if !ok {
			summary = &PositionSummary{Symbol: p.Symbol}
			out[p.Symbol] = summary
		}
		summary.UnrealizedPnl += pnl
		summary.Net += qty

		leg := &PositionLeg{Quantity: qty, EntryPrice: entry, UnrealizedPnl: pnl}
		switch p.PositionSide {
		case "LONG":
			summary.Long = leg
		case "SHORT":
			summary.Short = leg
		}
	}
	return out, nil
}

// GetMarkPrice fetches the /fapi/v1/ticker/price last-price proxy used as
// the mark price throughout the strategy engine.
func (f *Facade) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	var prices []*futures.SymbolPrice
	err := f.limiter.Do(ctx, func(ctx context.Context) error {
		var e error
		prices, e = f.client.NewListPricesService().Symbol(symbol).Do(ctx)
		return classify(e)
	})
	if err != nil || len(prices) == 0 {
		if err == nil {
			err = fmt.Errorf("no price for %s", symbol)
		}
		return 0, err
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

// SetDualSidePosition enables or disables hedge mode.
func (f *Facade) SetDualSidePosition(ctx context.Context, dual bool) error {
	return f.limiter.Do(ctx, func(ctx context.Context) error {
		return classify(f.client.NewChangePositionModeService().DualSide(dual).Do(ctx))
	})
}

// SetMarginType sets CROSSED/ISOLATED for a symbol. Binance's -4046 ("no
// change") is swallowed as success.
func (f *Facade) SetMarginType(ctx context.Context, symbol string, marginType futures.MarginType) error {
	err := f.limiter.Do(ctx, func(ctx context.Context) error {
		return classify(f.client.NewChangeMarginTypeService().Symbol(symbol).MarginType(marginType).Do(ctx))
	})
	if isMarginTypeUnchanged(err) {
		return nil
	}
	return err
}

// SetLeverage sets the symbol leverage.
func (f *Facade) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return f.limiter.Do(ctx, func(ctx context.Context) error {
		_, e := f.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
		return classify(e)
	})
}

// PostOrder places a signed order and normalizes the response.
func (f *Facade) PostOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	var resp *futures.CreateOrderResponse
	err := f.limiter.Do(ctx, func(ctx context.Context) error {
		svc := f.client.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(futures.SideType(req.Side)).
			PositionSide(futures.PositionSideType(req.PositionSide)).
			Type(futures.OrderType(req.Type))

		if req.Quantity > 0 {
			svc = svc.Quantity(strconv.FormatFloat(req.Quantity, 'f', -1, 64))
		}
		if req.Type == string(futures.OrderTypeStopMarket) {
			svc = svc.StopPrice(strconv.FormatFloat(req.StopPrice, 'f', -1, 64)).
				TimeInForce(futures.TimeInForceTypeGTC)
			if req.WorkingType != "" {
				svc = svc.WorkingType(futures.WorkingType(req.WorkingType))
			}
			if req.ReduceOnly {
				svc = svc.ClosePosition(true)
			}
		}

		var e error
		resp, e = svc.Do(ctx)
		return classify(e)
	})
	if err != nil {
		log.Printf("[exchange] order rejected %s %s: %v", req.Symbol, req.Type, err)
		return nil, err
	}

	qty, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	avg, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	return &OrderResult{
		OrderID:     resp.OrderID,
		Symbol:      resp.Symbol,
		ExecutedQty: qty,
		AvgPrice:    avg,
		Status:      string(resp.Status),
	}, nil
}

// CancelAllOpenOrders cancels every working order on a symbol (used before
// replacing a stop, and when closing a position).
func (f *Facade) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	return f.limiter.Do(ctx, func(ctx context.Context) error {
		return classify(f.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx))
	})
}

func isMarginTypeUnchanged(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *futures.APIError
	return errorsAsAPIError(err, &apiErr) && apiErr.Code == -4046
}
