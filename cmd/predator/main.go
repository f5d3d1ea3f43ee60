// Command predator runs the Futures Movers & Predator Strategy scanner: a
// continuous cycle of universe selection, candle fetch, metric/score
// fusion, liquidity probing, and strategy-engine position management.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yohannesjx/futures-predator/internal/config"
	"github.com/yohannesjx/futures-predator/internal/exchange"
	"github.com/yohannesjx/futures-predator/internal/executor"
	"github.com/yohannesjx/futures-predator/internal/httpapi"
	"github.com/yohannesjx/futures-predator/internal/liquidity"
	"github.com/yohannesjx/futures-predator/internal/metrics"
	"github.com/yohannesjx/futures-predator/internal/movers"
	"github.com/yohannesjx/futures-predator/internal/notify"
	"github.com/yohannesjx/futures-predator/internal/strategy"
	"github.com/yohannesjx/futures-predator/internal/universe"
)

const depthLevels = 20

func main() {
	log.Println("futures-predator starting")

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	cfg := config.Load()

	limiter := exchange.NewLimiter(cfg.RequestIntervalMs, cfg.MaxRetryAttempts, cfg.RetryBackoffBaseMs, cfg.MaxRetryBackoffMs)
	facade := exchange.New(cfg.ExchangeAPIKey, cfg.ExchangeAPISecret, !cfg.TradingEnabled, limiter)

	sel := universe.New(&universeAdapter{facade}, cfg.VolumeRefreshInterval, cfg.MaxSelectedSymbols)
	pipeline := movers.New(sel, &candleAdapter{facade}, &liquidityAdapter{facade})

	exec := executor.New(facade, cfg.TradingEnabled, cfg.Leverage, cfg.MaxPositions)
	engine := strategy.New(exec)

	notifier, err := notify.New(cfg.TelegramBotToken, cfg.TelegramChatID)
	if err != nil {
		log.Printf("notifier disabled: %v", err)
	}

	mux := http.NewServeMux()
	apiServer, hub := httpapi.NewServer(mux)
	throttler := httpapi.NewPriceThrottler(hub, func(symbol string, price float64) {
		engine.HandleLiveTick(context.Background(), symbol, price)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TradingEnabled {
		if err := exec.Initialize(ctx); err != nil {
			log.Printf("executor initialize: %v", err)
		}
	}

	throttleStop := make(chan struct{})
	go throttler.Start(throttleStop)
	defer close(throttleStop)

	if notifier != nil {
		go notifier.StartListener(notify.Callbacks{
			Status: func() string { return statusReport(engine) },
			Report: func() string { return statusReport(engine) },
		})
	}

	go func() {
		addr := ":" + itoa(cfg.HTTPPort)
		log.Printf("http api listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("http server stopped: %v", err)
		}
	}()

	runLoop(ctx, cfg.RefreshInterval, pipeline, engine, apiServer, notifier)
	log.Println("futures-predator shutting down")
}

// runLoop drives the periodic cycle: one Pipeline.Run + Strategy Engine
// pass per tick, dropping a tick if the previous cycle is still running.
func runLoop(ctx context.Context, interval time.Duration, pipeline *movers.Pipeline, engine *strategy.Engine, api *httpapi.Server, notifier *notify.Notifier) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	busy := make(chan struct{}, 1)
	busy <- struct{}{}

	runCycle(ctx, pipeline, engine, api, notifier)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case <-busy:
				go func() {
					defer func() { busy <- struct{}{} }()
					runCycle(ctx, pipeline, engine, api, notifier)
				}()
			default:
				log.Println("previous cycle still running, dropping this tick")
			}
		}
	}
}

func runCycle(ctx context.Context, pipeline *movers.Pipeline, engine *strategy.Engine, api *httpapi.Server, notifier *notify.Notifier) {
	result, err := pipeline.Run(ctx)
	if err != nil {
		log.Printf("cycle failed: %v", err)
		return
	}
	api.SetLatest(result)

	candidates := make(map[string]strategy.Candidate, len(result.Metrics))
	for symbol, byTf := range result.Metrics {
		candidates[symbol] = strategy.Candidate{
			Symbol:           symbol,
			Metrics:          byTf,
			LastPrice:        result.LastPrices[symbol],
			LiquidityPenalty: result.LiquidityPenalties[symbol],
		}
	}
	engine.RunCycle(ctx, candidates)

	if notifier != nil {
		notifier.Send(notify.FormatAggregatedTop(result, 20))
	}
}

func statusReport(engine *strategy.Engine) string {
	positions := engine.Positions()
	if len(positions) == 0 {
		return "No managed positions."
	}
	report := "Managed positions:\n"
	for symbol, state := range positions {
		report += symbol + " " + string(state.Direction) + "\n"
	}
	return report
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

// universeAdapter narrows exchange.Facade's richer SymbolFilters listing
// down to the plain symbol names universe.Fetcher wants.
type universeAdapter struct {
	facade *exchange.Facade
}

func (u *universeAdapter) ListPerpetuals(ctx context.Context) ([]string, error) {
	filters, err := u.facade.ListPerpetuals(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(filters))
	for i, f := range filters {
		out[i] = f.Symbol
	}
	return out, nil
}

func (u *universeAdapter) Get24hQuoteVolumes(ctx context.Context) (map[string]float64, error) {
	return u.facade.Get24hQuoteVolumes(ctx)
}

// candleAdapter converts exchange.Candle rows into metrics.Candle rows so
// the movers package never imports the exchange client.
type candleAdapter struct {
	facade *exchange.Facade
}

func (c *candleAdapter) GetKlines(ctx context.Context, symbol string, limit int) ([]metrics.Candle, error) {
	raw, err := c.facade.GetKlines(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}
	out := make([]metrics.Candle, len(raw))
	for i, k := range raw {
		out[i] = metrics.Candle{
			OpenTime:            k.OpenTime,
			Open:                k.Open,
			High:                k.High,
			Low:                 k.Low,
			Close:               k.Close,
			Volume:              k.Volume,
			QuoteVolume:         k.QuoteVolume,
			TakerBuyQuoteVolume: k.TakerBuyQuoteVolume,
		}
	}
	return out, nil
}

// liquidityAdapter converts exchange.Facade's pointer book/depth types
// into the liquidity package's decoupled value types.
type liquidityAdapter struct {
	facade *exchange.Facade
}

func (l *liquidityAdapter) GetBookTicker(ctx context.Context, symbol string) (liquidity.BookTicker, error) {
	t, err := l.facade.GetBookTicker(ctx, symbol)
	if err != nil {
		return liquidity.BookTicker{}, err
	}
	return liquidity.BookTicker{BidPrice: t.BidPrice, AskPrice: t.AskPrice}, nil
}

func (l *liquidityAdapter) GetDepth(ctx context.Context, symbol string) (liquidity.Depth, error) {
	d, err := l.facade.GetDepth(ctx, symbol, depthLevels)
	if err != nil {
		return liquidity.Depth{}, err
	}
	out := liquidity.Depth{
		Bids: make([]liquidity.DepthLevel, len(d.Bids)),
		Asks: make([]liquidity.DepthLevel, len(d.Asks)),
	}
	for i, b := range d.Bids {
		out.Bids[i] = liquidity.DepthLevel{Price: b.Price, Qty: b.Qty}
	}
	for i, a := range d.Asks {
		out.Asks[i] = liquidity.DepthLevel{Price: a.Price, Qty: a.Qty}
	}
	return out, nil
}
