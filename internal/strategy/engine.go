package strategy

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/yohannesjx/futures-predator/internal/exchange"
)

const residualEpsilon = 1e-6

// Executor is the subset of executor.Executor the strategy engine drives.
type Executor interface {
	CanOpenPosition(symbol string) bool
	MarkManaged(symbol string)
	UnmarkManaged(symbol string)
	PositionQuantity(symbol, direction string) float64
	CreateMarketOrder(ctx context.Context, symbol, direction string, sizeScale float64) (*exchange.OrderResult, error)
	PlaceStopLoss(ctx context.Context, symbol, direction string, qty, stopPrice float64) (*exchange.OrderResult, error)
	ReplaceStopLoss(ctx context.Context, symbol, direction string, qty, stopPrice float64) (*exchange.OrderResult, error)
	ReducePosition(ctx context.Context, symbol, direction string, qty float64) (*exchange.OrderResult, error)
	IncreasePosition(ctx context.Context, symbol, direction string, qty float64) (*exchange.OrderResult, error)
	Close(ctx context.Context, symbol, direction string, qty float64) (*exchange.OrderResult, error)
}

type liveTick struct {
	price float64
	at    time.Time
}

type symbolMailbox struct {
	mu         sync.Mutex
	processing bool
	pending    *liveTick
}

// Engine owns every ManagedPositionState and drives the entry/lifecycle
// state machine.
type Engine struct {
	executor Executor

	mu        sync.Mutex
	positions map[string]*ManagedPositionState

	mailboxMu sync.Mutex
	mailboxes map[string]*symbolMailbox
}

// New builds an Engine.
func New(executor Executor) *Engine {
	return &Engine{
		executor:  executor,
		positions: make(map[string]*ManagedPositionState),
		mailboxes: make(map[string]*symbolMailbox),
	}
}

// RunCycle reconciles managed state against the exchange, re-evaluates
// existing positions, opens new ones from candidates that pass every gate,
// then re-evaluates once more so freshly opened positions see at least one
// management pass within the same cycle.
func (e *Engine) RunCycle(ctx context.Context, candidates map[string]Candidate) {
	e.reconcile(ctx)
	e.evaluateManaged(ctx, candidates)
	e.openNewPositions(ctx, candidates)
	e.evaluateManaged(ctx, candidates)
}

// reconcile drops managed state for any symbol the exchange no longer
// reports a matching-direction quantity for, and syncs TotalQuantity
// otherwise.
func (e *Engine) reconcile(ctx context.Context) {
	e.mu.Lock()
	symbols := make([]string, 0, len(e.positions))
	for s := range e.positions {
		symbols = append(symbols, s)
	}
	e.mu.Unlock()

	for _, symbol := range symbols {
		e.mu.Lock()
		state, ok := e.positions[symbol]
		e.mu.Unlock()
		if !ok {
			continue
		}

		qty := e.executor.PositionQuantity(symbol, string(state.Direction))
		if qty < residualEpsilon {
			e.drop(symbol)
			continue
		}

		e.mu.Lock()
		state.TotalQuantity = qty
		e.mu.Unlock()
	}
}

func (e *Engine) drop(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.positions, symbol)
	e.executor.UnmarkManaged(symbol)
}

func (e *Engine) evaluateManaged(ctx context.Context, candidates map[string]Candidate) {
	e.mu.Lock()
	symbols := make([]string, 0, len(e.positions))
	for s := range e.positions {
		symbols = append(symbols, s)
	}
	e.mu.Unlock()

	for _, symbol := range symbols {
		e.mu.Lock()
		state := e.positions[symbol]
		e.mu.Unlock()
		if state == nil {
			continue
		}

		candidate, hasCandidate := candidates[symbol]
		if hasCandidate {
			e.refreshSnapshots(state, candidate)
			state.LastPrice = candidate.LastPrice
		}
		e.evaluateLifecycle(ctx, state)
	}
}

func (e *Engine) openNewPositions(ctx context.Context, candidates map[string]Candidate) {
	for symbol, candidate := range candidates {
		e.mu.Lock()
		_, managed := e.positions[symbol]
		e.mu.Unlock()

		if err := e.tryOpen(ctx, candidate, managed); err != nil {
			log.Printf("[strategy] open %s: %v", symbol, err)
		}
	}
}

// HandleLiveTick applies a mark-price tick to a managed symbol. If a prior
// tick is in flight for the same symbol, the new one replaces any already
// buffered tick (single-slot, replace-newest) and is processed once the
// current pass returns.
func (e *Engine) HandleLiveTick(ctx context.Context, symbol string, price float64) {
	e.mu.Lock()
	_, managed := e.positions[symbol]
	e.mu.Unlock()
	if !managed {
		return
	}

	box := e.mailboxFor(symbol)
	box.mu.Lock()
	if box.processing {
		box.pending = &liveTick{price: price, at: time.Now()}
		box.mu.Unlock()
		return
	}
	box.processing = true
	box.mu.Unlock()

	e.processTick(ctx, symbol, price)

	for {
		box.mu.Lock()
		next := box.pending
		box.pending = nil
		if next == nil {
			box.processing = false
			box.mu.Unlock()
			return
		}
		box.mu.Unlock()
		e.processTick(ctx, symbol, next.price)
	}
}

func (e *Engine) mailboxFor(symbol string) *symbolMailbox {
	e.mailboxMu.Lock()
	defer e.mailboxMu.Unlock()
	box, ok := e.mailboxes[symbol]
	if !ok {
		box = &symbolMailbox{}
		e.mailboxes[symbol] = box
	}
	return box
}

func (e *Engine) processTick(ctx context.Context, symbol string, price float64) {
	e.mu.Lock()
	state := e.positions[symbol]
	e.mu.Unlock()
	if state == nil {
		return
	}

	state.LastPrice = price
	if price > state.HighestObserved || state.HighestObserved == 0 {
		state.HighestObserved = price
	}
	if price < state.LowestObserved || state.LowestObserved == 0 {
		state.LowestObserved = price
	}
	state.childCloseHistory = pushCapped(state.childCloseHistory, price)

	e.evaluateLifecycle(ctx, state)
}

func pushCapped(hist []float64, v float64) []float64 {
	const cap_ = 240
	hist = append(hist, v)
	if len(hist) > cap_ {
		hist = hist[len(hist)-cap_:]
	}
	return hist
}

// refreshSnapshots copies the latest cycle's child-timeframe history arrays
// and ATR values into the managed state (movers data is immutable per
// cycle; the engine only ever reads it).
func (e *Engine) refreshSnapshots(state *ManagedPositionState, candidate Candidate) {
	if child, ok := candidate.Metrics[state.ChildTimeframe]; ok {
		state.ChildAtr = child.AtrValue
		state.childEfficiencyHistory = child.EfficiencyHistory
		state.childMomentumHistory = child.MomentumHistory
		if len(child.CloseHistory) > 0 {
			state.childCloseHistory = child.CloseHistory
		}
		childScores := scoresFor(child)
		state.ChildVolumeScore = childScores.volume
		state.ChildFlowScore = childScores.flow
		state.ChildEfficiencyScore = childScores.efficiency
	}
	if parent, ok := candidate.Metrics[state.ParentTimeframe]; ok {
		state.ParentAtr = parent.AtrValue
		state.HighestObserved = math.Max(state.HighestObserved, parent.HighestClose)
		state.LowestObserved = minNonZero(state.LowestObserved, parent.LowestClose)
	}
}

func minNonZero(a, b float64) float64 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	return math.Min(a, b)
}

// Positions returns a snapshot of every currently managed symbol's state,
// for the optional HTTP surface / notifier.
func (e *Engine) Positions() map[string]ManagedPositionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]ManagedPositionState, len(e.positions))
	for k, v := range e.positions {
		out[k] = *v
	}
	return out
}
