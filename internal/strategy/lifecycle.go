package strategy

import (
	"context"
	"log"
	"math"
	"time"
)

const beBufferPct = 0.0005 // 0.05%

// evaluateLifecycle re-runs every management rule against the current
// snapshot of state, in order: break-even, trailing, partials, adds, time
// stop, structure break. Time stop and structure break run last so they
// judge against this cycle's freshly moved stop rather than the previous
// cycle's.
func (e *Engine) evaluateLifecycle(ctx context.Context, state *ManagedPositionState) {
	if state.LastPrice <= 0 || state.InitialSlDistance <= 0 {
		return
	}

	r := state.Direction.sign() * (state.LastPrice - state.EntryPrice) / state.InitialSlDistance
	if r > state.MaxR {
		state.MaxR = r
	}

	e.evaluateBreakEven(ctx, state)
	e.evaluateTrailing(ctx, state)
	e.evaluatePartials(ctx, state, r)
	e.evaluateAdds(ctx, state, r)

	if e.evaluateTimeStop(ctx, state) {
		return
	}
	e.evaluateStructureBreak(ctx, state)
}

func strongChildVolume(state *ManagedPositionState) bool {
	return state.ChildVolumeScore >= 55 && state.ChildFlowScore >= 55
}

// evaluateBreakEven moves the stop to entry (plus a tiny buffer against the
// current price) the first time maxR clears the threshold.
func (e *Engine) evaluateBreakEven(ctx context.Context, state *ManagedPositionState) {
	if state.BeMoved {
		return
	}
	threshold := 1.3
	if strongChildVolume(state) {
		threshold = 1.0
	}
	if state.MaxR < threshold {
		return
	}

	e.moveToBreakEven(ctx, state)
}

func (e *Engine) moveToBreakEven(ctx context.Context, state *ManagedPositionState) {
	buffer := state.LastPrice * beBufferPct
	newStop := state.EntryPrice - state.Direction.sign()*buffer

	if !improvesStop(state.Direction, state.StopPrice, newStop) {
		state.BeMoved = true
		return
	}

	if _, err := e.executor.ReplaceStopLoss(ctx, state.Symbol, string(state.Direction), state.TotalQuantity, newStop); err != nil {
		log.Printf("[strategy] break-even %s: %v", state.Symbol, err)
		return
	}
	state.StopPrice = newStop
	state.BeMoved = true
}

// improvesStop reports whether candidate tightens (moves in the trade's
// favor relative to) the current stop.
func improvesStop(dir Direction, current, candidate float64) bool {
	if current == 0 {
		return true
	}
	if dir == Long {
		return candidate > current
	}
	return candidate < current
}

// evaluateTrailing recomputes the ATR trail off the higher of the parent
// window extreme and the live extreme, applying only if it tightens and
// stays on the safe side of the current price.
func (e *Engine) evaluateTrailing(ctx context.Context, state *ManagedPositionState) {
	trailMult := state.TrailAtrMultiple
	if trailReductionDue(state) {
		trailMult = math.Max(trailMult-0.4, 1.6)
	}

	var ref, newTrail float64
	if state.Direction == Long {
		ref = math.Max(state.HighestObserved, state.LastPrice)
		newTrail = ref - trailMult*state.ParentAtr
	} else {
		ref = state.LowestObserved
		if ref == 0 || state.LastPrice < ref {
			ref = state.LastPrice
		}
		newTrail = ref + trailMult*state.ParentAtr
	}

	current := state.TrailPrice
	if current == 0 {
		current = state.StopPrice
	}
	if !improvesStop(state.Direction, current, newTrail) {
		return
	}
	if state.Direction == Long && newTrail >= state.LastPrice {
		return
	}
	if state.Direction == Short && newTrail <= state.LastPrice {
		return
	}

	if _, err := e.executor.ReplaceStopLoss(ctx, state.Symbol, string(state.Direction), state.TotalQuantity, newTrail); err != nil {
		log.Printf("[strategy] trail %s: %v", state.Symbol, err)
		return
	}
	state.TrailPrice = newTrail
	state.StopPrice = newTrail
}

// trailReductionDue reports whether the child timeframe's efficiency has
// stopped improving over the last 10 samples, or momentum has net
// decreased over the last 3 — either cuts the trail multiple by 0.4
// (floor 1.6) so a fading move gets less trailing room.
func trailReductionDue(state *ManagedPositionState) bool {
	if nonIncreasing(state.childEfficiencyHistory, 10) {
		return true
	}
	return netDecreasing(state.childMomentumHistory, 3)
}

func nonIncreasing(hist []float64, n int) bool {
	if len(hist) < n {
		return false
	}
	tail := hist[len(hist)-n:]
	for i := 1; i < len(tail); i++ {
		if tail[i] > tail[i-1] {
			return false
		}
	}
	return true
}

func netDecreasing(hist []float64, n int) bool {
	if len(hist) < n {
		return false
	}
	tail := hist[len(hist)-n:]
	return tail[len(tail)-1] < tail[0]
}

// evaluatePartials takes profit in two stages.
func (e *Engine) evaluatePartials(ctx context.Context, state *ManagedPositionState, r float64) {
	cleanTrend := state.CleanScore >= 0.6 && state.GateScore >= 0.7

	if !state.PartialOneTaken {
		generalPath := !cleanTrend && !strongChildVolume(state) && r >= 1.5
		cleanPath := cleanTrend && r >= 2.0
		if cleanPath || generalPath {
			qty := math.Min(0.3*state.BaseQuantity, state.TotalQuantity)
			if e.reduce(ctx, state, qty) {
				state.PartialOneTaken = true
				if generalPath && !state.BeMoved {
					e.moveToBreakEven(ctx, state)
				}
			}
		}
		return
	}

	if !state.PartialTwoTaken && !cleanTrend && r >= 2.0 {
		qty := math.Min(0.3*state.BaseQuantity, state.TotalQuantity)
		if e.reduce(ctx, state, qty) {
			state.PartialTwoTaken = true
		}
	}
}

func (e *Engine) reduce(ctx context.Context, state *ManagedPositionState, qty float64) bool {
	if qty <= 0 || qty > state.TotalQuantity {
		return false
	}
	if _, err := e.executor.ReducePosition(ctx, state.Symbol, string(state.Direction), qty); err != nil {
		log.Printf("[strategy] reduce %s: %v", state.Symbol, err)
		return false
	}
	state.TotalQuantity -= qty
	return true
}

// evaluateAdds pyramids into a confirmed clean trend.
func (e *Engine) evaluateAdds(ctx context.Context, state *ManagedPositionState, r float64) {
	if !state.BeMoved || state.AddCount >= 2 {
		return
	}
	if state.CleanScore < 0.65 || state.GateScore < 0.7 || state.ChildEfficiencyScore < 55 {
		return
	}

	var threshold, qty float64
	switch state.AddCount {
	case 0:
		threshold, qty = 1.0, 0.5*state.BaseQuantity
	case 1:
		threshold, qty = 2.0, 0.33*state.BaseQuantity
	default:
		return
	}
	if r < threshold {
		return
	}

	if _, err := e.executor.IncreasePosition(ctx, state.Symbol, string(state.Direction), qty); err != nil {
		log.Printf("[strategy] add %s: %v", state.Symbol, err)
		return
	}
	state.TotalQuantity += qty
	state.AddCount++

	stop := state.TrailPrice
	if stop == 0 {
		stop = state.StopPrice
	}
	if _, err := e.executor.ReplaceStopLoss(ctx, state.Symbol, string(state.Direction), state.TotalQuantity, stop); err != nil {
		log.Printf("[strategy] re-stop after add %s: %v", state.Symbol, err)
	}
}

// evaluateTimeStop tightens then closes a position that hasn't produced
// meaningful R within a number of child candles scaled by the
// parent/child timeframe ratio.
// Returns true if the position was closed.
func (e *Engine) evaluateTimeStop(ctx context.Context, state *ManagedPositionState) bool {
	if state.ChildMinutes <= 0 || state.ParentMinutes <= 0 {
		return false
	}
	thresh := math.Max(1, math.Ceil(3*float64(state.ParentMinutes)/float64(state.ChildMinutes)))
	elapsedChildCandles := math.Floor(time.Since(state.OpenedAt).Minutes() / float64(state.ChildMinutes))

	switch state.TimeStopStage {
	case 0:
		if elapsedChildCandles >= thresh && state.MaxR < 0.5 {
			newStop := state.EntryPrice - state.Direction.sign()*0.5*state.InitialSlDistance
			if improvesStop(state.Direction, state.StopPrice, newStop) {
				if _, err := e.executor.ReplaceStopLoss(ctx, state.Symbol, string(state.Direction), state.TotalQuantity, newStop); err != nil {
					log.Printf("[strategy] time-stop tighten %s: %v", state.Symbol, err)
				} else {
					state.StopPrice = newStop
				}
			}
			state.TimeStopStage = 1
			state.TimeStopTimestamp = time.Now()
		}
	case 1:
		extra := thresh * float64(state.ChildMinutes)
		if time.Since(state.TimeStopTimestamp).Minutes() >= extra && state.MaxR < 0.5 {
			e.closePosition(ctx, state, "time-stop")
			return true
		}
	}
	return false
}

// evaluateStructureBreak closes a position whose last two child closes sit
// on the adverse side of the active stop/trail plus an ATR buffer for two
// consecutive evaluations. Returns true if the position was closed.
func (e *Engine) evaluateStructureBreak(ctx context.Context, state *ManagedPositionState) bool {
	if len(state.childCloseHistory) < 2 || state.ChildAtr <= 0 {
		state.StructureBreakCounter = 0
		return false
	}

	base := state.TrailPrice
	if base == 0 {
		base = state.StopPrice
	}
	threshold := base + state.Direction.sign()*0.3*state.ChildAtr

	recent := state.childCloseHistory[len(state.childCloseHistory)-2:]
	broken := true
	for _, c := range recent {
		if state.Direction == Long && c >= threshold {
			broken = false
		}
		if state.Direction == Short && c <= threshold {
			broken = false
		}
	}

	if !broken {
		state.StructureBreakCounter = 0
		return false
	}

	state.StructureBreakCounter++
	if state.StructureBreakCounter >= 2 {
		e.closePosition(ctx, state, "structure-break")
		return true
	}
	return false
}

func (e *Engine) closePosition(ctx context.Context, state *ManagedPositionState, reason string) {
	if _, err := e.executor.Close(ctx, state.Symbol, string(state.Direction), state.TotalQuantity); err != nil {
		log.Printf("[strategy] close %s (%s): %v", state.Symbol, reason, err)
		return
	}
	e.mu.Lock()
	delete(e.positions, state.Symbol)
	e.mu.Unlock()
}
