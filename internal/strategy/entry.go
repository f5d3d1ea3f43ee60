package strategy

import (
	"context"
	"fmt"
	"log"
	"time"
)

// tryOpen evaluates one candidate against every entry gate and, if it
// passes, opens the position and registers its managed state.
func (e *Engine) tryOpen(ctx context.Context, candidate Candidate, alreadyManaged bool) error {
	fw, ok := selectFramework(candidate.Metrics)
	if !ok {
		return nil
	}
	dir, ok := fw.direction()
	if !ok {
		return nil
	}

	canOpen := e.executor.CanOpenPosition(candidate.Symbol)
	gates := evaluateGates(fw, dir, candidate.LiquidityPenalty, !alreadyManaged, canOpen)
	if !gates.pass() {
		return nil
	}

	if fw.child.atrValue <= 0 {
		return nil
	}

	cleanP := fw.cleanScore()
	gateC := fw.child.smallMoveGate
	k := kSl(cleanP, gateC)
	trail := trailMultiple(cleanP, gateC)
	scale := sizeScale(candidate.LiquidityPenalty)

	order, err := e.executor.CreateMarketOrder(ctx, candidate.Symbol, string(dir), scale)
	if err != nil {
		return fmt.Errorf("create market order: %w", err)
	}
	if order == nil {
		return nil
	}

	entryPrice := order.AvgPrice
	if entryPrice <= 0 {
		entryPrice = candidate.LastPrice
	}
	slDistance := k * fw.child.atrValue
	stopPrice := entryPrice - dir.sign()*slDistance

	if _, err := e.executor.PlaceStopLoss(ctx, candidate.Symbol, string(dir), order.ExecutedQty, stopPrice); err != nil {
		log.Printf("[strategy] place initial stop %s: %v", candidate.Symbol, err)
	}

	state := &ManagedPositionState{
		Symbol:            candidate.Symbol,
		Direction:         dir,
		ParentTimeframe:   fw.parentLabel,
		ChildTimeframe:    fw.childLabel,
		EntryPrice:        entryPrice,
		BaseQuantity:      order.ExecutedQty,
		TotalQuantity:     order.ExecutedQty,
		KSl:               k,
		InitialSlDistance: slDistance,
		SlDistance:        slDistance,
		StopPrice:         stopPrice,
		TrailAtrMultiple:  trail,
		CleanScore:        cleanP,
		GateScore:         gateC,
		OpenedAt:          time.Now(),
		HighestObserved:   entryPrice,
		LowestObserved:    entryPrice,
		ParentAtr:         fw.parent.atrValue,
		ChildAtr:          fw.child.atrValue,
		ParentMinutes:     minuteFor(fw.parentLabel),
		ChildMinutes:      minuteFor(fw.childLabel),
		RiskAmount:        slDistance * order.ExecutedQty,
		LastPrice:         entryPrice,

		ChildVolumeScore:     fw.child.volume,
		ChildFlowScore:       fw.child.flow,
		ChildEfficiencyScore: fw.child.efficiency,
	}
	if child, ok := candidate.Metrics[fw.childLabel]; ok {
		state.childCloseHistory = child.CloseHistory
		state.childEfficiencyHistory = child.EfficiencyHistory
		state.childMomentumHistory = child.MomentumHistory
	}

	e.mu.Lock()
	e.positions[candidate.Symbol] = state
	e.mu.Unlock()
	e.executor.MarkManaged(candidate.Symbol)

	return nil
}
