package notify

import (
	"fmt"
	"strings"

	"github.com/yohannesjx/futures-predator/internal/scorer"
)

// PositionEvent is the notifier's own, decoupled view of a managed
// position lifecycle event — callers adapt their own types into this
// rather than the notifier importing the strategy package directly.
type PositionEvent struct {
	Symbol    string
	Direction string
	EntryPrice float64
	StopPrice  float64
	Quantity   float64
	Reason     string // "opened", "break-even", "partial", "add", "time-stop", "structure-break", "closed"
}

// FormatPositionEvent renders one lifecycle event as a short Telegram
// message with a bold header and bulleted fields.
func FormatPositionEvent(ev PositionEvent) string {
	var b strings.Builder
	switch ev.Reason {
	case "opened":
		fmt.Fprintf(&b, "*POSITION OPENED*\n")
	case "closed", "time-stop", "structure-break":
		fmt.Fprintf(&b, "*POSITION CLOSED (%s)*\n", strings.ToUpper(ev.Reason))
	default:
		fmt.Fprintf(&b, "*POSITION UPDATE: %s*\n", strings.ToUpper(ev.Reason))
	}
	fmt.Fprintf(&b, "Pair: %s | Side: %s\n", ev.Symbol, ev.Direction)
	fmt.Fprintf(&b, "Entry: %.6f | Stop: %.6f | Qty: %.6f\n", ev.EntryPrice, ev.StopPrice, ev.Quantity)
	return b.String()
}

// FormatAggregatedTop renders the cross-timeframe top board into a single
// message body; the caller's Send call handles splitting/pacing if the
// rendered text exceeds one Telegram message.
func FormatAggregatedTop(result scorer.Result, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*TOP MOVERS (aggregated)*\n")
	for i, e := range result.AggregatedTop {
		if i >= limit {
			break
		}
		flow := ""
		if e.Entry.HasFlow {
			flow = fmt.Sprintf(" | flow %.1f%% %s", e.Entry.FlowPercent, e.Entry.FlowLabel)
		}
		fmt.Fprintf(&b, "%2d. %s  %+.2f%%  (%s)  final=%.3f%s\n",
			i+1, e.Entry.Symbol, e.Entry.ChangePercent, e.Timeframe, e.Metrics.FinalScore, flow)
	}
	return b.String()
}

// FormatSnapshot renders one timeframe's gainers/losers board.
func FormatSnapshot(snap scorer.MoversSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s GAINERS*\n", snap.Timeframe)
	for i, e := range snap.TopGainers {
		fmt.Fprintf(&b, "%2d. %s  %+.2f%%\n", i+1, e.Symbol, e.ChangePercent)
	}
	fmt.Fprintf(&b, "\n*%s LOSERS*\n", snap.Timeframe)
	for i, e := range snap.TopLosers {
		fmt.Fprintf(&b, "%2d. %s  %+.2f%%\n", i+1, e.Symbol, e.ChangePercent)
	}
	return b.String()
}
