package paper

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/execution"
)

// Ledger keeps the session's paper fills in memory and forwards each one to
// an optional downstream recorder such as the journal.
type Ledger struct {
	mu    sync.Mutex
	fills []execution.Fill
	next  FillRecorder
}

// NewLedger returns an empty ledger; next may be nil.
func NewLedger(next FillRecorder) *Ledger {
	return &Ledger{next: next}
}

// Record appends a fill and forwards it.
func (l *Ledger) Record(fill execution.Fill) {
	l.mu.Lock()
	l.fills = append(l.fills, fill)
	l.mu.Unlock()
	if l.next != nil {
		l.next.Record(fill)
	}
}

// Fills returns a copy of the recorded fills for symbol, or all fills when symbol is empty.
func (l *Ledger) Fills(symbol string) []execution.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]execution.Fill, 0, len(l.fills))
	for _, f := range l.fills {
		if symbol == "" || f.Symbol == symbol {
			out = append(out, f)
		}
	}
	return out
}

// Turnover is the traded value across all fills.
func (l *Ledger) Turnover() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, f := range l.fills {
		total = total.Add(f.Price.Mul(decimal.NewFromInt(f.Quantity)))
	}
	return total
}
