// Package order drives the per-symbol order lifecycle: stop entry, protective
// stop, one-time trailing revision and stop-out.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

// Status enumerates lifecycle states.
type Status string

const (
	StatusNone       Status = "NONE"
	StatusPending    Status = "PENDING"
	StatusFilled     Status = "FILLED"
	StatusStopPlaced Status = "STOP_PLACED"
	StatusStopped    Status = "STOPPED"
	// StatusCancelled only appears in transitions; a cancelled idea has no live state.
	StatusCancelled Status = "CANCELLED"
)

// State is the lifecycle record of one trade idea.
type State struct {
	Symbol       string          `json:"symbol"`
	Status       Status          `json:"status"`
	Side         signal.Side     `json:"side"`
	TriggerPrice decimal.Decimal `json:"triggerPrice"`
	Quantity     int64           `json:"quantity"`
	SignalHigh   decimal.Decimal `json:"signalHigh"`
	SignalLow    decimal.Decimal `json:"signalLow"`
	EntryPrice   decimal.Decimal `json:"entryPrice"`
	StopPrice    decimal.Decimal `json:"stopPrice"`
	TrailApplied bool            `json:"trailApplied"`
	EntryOrderID string          `json:"entryOrderId,omitempty"`
	StopOrderID  string          `json:"stopOrderId,omitempty"`
	ExitPrice    decimal.Decimal `json:"exitPrice"`
	RealizedPnL  decimal.Decimal `json:"realizedPnl"`
	OpenedAt     time.Time       `json:"openedAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Profit returns the sign-adjusted unrealized profit at price.
func (s State) Profit(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(s.EntryPrice)
	if s.Side == signal.Sell {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromInt(s.Quantity))
}

// Transition is emitted for every lifecycle change.
type Transition struct {
	Symbol   string          `json:"symbol"`
	From     Status          `json:"from"`
	To       Status          `json:"to"`
	Side     signal.Side     `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	OrderID  string          `json:"orderId,omitempty"`
	Reason   string          `json:"reason"`
	At       time.Time       `json:"at"`
}

// Recorder persists transitions for audit.
type Recorder interface {
	RecordTransition(Transition) error
}
