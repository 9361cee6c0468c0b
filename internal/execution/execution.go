// Package execution defines the broker gateway contract and a resilient executor around it.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

var (
	// ErrRejected marks a broker refusal (bad quantity, margin, market closed). Never retried.
	ErrRejected = errors.New("execution: order rejected")
	// ErrOrderNotOpen is returned when cancelling an order that is already cancelled or filled.
	ErrOrderNotOpen = errors.New("execution: order not open")
	// ErrUnknownOrder is returned for ids the broker does not know.
	ErrUnknownOrder = errors.New("execution: unknown order")
)

// OrderState enumerates broker-side order states.
type OrderState string

const (
	StateOpen      OrderState = "OPEN"
	StateFilled    OrderState = "FILLED"
	StateCancelled OrderState = "CANCELLED"
	StateRejected  OrderState = "REJECTED"
)

// Purpose tags what a stop order is for.
type Purpose string

const (
	PurposeEntry    Purpose = "ENTRY"
	PurposeStopLoss Purpose = "STOP_LOSS"
)

// StopOrder is a stop-triggered order placement request.
type StopOrder struct {
	Symbol    string          `json:"symbol"`
	Side      signal.Side     `json:"side"`
	Quantity  int64           `json:"quantity"`
	StopPrice decimal.Decimal `json:"stopPrice"`
	Purpose   Purpose         `json:"purpose"`
	// ClientOrderID lets the broker recognise a resubmitted placement.
	ClientOrderID string `json:"clientOrderId,omitempty"`
}

// OrderStatus is the broker's view of an order.
type OrderStatus struct {
	ID        string          `json:"id"`
	State     OrderState      `json:"state"`
	FillPrice decimal.Decimal `json:"fillPrice"`
}

// Closed reports whether the order can no longer fill.
func (s OrderStatus) Closed() bool {
	return s.State == StateCancelled || s.State == StateRejected || s.State == StateFilled
}

// Fill records an executed quantity.
type Fill struct {
	OrderID  string          `json:"orderId"`
	Symbol   string          `json:"symbol"`
	Side     signal.Side     `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Purpose  Purpose         `json:"purpose"`
	At       time.Time       `json:"at"`
}

// Gateway is the broker surface the order lifecycle drives. Implementations
// must tolerate concurrent calls from many symbol workers.
type Gateway interface {
	PlaceStopOrder(ctx context.Context, order StopOrder) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	OrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
}

// IsIdempotentCancel reports whether a cancel error means the order is already gone.
func IsIdempotentCancel(err error) bool {
	return err == nil || errors.Is(err, ErrOrderNotOpen)
}
