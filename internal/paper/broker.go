// Package paper simulates a broker in memory for paper trading.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/execution"
	"github.com/rrctrade/RRC-Automation2/internal/metrics"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

// DefaultSlippage is the fraction of the trigger a simulated stop fills away from it.
var DefaultSlippage = decimal.RequireFromString("0.001")

type paperOrder struct {
	id        string
	order     execution.StopOrder
	state     execution.OrderState
	fillPrice decimal.Decimal
}

// Broker is an in-memory execution.Gateway. Resting stop orders fill when a
// tick crosses their trigger; fills are booked to the account and recorder.
type Broker struct {
	mu       sync.Mutex
	orders   map[string]*paperOrder
	byClient map[string]string
	account  *Account
	recorder FillRecorder
	slippage decimal.Decimal
	log      zerolog.Logger
	now      func() time.Time
}

// NewBroker wires a paper broker. account and recorder may be nil.
func NewBroker(account *Account, recorder FillRecorder, slippage decimal.Decimal, log zerolog.Logger) *Broker {
	if slippage.IsNegative() {
		slippage = decimal.Zero
	}
	return &Broker{
		orders:   make(map[string]*paperOrder),
		byClient: make(map[string]string),
		account:  account,
		recorder: recorder,
		slippage: slippage,
		log:      log.With().Str("component", "paper_broker").Logger(),
		now:      time.Now,
	}
}

func (b *Broker) PlaceStopOrder(ctx context.Context, order execution.StopOrder) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if order.Quantity <= 0 {
		return "", fmt.Errorf("%w: quantity %d", execution.ErrRejected, order.Quantity)
	}
	if !order.StopPrice.IsPositive() {
		return "", fmt.Errorf("%w: stop price %s", execution.ErrRejected, order.StopPrice)
	}
	if !order.Side.Valid() {
		return "", fmt.Errorf("%w: side %q", execution.ErrRejected, order.Side)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	// A retried placement carrying a known client id returns the original order.
	if order.ClientOrderID != "" {
		if id, ok := b.byClient[order.ClientOrderID]; ok {
			return id, nil
		}
	}
	if b.account != nil {
		if err := b.account.CheckLimit(order.Symbol, order.Side, order.Quantity); err != nil {
			return "", fmt.Errorf("%w: %s %s %d: %v", execution.ErrRejected, order.Symbol, order.Side, order.Quantity, err)
		}
	}
	id := uuid.NewString()
	b.orders[id] = &paperOrder{id: id, order: order, state: execution.StateOpen}
	if order.ClientOrderID != "" {
		b.byClient[order.ClientOrderID] = id
	}
	return id, nil
}

func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", execution.ErrUnknownOrder, orderID)
	}
	if o.state != execution.StateOpen {
		return fmt.Errorf("%w: %s is %s", execution.ErrOrderNotOpen, orderID, o.state)
	}
	o.state = execution.StateCancelled
	return nil
}

func (b *Broker) OrderStatus(ctx context.Context, orderID string) (execution.OrderStatus, error) {
	if err := ctx.Err(); err != nil {
		return execution.OrderStatus{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return execution.OrderStatus{}, fmt.Errorf("%w: %s", execution.ErrUnknownOrder, orderID)
	}
	return execution.OrderStatus{ID: o.id, State: o.state, FillPrice: o.fillPrice}, nil
}

// OnTick fills resting orders on t.Symbol whose trigger the last price crossed.
func (b *Broker) OnTick(t signal.Tick) []execution.Fill {
	b.mu.Lock()
	var fills []execution.Fill
	for _, o := range b.orders {
		if o.state != execution.StateOpen || o.order.Symbol != t.Symbol || !crossed(o.order, t.LastPrice) {
			continue
		}
		o.state = execution.StateFilled
		o.fillPrice = execution.SlippedPrice(o.order.Side, o.order.StopPrice, b.slippage)
		fills = append(fills, execution.Fill{
			OrderID:  o.id,
			Symbol:   o.order.Symbol,
			Side:     o.order.Side,
			Quantity: o.order.Quantity,
			Price:    o.fillPrice,
			Purpose:  o.order.Purpose,
			At:       b.now(),
		})
	}
	b.mu.Unlock()

	for _, f := range fills {
		if b.account != nil {
			if err := b.account.Apply(f.Symbol, f.Side, f.Quantity, f.Price); err != nil {
				metrics.PaperAccountErrors.WithLabelValues(f.Symbol).Inc()
				b.log.Error().Err(err).
					Str("symbol", f.Symbol).
					Str("order_id", f.OrderID).
					Str("side", string(f.Side)).
					Int64("qty", f.Quantity).
					Str("price", f.Price.String()).
					Msg("paper account rejected fill")
			}
		}
		if b.recorder != nil {
			b.recorder.Record(f)
		}
	}
	return fills
}

// Open returns the number of resting orders.
func (b *Broker) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, o := range b.orders {
		if o.state == execution.StateOpen {
			n++
		}
	}
	return n
}

// crossed: a BUY stop triggers at or above its price, a SELL stop at or below.
func crossed(o execution.StopOrder, last decimal.Decimal) bool {
	if o.Side == signal.Buy {
		return last.GreaterThanOrEqual(o.StopPrice)
	}
	return last.LessThanOrEqual(o.StopPrice)
}

var _ execution.Gateway = (*Broker)(nil)
