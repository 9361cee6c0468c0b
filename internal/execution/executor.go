package execution

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rrctrade/RRC-Automation2/internal/metrics"
)

// Options tunes the executor's resilience knobs.
type Options struct {
	CallTimeout time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 200 * time.Millisecond
	}
	return o
}

// Executor wraps a Gateway with per-call timeouts, retries, logging and metrics.
type Executor struct {
	gw   Gateway
	log  zerolog.Logger
	opts Options
}

// NewExecutor decorates gw.
func NewExecutor(gw Gateway, log zerolog.Logger, opts Options) *Executor {
	return &Executor{gw: gw, log: log.With().Str("component", "executor").Logger(), opts: opts.withDefaults()}
}

// PlaceStopOrder tags the order with one client id shared by every retry attempt,
// so a placement that reached the broker before timing out is not duplicated.
func (e *Executor) PlaceStopOrder(ctx context.Context, order StopOrder) (string, error) {
	if order.ClientOrderID == "" {
		order.ClientOrderID = uuid.NewString()
	}
	var id string
	err := e.retry(ctx, "place", func(ctx context.Context) error {
		var err error
		id, err = e.gw.PlaceStopOrder(ctx, order)
		return err
	})
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", order.Symbol).Str("side", string(order.Side)).
			Str("purpose", string(order.Purpose)).Int64("qty", order.Quantity).Str("price", order.StopPrice.String()).Msg("place stop order failed")
		return "", err
	}
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side), "place").Inc()
	e.log.Info().Str("symbol", order.Symbol).Str("side", string(order.Side)).Str("purpose", string(order.Purpose)).
		Int64("qty", order.Quantity).Str("price", order.StopPrice.String()).Str("order_id", id).Str("client_order_id", order.ClientOrderID).Msg("stop order placed")
	return id, nil
}

func (e *Executor) CancelOrder(ctx context.Context, orderID string) error {
	err := e.retry(ctx, "cancel", func(ctx context.Context) error {
		return e.gw.CancelOrder(ctx, orderID)
	})
	switch {
	case err == nil:
		e.log.Info().Str("order_id", orderID).Msg("order cancelled")
	case errors.Is(err, ErrOrderNotOpen):
		e.log.Debug().Str("order_id", orderID).Msg("cancel on closed order")
	default:
		e.log.Warn().Err(err).Str("order_id", orderID).Msg("cancel failed")
	}
	return err
}

func (e *Executor) OrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	var st OrderStatus
	err := e.retry(ctx, "status", func(ctx context.Context) error {
		var err error
		st, err = e.gw.OrderStatus(ctx, orderID)
		return err
	})
	return st, err
}

// retry runs fn with exponential backoff. Broker verdicts (rejection, not open, unknown) are final.
func (e *Executor) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < e.opts.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if permanent(err) {
			break
		}
		if attempt == e.opts.MaxAttempts-1 {
			break
		}
		delay := e.opts.BaseBackoff * (1 << attempt)
		e.log.Debug().Err(err).Str("op", op).Int("attempt", attempt+1).Dur("backoff", delay).Msg("broker call failed, retrying")
		select {
		case <-ctx.Done():
			metrics.BrokerErrors.WithLabelValues(op).Inc()
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if !errors.Is(lastErr, ErrOrderNotOpen) {
		metrics.BrokerErrors.WithLabelValues(op).Inc()
	}
	return lastErr
}

func permanent(err error) bool {
	return errors.Is(err, ErrRejected) || errors.Is(err, ErrOrderNotOpen) || errors.Is(err, ErrUnknownOrder)
}

var _ Gateway = (*Executor)(nil)
