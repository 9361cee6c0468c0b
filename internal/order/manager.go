package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/execution"
	"github.com/rrctrade/RRC-Automation2/internal/metrics"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

var (
	// ErrRiskRejected is returned when an entry cannot be sized or exceeds the notional cap.
	ErrRiskRejected = errors.New("order: entry rejected by risk")
	// ErrCancelUnconfirmed is returned when a pending order could not be confirmed closed.
	ErrCancelUnconfirmed = errors.New("order: cancel not confirmed")
	// ErrEntryFilled is returned when a pending order turned out to be filled while cancelling it.
	ErrEntryFilled = errors.New("order: pending entry already filled")
)

// Manager owns the OrderState of the symbols routed to it. It is not safe for
// concurrent use; one symbol worker drives one manager.
type Manager struct {
	gw     execution.Gateway
	cfg    Config
	log    zerolog.Logger
	rec    Recorder
	alert  Alerter
	now    func() time.Time
	live   map[string]*State
	closed map[string][]State
}

// NewManager wires a manager. rec and alert may be nil.
func NewManager(gw execution.Gateway, cfg Config, log zerolog.Logger, rec Recorder, alert Alerter) *Manager {
	if cfg.Mode == "" {
		cfg.Mode = ModePaper
	}
	if cfg.Trail.Policy == "" {
		cfg.Trail.Policy = TrailRiskMultiple
	}
	if alert == nil {
		alert = NewLogAlerter(log, "")
	}
	return &Manager{
		gw:     gw,
		cfg:    cfg,
		log:    log.With().Str("component", "orders").Logger(),
		rec:    rec,
		alert:  alert,
		now:    time.Now,
		live:   make(map[string]*State),
		closed: make(map[string][]State),
	}
}

// State returns a copy of the live state for symbol.
func (m *Manager) State(symbol string) (State, bool) {
	st, ok := m.live[symbol]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Closed returns the terminal snapshots recorded for symbol, oldest first.
func (m *Manager) Closed(symbol string) []State {
	out := make([]State, len(m.closed[symbol]))
	copy(out, m.closed[symbol])
	return out
}

// HasPending reports whether symbol has an unfilled entry order.
func (m *Manager) HasPending(symbol string) bool {
	st, ok := m.live[symbol]
	return ok && st.Status == StatusPending
}

// OnSignal reacts to a detector signal.
func (m *Manager) OnSignal(ctx context.Context, s signal.Signal) error {
	switch s.Kind {
	case signal.Entry:
		return m.onEntry(ctx, s)
	case signal.Cancel:
		st, ok := m.live[s.Symbol]
		if !ok || st.Status != StatusPending {
			return nil
		}
		return m.cancelPending(ctx, st, s.Reason)
	default:
		return fmt.Errorf("unknown signal kind %q", s.Kind)
	}
}

func (m *Manager) onEntry(ctx context.Context, s signal.Signal) error {
	if st, ok := m.live[s.Symbol]; ok {
		switch st.Status {
		case StatusPending:
			if err := m.cancelPending(ctx, st, "SUPERSEDED"); err != nil {
				m.log.Warn().Err(err).Str("event", "ORDER_SKIP").Str("symbol", s.Symbol).Msg("superseding entry aborted")
				return err
			}
		default:
			m.log.Info().Str("event", "ORDER_SKIP").Str("symbol", s.Symbol).Str("status", string(st.Status)).Msg("position active, entry ignored")
			return nil
		}
	}

	qty, err := m.cfg.Sizer.Quantity(s.High, s.Low)
	if err != nil {
		m.log.Info().Err(err).Str("event", "ORDER_SKIP").Str("symbol", s.Symbol).Msg("entry not sized")
		return fmt.Errorf("%w: %v", ErrRiskRejected, err)
	}
	trigger, initialStop := s.High, s.Low
	if s.Side == signal.Sell {
		trigger, initialStop = s.Low, s.High
	}
	if notional := trigger.Mul(decimal.NewFromInt(qty)); !m.cfg.Limits.Allow(notional) {
		m.log.Info().Str("event", "ORDER_SKIP").Str("symbol", s.Symbol).Str("notional", notional.String()).Msg("entry above notional cap")
		return fmt.Errorf("%w: notional %s", ErrRiskRejected, notional)
	}

	id, err := m.gw.PlaceStopOrder(ctx, execution.StopOrder{
		Symbol:    s.Symbol,
		Side:      s.Side,
		Quantity:  qty,
		StopPrice: trigger,
		Purpose:   execution.PurposeEntry,
	})
	if err != nil {
		m.log.Error().Err(err).Str("event", "ORDER_SKIP").Str("symbol", s.Symbol).Msg("entry placement failed")
		return err
	}

	now := m.now()
	st := &State{
		Symbol:       s.Symbol,
		Status:       StatusPending,
		Side:         s.Side,
		TriggerPrice: trigger,
		Quantity:     qty,
		SignalHigh:   s.High,
		SignalLow:    s.Low,
		StopPrice:    initialStop,
		EntryOrderID: id,
		OpenedAt:     now,
		UpdatedAt:    now,
	}
	m.live[s.Symbol] = st
	m.log.Info().Str("event", "ORDER_SIGNAL").Str("symbol", s.Symbol).Str("side", string(s.Side)).
		Str("trigger", trigger.String()).Str("sl", initialStop.String()).Int64("qty", qty).Msg("entry order placed")
	m.emit(st, StatusNone, StatusPending, trigger, id, "ORDER_SIGNAL")
	return nil
}

// cancelPending cancels the entry order and drops the state. The state is kept
// whenever the broker cannot confirm the order is closed.
func (m *Manager) cancelPending(ctx context.Context, st *State, reason string) error {
	if err := m.gw.CancelOrder(ctx, st.EntryOrderID); err != nil {
		status, qerr := m.gw.OrderStatus(ctx, st.EntryOrderID)
		switch {
		case qerr == nil && status.State == execution.StateFilled:
			price := status.FillPrice
			if !price.IsPositive() {
				price = m.entryPrice(st, st.TriggerPrice)
			}
			m.fill(ctx, st, price)
			return ErrEntryFilled
		case qerr == nil && status.Closed():
		default:
			return fmt.Errorf("%w: %s: %v", ErrCancelUnconfirmed, st.EntryOrderID, err)
		}
	}
	delete(m.live, st.Symbol)
	st.UpdatedAt = m.now()
	m.log.Info().Str("event", "ORDER_CANCELLED").Str("symbol", st.Symbol).Str("reason", reason).Msg("pending entry cancelled")
	m.emit(st, StatusPending, StatusCancelled, st.TriggerPrice, st.EntryOrderID, reason)
	return nil
}

// OnTick runs the price-crossing checks for the tick's symbol.
func (m *Manager) OnTick(ctx context.Context, t signal.Tick) {
	st, ok := m.live[t.Symbol]
	if !ok {
		return
	}
	last := t.LastPrice
	switch st.Status {
	case StatusPending:
		if triggered(st.Side, st.TriggerPrice, last) {
			m.fill(ctx, st, m.entryPrice(st, last))
		}
	case StatusFilled:
		// stop placement failed earlier; keep trying until protected
		m.placeStop(ctx, st, StatusFilled)
	case StatusStopPlaced:
		if stopHit(st.Side, st.StopPrice, last) {
			m.stopOut(st, last)
			return
		}
		if !st.TrailApplied {
			m.maybeTrail(ctx, st, last)
		}
	}
}

func (m *Manager) entryPrice(st *State, last decimal.Decimal) decimal.Decimal {
	if m.cfg.Mode == ModeLive {
		return last
	}
	return execution.SlippedPrice(st.Side, st.TriggerPrice, m.cfg.Slippage)
}

func (m *Manager) fill(ctx context.Context, st *State, price decimal.Decimal) {
	st.Status = StatusFilled
	st.EntryPrice = price
	st.UpdatedAt = m.now()
	m.log.Info().Str("event", "ORDER_FILLED").Str("symbol", st.Symbol).Str("side", string(st.Side)).
		Str("price", price.String()).Int64("qty", st.Quantity).Msg("entry filled")
	m.emit(st, StatusPending, StatusFilled, price, st.EntryOrderID, "ENTRY_FILLED")
	m.placeStop(ctx, st, StatusFilled)
}

// placeStop snaps st.StopPrice to the tick grid and rests a protective stop
// there. On failure the state is left FILLED and the unprotected position is
// escalated.
func (m *Manager) placeStop(ctx context.Context, st *State, from Status) {
	st.StopPrice = execution.RoundPrice(st.StopPrice)
	id, err := m.gw.PlaceStopOrder(ctx, execution.StopOrder{
		Symbol:    st.Symbol,
		Side:      st.Side.Opposite(),
		Quantity:  st.Quantity,
		StopPrice: st.StopPrice,
		Purpose:   execution.PurposeStopLoss,
	})
	if err != nil {
		if st.Status != StatusFilled {
			st.Status = StatusFilled
			st.UpdatedAt = m.now()
			m.emit(st, from, StatusFilled, st.StopPrice, "", "SL_REPLACE_FAILED")
		}
		m.alert.Unprotected(ctx, *st, err)
		return
	}
	st.Status = StatusStopPlaced
	st.StopOrderID = id
	st.UpdatedAt = m.now()
	event := "SL_PLACED"
	if st.TrailApplied {
		event = "SL_TRAILED"
	}
	m.log.Info().Str("event", event).Str("symbol", st.Symbol).Str("sl", st.StopPrice.String()).Str("order_id", id).Msg("protective stop resting")
	m.emit(st, from, StatusStopPlaced, st.StopPrice, id, event)
}

func (m *Manager) maybeTrail(ctx context.Context, st *State, last decimal.Decimal) {
	threshold, ok := m.cfg.Threshold()
	if !ok || st.Profit(last).LessThan(threshold) {
		return
	}
	if err := m.gw.CancelOrder(ctx, st.StopOrderID); err != nil {
		if !execution.IsIdempotentCancel(err) {
			m.log.Warn().Err(err).Str("symbol", st.Symbol).Msg("stop cancel for trail failed, retrying next tick")
			return
		}
		if status, qerr := m.gw.OrderStatus(ctx, st.StopOrderID); qerr == nil && status.State == execution.StateFilled {
			exit := status.FillPrice
			if !exit.IsPositive() {
				exit = st.StopPrice
			}
			m.stopOut(st, exit)
			return
		}
	}

	lock := m.cfg.Trail.LockProfit.Div(decimal.NewFromInt(st.Quantity))
	if st.Side == signal.Sell {
		lock = lock.Neg()
	}
	st.StopPrice = st.EntryPrice.Add(lock)
	st.StopOrderID = ""
	st.TrailApplied = true
	m.placeStop(ctx, st, StatusStopPlaced)
}

func (m *Manager) stopOut(st *State, last decimal.Decimal) {
	exit := last
	if m.cfg.Mode == ModePaper {
		exit = execution.SlippedPrice(st.Side.Opposite(), st.StopPrice, m.cfg.Slippage)
	}
	st.Status = StatusStopped
	st.ExitPrice = exit
	st.RealizedPnL = st.Profit(exit)
	st.UpdatedAt = m.now()
	m.log.Info().Str("event", "SL_EXECUTED").Str("symbol", st.Symbol).Str("sl", st.StopPrice.String()).
		Str("exit", exit.String()).Str("pnl", st.RealizedPnL.String()).Msg("stop hit")
	m.emit(st, StatusStopPlaced, StatusStopped, exit, st.StopOrderID, "SL_EXECUTED")
	m.closed[st.Symbol] = append(m.closed[st.Symbol], *st)
	delete(m.live, st.Symbol)
}

func (m *Manager) emit(st *State, from, to Status, price decimal.Decimal, orderID, reason string) {
	metrics.Transitions.WithLabelValues(string(to)).Inc()
	if m.rec == nil {
		return
	}
	err := m.rec.RecordTransition(Transition{
		Symbol:   st.Symbol,
		From:     from,
		To:       to,
		Side:     st.Side,
		Price:    price,
		Quantity: st.Quantity,
		OrderID:  orderID,
		Reason:   reason,
		At:       st.UpdatedAt,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("symbol", st.Symbol).Msg("journal write failed")
	}
}

// triggered: BUY entries fill at or above the trigger, SELL entries at or below.
func triggered(side signal.Side, trigger, last decimal.Decimal) bool {
	if side == signal.Buy {
		return last.GreaterThanOrEqual(trigger)
	}
	return last.LessThanOrEqual(trigger)
}

func stopHit(side signal.Side, stop, last decimal.Decimal) bool {
	if side == signal.Buy {
		return last.LessThanOrEqual(stop)
	}
	return last.GreaterThanOrEqual(stop)
}
