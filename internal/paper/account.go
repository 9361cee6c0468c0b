package paper

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/execution"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

// ErrPositionLimit is returned when a fill would grow a position past the per-symbol cap.
var ErrPositionLimit = errors.New("position limit exceeded")

// FillRecorder captures paper fills for later inspection.
type FillRecorder interface {
	Record(execution.Fill)
}

type positionState struct {
	Qty     int64 // signed; negative is short
	AvgCost decimal.Decimal
}

// Account tracks virtual cash, realized PnL, and per-symbol positions while trading in paper mode.
// Shorts are allowed since SELL-bias symbols enter short.
type Account struct {
	mu                   sync.Mutex
	startingCash         decimal.Decimal
	cash                 decimal.Decimal
	realizedPnL          decimal.Decimal
	maxPositionPerSymbol int64
	positions            map[string]positionState
}

// PositionSnapshot exposes a read-only view of a single symbol position.
type PositionSnapshot struct {
	Qty         int64
	AvgCost     decimal.Decimal
	MarketValue decimal.Decimal
	Unrealized  decimal.Decimal
}

// Snapshot represents a thread-safe view of the account state, optionally marked to market using provided prices.
type Snapshot struct {
	Cash        decimal.Decimal
	RealizedPnL decimal.Decimal
	Equity      decimal.Decimal
	Positions   map[string]PositionSnapshot
}

// NewAccount constructs an account populated with starting cash and optional position cap (0 = none).
func NewAccount(startingCash decimal.Decimal, maxPositionPerSymbol int64) *Account {
	return &Account{
		startingCash:         startingCash,
		cash:                 startingCash,
		maxPositionPerSymbol: maxPositionPerSymbol,
		positions:            make(map[string]positionState),
	}
}

// StartingCash returns the initial bankroll.
func (a *Account) StartingCash() decimal.Decimal { return a.startingCash }

// Apply books a fill against the account.
func (a *Account) Apply(symbol string, side signal.Side, qty int64, price decimal.Decimal) error {
	if qty <= 0 {
		return errors.New("quantity must be positive")
	}
	if !price.IsPositive() {
		return errors.New("price must be positive")
	}
	delta := qty
	switch side {
	case signal.Buy:
	case signal.Sell:
		delta = -qty
	default:
		return errors.New("unknown order side")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.positions[symbol]
	newQty := state.Qty + delta
	if a.exceedsLimit(state.Qty, newQty) {
		return ErrPositionLimit
	}

	notional := price.Mul(decimal.NewFromInt(qty))
	if side == signal.Buy {
		a.cash = a.cash.Sub(notional)
	} else {
		a.cash = a.cash.Add(notional)
	}

	switch {
	case state.Qty == 0 || sameSign(state.Qty, delta):
		total := state.AvgCost.Mul(decimal.NewFromInt(abs64(state.Qty))).Add(notional)
		state.AvgCost = total.Div(decimal.NewFromInt(abs64(newQty)))
	default:
		closing := min(abs64(state.Qty), qty)
		pnl := price.Sub(state.AvgCost).Mul(decimal.NewFromInt(closing))
		if state.Qty < 0 {
			pnl = pnl.Neg()
		}
		a.realizedPnL = a.realizedPnL.Add(pnl)
		if !sameSign(newQty, state.Qty) && newQty != 0 {
			// flipped through flat; the remainder opens at the fill price
			state.AvgCost = price
		}
	}
	state.Qty = newQty
	if newQty == 0 {
		delete(a.positions, symbol)
	} else {
		a.positions[symbol] = state
	}
	return nil
}

// CheckLimit reports whether a fill of qty on side would breach the position cap
// given the current position.
func (a *Account) CheckLimit(symbol string, side signal.Side, qty int64) error {
	delta := qty
	if side == signal.Sell {
		delta = -qty
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	cur := a.positions[symbol].Qty
	if a.exceedsLimit(cur, cur+delta) {
		return ErrPositionLimit
	}
	return nil
}

func (a *Account) exceedsLimit(cur, next int64) bool {
	return a.maxPositionPerSymbol > 0 && abs64(next) > a.maxPositionPerSymbol && abs64(next) > abs64(cur)
}

// Snapshot returns a copy of balances, optionally marked using the supplied prices map.
func (a *Account) Snapshot(prices map[string]decimal.Decimal) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.positions))
	equity := a.cash
	for sym, pos := range a.positions {
		qty := decimal.NewFromInt(pos.Qty)
		var marketValue, unrealized decimal.Decimal
		if mark, ok := prices[sym]; ok && !mark.IsZero() {
			marketValue = qty.Mul(mark)
			unrealized = mark.Sub(pos.AvgCost).Mul(qty)
		}
		positions[sym] = PositionSnapshot{
			Qty:         pos.Qty,
			AvgCost:     pos.AvgCost,
			MarketValue: marketValue,
			Unrealized:  unrealized,
		}
		equity = equity.Add(marketValue)
	}

	return Snapshot{
		Cash:        a.cash,
		RealizedPnL: a.realizedPnL,
		Equity:      equity,
		Positions:   positions,
	}
}

// Position returns the signed position size for the supplied symbol.
func (a *Account) Position(symbol string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positions[symbol].Qty
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sameSign(a, b int64) bool { return (a > 0 && b > 0) || (a < 0 && b < 0) }
