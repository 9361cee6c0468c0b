package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrZeroRange is returned when a signal candle has no range to size against.
	ErrZeroRange = errors.New("risk: candle range is zero")
	// ErrBelowOneLot is returned when the risk budget cannot buy a single share.
	ErrBelowOneLot = errors.New("risk: quantity rounds to zero")
)

// Limits caps exposure per trade. A zero cap disables the check.
type Limits struct {
	MaxNotionalPerTrade decimal.Decimal
}

func (l Limits) Allow(notional decimal.Decimal) bool {
	if !l.MaxNotionalPerTrade.IsPositive() {
		return true
	}
	return notional.LessThanOrEqual(l.MaxNotionalPerTrade)
}

// Sizer converts the per-trade risk budget into a share quantity.
type Sizer struct {
	PerTradeRisk decimal.Decimal
}

// Quantity returns floor(risk / |high-low|).
func (s Sizer) Quantity(high, low decimal.Decimal) (int64, error) {
	rng := high.Sub(low).Abs()
	if rng.IsZero() {
		return 0, ErrZeroRange
	}
	qty := s.PerTradeRisk.Div(rng).Floor().IntPart()
	if qty < 1 {
		return 0, ErrBelowOneLot
	}
	return qty, nil
}
