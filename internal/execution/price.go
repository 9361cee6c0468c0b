package execution

import (
	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

var (
	fiveHundred = decimal.NewFromInt(500)
	oneHundred  = decimal.NewFromInt(100)
	unitRupee   = decimal.NewFromInt(1)
	unitTenth   = decimal.RequireFromString("0.1")
	unitNickel  = decimal.RequireFromString("0.05")
)

// TickSize returns the price increment the exchange accepts at price p.
func TickSize(p decimal.Decimal) decimal.Decimal {
	switch {
	case p.GreaterThanOrEqual(fiveHundred):
		return unitRupee
	case p.GreaterThanOrEqual(oneHundred):
		return unitTenth
	default:
		return unitNickel
	}
}

// RoundPrice floors p onto the tick grid.
func RoundPrice(p decimal.Decimal) decimal.Decimal {
	unit := TickSize(p)
	return p.Div(unit).Floor().Mul(unit)
}

// SlippedPrice is the simulated execution price of a stop: the trigger moved
// against the order by the slippage fraction, floored onto the tick grid.
func SlippedPrice(side signal.Side, trigger, slippage decimal.Decimal) decimal.Decimal {
	buf := trigger.Mul(slippage)
	if side == signal.Sell {
		return RoundPrice(trigger.Sub(buf))
	}
	return RoundPrice(trigger.Add(buf))
}
