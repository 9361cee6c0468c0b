package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/risk"
)

// Mode selects how fills are priced.
type Mode string

const (
	// ModeLive records the observed last price as the entry.
	ModeLive Mode = "live"
	// ModePaper records the trigger plus slippage in the trade direction.
	ModePaper Mode = "paper"
)

// TrailPolicy selects how the trailing threshold is derived.
type TrailPolicy string

const (
	// TrailRiskMultiple triggers once profit reaches RRMultiple x per-trade risk.
	TrailRiskMultiple TrailPolicy = "risk_multiple"
	// TrailFixed triggers once profit reaches a fixed currency amount.
	TrailFixed TrailPolicy = "fixed"
	// TrailOff never revises the stop.
	TrailOff TrailPolicy = "off"
)

// ParseMode validates a configured mode string.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModePaper, nil
	case ModeLive, ModePaper:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", raw)
	}
}

// ParseTrailPolicy validates a configured trail policy string.
func ParseTrailPolicy(raw string) (TrailPolicy, error) {
	switch p := TrailPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return TrailRiskMultiple, nil
	case TrailRiskMultiple, TrailFixed, TrailOff:
		return p, nil
	default:
		return "", fmt.Errorf("unknown trail policy %q", raw)
	}
}

// Trail configures the one-time stop revision.
type Trail struct {
	Policy     TrailPolicy
	RRMultiple decimal.Decimal
	RRProfit   decimal.Decimal
	LockProfit decimal.Decimal
}

// Config carries the manager's trading knobs.
type Config struct {
	Mode     Mode
	Sizer    risk.Sizer
	Limits   risk.Limits
	Slippage decimal.Decimal
	Trail    Trail
}

// Threshold returns the profit at which the stop is revised; ok is false when trailing is off.
func (c Config) Threshold() (decimal.Decimal, bool) {
	switch c.Trail.Policy {
	case TrailOff:
		return decimal.Zero, false
	case TrailFixed:
		return c.Trail.RRProfit, c.Trail.RRProfit.IsPositive()
	default:
		t := c.Trail.RRMultiple.Mul(c.Sizer.PerTradeRisk)
		return t, t.IsPositive()
	}
}
