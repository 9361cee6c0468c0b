package strategy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/candle"
	sig "github.com/rrctrade/RRC-Automation2/internal/signal"
)

// Strategy defines behaviour shared by candle-driven strategy implementations.
type Strategy interface {
	Seed(symbol string, volumes []decimal.Decimal, baseline decimal.NullDecimal)
	OnCandleClosed(c candle.Candle, bias sig.Side, pending bool) (*sig.Signal, Evaluation)
	Name() string
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	MinReferenceCandles int
	CancelPolicy        string
}

// ParseCancelPolicy maps a config string onto a CancelPolicy. Empty selects wrong_color.
func ParseCancelPolicy(raw string) (CancelPolicy, error) {
	switch p := CancelPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return CancelOnWrongColor, nil
	case CancelOnWrongColor, CancelOnOppositeColor, CancelNever:
		return p, nil
	default:
		return "", fmt.Errorf("unknown cancel policy %q", raw)
	}
}

// Build returns a strategy implementation matching the configured mode.
func Build(mode string, params Params) (Strategy, error) {
	policy, err := ParseCancelPolicy(params.CancelPolicy)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "lowest_volume", "volume_anomaly":
		return NewDetector(params.MinReferenceCandles, policy), nil
	default:
		return nil, fmt.Errorf("unknown strategy mode %q", mode)
	}
}

var _ Strategy = (*Detector)(nil)
