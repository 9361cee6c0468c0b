// Package strategy turns closed candles into entry and cancel signals.
package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/candle"
	"github.com/rrctrade/RRC-Automation2/internal/metrics"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

// CancelPolicy decides which non-matching lowest-volume prints invalidate a pending order.
type CancelPolicy string

const (
	// CancelOnWrongColor cancels on any color that does not match the bias, DOJI included.
	CancelOnWrongColor CancelPolicy = "wrong_color"
	// CancelOnOppositeColor cancels only when the color is the opposite of the required one.
	CancelOnOppositeColor CancelPolicy = "opposite_color"
	// CancelNever keeps a pending order until it fills or is superseded by a new entry.
	CancelNever CancelPolicy = "never"
)

// DefaultMinReferenceCandles matches the two history candles the session seeds from.
const DefaultMinReferenceCandles = 2

// Evaluation describes how one closed candle was judged.
type Evaluation struct {
	Symbol       string
	WindowStart  int64
	Reference    bool // candle only established the volume baseline
	WindowVolume decimal.Decimal
	PrevMin      decimal.Decimal
	HasPrevMin   bool
	IsLowest     bool
	Color        signal.Color
	References   int // history length before this candle was appended
}

// Detector implements the volume-anomaly rule: a window whose volume is the
// lowest of the session, colored against the bias, arms an entry at its range.
// It is not safe for concurrent use; each symbol worker owns its own instance.
type Detector struct {
	minReferences int
	cancelPolicy  CancelPolicy
	history       map[string]*VolumeHistory
	baseline      map[string]decimal.Decimal
}

// NewDetector builds a detector. Zero or negative minReferences falls back to the default.
func NewDetector(minReferences int, policy CancelPolicy) *Detector {
	if minReferences <= 0 {
		minReferences = DefaultMinReferenceCandles
	}
	if policy == "" {
		policy = CancelOnWrongColor
	}
	return &Detector{
		minReferences: minReferences,
		cancelPolicy:  policy,
		history:       make(map[string]*VolumeHistory),
		baseline:      make(map[string]decimal.Decimal),
	}
}

// Name returns the identifier for logging.
func (d *Detector) Name() string { return "LowestVolumeReversal" }

// Seed loads backfilled window volumes. When baseline is valid it becomes the
// day-cumulative counter the first live window is measured against.
func (d *Detector) Seed(symbol string, volumes []decimal.Decimal, baseline decimal.NullDecimal) {
	h := d.historyFor(symbol)
	for _, v := range volumes {
		h.Append(v)
	}
	if baseline.Valid {
		d.baseline[symbol] = baseline.Decimal
	}
}

// History returns a copy of the recorded window volumes for symbol.
func (d *Detector) History(symbol string) []decimal.Decimal {
	h, ok := d.history[symbol]
	if !ok {
		return nil
	}
	return h.Values()
}

// OnCandleClosed evaluates a closed candle against the symbol's volume history.
// pending tells whether an unfilled entry order exists for the symbol.
func (d *Detector) OnCandleClosed(c candle.Candle, bias signal.Side, pending bool) (*signal.Signal, Evaluation) {
	eval := Evaluation{Symbol: c.Symbol, WindowStart: c.WindowStart, Color: c.Color()}

	prev, ok := d.baseline[c.Symbol]
	d.baseline[c.Symbol] = c.CumulativeVolume
	if !ok {
		eval.Reference = true
		return nil, eval
	}

	volume := c.CumulativeVolume.Sub(prev)
	eval.WindowVolume = volume
	if volume.IsNegative() {
		// counter went backwards (feed reset); re-baseline without judging the window
		eval.Reference = true
		return nil, eval
	}

	h := d.historyFor(c.Symbol)
	eval.References = h.Len()
	eval.PrevMin, eval.HasPrevMin = h.Min()
	eval.IsLowest = h.IsLowest(volume)
	h.Append(volume)

	if !eval.IsLowest {
		return nil, eval
	}

	if matchesBias(bias, eval.Color) {
		if eval.References < d.minReferences {
			return nil, eval
		}
		metrics.SignalsTotal.WithLabelValues(c.Symbol, string(signal.Entry)).Inc()
		return &signal.Signal{
			Symbol:      c.Symbol,
			Kind:        signal.Entry,
			Side:        bias,
			High:        c.High,
			Low:         c.Low,
			Volume:      volume,
			WindowStart: c.WindowStart,
			Reason:      fmt.Sprintf("lowest volume %s below %s on %s candle", volume, eval.PrevMin, eval.Color),
		}, eval
	}

	if pending && d.cancels(bias, eval.Color) {
		metrics.SignalsTotal.WithLabelValues(c.Symbol, string(signal.Cancel)).Inc()
		return &signal.Signal{
			Symbol:      c.Symbol,
			Kind:        signal.Cancel,
			Side:        bias,
			High:        c.High,
			Low:         c.Low,
			Volume:      volume,
			WindowStart: c.WindowStart,
			Reason:      "NEW_LOWER_VOLUME",
		}, eval
	}
	return nil, eval
}

func (d *Detector) historyFor(symbol string) *VolumeHistory {
	h := d.history[symbol]
	if h == nil {
		h = &VolumeHistory{}
		d.history[symbol] = h
	}
	return h
}

func (d *Detector) cancels(bias signal.Side, color signal.Color) bool {
	switch d.cancelPolicy {
	case CancelNever:
		return false
	case CancelOnOppositeColor:
		return color == requiredColor(bias.Opposite())
	default:
		return true
	}
}

// matchesBias: a BUY bias wants a RED (selling exhaustion) candle, a SELL bias a GREEN one.
func matchesBias(bias signal.Side, color signal.Color) bool {
	return color == requiredColor(bias)
}

func requiredColor(bias signal.Side) signal.Color {
	if bias == signal.Buy {
		return signal.Red
	}
	return signal.Green
}
