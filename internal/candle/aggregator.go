package candle

import (
	"github.com/rrctrade/RRC-Automation2/internal/metrics"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

// DefaultWindowSeconds is the five minute window used by the session strategy.
const DefaultWindowSeconds = 300

// Aggregator keeps one open candle per symbol. It is not safe for concurrent
// use; each symbol worker owns its own instance.
type Aggregator struct {
	windowSeconds int64
	open          map[string]*Candle
}

// NewAggregator builds an aggregator for the given window width.
func NewAggregator(windowSeconds int64) *Aggregator {
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindowSeconds
	}
	return &Aggregator{
		windowSeconds: windowSeconds,
		open:          make(map[string]*Candle),
	}
}

// WindowSeconds returns the configured window width.
func (a *Aggregator) WindowSeconds() int64 { return a.windowSeconds }

// OnTick folds a tick into the open candle of its symbol. When the tick belongs
// to a later window the previous candle is finalized and returned.
func (a *Aggregator) OnTick(t signal.Tick) (Closed, bool) {
	start := WindowStart(t.EventTime, a.windowSeconds)
	current := a.open[t.Symbol]

	if current != nil && start < current.WindowStart {
		metrics.TicksDropped.WithLabelValues("out_of_order").Inc()
		return Closed{}, false
	}

	if current != nil && start == current.WindowStart {
		if t.LastPrice.GreaterThan(current.High) {
			current.High = t.LastPrice
		}
		if t.LastPrice.LessThan(current.Low) {
			current.Low = t.LastPrice
		}
		current.Close = t.LastPrice
		current.CumulativeVolume = t.CumulativeVolume
		current.Ticks++
		return Closed{}, false
	}

	a.open[t.Symbol] = &Candle{
		Symbol:           t.Symbol,
		WindowStart:      start,
		Open:             t.LastPrice,
		High:             t.LastPrice,
		Low:              t.LastPrice,
		Close:            t.LastPrice,
		CumulativeVolume: t.CumulativeVolume,
		Ticks:            1,
	}
	if current == nil {
		return Closed{}, false
	}
	metrics.CandlesClosed.WithLabelValues(t.Symbol).Inc()
	return Closed{Symbol: t.Symbol, Candle: *current}, true
}

// Open returns a copy of the open candle for symbol.
func (a *Aggregator) Open(symbol string) (Candle, bool) {
	c, ok := a.open[symbol]
	if !ok {
		return Candle{}, false
	}
	return *c, true
}
