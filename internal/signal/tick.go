package signal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformedTick marks wire records that cannot be normalized. Such ticks are dropped, never fatal.
var ErrMalformedTick = errors.New("malformed tick")

// RawTick is the wire form of a tick. Every field is optional so that missing
// values can be told apart from zeros.
type RawTick struct {
	Symbol           *string          `json:"symbol"`
	LastPrice        *decimal.Decimal `json:"lastPrice"`
	CumulativeVolume *decimal.Decimal `json:"cumulativeVolumeToday"`
	EventTime        *int64           `json:"eventTimeEpochSeconds"`
}

// Normalize validates the record and converts it into a Tick.
func (r RawTick) Normalize() (Tick, error) {
	switch {
	case r.Symbol == nil || strings.TrimSpace(*r.Symbol) == "":
		return Tick{}, fmt.Errorf("%w: missing symbol", ErrMalformedTick)
	case r.LastPrice == nil:
		return Tick{}, fmt.Errorf("%w: missing lastPrice", ErrMalformedTick)
	case r.CumulativeVolume == nil:
		return Tick{}, fmt.Errorf("%w: missing cumulativeVolumeToday", ErrMalformedTick)
	case r.EventTime == nil:
		return Tick{}, fmt.Errorf("%w: missing eventTimeEpochSeconds", ErrMalformedTick)
	}
	if !r.LastPrice.IsPositive() {
		return Tick{}, fmt.Errorf("%w: non-positive lastPrice %s", ErrMalformedTick, r.LastPrice)
	}
	if r.CumulativeVolume.IsNegative() {
		return Tick{}, fmt.Errorf("%w: negative volume %s", ErrMalformedTick, r.CumulativeVolume)
	}
	if *r.EventTime <= 0 {
		return Tick{}, fmt.Errorf("%w: non-positive event time %d", ErrMalformedTick, *r.EventTime)
	}
	return Tick{
		Symbol:           strings.TrimSpace(*r.Symbol),
		LastPrice:        *r.LastPrice,
		CumulativeVolume: *r.CumulativeVolume,
		EventTime:        *r.EventTime,
	}, nil
}

// NewRawTick builds a fully populated RawTick, mostly for feeds and tests.
func NewRawTick(symbol string, price, cumVolume decimal.Decimal, epoch int64) RawTick {
	return RawTick{Symbol: &symbol, LastPrice: &price, CumulativeVolume: &cumVolume, EventTime: &epoch}
}
