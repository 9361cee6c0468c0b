// Package candle aggregates normalized ticks into fixed-width OHLC windows.
package candle

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

// Candle is an OHLC record for one symbol and one window. CumulativeVolume is
// the day-cumulative counter seen on the last tick of the window; the window
// volume is derived by the strategy layer from consecutive candles.
type Candle struct {
	Symbol           string          `json:"symbol"`
	WindowStart      int64           `json:"window_start"`
	Open             decimal.Decimal `json:"open"`
	High             decimal.Decimal `json:"high"`
	Low              decimal.Decimal `json:"low"`
	Close            decimal.Decimal `json:"close"`
	CumulativeVolume decimal.Decimal `json:"cumulative_volume"`
	Ticks            int             `json:"ticks"`
}

// Color returns the body color of the candle.
func (c Candle) Color() signal.Color { return signal.ColorOf(c.Open, c.Close) }

// Range returns |high-low|.
func (c Candle) Range() decimal.Decimal { return c.High.Sub(c.Low).Abs() }

// Closed is emitted when a tick from a later window finalizes the open candle.
type Closed struct {
	Symbol string
	Candle Candle
}

// WindowStart floors an epoch to its window boundary.
func WindowStart(epoch, windowSeconds int64) int64 {
	return epoch - (epoch % windowSeconds)
}

// SeedCandle is one historical window from a backfill, carrying a per-window volume.
type SeedCandle struct {
	EpochSeconds int64
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Close        decimal.Decimal
	Volume       decimal.Decimal
}

// UnmarshalJSON decodes the broker history array form [epoch, open, high, low, close, volume].
func (s *SeedCandle) UnmarshalJSON(data []byte) error {
	var fields []json.Number
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("seed candle: %w", err)
	}
	if len(fields) != 6 {
		return fmt.Errorf("seed candle: expected 6 fields, got %d", len(fields))
	}
	epoch, err := fields[0].Int64()
	if err != nil {
		return fmt.Errorf("seed candle epoch: %w", err)
	}
	values := make([]decimal.Decimal, 5)
	for i := range values {
		v, err := decimal.NewFromString(fields[i+1].String())
		if err != nil {
			return fmt.Errorf("seed candle field %d: %w", i+1, err)
		}
		values[i] = v
	}
	*s = SeedCandle{
		EpochSeconds: epoch,
		Open:         values[0],
		High:         values[1],
		Low:          values[2],
		Close:        values[3],
		Volume:       values[4],
	}
	return nil
}

// MarshalJSON writes the array form accepted by UnmarshalJSON.
func (s SeedCandle) MarshalJSON() ([]byte, error) {
	return json.Marshal([]json.Number{
		json.Number(fmt.Sprintf("%d", s.EpochSeconds)),
		json.Number(s.Open.String()),
		json.Number(s.High.String()),
		json.Number(s.Low.String()),
		json.Number(s.Close.String()),
		json.Number(s.Volume.String()),
	})
}
