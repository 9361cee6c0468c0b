// Package signal standardizes payloads shared between data ingestion, candle aggregation, strategy and order layers.
package signal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side enumerates trade directions; it doubles as the per-symbol session bias.
type Side string

const (
	// Buy indicates a long trade idea.
	Buy Side = "BUY"
	// Sell indicates a short trade idea.
	Sell Side = "SELL"
)

// Opposite returns the side that closes a position opened on s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// ParseSide accepts BUY/SELL and the short B/S forms used by bias sheets.
func ParseSide(raw string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "B":
		return Buy, nil
	case "SELL", "S":
		return Sell, nil
	default:
		return "", fmt.Errorf("unknown side %q", raw)
	}
}

// Tick models the normalized market data record consumed by the pipeline.
// CumulativeVolume is the day-cumulative traded volume, never a per-tick delta.
type Tick struct {
	Symbol           string
	LastPrice        decimal.Decimal
	CumulativeVolume decimal.Decimal
	EventTime        int64 // epoch seconds
}

// Kind distinguishes entry ideas from invalidations of a pending idea.
type Kind string

const (
	// Entry asks the order layer to arm a stop-entry order.
	Entry Kind = "ENTRY"
	// Cancel invalidates a pending, unfilled order.
	Cancel Kind = "CANCEL"
)

// Signal expresses a trade instruction produced by the volume-anomaly detector.
type Signal struct {
	Symbol      string
	Kind        Kind
	Side        Side
	High        decimal.Decimal // signal candle high
	Low         decimal.Decimal // signal candle low
	Volume      decimal.Decimal // window volume of the signal candle
	WindowStart int64
	Reason      string
}

// Color classifies a candle body.
type Color string

const (
	Red   Color = "RED"
	Green Color = "GREEN"
	Doji  Color = "DOJI"
)

// ColorOf returns RED when open>close, GREEN when open<close, DOJI otherwise.
func ColorOf(open, close decimal.Decimal) Color {
	switch open.Cmp(close) {
	case 1:
		return Red
	case -1:
		return Green
	default:
		return Doji
	}
}
