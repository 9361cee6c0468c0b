package candle

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

func tick(symbol string, price, cumVol float64, epoch int64) signal.Tick {
	return signal.Tick{
		Symbol:           symbol,
		LastPrice:        decimal.NewFromFloat(price),
		CumulativeVolume: decimal.NewFromFloat(cumVol),
		EventTime:        epoch,
	}
}

func TestWindowStart(t *testing.T) {
	if got := WindowStart(1700000123, 300); got != 1699999800 {
		t.Fatalf("unexpected window start %d", got)
	}
	if got := WindowStart(1699999800, 300); got != 1699999800 {
		t.Fatalf("boundary should map to itself, got %d", got)
	}
}

func TestAggregatorBuildsOHLC(t *testing.T) {
	agg := NewAggregator(300)
	base := int64(1699999800)

	prices := []float64{100, 102, 98, 101}
	vols := []float64{4800, 4900, 4950, 5000}
	for i, px := range prices {
		if _, closed := agg.OnTick(tick("X", px, vols[i], base+int64(i*10))); closed {
			t.Fatalf("tick %d unexpectedly closed a candle", i)
		}
	}

	closed, ok := agg.OnTick(tick("X", 103, 5100, base+300))
	if !ok {
		t.Fatalf("expected candle close on next window")
	}
	c := closed.Candle
	if closed.Symbol != "X" || c.WindowStart != base {
		t.Fatalf("unexpected closed candle identity %+v", closed)
	}
	checks := map[string][2]decimal.Decimal{
		"open":  {c.Open, decimal.NewFromInt(100)},
		"high":  {c.High, decimal.NewFromInt(102)},
		"low":   {c.Low, decimal.NewFromInt(98)},
		"close": {c.Close, decimal.NewFromInt(101)},
		"vol":   {c.CumulativeVolume, decimal.NewFromInt(5000)},
	}
	for name, pair := range checks {
		if !pair[0].Equal(pair[1]) {
			t.Fatalf("%s: expected %s got %s", name, pair[1], pair[0])
		}
	}
	if c.Ticks != 4 {
		t.Fatalf("expected 4 ticks, got %d", c.Ticks)
	}
	if c.Color() != signal.Green {
		t.Fatalf("expected GREEN candle, got %s", c.Color())
	}

	open, ok := agg.Open("X")
	if !ok || open.WindowStart != base+300 || !open.Open.Equal(decimal.NewFromInt(103)) {
		t.Fatalf("new open candle not started correctly: %+v", open)
	}
}

func TestAggregatorIgnoresOutOfOrderTicks(t *testing.T) {
	agg := NewAggregator(300)
	base := int64(1699999800)

	agg.OnTick(tick("X", 100, 10, base+300))
	if _, closed := agg.OnTick(tick("X", 50, 20, base+10)); closed {
		t.Fatalf("stale tick must not close a candle")
	}
	open, _ := agg.Open("X")
	if !open.Low.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("stale tick mutated the open candle: low=%s", open.Low)
	}
	if open.WindowStart != base+300 {
		t.Fatalf("stale tick reopened an old window")
	}
}

func TestAggregatorKeepsSymbolsIndependent(t *testing.T) {
	agg := NewAggregator(60)
	agg.OnTick(tick("A", 10, 1, 120))
	agg.OnTick(tick("B", 20, 1, 120))
	if _, closed := agg.OnTick(tick("A", 11, 2, 185)); !closed {
		t.Fatalf("expected A to close")
	}
	b, ok := agg.Open("B")
	if !ok || b.WindowStart != 120 {
		t.Fatalf("B candle should still be open in its window")
	}
}

func TestSeedCandleJSON(t *testing.T) {
	var seeds []SeedCandle
	payload := `[[1700000100, 100.5, 101, 99.5, 100, 12000],[1700000400, 100, 100.2, 99, 99.1, 8000]]`
	if err := json.Unmarshal([]byte(payload), &seeds); err != nil {
		t.Fatalf("unmarshal seeds: %v", err)
	}
	if len(seeds) != 2 {
		t.Fatalf("expected 2 seeds, got %d", len(seeds))
	}
	if seeds[1].EpochSeconds != 1700000400 || !seeds[1].Volume.Equal(decimal.NewFromInt(8000)) {
		t.Fatalf("unexpected seed %+v", seeds[1])
	}

	out, err := json.Marshal(seeds[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back SeedCandle
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if !back.Open.Equal(seeds[0].Open) {
		t.Fatalf("round trip lost open price")
	}

	if err := json.Unmarshal([]byte(`[1,2,3]`), &back); err == nil {
		t.Fatalf("expected error for short array")
	}
}
