package universe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/config"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

func TestLoadIntradaySeed(t *testing.T) {
	syms, err := Load(config.Universe{
		BiasPath: filepath.Join("testdata", "bias.yaml"),
		SeedPath: filepath.Join("testdata", "seed.json"),
		SeedKind: "intraday",
		Symbols:  []config.SymbolBias{{Symbol: "TCS", Side: "sell"}},
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(syms) != 3 {
		t.Fatalf("expected 3 symbols, got %d", len(syms))
	}
	// sorted by name
	infy, rel, tcs := syms[0], syms[1], syms[2]
	if infy.Name != "INFY" || rel.Name != "RELIANCE" || tcs.Name != "TCS" {
		t.Fatalf("unexpected order: %s %s %s", infy.Name, rel.Name, tcs.Name)
	}
	if rel.Bias != signal.Buy || infy.Bias != signal.Sell || tcs.Bias != signal.Sell {
		t.Fatalf("unexpected biases: %s %s %s", rel.Bias, infy.Bias, tcs.Bias)
	}
	if len(rel.SeedVolumes) != 2 || !rel.SeedVolumes[0].Equal(decimal.NewFromInt(500)) {
		t.Fatalf("seed volumes must be ordered by epoch, got %v", rel.SeedVolumes)
	}
	if !rel.Baseline.Valid || !rel.Baseline.Decimal.Equal(decimal.NewFromInt(950)) {
		t.Fatalf("expected baseline 950, got %+v", rel.Baseline)
	}
	if tcs.Baseline.Valid || len(tcs.SeedVolumes) != 0 {
		t.Fatalf("unseeded symbol must have no history")
	}
}

func TestPriorSeedHasNoBaseline(t *testing.T) {
	syms, err := Load(config.Universe{
		BiasPath: filepath.Join("testdata", "bias.yaml"),
		SeedPath: filepath.Join("testdata", "seed.json"),
		SeedKind: "prior",
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	for _, s := range syms {
		if s.Baseline.Valid {
			t.Fatalf("%s: prior seed must not set a baseline", s.Name)
		}
		if len(s.SeedVolumes) == 0 {
			t.Fatalf("%s: expected seed history", s.Name)
		}
	}
}

func TestInlineOverridesFile(t *testing.T) {
	syms, err := Build([]config.SymbolBias{
		{Symbol: "INFY", Side: "SELL"},
		{Symbol: "infy", Side: "BUY"},
	}, nil, SeedIntraday)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(syms) != 1 || syms[0].Bias != signal.Buy {
		t.Fatalf("later entry should win, got %+v", syms)
	}
}

func TestBuildRejectsBadEntries(t *testing.T) {
	if _, err := Build([]config.SymbolBias{{Symbol: "X", Side: "HOLD"}}, nil, SeedIntraday); err == nil {
		t.Fatalf("expected error for bad side")
	}
	if _, err := Build([]config.SymbolBias{{Side: "BUY"}}, nil, SeedIntraday); err == nil {
		t.Fatalf("expected error for missing symbol")
	}
	if _, err := Build(nil, nil, SeedIntraday); err == nil {
		t.Fatalf("expected error for empty universe")
	}
}

func TestLoadSeedsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(`{"X": [[1, 2, 3]]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSeeds(path); err == nil {
		t.Fatalf("expected error for short seed row")
	}
	if _, err := LoadBias(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing bias file")
	}
}
