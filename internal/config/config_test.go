package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "rrc-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.MetricsAddr != ":9101" || cfg.App.StatusAddr != ":8081" {
		t.Fatalf("unexpected listeners: %s %s", cfg.App.MetricsAddr, cfg.App.StatusAddr)
	}
	if len(cfg.Universe.Symbols) != 2 || cfg.Universe.Symbols[1].Side != "SELL" {
		t.Fatalf("unexpected universe symbols: %+v", cfg.Universe.Symbols)
	}
	if cfg.Feed.Provider != "replay" || cfg.Feed.QueueSize != 64 {
		t.Fatalf("unexpected feed: %+v", cfg.Feed)
	}
	if cfg.Strategy.MinReferenceCandles != 3 || cfg.Strategy.CancelPolicy != "opposite_color" {
		t.Fatalf("unexpected strategy: %+v", cfg.Strategy)
	}
	if cfg.Risk.PerTradeRisk != 1000 {
		t.Fatalf("unexpected per trade risk: %.2f", cfg.Risk.PerTradeRisk)
	}
	if cfg.Trail.Policy != "fixed" || cfg.Trail.RRProfit != 750 || cfg.Trail.LockProfit != 200 {
		t.Fatalf("unexpected trail: %+v", cfg.Trail)
	}
	if cfg.Trail.RRMultiple != 2 {
		t.Fatalf("expected default rr multiple 2, got %.2f", cfg.Trail.RRMultiple)
	}
	if cfg.Journal.Driver != "sqlite" {
		t.Fatalf("unexpected journal driver: %s", cfg.Journal.Driver)
	}
	if cfg.Broker.TokenEnv != "BROKER_ACCESS_TOKEN" || cfg.Broker.MaxAttempts != 3 {
		t.Fatalf("broker defaults not applied: %+v", cfg.Broker)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := &Config{
		App:     App{Mode: "live"},
		Feed:    Feed{Provider: "websocket"},
		Session: Session{BiasTime: "9am"},
		Journal: Journal{Driver: "csv"},
	}
	cfg.ApplyDefaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"bias_time", "feed.url", "per_trade_risk", "broker.base_url", "journal.driver", "universe"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	cfg.Risk.PerTradeRisk = 1500
	out := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(out, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	again, err := Load(out)
	if err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	if again.Risk.PerTradeRisk != 1500 {
		t.Fatalf("expected 1500 after reload, got %.2f", again.Risk.PerTradeRisk)
	}
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("09:25")
	if err != nil || d != 9*time.Hour+25*time.Minute {
		t.Fatalf("ParseClock = %v, %v", d, err)
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Fatalf("expected error for invalid clock")
	}
}
