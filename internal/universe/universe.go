// Package universe loads the session's tradable symbols, their bias and seed history.
package universe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rrctrade/RRC-Automation2/internal/candle"
	"github.com/rrctrade/RRC-Automation2/internal/config"
	"github.com/rrctrade/RRC-Automation2/internal/engine"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

// SeedKind tells whether seed candles come from today or from a prior session.
type SeedKind string

const (
	// SeedIntraday seeds are today's earlier windows; their sum is the cumulative baseline.
	SeedIntraday SeedKind = "intraday"
	// SeedPrior seeds only fill the history; the first live candle becomes the baseline.
	SeedPrior SeedKind = "prior"
)

type biasFile struct {
	Symbols []config.SymbolBias `yaml:"symbols"`
}

// LoadBias reads a YAML bias list of {symbol, side} pairs.
func LoadBias(path string) ([]config.SymbolBias, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bias file: %w", err)
	}
	var f biasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode bias file: %w", err)
	}
	return f.Symbols, nil
}

// LoadSeeds reads a JSON object mapping symbol to broker-format history rows.
func LoadSeeds(path string) (map[string][]candle.SeedCandle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seeds map[string][]candle.SeedCandle
	if err := json.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return seeds, nil
}

// Build merges the bias list with inline symbols and attaches seed history.
// Inline entries override the file for the same symbol.
func Build(biases []config.SymbolBias, seeds map[string][]candle.SeedCandle, kind SeedKind) ([]engine.Symbol, error) {
	merged := make(map[string]signal.Side, len(biases))
	var errs []error
	for _, b := range biases {
		name := strings.ToUpper(strings.TrimSpace(b.Symbol))
		if name == "" {
			errs = append(errs, errors.New("bias entry without symbol"))
			continue
		}
		side, err := signal.ParseSide(b.Side)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		merged[name] = side
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if len(merged) == 0 {
		return nil, errors.New("universe is empty")
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]engine.Symbol, 0, len(names))
	for _, name := range names {
		sym := engine.Symbol{Name: name, Bias: merged[name]}
		rows := seeds[name]
		sort.Slice(rows, func(i, j int) bool { return rows[i].EpochSeconds < rows[j].EpochSeconds })
		total := decimal.Zero
		for _, r := range rows {
			sym.SeedVolumes = append(sym.SeedVolumes, r.Volume)
			total = total.Add(r.Volume)
		}
		if kind == SeedIntraday && len(rows) > 0 {
			sym.Baseline = decimal.NewNullDecimal(total)
		}
		out = append(out, sym)
	}
	return out, nil
}

// Load resolves the configured universe.
func Load(cfg config.Universe) ([]engine.Symbol, error) {
	var biases []config.SymbolBias
	if cfg.BiasPath != "" {
		fromFile, err := LoadBias(cfg.BiasPath)
		if err != nil {
			return nil, err
		}
		biases = append(biases, fromFile...)
	}
	biases = append(biases, cfg.Symbols...)

	var seeds map[string][]candle.SeedCandle
	if cfg.SeedPath != "" {
		var err error
		if seeds, err = LoadSeeds(cfg.SeedPath); err != nil {
			return nil, err
		}
		seeds = upperKeys(seeds)
	}
	kind := SeedKind(strings.ToLower(cfg.SeedKind))
	if kind == "" {
		kind = SeedIntraday
	}
	return Build(biases, seeds, kind)
}

func upperKeys(in map[string][]candle.SeedCandle) map[string][]candle.SeedCandle {
	out := make(map[string][]candle.SeedCandle, len(in))
	for k, v := range in {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}
