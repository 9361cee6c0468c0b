// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // session timezones on hosts without zoneinfo

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, mode, listeners, and logging levels.
type App struct {
	Name        string
	Env         string
	Mode        string // paper | live
	MetricsAddr string
	StatusAddr  string `yaml:"status_addr"`
	LogLevel    string
}

// Session bounds the trading day.
type Session struct {
	ExchangeMIC      string `yaml:"exchange_mic"`
	Timezone         string `yaml:"timezone"`
	BiasTime         string `yaml:"bias_time"` // HH:MM, trading starts here
	StopTime         string `yaml:"stop_time"` // HH:MM, run context ends here
	SkipHolidayCheck bool   `yaml:"skip_holiday_check"`
}

// Feed selects and tunes the tick source.
type Feed struct {
	Provider       string `yaml:"provider"` // stub | websocket | poll | replay
	URL            string `yaml:"url"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	ReplayPath     string `yaml:"replay_path"`
	QueueSize      int    `yaml:"queue_size"`
}

// SymbolBias pins a session bias for one symbol inline in the config.
type SymbolBias struct {
	Symbol string `yaml:"symbol"`
	Side   string `yaml:"side"`
}

// Universe points at the bias list and the seed history.
type Universe struct {
	BiasPath string       `yaml:"bias_path"`
	SeedPath string       `yaml:"seed_path"`
	SeedKind string       `yaml:"seed_kind"` // intraday | prior
	Symbols  []SymbolBias `yaml:"symbols"`
}

// Strategy specifies the detector mode and its knobs.
type Strategy struct {
	Mode                string `yaml:"mode"`
	WindowSeconds       int64  `yaml:"window_seconds"`
	MinReferenceCandles int    `yaml:"min_reference_candles"`
	CancelPolicy        string `yaml:"cancel_policy"` // wrong_color | opposite_color | never
}

// Risk encodes per-trade sizing and guard-rails.
type Risk struct {
	PerTradeRisk        float64 `yaml:"per_trade_risk"`
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade"`
}

// Trail configures the one-time stop revision.
type Trail struct {
	Policy     string  `yaml:"policy"` // risk_multiple | fixed | off
	RRMultiple float64 `yaml:"rr_multiple"`
	RRProfit   float64 `yaml:"rr_profit"`
	LockProfit float64 `yaml:"lock_profit"`
}

// Paper captures paper-trading account settings.
type Paper struct {
	StartingCash         float64 `yaml:"starting_cash"`
	MaxPositionPerSymbol int64   `yaml:"max_position_per_symbol"`
	Slippage             float64 `yaml:"slippage"` // fraction of trigger
}

// Broker configures the live REST gateway.
type Broker struct {
	BaseURL     string `yaml:"base_url"`
	TokenEnv    string `yaml:"token_env"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	MaxAttempts int    `yaml:"max_attempts"`
	BackoffMs   int    `yaml:"backoff_ms"`
}

// Journal selects the transition audit sink.
type Journal struct {
	Driver string `yaml:"driver"` // jsonl | sqlite | none
	Path   string `yaml:"path"`
}

// Alerts configures escalation for unprotected positions.
type Alerts struct {
	WebhookURL string `yaml:"webhook_url"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Session  Session  `yaml:"session"`
	Feed     Feed     `yaml:"feed"`
	Universe Universe `yaml:"universe"`
	Strategy Strategy `yaml:"strategy"`
	Risk     Risk     `yaml:"risk"`
	Trail    Trail    `yaml:"trail"`
	Paper    Paper    `yaml:"paper"`
	Broker   Broker   `yaml:"broker"`
	Journal  Journal  `yaml:"journal"`
	Alerts   Alerts   `yaml:"alerts"`
}

// Load reads a YAML file from disk, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyDefaults fills unset fields with the session defaults.
func (c *Config) ApplyDefaults() {
	setStr(&c.App.Mode, "paper")
	setStr(&c.App.LogLevel, "info")
	setStr(&c.Session.ExchangeMIC, "xnse")
	setStr(&c.Session.Timezone, "Asia/Kolkata")
	setStr(&c.Session.BiasTime, "09:25")
	setStr(&c.Session.StopTime, "15:15")
	setStr(&c.Feed.Provider, "stub")
	if c.Feed.PollIntervalMs <= 0 {
		c.Feed.PollIntervalMs = 2000
	}
	if c.Feed.QueueSize <= 0 {
		c.Feed.QueueSize = 1024
	}
	setStr(&c.Universe.SeedKind, "intraday")
	setStr(&c.Strategy.Mode, "lowest_volume")
	if c.Strategy.WindowSeconds <= 0 {
		c.Strategy.WindowSeconds = 300
	}
	if c.Strategy.MinReferenceCandles <= 0 {
		c.Strategy.MinReferenceCandles = 2
	}
	setStr(&c.Strategy.CancelPolicy, "wrong_color")
	setStr(&c.Trail.Policy, "risk_multiple")
	if c.Trail.RRMultiple <= 0 {
		c.Trail.RRMultiple = 2
	}
	if c.Trail.RRProfit <= 0 {
		c.Trail.RRProfit = 750
	}
	if c.Trail.LockProfit <= 0 {
		c.Trail.LockProfit = 200
	}
	if c.Paper.Slippage <= 0 {
		c.Paper.Slippage = 0.001
	}
	setStr(&c.Broker.TokenEnv, "BROKER_ACCESS_TOKEN")
	if c.Broker.TimeoutMs <= 0 {
		c.Broker.TimeoutMs = 5000
	}
	if c.Broker.MaxAttempts <= 0 {
		c.Broker.MaxAttempts = 3
	}
	if c.Broker.BackoffMs <= 0 {
		c.Broker.BackoffMs = 200
	}
	setStr(&c.Journal.Driver, "jsonl")
	setStr(&c.Journal.Path, "data/transitions.jsonl")
}

// Validate reports every inconsistent setting, joined.
func (c *Config) Validate() error {
	var errs []error
	switch c.App.Mode {
	case "paper", "live":
	default:
		errs = append(errs, fmt.Errorf("app.mode must be paper or live, got %q", c.App.Mode))
	}
	if _, err := ParseClock(c.Session.BiasTime); err != nil {
		errs = append(errs, fmt.Errorf("session.bias_time: %w", err))
	}
	if _, err := ParseClock(c.Session.StopTime); err != nil {
		errs = append(errs, fmt.Errorf("session.stop_time: %w", err))
	}
	if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("session.timezone: %w", err))
	}
	switch c.Feed.Provider {
	case "stub":
	case "websocket", "poll":
		if c.Feed.URL == "" {
			errs = append(errs, fmt.Errorf("feed.url required for %s", c.Feed.Provider))
		}
	case "replay":
		if c.Feed.ReplayPath == "" {
			errs = append(errs, errors.New("feed.replay_path required for replay"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown feed.provider %q", c.Feed.Provider))
	}
	if c.Universe.BiasPath == "" && len(c.Universe.Symbols) == 0 {
		errs = append(errs, errors.New("universe needs bias_path or symbols"))
	}
	switch c.Universe.SeedKind {
	case "intraday", "prior":
	default:
		errs = append(errs, fmt.Errorf("universe.seed_kind must be intraday or prior, got %q", c.Universe.SeedKind))
	}
	if c.Risk.PerTradeRisk <= 0 {
		errs = append(errs, errors.New("risk.per_trade_risk must be positive"))
	}
	if c.Risk.MaxNotionalPerTrade < 0 {
		errs = append(errs, errors.New("risk.max_notional_per_trade must not be negative"))
	}
	if c.App.Mode == "live" && c.Broker.BaseURL == "" {
		errs = append(errs, errors.New("broker.base_url required in live mode"))
	}
	switch c.Journal.Driver {
	case "jsonl", "sqlite", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown journal.driver %q", c.Journal.Driver))
	}
	return errors.Join(errs...)
}

// ParseClock parses an HH:MM wall-clock time into an offset from midnight.
func ParseClock(raw string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", raw)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func setStr(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}
