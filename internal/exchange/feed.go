// Package exchange hosts tick sources: synthetic, websocket, HTTP polling and file replay.
package exchange

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/metrics"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

const (
	// ProviderStub emits deterministic synthetic ticks (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderWebsocket streams JSON ticks from a websocket endpoint.
	ProviderWebsocket = "websocket"
	// ProviderPoll polls an HTTP quotes endpoint.
	ProviderPoll = "poll"
	// ProviderReplay replays a JSONL file of recorded ticks.
	ProviderReplay = "replay"
)

// Feed represents a pluggable market data stream implementation.
type Feed struct {
	provider     string
	symbols      []string
	log          zerolog.Logger
	url          string
	pollInterval time.Duration
	replayPath   string
	stubInterval time.Duration
	now          func() time.Time
	mu           sync.RWMutex
}

// Option configures Feed construction parameters.
type Option func(*Feed)

const (
	defaultPollInterval = 2 * time.Second
	defaultStubInterval = 500 * time.Millisecond
)

// WithURL sets the websocket or quotes endpoint.
func WithURL(u string) Option {
	return func(f *Feed) { f.url = strings.TrimSuffix(strings.TrimSpace(u), "/") }
}

// WithPollInterval overrides the default polling cadence for HTTP-based feeds.
func WithPollInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.pollInterval = d
		}
	}
}

// WithReplayPath points the replay provider at a JSONL tick file.
func WithReplayPath(path string) Option {
	return func(f *Feed) { f.replayPath = path }
}

// WithStubInterval overrides the synthetic tick cadence.
func WithStubInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.stubInterval = d
		}
	}
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:     strings.ToLower(provider),
		log:          log.With().Str("component", "feed").Str("provider", strings.ToLower(provider)).Logger(),
		pollInterval: defaultPollInterval,
		stubInterval: defaultStubInterval,
		now:          time.Now,
	}
	f.SetSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetSymbols replaces the tracked symbol list (deduplicated, sorted for determinism).
func (f *Feed) SetSymbols(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = f.symbols[:0]
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

func (f *Feed) snapshotSymbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Run pushes ticks onto the provided channel until the context is canceled.
// The replay provider returns nil once the file is exhausted.
func (f *Feed) Run(ctx context.Context, out chan<- signal.Tick) error {
	switch f.provider {
	case ProviderWebsocket:
		return f.runWebsocket(ctx, out)
	case ProviderPoll:
		return f.runPoll(ctx, out)
	case ProviderReplay:
		return f.runReplay(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

// emit normalizes raw and forwards it. Malformed records are counted and skipped.
func (f *Feed) emit(ctx context.Context, out chan<- signal.Tick, raw signal.RawTick) error {
	tick, err := raw.Normalize()
	if err != nil {
		metrics.TicksDropped.WithLabelValues("malformed").Inc()
		f.log.Debug().Err(err).Msg("dropping tick")
		return nil
	}
	select {
	case out <- tick:
		metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feed) runStub(ctx context.Context, out chan<- signal.Tick) error {
	ticker := time.NewTicker(f.stubInterval)
	defer ticker.Stop()

	step := decimal.RequireFromString("0.05")
	px := decimal.NewFromInt(100)
	vol := decimal.Zero
	var n int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			n++
			// saw-tooth price so both colors and trigger crossings occur
			if (n/20)%2 == 0 {
				px = px.Add(step)
			} else {
				px = px.Sub(step)
			}
			vol = vol.Add(decimal.NewFromInt(100 + (n%7)*10))
			for _, s := range f.snapshotSymbols() {
				if err := f.emit(ctx, out, signal.NewRawTick(s, px, vol, ts.Unix())); err != nil {
					return err
				}
			}
		}
	}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
