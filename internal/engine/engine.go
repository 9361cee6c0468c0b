// Package engine routes ticks to one worker goroutine per symbol.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/execution"
	"github.com/rrctrade/RRC-Automation2/internal/metrics"
	"github.com/rrctrade/RRC-Automation2/internal/order"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
	"github.com/rrctrade/RRC-Automation2/internal/strategy"
)

// Symbol is one tradable instrument with its session bias and seed history.
type Symbol struct {
	Name        string
	Bias        signal.Side
	SeedVolumes []decimal.Decimal
	Baseline    decimal.NullDecimal
}

// Simulator receives every tick before the order manager, e.g. a paper broker filling resting orders.
type Simulator interface {
	OnTick(signal.Tick) []execution.Fill
}

// Config wires the engine's collaborators.
type Config struct {
	WindowSeconds  int64
	StrategyMode   string
	StrategyParams strategy.Params
	Gateway        execution.Gateway
	Orders         order.Config
	Recorder       order.Recorder
	Alerter        order.Alerter
	Simulator      Simulator
	Board          *Board
	QueueSize      int
}

// Engine owns the dispatcher and the symbol workers.
type Engine struct {
	log     zerolog.Logger
	board   *Board
	workers map[string]*worker
	queue   int
}

// New builds one worker per symbol. Symbols must be unique.
func New(symbols []Symbol, cfg Config, log zerolog.Logger) (*Engine, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("engine: gateway required")
	}
	if cfg.Board == nil {
		cfg.Board = NewBoard()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	e := &Engine{
		log:     log.With().Str("component", "engine").Logger(),
		board:   cfg.Board,
		workers: make(map[string]*worker, len(symbols)),
		queue:   cfg.QueueSize,
	}
	for _, sym := range symbols {
		if _, dup := e.workers[sym.Name]; dup {
			return nil, fmt.Errorf("engine: duplicate symbol %s", sym.Name)
		}
		if !sym.Bias.Valid() {
			return nil, fmt.Errorf("engine: symbol %s has no bias", sym.Name)
		}
		w, err := newWorker(sym, cfg, log)
		if err != nil {
			return nil, err
		}
		e.workers[sym.Name] = w
	}
	return e, nil
}

// Board exposes the snapshot board.
func (e *Engine) Board() *Board { return e.board }

// Run starts the workers and dispatches ticks until ticks is closed or ctx is
// done, then waits for every worker to drain its queue.
func (e *Engine) Run(ctx context.Context, ticks <-chan signal.Tick) error {
	var wg sync.WaitGroup
	for _, w := range e.workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			w.run(ctx)
		}(w)
	}
	e.log.Info().Int("symbols", len(e.workers)).Msg("engine started")

	err := e.dispatch(ctx, ticks)
	for _, w := range e.workers {
		close(w.in)
	}
	wg.Wait()
	e.log.Info().Msg("engine stopped")
	return err
}

func (e *Engine) dispatch(ctx context.Context, ticks <-chan signal.Tick) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-ticks:
			if !ok {
				return nil
			}
			w, known := e.workers[t.Symbol]
			if !known {
				metrics.TicksDropped.WithLabelValues("unknown_symbol").Inc()
				continue
			}
			select {
			case w.in <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
