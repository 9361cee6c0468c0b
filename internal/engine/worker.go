package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/rrctrade/RRC-Automation2/internal/candle"
	"github.com/rrctrade/RRC-Automation2/internal/metrics"
	"github.com/rrctrade/RRC-Automation2/internal/order"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
	"github.com/rrctrade/RRC-Automation2/internal/strategy"
)

// worker exclusively owns the candle, volume history and order state of one symbol.
type worker struct {
	symbol string
	bias   signal.Side
	in     chan signal.Tick
	agg    *candle.Aggregator
	strat  strategy.Strategy
	orders *order.Manager
	sim    Simulator
	board  *Board
	log    zerolog.Logger
	last   signal.Tick
}

func newWorker(sym Symbol, cfg Config, log zerolog.Logger) (*worker, error) {
	strat, err := strategy.Build(cfg.StrategyMode, cfg.StrategyParams)
	if err != nil {
		return nil, err
	}
	strat.Seed(sym.Name, sym.SeedVolumes, sym.Baseline)
	wlog := log.With().Str("symbol", sym.Name).Logger()
	return &worker{
		symbol: sym.Name,
		bias:   sym.Bias,
		in:     make(chan signal.Tick, cfg.QueueSize),
		agg:    candle.NewAggregator(cfg.WindowSeconds),
		strat:  strat,
		orders: order.NewManager(cfg.Gateway, cfg.Orders, wlog, cfg.Recorder, cfg.Alerter),
		sim:    cfg.Simulator,
		board:  cfg.Board,
		log:    wlog.With().Str("component", "worker").Logger(),
	}, nil
}

func (w *worker) run(ctx context.Context) {
	for t := range w.in {
		w.handle(ctx, t)
	}
}

// handle processes one tick; a panic is contained to this event.
func (w *worker) handle(ctx context.Context, t signal.Tick) {
	defer func() {
		if r := recover(); r != nil {
			metrics.WorkerPanics.WithLabelValues(w.symbol).Inc()
			w.log.Error().Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("event processing panicked")
		}
	}()
	defer w.publish()

	w.last = t
	if w.sim != nil {
		for _, f := range w.sim.OnTick(t) {
			w.log.Debug().Str("order_id", f.OrderID).Str("purpose", string(f.Purpose)).Str("price", f.Price.String()).Msg("paper fill")
		}
	}
	w.orders.OnTick(ctx, t)

	closed, ok := w.agg.OnTick(t)
	if !ok {
		return
	}
	w.onCandle(ctx, closed.Candle)
}

func (w *worker) onCandle(ctx context.Context, c candle.Candle) {
	sig, eval := w.strat.OnCandleClosed(c, w.bias, w.orders.HasPending(w.symbol))
	w.log.Info().Str("event", "VOLCHK").Int64("window", c.WindowStart).
		Str("vol", eval.WindowVolume.String()).Str("prev_min", eval.PrevMin.String()).
		Bool("lowest", eval.IsLowest).Bool("reference", eval.Reference).Str("color", string(eval.Color)).
		Msg("candle closed")
	if sig == nil {
		return
	}
	w.log.Info().Str("event", "SIGNAL_FOUND").Str("kind", string(sig.Kind)).Str("side", string(sig.Side)).
		Str("high", sig.High.String()).Str("low", sig.Low.String()).Str("reason", sig.Reason).Msg("signal")
	if err := w.orders.OnSignal(ctx, *sig); err != nil {
		w.log.Warn().Err(err).Str("kind", string(sig.Kind)).Msg("signal not acted on")
	}
}

func (w *worker) publish() {
	snap := Snapshot{
		Symbol:    w.symbol,
		Bias:      w.bias,
		LastPrice: w.last.LastPrice,
		Closed:    w.orders.Closed(w.symbol),
		UpdatedAt: time.Now(),
	}
	if c, ok := w.agg.Open(w.symbol); ok {
		snap.OpenCandle = &c
	}
	if st, ok := w.orders.State(w.symbol); ok {
		snap.Order = &st
	}
	if d, ok := w.strat.(*strategy.Detector); ok {
		snap.History = len(d.History(w.symbol))
	}
	w.board.Publish(snap)
}
