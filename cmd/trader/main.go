package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/api"
	"github.com/rrctrade/RRC-Automation2/internal/broker"
	"github.com/rrctrade/RRC-Automation2/internal/config"
	"github.com/rrctrade/RRC-Automation2/internal/engine"
	"github.com/rrctrade/RRC-Automation2/internal/exchange"
	"github.com/rrctrade/RRC-Automation2/internal/execution"
	"github.com/rrctrade/RRC-Automation2/internal/journal"
	"github.com/rrctrade/RRC-Automation2/internal/metrics"
	"github.com/rrctrade/RRC-Automation2/internal/order"
	"github.com/rrctrade/RRC-Automation2/internal/paper"
	"github.com/rrctrade/RRC-Automation2/internal/risk"
	"github.com/rrctrade/RRC-Automation2/internal/session"
	sig "github.com/rrctrade/RRC-Automation2/internal/signal"
	"github.com/rrctrade/RRC-Automation2/internal/strategy"
	"github.com/rrctrade/RRC-Automation2/internal/universe"
	"github.com/rrctrade/RRC-Automation2/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	path := flag.String("config", defaultConfigPath, "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		util.NewLogger("info").Fatal().Err(err).Str("path", *path).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel).With().Str("app", cfg.App.Name).Str("mode", cfg.App.Mode).Logger()

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("trader stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.App.MetricsAddr != "" {
		srv := metrics.Serve(cfg.App.MetricsAddr)
		defer srv.Close()
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	symbols, err := universe.Load(cfg.Universe)
	if err != nil {
		return err
	}

	jr, err := journal.Open(cfg.Journal, log)
	if err != nil {
		return err
	}
	defer jr.Close()

	orders, err := orderConfig(cfg)
	if err != nil {
		return err
	}

	var (
		gateway   execution.Gateway
		simulator engine.Simulator
		account   *paper.Account
		ledger    *paper.Ledger
	)
	switch orders.Mode {
	case order.ModePaper:
		account = paper.NewAccount(decimal.NewFromFloat(cfg.Paper.StartingCash), cfg.Paper.MaxPositionPerSymbol)
		ledger = paper.NewLedger(jr)
		pb := paper.NewBroker(account, ledger, orders.Slippage, log)
		gateway, simulator = pb, pb
	case order.ModeLive:
		token, err := broker.LoadTokenFromEnv(cfg.Broker.TokenEnv)
		if err != nil {
			return err
		}
		client := broker.NewClient(cfg.Broker.BaseURL, token, time.Duration(cfg.Broker.TimeoutMs)*time.Millisecond)
		gateway = execution.NewExecutor(client, log, execution.Options{
			CallTimeout: time.Duration(cfg.Broker.TimeoutMs) * time.Millisecond,
			MaxAttempts: cfg.Broker.MaxAttempts,
			BaseBackoff: time.Duration(cfg.Broker.BackoffMs) * time.Millisecond,
		})
	}

	board := engine.NewBoard()
	eng, err := engine.New(symbols, engine.Config{
		WindowSeconds: cfg.Strategy.WindowSeconds,
		StrategyMode:  cfg.Strategy.Mode,
		StrategyParams: strategy.Params{
			MinReferenceCandles: cfg.Strategy.MinReferenceCandles,
			CancelPolicy:        cfg.Strategy.CancelPolicy,
		},
		Gateway:   gateway,
		Orders:    orders,
		Recorder:  jr,
		Alerter:   order.NewLogAlerter(log, cfg.Alerts.WebhookURL),
		Simulator: simulator,
		Board:     board,
		QueueSize: cfg.Feed.QueueSize,
	}, log)
	if err != nil {
		return err
	}

	if cfg.App.StatusAddr != "" {
		srv := api.NewHandler(board, cfg.App.Mode, log).Serve(cfg.App.StatusAddr)
		defer srv.Close()
		log.Info().Str("addr", cfg.App.StatusAddr).Msg("status api up")
	}

	runCtx, stop, err := openSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stop()

	names := make([]string, 0, len(symbols))
	for _, s := range symbols {
		names = append(names, s.Name)
	}
	feed := exchange.NewFeed(cfg.Feed.Provider, names, log,
		exchange.WithURL(cfg.Feed.URL),
		exchange.WithPollInterval(time.Duration(cfg.Feed.PollIntervalMs)*time.Millisecond),
		exchange.WithReplayPath(cfg.Feed.ReplayPath),
	)
	ticks := make(chan sig.Tick, cfg.Feed.QueueSize)
	go func() {
		defer close(ticks)
		if err := feed.Run(runCtx, ticks); err != nil && runCtx.Err() == nil {
			log.Error().Err(err).Msg("feed stopped")
		}
	}()

	err = eng.Run(runCtx, ticks)
	summarize(board, account, ledger, log)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Info().Msg("session stop time reached")
		return nil
	}
	return err
}

func openSession(ctx context.Context, cfg *config.Config, log zerolog.Logger) (context.Context, context.CancelFunc, error) {
	window, err := session.NewWindow(cfg.Session.Timezone, cfg.Session.BiasTime, cfg.Session.StopTime)
	if err != nil {
		return nil, nil, err
	}
	cal := session.NewCalendar(cfg.Session.ExchangeMIC, window.Loc)
	if cal.Fallback() {
		log.Warn().Str("mic", cfg.Session.ExchangeMIC).Msg("no exchange calendar; using weekdays")
	}
	gate := &session.Gate{
		Calendar:         cal,
		Window:           window,
		SkipHolidayCheck: cfg.Session.SkipHolidayCheck,
		Log:              log,
	}
	return gate.Open(ctx)
}

func orderConfig(cfg *config.Config) (order.Config, error) {
	mode, err := order.ParseMode(cfg.App.Mode)
	if err != nil {
		return order.Config{}, err
	}
	policy, err := order.ParseTrailPolicy(cfg.Trail.Policy)
	if err != nil {
		return order.Config{}, err
	}
	return order.Config{
		Mode:     mode,
		Sizer:    risk.Sizer{PerTradeRisk: decimal.NewFromFloat(cfg.Risk.PerTradeRisk)},
		Limits:   risk.Limits{MaxNotionalPerTrade: decimal.NewFromFloat(cfg.Risk.MaxNotionalPerTrade)},
		Slippage: decimal.NewFromFloat(cfg.Paper.Slippage),
		Trail: order.Trail{
			Policy:     policy,
			RRMultiple: decimal.NewFromFloat(cfg.Trail.RRMultiple),
			RRProfit:   decimal.NewFromFloat(cfg.Trail.RRProfit),
			LockProfit: decimal.NewFromFloat(cfg.Trail.LockProfit),
		},
	}, nil
}

func summarize(board *engine.Board, account *paper.Account, ledger *paper.Ledger, log zerolog.Logger) {
	prices := make(map[string]decimal.Decimal)
	for _, snap := range board.All() {
		prices[snap.Symbol] = snap.LastPrice
		for _, st := range snap.Closed {
			log.Info().
				Str("symbol", st.Symbol).
				Str("side", string(st.Side)).
				Str("status", string(st.Status)).
				Str("entry", st.EntryPrice.String()).
				Str("exit", st.ExitPrice.String()).
				Str("pnl", st.RealizedPnL.String()).
				Msg("TRADE")
		}
		if snap.Order != nil {
			log.Warn().Str("symbol", snap.Symbol).Str("status", string(snap.Order.Status)).Msg("order still open at shutdown")
		}
	}
	if account != nil {
		s := account.Snapshot(prices)
		log.Info().Interface("account", s).
			Int("fills", len(ledger.Fills(""))).
			Str("turnover", ledger.Turnover().String()).
			Msg("paper account")
	}
}
