package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	TicksDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_dropped_total", Help: "Ticks dropped before reaching a symbol worker"},
		[]string{"reason"},
	)
	CandlesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "candles_closed_total", Help: "Closed candle windows"},
		[]string{"symbol"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals emitted by the volume detector"},
		[]string{"symbol", "kind"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Broker commands issued"},
		[]string{"symbol", "side", "action"},
	)
	BrokerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "broker_errors_total", Help: "Failed broker calls after retries"},
		[]string{"op"},
	)
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_transitions_total", Help: "Order lifecycle transitions"},
		[]string{"to"},
	)
	UnprotectedPositions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "unprotected_positions_total", Help: "Alerts raised for filled positions without a resting stop"},
		[]string{"symbol"},
	)
	PaperAccountErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "paper_account_errors_total", Help: "Paper fills the simulated account refused to book"},
		[]string{"symbol"},
	)
	WorkerPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "worker_panics_total", Help: "Events that panicked inside a symbol worker"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		TicksDropped,
		CandlesClosed,
		SignalsTotal,
		OrdersTotal,
		BrokerErrors,
		Transitions,
		UnprotectedPositions,
		PaperAccountErrors,
		WorkerPanics,
	)
}

// Handler exposes the default registry for mounting on another router.
func Handler() http.Handler { return promhttp.Handler() }

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
