package order

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rrctrade/RRC-Automation2/internal/metrics"
)

// Alerter escalates positions that are filled but have no resting stop.
type Alerter interface {
	Unprotected(ctx context.Context, st State, err error)
}

// LogAlerter logs and counts every unprotected occurrence, and optionally posts
// to a webhook at most once per symbol per interval.
type LogAlerter struct {
	log      zerolog.Logger
	webhook  string
	client   *http.Client
	interval time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

type alertPayload struct {
	Alert    string `json:"alert"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Quantity int64  `json:"quantity"`
	Entry    string `json:"entry"`
	Stop     string `json:"stop"`
	Error    string `json:"error"`
}

// NewLogAlerter builds an alerter. An empty webhook disables posting.
func NewLogAlerter(log zerolog.Logger, webhook string) *LogAlerter {
	return &LogAlerter{
		log:      log.With().Str("component", "alerts").Logger(),
		webhook:  webhook,
		client:   &http.Client{Timeout: 5 * time.Second},
		interval: time.Minute,
		lastSent: make(map[string]time.Time),
	}
}

func (a *LogAlerter) Unprotected(ctx context.Context, st State, err error) {
	metrics.UnprotectedPositions.WithLabelValues(st.Symbol).Inc()
	a.log.Error().Err(err).Bool("alert", true).Str("event", "UNPROTECTED").Str("symbol", st.Symbol).
		Str("side", string(st.Side)).Int64("qty", st.Quantity).Str("sl", st.StopPrice.String()).
		Msg("position filled without protective stop")

	if a.webhook == "" || !a.due(st.Symbol) {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	body, _ := json.Marshal(alertPayload{
		Alert:    "UNPROTECTED",
		Symbol:   st.Symbol,
		Side:     string(st.Side),
		Quantity: st.Quantity,
		Entry:    st.EntryPrice.String(),
		Stop:     st.StopPrice.String(),
		Error:    msg,
	})
	go a.post(body)
}

func (a *LogAlerter) due(symbol string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	if last, ok := a.lastSent[symbol]; ok && now.Sub(last) < a.interval {
		return false
	}
	a.lastSent[symbol] = now
	return true
}

func (a *LogAlerter) post(body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), a.client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhook, bytes.NewReader(body))
	if err != nil {
		a.log.Warn().Err(err).Msg("alert webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Warn().Err(err).Msg("alert webhook post failed")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		a.log.Warn().Int("status", resp.StatusCode).Msg("alert webhook rejected")
	}
}
