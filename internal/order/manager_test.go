package order

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrctrade/RRC-Automation2/internal/execution"
	"github.com/rrctrade/RRC-Automation2/internal/paper"
	"github.com/rrctrade/RRC-Automation2/internal/risk"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

type fakeGateway struct {
	seq       int
	placed    []execution.StopOrder
	placeErrs []error
	cancelled []string
	cancelErr error
	status    map[string]execution.OrderStatus
	statusErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{status: make(map[string]execution.OrderStatus)}
}

func (f *fakeGateway) PlaceStopOrder(_ context.Context, o execution.StopOrder) (string, error) {
	f.placed = append(f.placed, o)
	if len(f.placeErrs) > 0 {
		err := f.placeErrs[0]
		f.placeErrs = f.placeErrs[1:]
		if err != nil {
			return "", err
		}
	}
	f.seq++
	id := fmt.Sprintf("o-%d", f.seq)
	f.status[id] = execution.OrderStatus{ID: id, State: execution.StateOpen}
	return id, nil
}

func (f *fakeGateway) CancelOrder(_ context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	return f.cancelErr
}

func (f *fakeGateway) OrderStatus(_ context.Context, id string) (execution.OrderStatus, error) {
	if f.statusErr != nil {
		return execution.OrderStatus{}, f.statusErr
	}
	return f.status[id], nil
}

type memRecorder struct{ transitions []Transition }

func (r *memRecorder) RecordTransition(t Transition) error {
	r.transitions = append(r.transitions, t)
	return nil
}

type countingAlerter struct{ calls int }

func (a *countingAlerter) Unprotected(context.Context, State, error) { a.calls++ }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(dec(want)), "expected %s, got %s", want, got)
}

func liveConfig() Config {
	return Config{
		Mode:  ModeLive,
		Sizer: risk.Sizer{PerTradeRisk: dec("1000")},
		Trail: Trail{Policy: TrailRiskMultiple, RRMultiple: dec("2"), LockProfit: dec("200")},
	}
}

func entry(side signal.Side, high, low string) signal.Signal {
	return signal.Signal{Symbol: "SBIN", Kind: signal.Entry, Side: side, High: dec(high), Low: dec(low)}
}

func tick(price string) signal.Tick {
	return signal.Tick{Symbol: "SBIN", LastPrice: dec(price), CumulativeVolume: dec("1"), EventTime: 1}
}

type harness struct {
	m     *Manager
	gw    *fakeGateway
	rec   *memRecorder
	alert *countingAlerter
}

func newHarness(cfg Config) harness {
	gw := newFakeGateway()
	rec := &memRecorder{}
	alert := &countingAlerter{}
	return harness{m: NewManager(gw, cfg, zerolog.Nop(), rec, alert), gw: gw, rec: rec, alert: alert}
}

func TestBuyLifecycleWithTrailAndStopOut(t *testing.T) {
	h := newHarness(liveConfig())
	ctx := context.Background()

	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	st, ok := h.m.State("SBIN")
	require.True(t, ok)
	assert.Equal(t, StatusPending, st.Status)
	assert.Equal(t, int64(250), st.Quantity)
	requireDec(t, "102", st.TriggerPrice)
	require.Len(t, h.gw.placed, 1)
	assert.Equal(t, execution.PurposeEntry, h.gw.placed[0].Purpose)
	assert.True(t, h.m.HasPending("SBIN"))

	h.m.OnTick(ctx, tick("101.9"))
	st, _ = h.m.State("SBIN")
	assert.Equal(t, StatusPending, st.Status)

	h.m.OnTick(ctx, tick("102"))
	st, _ = h.m.State("SBIN")
	assert.Equal(t, StatusStopPlaced, st.Status)
	requireDec(t, "102", st.EntryPrice)
	requireDec(t, "98", st.StopPrice)
	require.Len(t, h.gw.placed, 2)
	stopOrder := h.gw.placed[1]
	assert.Equal(t, signal.Sell, stopOrder.Side)
	assert.Equal(t, int64(250), stopOrder.Quantity)
	assert.Equal(t, execution.PurposeStopLoss, stopOrder.Purpose)

	// threshold is 2 x 1000; (109-102)*250 = 1750
	h.m.OnTick(ctx, tick("109"))
	st, _ = h.m.State("SBIN")
	assert.False(t, st.TrailApplied)

	h.m.OnTick(ctx, tick("110"))
	st, _ = h.m.State("SBIN")
	assert.True(t, st.TrailApplied)
	requireDec(t, "102.8", st.StopPrice)
	require.Len(t, h.gw.placed, 3)
	requireDec(t, "102.8", h.gw.placed[2].StopPrice)
	assert.Equal(t, []string{"o-2"}, h.gw.cancelled)

	for _, p := range []string{"105", "111", "104", "115"} {
		h.m.OnTick(ctx, tick(p))
	}
	assert.Len(t, h.gw.placed, 3, "trail must fire at most once")

	h.m.OnTick(ctx, tick("102.7"))
	_, ok = h.m.State("SBIN")
	assert.False(t, ok, "stopped state must leave the live map")
	closed := h.m.Closed("SBIN")
	require.Len(t, closed, 1)
	assert.Equal(t, StatusStopped, closed[0].Status)
	requireDec(t, "102.7", closed[0].ExitPrice)
	requireDec(t, "175", closed[0].RealizedPnL)

	var path []Status
	for _, tr := range h.rec.transitions {
		path = append(path, tr.To)
	}
	assert.Equal(t, []Status{StatusPending, StatusFilled, StatusStopPlaced, StatusStopPlaced, StatusStopped}, path)
	assert.Equal(t, "SL_TRAILED", h.rec.transitions[3].Reason)

	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "104", "100")))
	st, ok = h.m.State("SBIN")
	require.True(t, ok)
	assert.Equal(t, StatusPending, st.Status)
}

func TestTerminalSnapshotIsImmutable(t *testing.T) {
	h := newHarness(liveConfig())
	ctx := context.Background()
	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	h.m.OnTick(ctx, tick("102"))
	h.m.OnTick(ctx, tick("97"))

	before := h.m.Closed("SBIN")
	require.Len(t, before, 1)
	h.m.OnTick(ctx, tick("120"))
	h.m.OnTick(ctx, tick("90"))
	require.NoError(t, h.m.OnSignal(ctx, signal.Signal{Symbol: "SBIN", Kind: signal.Cancel}))
	after := h.m.Closed("SBIN")
	require.Len(t, after, 1)
	assert.Equal(t, before[0], after[0])

	after[0].Status = StatusNone
	assert.Equal(t, StatusStopped, h.m.Closed("SBIN")[0].Status, "Closed must return copies")
}

func TestSellLifecycle(t *testing.T) {
	cfg := liveConfig()
	cfg.Trail = Trail{Policy: TrailFixed, RRProfit: dec("750"), LockProfit: dec("200")}
	h := newHarness(cfg)
	ctx := context.Background()

	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Sell, "102", "98")))
	st, _ := h.m.State("SBIN")
	requireDec(t, "98", st.TriggerPrice)

	h.m.OnTick(ctx, tick("98.5"))
	st, _ = h.m.State("SBIN")
	assert.Equal(t, StatusPending, st.Status)

	h.m.OnTick(ctx, tick("97.9"))
	st, _ = h.m.State("SBIN")
	assert.Equal(t, StatusStopPlaced, st.Status)
	requireDec(t, "102", st.StopPrice)
	assert.Equal(t, signal.Buy, h.gw.placed[1].Side)

	// (97.9-94.9)*250 = 750
	h.m.OnTick(ctx, tick("94.9"))
	st, _ = h.m.State("SBIN")
	assert.True(t, st.TrailApplied)
	requireDec(t, "97.1", st.StopPrice)

	h.m.OnTick(ctx, tick("97.1"))
	closed := h.m.Closed("SBIN")
	require.Len(t, closed, 1)
	requireDec(t, "200", closed[0].RealizedPnL)
}

func TestPaperEntryUsesSlippedTrigger(t *testing.T) {
	cfg := liveConfig()
	cfg.Mode = ModePaper
	cfg.Slippage = dec("0.001")
	h := newHarness(cfg)
	ctx := context.Background()

	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	h.m.OnTick(ctx, tick("103.5"))
	st, _ := h.m.State("SBIN")
	requireDec(t, "102.1", st.EntryPrice)
}

func TestSupersedingEntryCancelsFirst(t *testing.T) {
	h := newHarness(liveConfig())
	ctx := context.Background()

	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "101", "99")))

	assert.Equal(t, []string{"o-1"}, h.gw.cancelled)
	st, ok := h.m.State("SBIN")
	require.True(t, ok)
	assert.Equal(t, "o-2", st.EntryOrderID)
	assert.Equal(t, int64(500), st.Quantity)
	assert.Equal(t, StatusCancelled, h.rec.transitions[1].To)
}

func TestSupersedingEntryAbortsWhenCancelUnconfirmed(t *testing.T) {
	h := newHarness(liveConfig())
	ctx := context.Background()

	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	h.gw.cancelErr = errors.New("gateway timeout")

	err := h.m.OnSignal(ctx, entry(signal.Buy, "101", "99"))
	require.ErrorIs(t, err, ErrCancelUnconfirmed)
	st, ok := h.m.State("SBIN")
	require.True(t, ok)
	assert.Equal(t, "o-1", st.EntryOrderID, "old pending order must be kept")
	assert.Len(t, h.gw.placed, 1, "no second order may be placed")
}

func TestSupersedingEntryProceedsWhenStatusConfirmsClosed(t *testing.T) {
	h := newHarness(liveConfig())
	ctx := context.Background()

	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	h.gw.cancelErr = errors.New("gateway timeout")
	h.gw.status["o-1"] = execution.OrderStatus{ID: "o-1", State: execution.StateCancelled}

	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "101", "99")))
	st, _ := h.m.State("SBIN")
	assert.Equal(t, "o-2", st.EntryOrderID)
}

func TestSupersedingEntryKeepsPendingWhenNotOpenStatusUnknown(t *testing.T) {
	h := newHarness(liveConfig())
	ctx := context.Background()

	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	h.gw.cancelErr = fmt.Errorf("%w: o-1 is FILLED", execution.ErrOrderNotOpen)
	h.gw.statusErr = errors.New("status timeout")

	err := h.m.OnSignal(ctx, entry(signal.Buy, "101", "99"))
	require.ErrorIs(t, err, ErrCancelUnconfirmed)
	st, ok := h.m.State("SBIN")
	require.True(t, ok)
	assert.Equal(t, StatusPending, st.Status)
	assert.Equal(t, "o-1", st.EntryOrderID)
	assert.Len(t, h.gw.placed, 1, "no second entry while the first may have filled")
	for _, tr := range h.rec.transitions {
		assert.NotEqual(t, StatusCancelled, tr.To)
	}

	// once the broker answers, the fill is picked up and protected
	h.gw.statusErr = nil
	h.gw.status["o-1"] = execution.OrderStatus{ID: "o-1", State: execution.StateFilled, FillPrice: dec("102")}
	require.ErrorIs(t, h.m.OnSignal(ctx, entry(signal.Buy, "101", "99")), ErrEntryFilled)
	st, _ = h.m.State("SBIN")
	assert.Equal(t, StatusStopPlaced, st.Status)
}

func TestSupersedingEntryFindsFilledOrder(t *testing.T) {
	h := newHarness(liveConfig())
	ctx := context.Background()

	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	h.gw.cancelErr = execution.ErrOrderNotOpen
	h.gw.status["o-1"] = execution.OrderStatus{ID: "o-1", State: execution.StateFilled, FillPrice: dec("102.05")}

	err := h.m.OnSignal(ctx, entry(signal.Buy, "101", "99"))
	require.ErrorIs(t, err, ErrEntryFilled)
	st, _ := h.m.State("SBIN")
	assert.Equal(t, StatusStopPlaced, st.Status)
	requireDec(t, "102.05", st.EntryPrice)
}

func TestEntryIgnoredWhilePositionActive(t *testing.T) {
	h := newHarness(liveConfig())
	ctx := context.Background()
	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	h.m.OnTick(ctx, tick("102"))

	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "105", "100")))
	st, _ := h.m.State("SBIN")
	assert.Equal(t, StatusStopPlaced, st.Status)
	requireDec(t, "102", st.TriggerPrice)
	assert.Empty(t, h.gw.cancelled)
}

func TestCancelSignal(t *testing.T) {
	h := newHarness(liveConfig())
	ctx := context.Background()

	require.NoError(t, h.m.OnSignal(ctx, signal.Signal{Symbol: "SBIN", Kind: signal.Cancel}))
	assert.Empty(t, h.gw.cancelled, "cancel without state is a no-op")

	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	require.NoError(t, h.m.OnSignal(ctx, signal.Signal{Symbol: "SBIN", Kind: signal.Cancel, Reason: "NEW_LOWER_VOLUME"}))
	_, ok := h.m.State("SBIN")
	assert.False(t, ok)
	assert.Equal(t, "NEW_LOWER_VOLUME", h.rec.transitions[1].Reason)

	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	h.m.OnTick(ctx, tick("102"))
	require.NoError(t, h.m.OnSignal(ctx, signal.Signal{Symbol: "SBIN", Kind: signal.Cancel}))
	st, ok := h.m.State("SBIN")
	require.True(t, ok)
	assert.Equal(t, StatusStopPlaced, st.Status, "cancel must not touch a filled position")
}

func TestRiskRejections(t *testing.T) {
	h := newHarness(liveConfig())
	ctx := context.Background()

	err := h.m.OnSignal(ctx, entry(signal.Buy, "100", "100"))
	require.ErrorIs(t, err, ErrRiskRejected)
	assert.Empty(t, h.gw.placed)

	cfg := liveConfig()
	cfg.Limits = risk.Limits{MaxNotionalPerTrade: dec("10000")}
	h = newHarness(cfg)
	err = h.m.OnSignal(ctx, entry(signal.Buy, "102", "98"))
	require.ErrorIs(t, err, ErrRiskRejected)
	_, ok := h.m.State("SBIN")
	assert.False(t, ok)
}

func TestEntryPlacementRejected(t *testing.T) {
	h := newHarness(liveConfig())
	h.gw.placeErrs = []error{execution.ErrRejected}
	err := h.m.OnSignal(context.Background(), entry(signal.Buy, "102", "98"))
	require.ErrorIs(t, err, execution.ErrRejected)
	_, ok := h.m.State("SBIN")
	assert.False(t, ok)
}

func TestStopRejectionAlertsAndRetries(t *testing.T) {
	h := newHarness(liveConfig())
	ctx := context.Background()
	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))

	h.gw.placeErrs = []error{execution.ErrRejected}
	h.m.OnTick(ctx, tick("102"))
	st, _ := h.m.State("SBIN")
	assert.Equal(t, StatusFilled, st.Status)
	assert.Equal(t, 1, h.alert.calls)

	h.m.OnTick(ctx, tick("102.5"))
	st, _ = h.m.State("SBIN")
	assert.Equal(t, StatusStopPlaced, st.Status)
	requireDec(t, "98", st.StopPrice)
}

func TestTrailCancelFailureRetriesNextTick(t *testing.T) {
	h := newHarness(liveConfig())
	ctx := context.Background()
	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	h.m.OnTick(ctx, tick("102"))

	h.gw.cancelErr = errors.New("timeout")
	h.m.OnTick(ctx, tick("110"))
	st, _ := h.m.State("SBIN")
	assert.False(t, st.TrailApplied)
	requireDec(t, "98", st.StopPrice)

	h.gw.cancelErr = nil
	h.m.OnTick(ctx, tick("110"))
	st, _ = h.m.State("SBIN")
	assert.True(t, st.TrailApplied)
}

func TestTrailReplacementFailureKeepsRevisedStop(t *testing.T) {
	h := newHarness(liveConfig())
	ctx := context.Background()
	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	h.m.OnTick(ctx, tick("102"))

	h.gw.placeErrs = []error{execution.ErrRejected}
	h.m.OnTick(ctx, tick("110"))
	st, _ := h.m.State("SBIN")
	assert.Equal(t, StatusFilled, st.Status)
	assert.True(t, st.TrailApplied)
	assert.Equal(t, 1, h.alert.calls)

	h.m.OnTick(ctx, tick("109"))
	st, _ = h.m.State("SBIN")
	assert.Equal(t, StatusStopPlaced, st.Status)
	requireDec(t, "102.8", h.gw.placed[len(h.gw.placed)-1].StopPrice)
}

func TestTrailOff(t *testing.T) {
	cfg := liveConfig()
	cfg.Trail.Policy = TrailOff
	h := newHarness(cfg)
	ctx := context.Background()
	require.NoError(t, h.m.OnSignal(ctx, entry(signal.Buy, "102", "98")))
	h.m.OnTick(ctx, tick("102"))
	h.m.OnTick(ctx, tick("150"))
	st, _ := h.m.State("SBIN")
	assert.False(t, st.TrailApplied)
}

func TestParsePolicies(t *testing.T) {
	mode, err := ParseMode("LIVE")
	require.NoError(t, err)
	assert.Equal(t, ModeLive, mode)
	_, err = ParseMode("sim")
	assert.Error(t, err)

	p, err := ParseTrailPolicy("")
	require.NoError(t, err)
	assert.Equal(t, TrailRiskMultiple, p)
	_, err = ParseTrailPolicy("double")
	assert.Error(t, err)
}

func TestTrailedStopMatchesPaperBroker(t *testing.T) {
	broker := paper.NewBroker(nil, nil, dec("0.001"), zerolog.Nop())
	cfg := Config{
		Mode:     ModePaper,
		Sizer:    risk.Sizer{PerTradeRisk: dec("1000")},
		Slippage: dec("0.001"),
		Trail:    Trail{Policy: TrailRiskMultiple, RRMultiple: dec("2"), LockProfit: dec("200")},
	}
	m := NewManager(broker, cfg, zerolog.Nop(), nil, &countingAlerter{})
	ctx := context.Background()
	step := func(price string) {
		broker.OnTick(tick(price))
		m.OnTick(ctx, tick(price))
	}

	// 1000 / 3 = 333 shares; entry slips to 100.4
	require.NoError(t, m.OnSignal(ctx, entry(signal.Buy, "100.3", "97.3")))
	step("100.3")
	st, _ := m.State("SBIN")
	require.Equal(t, StatusStopPlaced, st.Status)
	requireDec(t, "100.4", st.EntryPrice)

	// 100.4 + 200/333 lands between ticks and snaps down to 101
	step("107")
	st, _ = m.State("SBIN")
	require.True(t, st.TrailApplied)
	requireDec(t, "101", st.StopPrice)
	require.Equal(t, 1, broker.Open())

	step("101.0005")
	st, ok := m.State("SBIN")
	require.True(t, ok, "stop must not fire above the resting broker price")
	assert.Equal(t, StatusStopPlaced, st.Status)
	assert.Equal(t, 1, broker.Open())

	step("100.95")
	_, ok = m.State("SBIN")
	require.False(t, ok)
	assert.Equal(t, 0, broker.Open())
	closed := m.Closed("SBIN")
	require.Len(t, closed, 1)
	requireDec(t, "100.8", closed[0].ExitPrice)
	status, err := broker.OrderStatus(ctx, closed[0].StopOrderID)
	require.NoError(t, err)
	assert.Equal(t, execution.StateFilled, status.State)
	requireDec(t, "100.8", status.FillPrice)
}
