package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

type flakyGateway struct {
	placeErrs   []error
	placeCalls  int
	clientIDs   []string
	cancelErr   error
	cancels     int
	sawDeadline bool
}

func (f *flakyGateway) PlaceStopOrder(ctx context.Context, order StopOrder) (string, error) {
	_, f.sawDeadline = ctx.Deadline()
	f.placeCalls++
	f.clientIDs = append(f.clientIDs, order.ClientOrderID)
	if len(f.placeErrs) > 0 {
		err := f.placeErrs[0]
		f.placeErrs = f.placeErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "ord-1", nil
}

func (f *flakyGateway) CancelOrder(context.Context, string) error {
	f.cancels++
	return f.cancelErr
}

func (f *flakyGateway) OrderStatus(context.Context, string) (OrderStatus, error) {
	return OrderStatus{State: StateCancelled}, nil
}

func fastOpts() Options {
	return Options{CallTimeout: time.Second, MaxAttempts: 3, BaseBackoff: time.Millisecond}
}

func TestPlaceRetriesTransientErrors(t *testing.T) {
	var buf bytes.Buffer
	gw := &flakyGateway{placeErrs: []error{errors.New("timeout"), nil}}
	exec := NewExecutor(gw, zerolog.New(&buf), fastOpts())

	id, err := exec.PlaceStopOrder(context.Background(), StopOrder{
		Symbol: "NSE:SBIN-EQ", Side: signal.Buy, Quantity: 10, StopPrice: decimal.NewFromInt(100), Purpose: PurposeEntry,
	})
	if err != nil {
		t.Fatalf("PlaceStopOrder returned error: %v", err)
	}
	if id != "ord-1" || gw.placeCalls != 2 {
		t.Fatalf("expected success on second attempt, id=%s calls=%d", id, gw.placeCalls)
	}
	if !gw.sawDeadline {
		t.Fatalf("broker call must carry a deadline")
	}
	if !strings.Contains(buf.String(), "NSE:SBIN-EQ") {
		t.Fatalf("log does not contain symbol: %s", buf.String())
	}
}

func TestPlaceRetryReusesClientOrderID(t *testing.T) {
	gw := &flakyGateway{placeErrs: []error{context.DeadlineExceeded, errors.New("timeout"), nil}}
	exec := NewExecutor(gw, zerolog.Nop(), fastOpts())

	order := StopOrder{Symbol: "X", Side: signal.Sell, Quantity: 5, StopPrice: decimal.NewFromInt(98), Purpose: PurposeStopLoss}
	if _, err := exec.PlaceStopOrder(context.Background(), order); err != nil {
		t.Fatalf("PlaceStopOrder returned error: %v", err)
	}
	if len(gw.clientIDs) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(gw.clientIDs))
	}
	if gw.clientIDs[0] == "" {
		t.Fatalf("placement sent without a client order id")
	}
	for i, id := range gw.clientIDs {
		if id != gw.clientIDs[0] {
			t.Fatalf("attempt %d used client id %q, first used %q", i+1, id, gw.clientIDs[0])
		}
	}

	if _, err := exec.PlaceStopOrder(context.Background(), order); err != nil {
		t.Fatalf("second PlaceStopOrder returned error: %v", err)
	}
	if gw.clientIDs[3] == gw.clientIDs[0] {
		t.Fatalf("separate placements shared client id %q", gw.clientIDs[0])
	}

	order.ClientOrderID = "caller-id"
	if _, err := exec.PlaceStopOrder(context.Background(), order); err != nil {
		t.Fatalf("PlaceStopOrder returned error: %v", err)
	}
	if gw.clientIDs[4] != "caller-id" {
		t.Fatalf("caller client id replaced with %q", gw.clientIDs[4])
	}
}

// slowAckGateway books every placement but times out on the first response.
type slowAckGateway struct {
	flakyGateway
	booked map[string]string
	calls  int
}

func (g *slowAckGateway) PlaceStopOrder(_ context.Context, order StopOrder) (string, error) {
	g.calls++
	id, ok := g.booked[order.ClientOrderID]
	if !ok || order.ClientOrderID == "" {
		id = fmt.Sprintf("ord-%d", len(g.booked)+1)
		g.booked[order.ClientOrderID] = id
	}
	if g.calls == 1 {
		return "", context.DeadlineExceeded
	}
	return id, nil
}

func TestTimedOutPlacementIsNotDuplicated(t *testing.T) {
	gw := &slowAckGateway{booked: make(map[string]string)}
	exec := NewExecutor(gw, zerolog.Nop(), fastOpts())

	id, err := exec.PlaceStopOrder(context.Background(), StopOrder{
		Symbol: "X", Side: signal.Buy, Quantity: 5, StopPrice: decimal.NewFromInt(100), Purpose: PurposeEntry,
	})
	if err != nil {
		t.Fatalf("PlaceStopOrder returned error: %v", err)
	}
	if gw.calls != 2 {
		t.Fatalf("expected one retry, got %d calls", gw.calls)
	}
	if len(gw.booked) != 1 || id != "ord-1" {
		t.Fatalf("expected the original order back, id=%s booked=%v", id, gw.booked)
	}
}

func TestRejectionIsNotRetried(t *testing.T) {
	gw := &flakyGateway{placeErrs: []error{ErrRejected, nil}}
	exec := NewExecutor(gw, zerolog.Nop(), fastOpts())
	if _, err := exec.PlaceStopOrder(context.Background(), StopOrder{Symbol: "X"}); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if gw.placeCalls != 1 {
		t.Fatalf("rejection retried %d times", gw.placeCalls)
	}
}

func TestCancelOnClosedOrderIsIdempotent(t *testing.T) {
	gw := &flakyGateway{cancelErr: ErrOrderNotOpen}
	exec := NewExecutor(gw, zerolog.Nop(), fastOpts())
	err := exec.CancelOrder(context.Background(), "ord-1")
	if !IsIdempotentCancel(err) {
		t.Fatalf("expected idempotent cancel, got %v", err)
	}
	if gw.cancels != 1 {
		t.Fatalf("expected a single cancel call, got %d", gw.cancels)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	gw := &flakyGateway{placeErrs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	exec := NewExecutor(gw, zerolog.Nop(), Options{CallTimeout: time.Second, MaxAttempts: 3, BaseBackoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := exec.PlaceStopOrder(ctx, StopOrder{Symbol: "X"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOrderStatusClosed(t *testing.T) {
	if (OrderStatus{State: StateOpen}).Closed() {
		t.Fatalf("open order reported closed")
	}
	for _, s := range []OrderState{StateFilled, StateCancelled, StateRejected} {
		if !(OrderStatus{State: s}).Closed() {
			t.Fatalf("%s should be closed", s)
		}
	}
}
