package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func mustWindow(t *testing.T) Window {
	t.Helper()
	w, err := NewWindow("Asia/Kolkata", "09:25", "15:15")
	if err != nil {
		t.Fatalf("NewWindow returned error: %v", err)
	}
	return w
}

func TestWindowBounds(t *testing.T) {
	w := mustWindow(t)
	day := time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC) // 10:30 IST
	start := w.StartOn(day)
	if start.In(w.Loc).Hour() != 9 || start.In(w.Loc).Minute() != 25 {
		t.Fatalf("unexpected start %s", start)
	}
	if got := w.StopOn(day).Sub(start); got != 5*time.Hour+50*time.Minute {
		t.Fatalf("unexpected window length %s", got)
	}
	if _, err := NewWindow("Asia/Kolkata", "15:15", "09:25"); err == nil {
		t.Fatalf("expected error for inverted window")
	}
	if _, err := NewWindow("Mars/Olympus", "09:00", "10:00"); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}

func TestWaitUntil(t *testing.T) {
	now := time.Now()
	if err := WaitUntil(context.Background(), now.Add(-time.Minute), time.Now); err != nil {
		t.Fatalf("past target should return immediately: %v", err)
	}
	if err := WaitUntil(context.Background(), time.Now().Add(20*time.Millisecond), time.Now); err != nil {
		t.Fatalf("WaitUntil returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := WaitUntil(ctx, time.Now().Add(time.Hour), time.Now); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFallbackCalendarWeekdays(t *testing.T) {
	cal := &Calendar{loc: time.UTC, fallback: true}
	if cal.IsTradingDay(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("saturday should be closed")
	}
	if !cal.IsTradingDay(time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("monday should be open")
	}
}

func TestGateOpen(t *testing.T) {
	w := mustWindow(t)
	// Monday 10:30 IST, inside the window
	fixed := time.Date(2026, 3, 16, 5, 0, 0, 0, time.UTC)
	g := &Gate{
		Calendar: &Calendar{loc: w.Loc, fallback: true},
		Window:   w,
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return fixed },
	}
	ctx, cancel, err := g.Open(context.Background())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok || !deadline.Equal(w.StopOn(fixed)) {
		t.Fatalf("expected deadline at stop time, got %s", deadline)
	}

	g.Now = func() time.Time { return time.Date(2026, 3, 16, 11, 0, 0, 0, time.UTC) } // 16:30 IST
	if _, _, err := g.Open(context.Background()); !errors.Is(err, ErrSessionOver) {
		t.Fatalf("expected ErrSessionOver, got %v", err)
	}

	g.Now = func() time.Time { return time.Date(2026, 3, 15, 5, 0, 0, 0, time.UTC) } // Sunday
	if _, _, err := g.Open(context.Background()); !errors.Is(err, ErrNotTradingDay) {
		t.Fatalf("expected ErrNotTradingDay, got %v", err)
	}
	g.SkipHolidayCheck = true
	if _, cancel, err := g.Open(context.Background()); err != nil {
		t.Fatalf("skip holiday check should open on Sunday: %v", err)
	} else {
		cancel()
	}
}
