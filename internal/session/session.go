// Package session gates the trading day: exchange calendar, bias time and stop time.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/scmhub/calendar"

	"github.com/rrctrade/RRC-Automation2/internal/config"
)

var (
	// ErrNotTradingDay is returned when the exchange is closed for the whole day.
	ErrNotTradingDay = errors.New("session: not a trading day")
	// ErrSessionOver is returned when the stop time has already passed.
	ErrSessionOver = errors.New("session: stop time passed")
)

// Calendar answers trading-day questions for one exchange.
type Calendar struct {
	cal      *calendar.Calendar
	loc      *time.Location
	fallback bool
}

// NewCalendar loads the calendar for mic (ISO 10383, e.g. "xnse"). Unknown
// MICs fall back to Monday-Friday in loc.
func NewCalendar(mic string, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	cal := calendar.GetCalendar(strings.ToLower(mic))
	if cal == nil {
		return &Calendar{loc: loc, fallback: true}
	}
	return &Calendar{cal: cal, loc: loc}
}

// Fallback reports whether the calendar is the weekday-only approximation.
func (c *Calendar) Fallback() bool { return c.fallback }

func (c *Calendar) IsTradingDay(t time.Time) bool {
	t = t.In(c.loc)
	if c.fallback {
		wd := t.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return c.cal.IsBusinessDay(t)
}

// Window is the daily trading window in exchange-local wall-clock time.
type Window struct {
	Loc   *time.Location
	Start time.Duration // offset from midnight
	Stop  time.Duration
}

// NewWindow builds a window from HH:MM strings in the named timezone.
func NewWindow(tz, start, stop string) (Window, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Window{}, fmt.Errorf("load timezone: %w", err)
	}
	s, err := config.ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := config.ParseClock(stop)
	if err != nil {
		return Window{}, err
	}
	if e <= s {
		return Window{}, fmt.Errorf("stop %s must be after start %s", stop, start)
	}
	return Window{Loc: loc, Start: s, Stop: e}, nil
}

func (w Window) midnight(day time.Time) time.Time {
	d := day.In(w.Loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, w.Loc)
}

// StartOn returns the window start on day's local date.
func (w Window) StartOn(day time.Time) time.Time { return w.midnight(day).Add(w.Start) }

// StopOn returns the window stop on day's local date.
func (w Window) StopOn(day time.Time) time.Time { return w.midnight(day).Add(w.Stop) }

// WaitUntil blocks until target or ctx is done.
func WaitUntil(ctx context.Context, target time.Time, now func() time.Time) error {
	d := target.Sub(now())
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Gate combines the calendar and the window.
type Gate struct {
	Calendar         *Calendar
	Window           Window
	SkipHolidayCheck bool
	Log              zerolog.Logger
	Now              func() time.Time
}

// Open waits for the session start and returns a context that ends at the stop time.
func (g *Gate) Open(ctx context.Context) (context.Context, context.CancelFunc, error) {
	now := g.Now
	if now == nil {
		now = time.Now
	}
	today := now()
	if !g.SkipHolidayCheck && g.Calendar != nil && !g.Calendar.IsTradingDay(today) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotTradingDay, today.In(g.Window.Loc).Format("2006-01-02"))
	}
	start, stop := g.Window.StartOn(today), g.Window.StopOn(today)
	if !today.Before(stop) {
		return nil, nil, ErrSessionOver
	}
	if today.Before(start) {
		g.Log.Info().Time("bias_time", start).Msg("waiting for session start")
	}
	if err := WaitUntil(ctx, start, now); err != nil {
		return nil, nil, err
	}
	g.Log.Info().Time("stop_time", stop).Msg("session open")
	runCtx, cancel := context.WithDeadline(ctx, stop)
	return runCtx, cancel, nil
}
