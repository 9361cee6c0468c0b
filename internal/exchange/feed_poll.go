package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

type quotesResponse struct {
	Quotes []signal.RawTick `json:"quotes"`
}

func (f *Feed) runPoll(ctx context.Context, out chan<- signal.Tick) error {
	if f.url == "" {
		return errors.New("poll feed requires a url")
	}
	client := &http.Client{Timeout: 10 * time.Second}
	if err := f.poll(ctx, client, out); err != nil && !isCanceled(err) {
		f.log.Warn().Err(err).Msg("initial quotes poll failed")
	}

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.poll(ctx, client, out); err != nil && !isCanceled(err) {
				f.log.Warn().Err(err).Msg("quotes poll failed")
			}
		}
	}
}

func (f *Feed) poll(ctx context.Context, client *http.Client, out chan<- signal.Tick) error {
	symbols := f.snapshotSymbols()
	if len(symbols) == 0 {
		return nil
	}
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url+"/quotes?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload quotesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	for _, raw := range payload.Quotes {
		if err := f.emit(ctx, out, raw); err != nil {
			return err
		}
	}
	return nil
}
