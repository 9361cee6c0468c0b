package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

type subscribeMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

func (f *Feed) runWebsocket(ctx context.Context, out chan<- signal.Tick) error {
	if f.url == "" {
		return errors.New("websocket feed requires a url")
	}
	if len(f.snapshotSymbols()) == 0 {
		return fmt.Errorf("websocket feed requires at least one symbol")
	}

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeWebsocket(ctx, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Dur("backoff", backoff).Msg("tick feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) consumeWebsocket(ctx context.Context, out chan<- signal.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	symbols := f.snapshotSymbols()
	if err := conn.WriteJSON(subscribeMessage{Action: "subscribe", Symbols: symbols}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.log.Info().Strs("symbols", symbols).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("feed ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()
	// unblock ReadMessage on shutdown
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		raws, err := decodeTicks(message)
		if err != nil {
			f.log.Warn().Err(err).Msg("failed to decode tick message")
			continue
		}
		for _, raw := range raws {
			if err := f.emit(ctx, out, raw); err != nil {
				return err
			}
		}
	}
}

// decodeTicks accepts either a single tick object or an array of them.
func decodeTicks(message []byte) ([]signal.RawTick, error) {
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []signal.RawTick
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}
	var one signal.RawTick
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []signal.RawTick{one}, nil
}
