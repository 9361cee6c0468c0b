package exchange

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rrctrade/RRC-Automation2/internal/metrics"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

// runReplay emits every line of a JSONL tick file in order, then returns nil.
func (f *Feed) runReplay(ctx context.Context, out chan<- signal.Tick) error {
	if f.replayPath == "" {
		return errors.New("replay feed requires a path")
	}
	file, err := os.Open(f.replayPath)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var raw signal.RawTick
		if err := json.Unmarshal(scanner.Bytes(), &raw); err != nil {
			metrics.TicksDropped.WithLabelValues("malformed").Inc()
			f.log.Warn().Err(err).Int("line", line).Msg("skipping undecodable replay line")
			continue
		}
		if err := f.emit(ctx, out, raw); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read replay file: %w", err)
	}
	f.log.Info().Int("lines", line).Msg("replay finished")
	return nil
}
