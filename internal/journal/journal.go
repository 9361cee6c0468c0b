// Package journal appends order transitions and fills to an audit sink.
// Nothing is ever read back into the trading state.
package journal

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rrctrade/RRC-Automation2/internal/config"
	"github.com/rrctrade/RRC-Automation2/internal/execution"
	"github.com/rrctrade/RRC-Automation2/internal/order"
	"github.com/rrctrade/RRC-Automation2/internal/paper"
)

// Journal records both lifecycle transitions and broker fills.
type Journal interface {
	order.Recorder
	paper.FillRecorder
	io.Closer
}

// Open builds the journal selected by cfg.Driver.
func Open(cfg config.Journal, log zerolog.Logger) (Journal, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "jsonl":
		j, err := NewJSONL(cfg.Path, log)
		if err != nil {
			return nil, err
		}
		return j, nil
	case "sqlite":
		s, err := OpenSQLite(cfg.Path, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.Driver)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTransition(order.Transition) error { return nil }
func (Nop) Record(execution.Fill)                   {}
func (Nop) Close() error                            { return nil }
