package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rrctrade/RRC-Automation2/internal/execution"
	"github.com/rrctrade/RRC-Automation2/internal/order"
)

// ErrClosed is returned when writing to a closed journal.
var ErrClosed = errors.New("journal: closed")

// Entry is one JSONL line. Exactly one of Transition or Fill is set.
type Entry struct {
	Kind       string            `json:"kind"` // transition | fill
	Transition *order.Transition `json:"transition,omitempty"`
	Fill       *execution.Fill   `json:"fill,omitempty"`
}

// JSONL appends entries as JSON lines.
type JSONL struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	log  zerolog.Logger
}

// NewJSONL creates/opens the target file in append mode.
func NewJSONL(path string, log zerolog.Logger) (*JSONL, error) {
	if path == "" {
		return nil, errors.New("journal: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &JSONL{
		file: file,
		enc:  json.NewEncoder(file),
		log:  log.With().Str("component", "journal").Logger(),
	}, nil
}

// RecordTransition writes one transition line.
func (j *JSONL) RecordTransition(t order.Transition) error {
	return j.write(Entry{Kind: "transition", Transition: &t})
}

// Record writes one fill line. Failures are logged; fills are never dropped silently.
func (j *JSONL) Record(f execution.Fill) {
	if err := j.write(Entry{Kind: "fill", Fill: &f}); err != nil {
		j.log.Error().Err(err).Str("symbol", f.Symbol).Str("order_id", f.OrderID).Msg("fill not journaled")
	}
}

func (j *JSONL) write(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return ErrClosed
	}
	return j.enc.Encode(e)
}

// Close flushes and closes the file handle.
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// ReadJSONL loads every entry from path.
func ReadJSONL(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var out []Entry
	dec := json.NewDecoder(file)
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return out, fmt.Errorf("decode journal line %d: %w", len(out)+1, err)
		}
		out = append(out, e)
	}
	return out, nil
}
