package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rrctrade/RRC-Automation2/internal/candle"
	"github.com/rrctrade/RRC-Automation2/internal/order"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

// Snapshot is a read-only view of one symbol worker.
type Snapshot struct {
	Symbol     string          `json:"symbol"`
	Bias       signal.Side     `json:"bias"`
	LastPrice  decimal.Decimal `json:"lastPrice"`
	OpenCandle *candle.Candle  `json:"openCandle,omitempty"`
	Order      *order.State    `json:"order,omitempty"`
	Closed     []order.State   `json:"closed,omitempty"`
	History    int             `json:"historyLen"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Board collects snapshots published by workers for readers such as the status API.
type Board struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewBoard() *Board {
	return &Board{snaps: make(map[string]Snapshot)}
}

func (b *Board) Publish(s Snapshot) {
	b.mu.Lock()
	b.snaps[s.Symbol] = s
	b.mu.Unlock()
}

func (b *Board) Get(symbol string) (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.snaps[symbol]
	return s, ok
}

// All returns every snapshot ordered by symbol.
func (b *Board) All() []Snapshot {
	b.mu.RLock()
	out := make([]Snapshot, 0, len(b.snaps))
	for _, s := range b.snaps {
		out = append(out, s)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
