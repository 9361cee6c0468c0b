package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/rrctrade/RRC-Automation2/internal/execution"
	"github.com/rrctrade/RRC-Automation2/internal/order"
	"github.com/rrctrade/RRC-Automation2/internal/signal"
)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	from_status TEXT NOT NULL,
	to_status TEXT NOT NULL,
	side TEXT,
	price TEXT,
	quantity INTEGER,
	order_id TEXT,
	reason TEXT,
	at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_symbol ON transitions(symbol, at);
CREATE TABLE IF NOT EXISTS fills (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price TEXT NOT NULL,
	purpose TEXT,
	at INTEGER NOT NULL
);
`

// SQLite stores the journal in a WAL-mode database file.
type SQLite struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string, log zerolog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("journal: empty sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// single writer; the workers serialize through database/sql
	db.SetMaxOpenConns(1)

	log = log.With().Str("component", "journal").Logger()
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		log.Warn().Err(err).Msg("failed to set WAL mode")
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		log.Warn().Err(err).Msg("failed to set synchronous mode")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db, log: log}, nil
}

// RecordTransition inserts one transition row.
func (s *SQLite) RecordTransition(t order.Transition) error {
	_, err := s.db.Exec(`
		INSERT INTO transitions (symbol, from_status, to_status, side, price, quantity, order_id, reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Symbol, string(t.From), string(t.To), string(t.Side), t.Price.String(), t.Quantity, t.OrderID, t.Reason, t.At.UnixNano())
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// Record inserts one fill row.
func (s *SQLite) Record(f execution.Fill) {
	tx, err := s.db.Begin()
	if err != nil {
		s.log.Error().Err(err).Msg("fill not journaled")
		return
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`
		INSERT INTO fills (order_id, symbol, side, quantity, price, purpose, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.OrderID, f.Symbol, string(f.Side), f.Quantity, f.Price.String(), string(f.Purpose), f.At.UnixNano()); err != nil {
		s.log.Error().Err(err).Str("symbol", f.Symbol).Str("order_id", f.OrderID).Msg("fill not journaled")
		return
	}
	if err := tx.Commit(); err != nil {
		s.log.Error().Err(err).Msg("fill not journaled")
	}
}

// Transitions returns the recorded transitions for symbol in insertion order.
func (s *SQLite) Transitions(symbol string) ([]order.Transition, error) {
	rows, err := s.db.Query(`
		SELECT symbol, from_status, to_status, side, price, quantity, order_id, reason, at
		FROM transitions WHERE symbol = ? ORDER BY id
	`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []order.Transition
	for rows.Next() {
		var (
			t           order.Transition
			from, to    string
			side, price string
			at          int64
		)
		if err := rows.Scan(&t.Symbol, &from, &to, &side, &price, &t.Quantity, &t.OrderID, &t.Reason, &at); err != nil {
			return nil, err
		}
		t.From, t.To, t.Side = order.Status(from), order.Status(to), signal.Side(side)
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("transition price %q: %w", price, err)
		}
		t.At = time.Unix(0, at).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// FillCount returns the number of recorded fills.
func (s *SQLite) FillCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM fills`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }
