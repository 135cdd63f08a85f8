// Package storage persists assembled store snapshots to sqlite. The
// pipeline itself never touches this; persistence is the caller's choice.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sw33tLie/shopsight/pkg/insight"
)

var ErrNotFound = errors.New("snapshot not found")

type DB struct {
	sql *sql.DB
}

type Snapshot struct {
	ID        int64     `json:"id"`
	StoreURL  string    `json:"store_url"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS store_snapshots (
  id         INTEGER PRIMARY KEY,
  store_url  TEXT NOT NULL,
  payload    TEXT NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_snapshots_store ON store_snapshots(store_url, created_at);
	`); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// SaveSnapshot serializes the assembled store and appends it as a new
// snapshot row. Snapshots are append-only; history is kept.
func (d *DB) SaveSnapshot(ctx context.Context, st *insight.Store) (int64, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return 0, err
	}
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO store_snapshots(store_url, payload) VALUES(?, ?)`,
		st.URL, string(payload))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestSnapshot returns the most recent snapshot for a store URL.
func (d *DB) LatestSnapshot(ctx context.Context, storeURL string) (*Snapshot, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT id, store_url, payload, created_at FROM store_snapshots
		 WHERE store_url = ? ORDER BY id DESC LIMIT 1`, storeURL)
	var (
		s       Snapshot
		payload string
	)
	if err := row.Scan(&s.ID, &s.StoreURL, &payload, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.Payload = []byte(payload)
	return &s, nil
}

// ListSnapshots returns snapshot metadata (payload included) for a store,
// newest first, up to limit.
func (d *DB) ListSnapshots(ctx context.Context, storeURL string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, store_url, payload, created_at FROM store_snapshots
		 WHERE store_url = ? ORDER BY id DESC LIMIT ?`, storeURL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			s       Snapshot
			payload string
		)
		if err := rows.Scan(&s.ID, &s.StoreURL, &payload, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Payload = []byte(payload)
		out = append(out, s)
	}
	return out, rows.Err()
}
