package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS kv (
  scope       TEXT NOT NULL,
  key         TEXT NOT NULL,
  value       BLOB NOT NULL,
  updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (scope, key)
);
CREATE TABLE IF NOT EXISTS job_results (
  id          INTEGER PRIMARY KEY,
  item_id     TEXT NOT NULL UNIQUE,
  url         TEXT NOT NULL,
  title       TEXT,
  score       REAL,
  tier        TEXT,
  status      TEXT,
  details     TEXT,
  verdict     TEXT,
  first_seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  scored_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_results_scored ON job_results(scored_at);
CREATE INDEX IF NOT EXISTS idx_results_score ON job_results(score);
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

// KV is one scope of the key/value table. Values are opaque blobs and the
// last write wins.
type KV struct {
	db    *DB
	scope string
}

// Scope returns the key/value view for name.
func (d *DB) Scope(name string) *KV {
	return &KV{db: d, scope: name}
}

// Name returns the scope name.
func (k *KV) Name() string { return k.scope }

// Get returns the blob stored under key, reporting whether it exists.
func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := k.db.sql.QueryRowContext(ctx, "SELECT value FROM kv WHERE scope = ? AND key = ?", k.scope, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s/%s: %w", k.scope, key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := k.db.sql.ExecContext(ctx, `INSERT INTO kv(scope, key, value, updated_at) VALUES(?,?,?,?)
ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		k.scope, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("kv set %s/%s: %w", k.scope, key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (k *KV) Delete(ctx context.Context, key string) error {
	if _, err := k.db.sql.ExecContext(ctx, "DELETE FROM kv WHERE scope = ? AND key = ?", k.scope, key); err != nil {
		return fmt.Errorf("kv delete %s/%s: %w", k.scope, key, err)
	}
	return nil
}

// KeyInfo describes a stored blob.
type KeyInfo struct {
	Scope     string
	Key       string
	Size      int
	UpdatedAt time.Time
}

// ListKeys returns every blob across all scopes.
func (d *DB) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT scope, key, length(value), updated_at FROM kv ORDER BY scope, key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KeyInfo
	for rows.Next() {
		var ki KeyInfo
		var updated string
		if err := rows.Scan(&ki.Scope, &ki.Key, &ki.Size, &updated); err != nil {
			return nil, err
		}
		ki.UpdatedAt = parseTime(updated)
		out = append(out, ki)
	}
	return out, rows.Err()
}

// parseTime accepts the layouts SQLite hands back for DATETIME columns.
func parseTime(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
