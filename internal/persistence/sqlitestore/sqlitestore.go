// Package sqlitestore is the durable persistence.Store tier: a SQLite
// table of (key, payload, ts, checksum), adapted from the device's local
// database connection.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sentry-msgr/e2ee/internal/persistence"
)

// Store is a persistence.Store backed by a local SQLite file.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and ensures
// the kv table exists.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS kv_store (
			key       TEXT PRIMARY KEY,
			payload   BLOB NOT NULL,
			ts_unix   INTEGER NOT NULL,
			checksum  TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate kv_store: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) Get(key string) (persistence.Record, bool, error) {
	var payload []byte
	var tsUnix int64
	var checksum string
	row := s.conn.QueryRow(`SELECT payload, ts_unix, checksum FROM kv_store WHERE key = ?`, key)
	if err := row.Scan(&payload, &tsUnix, &checksum); err != nil {
		if err == sql.ErrNoRows {
			return persistence.Record{}, false, nil
		}
		return persistence.Record{}, false, fmt.Errorf("get %q: %w", key, err)
	}
	return persistence.Record{Payload: payload, Ts: time.Unix(tsUnix, 0), Checksum: checksum}, true, nil
}

func (s *Store) Set(key string, rec persistence.Record) error {
	_, err := s.conn.Exec(`
		INSERT INTO kv_store (key, payload, ts_unix, checksum) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, ts_unix = excluded.ts_unix, checksum = excluded.checksum
	`, key, rec.Payload, rec.Ts.Unix(), rec.Checksum)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	_, err := s.conn.Exec(`DELETE FROM kv_store WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}
