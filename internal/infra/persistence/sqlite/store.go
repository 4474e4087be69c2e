// Package sqlite provides a SQLite-backed durable ledger. It reuses the
// in-memory ledger for all transactional semantics and snapshots the full
// state to a single table after every successful commit.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"bloodcore/internal/infra/persistence/memory"
	"bloodcore/pkg/domain"
)

var _ domain.Ledger = (*Store)(nil)

// Store persists the in-memory ledger state to SQLite as JSON blobs.
type Store struct {
	*memory.Store
	db      *sql.DB
	mu      sync.Mutex
	path    string
	lastErr error
}

// NewStore opens (or creates) the database at path and hydrates the ledger
// from any existing snapshot.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "bloodcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	mem := memory.NewStore(engine)
	s := &Store{Store: mem, db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	mem.AddCommitHook(func([]domain.Change) {
		s.mu.Lock()
		s.lastErr = s.persistLocked()
		s.mu.Unlock()
	})
	return s, nil
}

var buckets = []string{"units", "requests", "overrides"}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{}
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var target any
		switch bucket {
		case "units":
			target = &snapshot.Units
		case "requests":
			target = &snapshot.Requests
		case "overrides":
			target = &snapshot.Overrides
		default:
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if found {
		s.ImportState(snapshot)
	}
	return nil
}

func (s *Store) persistLocked() (retErr error) {
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range buckets {
		var data []byte
		switch bucket {
		case "units":
			data, err = json.Marshal(snapshot.Units)
		case "requests":
			data, err = json.Marshal(snapshot.Requests)
		case "overrides":
			data, err = json.Marshal(snapshot.Overrides)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	return tx.Commit()
}

// Flush forces a snapshot write and returns the most recent persistence error.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = s.persistLocked()
	return s.lastErr
}

// Err reports the error from the most recent background snapshot, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
