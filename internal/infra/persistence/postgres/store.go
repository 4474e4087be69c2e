// Package postgres provides a Postgres-backed durable ledger that mirrors the
// in-memory semantics and snapshots state to a JSONB table after each commit.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"bloodcore/internal/infra/persistence/memory"
	"bloodcore/pkg/domain"
)

var _ domain.Ledger = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/bloodcore?sslmode=disable"
)

var sqlOpen = sql.Open

// Store persists state to Postgres while reusing the in-memory ledger for
// transactional semantics.
type Store struct {
	*memory.Store
	db      *sql.DB
	mu      sync.Mutex
	lastErr error
}

// NewStore opens a Postgres-backed ledger using the provided DSN (falls back
// to defaultDSN), ensures the snapshot table exists, and hydrates the
// in-memory ledger from any existing snapshot.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sqlOpen(defaultDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	s := &Store{Store: mem, db: db}
	mem.AddCommitHook(func([]domain.Change) {
		s.mu.Lock()
		s.lastErr = s.persistLocked(context.Background())
		s.mu.Unlock()
	})
	return s, nil
}

var buckets = []string{"units", "requests", "overrides"}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan: %w", err)
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
			return memory.Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persistLocked(ctx context.Context) (retErr error) {
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
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
		if _, err = tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	return tx.Commit()
}

// Flush forces a snapshot write and returns the most recent persistence error.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = s.persistLocked(ctx)
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

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	prev := sqlOpen
	sqlOpen = fn
	return func() { sqlOpen = prev }
}
