package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"bloodcore/pkg/domain"
)

// stubConn records statements and stores snapshot rows in memory so the store
// can be exercised without a live server.
type stubConn struct {
	mu     sync.Mutex
	execs  []string
	state  map[string][]byte
	failTx bool
}

type stubDriver struct{ conn *stubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error) {
	if c.failTx {
		return nil, fmt.Errorf("begin fail")
	}
	return stubTx{}, nil
}
func (c *stubConn) Ping(context.Context) error { return nil }

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, query)
	if strings.HasPrefix(strings.TrimSpace(query), "INSERT INTO state") && len(args) == 2 {
		bucket, _ := args[0].Value.(string)
		payload, _ := args[1].Value.([]byte)
		c.state[bucket] = append([]byte(nil), payload...)
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(query, "FROM state") {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := &stubRows{}
	for bucket, payload := range c.state {
		rows.data = append(rows.data, [2]any{bucket, append([]byte(nil), payload...)})
	}
	return rows, nil
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct {
	data [][2]any
	pos  int
}

func (r *stubRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stubRows) Close() error      { return nil }
func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	dest[0] = r.data[r.pos][0]
	dest[1] = r.data[r.pos][1]
	r.pos++
	return nil
}

var stubSeq int

func newStubDB(t *testing.T) (*sql.DB, *stubConn) {
	t.Helper()
	conn := &stubConn{state: map[string][]byte{}}
	stubSeq++
	name := fmt.Sprintf("stubpg%d_%d", time.Now().UnixNano(), stubSeq)
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		t.Fatalf("open stub: %v", err)
	}
	return db, conn
}

func TestStoreSnapshotsAfterCommit(t *testing.T) {
	db, conn := newStubDB(t)
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return now })

	bt, _ := domain.ParseBloodType("AB+")
	if _, err := store.RegisterUnit(context.Background(), domain.Unit{
		BloodType:      bt,
		Quantity:       1,
		CollectionDate: now,
		ExpiryDate:     now.AddDate(0, 0, 42),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := store.Err(); err != nil {
		t.Fatalf("background snapshot: %v", err)
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.state["units"]) == 0 {
		t.Fatalf("expected units bucket written, execs: %v", conn.execs)
	}
	var sawEnsure bool
	for _, q := range conn.execs {
		if strings.Contains(q, "CREATE TABLE IF NOT EXISTS state") {
			sawEnsure = true
		}
	}
	if !sawEnsure {
		t.Fatalf("expected state table DDL, execs: %v", conn.execs)
	}
}

func TestNewStoreHydratesFromSnapshot(t *testing.T) {
	db, conn := newStubDB(t)
	conn.mu.Lock()
	conn.state["units"] = []byte(`{"u-1":{"id":"u-1","blood_type":"O-","quantity":2,"collection_date":"2024-01-01T00:00:00Z","expiry_date":"2024-02-12T00:00:00Z","status":"available","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z"}}`)
	conn.mu.Unlock()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	got, ok := store.FindUnit("u-1")
	if !ok {
		t.Fatalf("expected hydrated unit")
	}
	if got.Status != domain.UnitAvailable || got.Quantity != 2 {
		t.Fatalf("unexpected unit: %+v", got)
	}
}
