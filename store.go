package pubfront

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrSnapshotMissing is returned when no snapshot is stored for a route.
var ErrSnapshotMissing = errors.New("pubfront: snapshot missing")

// Snapshot is the serialized props of one generated page.
type Snapshot struct {
	Route       string
	Payload     []byte
	GeneratedAt time.Time
}

// SnapshotStore persists generated page props between requests and restarts.
type SnapshotStore interface {
	Load(ctx context.Context, route string) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
	Delete(ctx context.Context, route string) error
	Close() error
}

// SQLiteStore keeps snapshots in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at path, ensures the
// data directory exists, and creates the snapshot table.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets request handlers read while a background regeneration writes.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS snapshots (
    route TEXT PRIMARY KEY,
    payload BLOB NOT NULL,
    generated_at INTEGER NOT NULL
);
`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, route string) (Snapshot, error) {
	var payload []byte
	var generated int64
	err := s.db.QueryRowContext(ctx, `SELECT payload, generated_at FROM snapshots WHERE route = ?`, route).
		Scan(&payload, &generated)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrSnapshotMissing
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Route: route, Payload: payload, GeneratedAt: time.UnixMilli(generated)}, nil
}

// Save upserts a snapshot.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO snapshots (route, payload, generated_at) VALUES (?, ?, ?)`,
		snap.Route, snap.Payload, snap.GeneratedAt.UnixMilli())
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, route string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE route = ?`, route)
	return err
}

// MemoryStore keeps snapshots in process memory. Used by the static build
// and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (m *MemoryStore) Load(_ context.Context, route string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[route]
	if !ok {
		return Snapshot{}, ErrSnapshotMissing
	}
	return snap, nil
}

func (m *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	m.snaps[snap.Route] = snap
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, route string) error {
	m.mu.Lock()
	delete(m.snaps, route)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
