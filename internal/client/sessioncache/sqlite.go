package sessioncache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	credentialsKey = "session"
	snapshotKey    = "entitlement"
)

// SQLiteStore keeps credentials and the entitlement snapshot under separate
// keys of a key/value metadata table, so a snapshot outlives the process that
// fetched it. Several processes may share one file; the last write wins.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ DurableStore   = (*SQLiteStore)(nil)
	_ EphemeralStore = (*SQLiteStore)(nil)
)

// OpenSQLite opens the database file at path and applies the client
// migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withBusyTimeout(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewSQLiteStore(db), nil
}

// withBusyTimeout makes writers wait for a concurrent CLI process instead of
// failing with SQLITE_BUSY.
func withBusyTimeout(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}

// RunMigrations brings the metadata schema up to date.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load client migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply client migrations: %w", err)
	}
	return nil
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadCredentials(ctx context.Context) (*Credentials, error) {
	var creds Credentials
	found, err := s.get(ctx, credentialsKey, &creds)
	if err != nil {
		return nil, err
	}
	if !found || creds.Token == "" {
		return nil, nil
	}
	return &creds, nil
}

func (s *SQLiteStore) SaveCredentials(ctx context.Context, creds Credentials) error {
	return s.set(ctx, credentialsKey, creds)
}

func (s *SQLiteStore) ClearCredentials(ctx context.Context) error {
	return s.delete(ctx, credentialsKey)
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	found, err := s.get(ctx, snapshotKey, &snap)
	if err != nil {
		return nil, err
	}
	if !found || snap.FetchedAt.IsZero() {
		return nil, nil
	}
	return &snap, nil
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	return s.set(ctx, snapshotKey, snap)
}

func (s *SQLiteStore) ClearSnapshot(ctx context.Context) error {
	return s.delete(ctx, snapshotKey)
}

func (s *SQLiteStore) get(ctx context.Context, key string, dst any) (bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}

	if err := json.Unmarshal(value, dst); err != nil {
		return false, fmt.Errorf("failed to decode metadata[%s]: %w", key, err)
	}
	return true, nil
}

func (s *SQLiteStore) set(ctx context.Context, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode metadata[%s]: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete metadata[%s]: %w", key, err)
	}
	return nil
}
