// Package storage holds the runtime's durable local state: the versioned
// notification preference record, the pending-notification queue, and the
// device identifier.
//
// Preference writes carry an expected version; a mismatch returns
// ErrConflict so concurrent writers cannot silently clobber each other.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/innospot/runtime/internal/logging"
	"github.com/innospot/runtime/internal/shared/id"
	"github.com/innospot/runtime/internal/types"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// ErrConflict is returned when a preference save carries a stale version
var ErrConflict = errors.New("storage: version conflict")

// Config configures the store
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Store is the sqlite-backed durable state
type Store struct {
	db  *sql.DB
	log *logging.Logger
}

// Open opens (and migrates) the store at cfg.Path
func Open(cfg Config, log *logging.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("storage: path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DeviceID returns the durable device identifier, generating it on first use
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	var existing string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM device LIMIT 1").Scan(&existing)
	switch {
	case err == nil:
		return existing, nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return "", fmt.Errorf("storage: read device id: %w", err)
	}

	generated := string(id.NewDevice())
	if _, err := s.db.ExecContext(ctx, "INSERT INTO device (id) VALUES (?)", generated); err != nil {
		return "", fmt.Errorf("storage: persist device id: %w", err)
	}
	return generated, nil
}

// Preferences returns the persisted preference record, creating defaults
// on first use
func (s *Store) Preferences(ctx context.Context) (types.Preferences, error) {
	var payload string
	var version int64
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, version FROM preferences WHERE id = 1").Scan(&payload, &version)
	switch {
	case err == nil:
		var prefs types.Preferences
		if err := json.Unmarshal([]byte(payload), &prefs); err != nil {
			return types.Preferences{}, fmt.Errorf("storage: decode preferences: %w", err)
		}
		prefs.Version = version
		return prefs, nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return types.Preferences{}, fmt.Errorf("storage: read preferences: %w", err)
	}

	prefs := types.DefaultPreferences()
	prefs.Version = 1
	data, err := json.Marshal(prefs)
	if err != nil {
		return types.Preferences{}, fmt.Errorf("storage: encode preferences: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO preferences (id, payload, version) VALUES (1, ?, 1)", string(data)); err != nil {
		return types.Preferences{}, fmt.Errorf("storage: seed preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences persists prefs if its Version matches the stored row,
// returning the record with the bumped version. A stale version yields
// ErrConflict and the caller must re-read and retry.
func (s *Store) SavePreferences(ctx context.Context, prefs types.Preferences) (types.Preferences, error) {
	next := prefs
	next.Version = prefs.Version + 1

	data, err := json.Marshal(next)
	if err != nil {
		return types.Preferences{}, fmt.Errorf("storage: encode preferences: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE preferences SET payload = ?, version = ? WHERE id = 1 AND version = ?",
		string(data), next.Version, prefs.Version)
	if err != nil {
		return types.Preferences{}, fmt.Errorf("storage: save preferences: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return types.Preferences{}, fmt.Errorf("storage: save preferences: %w", err)
	}
	if affected == 0 {
		return types.Preferences{}, ErrConflict
	}
	return next, nil
}

// Enqueue appends a notification to the durable FIFO queue
func (s *Store) Enqueue(ctx context.Context, n types.Notification) (int64, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return 0, fmt.Errorf("storage: encode notification: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO notification_queue (payload, enqueued_at) VALUES (?, ?)",
		string(data), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("storage: enqueue: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage: enqueue: %w", err)
	}
	return seq, nil
}

// Pending returns queued notifications in FIFO order
func (s *Store) Pending(ctx context.Context) ([]types.QueuedNotification, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, payload, enqueued_at FROM notification_queue ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("storage: read queue: %w", err)
	}
	defer rows.Close()

	var out []types.QueuedNotification
	for rows.Next() {
		var (
			seq        int64
			payload    string
			enqueuedAt time.Time
		)
		if err := rows.Scan(&seq, &payload, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("storage: scan queue row: %w", err)
		}
		var n types.Notification
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			s.log.Warn("dropping undecodable queued notification")
			continue
		}
		out = append(out, types.QueuedNotification{
			Seq:          seq,
			Notification: n,
			EnqueuedAt:   enqueuedAt,
		})
	}
	return out, rows.Err()
}

// ClearQueue removes every queued notification
func (s *Store) ClearQueue(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notification_queue"); err != nil {
		return fmt.Errorf("storage: clear queue: %w", err)
	}
	return nil
}

// QueueDepth counts pending notifications
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notification_queue").Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count queue: %w", err)
	}
	return n, nil
}
