// Package sqlite implements the device registry on an embedded SQLite
// database (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
)

// Options controls how the database is opened.
type Options struct {
	Path         string
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// Store implements dispatch.Registry on a single `devices` table.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the database file, creating its directory if needed.
// Pragmas are passed in the DSN so every pooled connection gets them.
// The schema is not touched; call Migrate before first use.
func Open(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		opts.Path, busy.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	maxConns := opts.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &Store{db: db, path: opts.Path}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert writes the token for pubKey in one statement; the unique constraint
// on device_pub_key turns a second registration into an in-place update.
func (s *Store) Upsert(ctx context.Context, pubKey, token string) error {
	if pubKey == "" || token == "" {
		return fmt.Errorf("%w: pub key and token are required", dispatch.ErrRegistrationFailed)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (device_pub_key, firebase_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(device_pub_key) DO UPDATE SET
		     firebase_id = excluded.firebase_id,
		     updated_at = excluded.updated_at`,
		pubKey, token, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert device: %v", dispatch.ErrRegistrationFailed, err)
	}
	return nil
}

// Lookup returns the registration for pubKey or dispatch.ErrNotFound.
func (s *Store) Lookup(ctx context.Context, pubKey string) (dispatch.Registration, error) {
	var (
		token     string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT firebase_id, updated_at FROM devices WHERE device_pub_key = ?`, pubKey,
	).Scan(&token, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return dispatch.Registration{}, dispatch.ErrNotFound
	}
	if err != nil {
		return dispatch.Registration{}, fmt.Errorf("lookup device: %w", err)
	}

	reg := dispatch.Registration{PubKey: pubKey, Token: token}
	if updatedAt != "" {
		if ts, perr := time.Parse(time.RFC3339Nano, updatedAt); perr == nil {
			reg.UpdatedAt = ts
		}
	}
	return reg, nil
}

// Count returns the number of registered devices.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM devices`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count devices: %w", err)
	}
	return n, nil
}
