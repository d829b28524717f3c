// Package store persists server state — user accounts and stored file
// records — in an embedded SQLite database. It owns the database lifecycle
// and exposes row-level operations; password hashing and identifier
// generation belong to the services on top of it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrFileNotFound is returned when no file record exists for an ID.
var ErrFileNotFound = errors.New("file record not found")

// ErrUserNotFound is returned when no account exists for a username.
var ErrUserNotFound = errors.New("user not found")

// User is one account row.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	LastLogin    time.Time // zero when the user never logged in
}

// FileRecord is the metadata for one completed upload. Rows are immutable
// after creation.
type FileRecord struct {
	ID        string
	Name      string
	SizeBytes int64
	DiskName  string
	CreatedAt time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the
// schema. Use ":memory:" for ephemeral in-process storage (tests).
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite store opened", "path", path)
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at_unix_ms INTEGER NOT NULL,
	last_login_unix_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	size_bytes INTEGER NOT NULL CHECK(size_bytes >= 0),
	disk_name TEXT NOT NULL UNIQUE,
	created_at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_created_at ON files(created_at_unix_ms);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run sqlite migrations: %w", err)
	}
	slog.Debug("sqlite migrations applied")
	return nil
}

// CreateUser inserts one account row. The hash must already be computed.
// Returns an error when the username is taken.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if passwordHash == "" {
		return fmt.Errorf("password hash is required")
	}

	const q = `INSERT INTO users (username, password_hash, created_at_unix_ms) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, username, passwordHash, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	slog.Debug("user created", "username", username)
	return nil
}

// UserByName returns the account row for username, or ErrUserNotFound.
func (s *Store) UserByName(ctx context.Context, username string) (User, error) {
	const q = `SELECT id, username, password_hash, created_at_unix_ms, last_login_unix_ms FROM users WHERE username = ?`

	var (
		u                  User
		createdMs, loginMs int64
	)
	err := s.db.QueryRowContext(ctx, q, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &createdMs, &loginMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(createdMs).UTC()
	if loginMs > 0 {
		u.LastLogin = time.UnixMilli(loginMs).UTC()
	}
	return u, nil
}

// ListUsers returns all account rows ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	const q = `SELECT id, username, password_hash, created_at_unix_ms, last_login_unix_ms FROM users ORDER BY username`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var (
			u                  User
			createdMs, loginMs int64
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdMs, &loginMs); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt = time.UnixMilli(createdMs).UTC()
		if loginMs > 0 {
			u.LastLogin = time.UnixMilli(loginMs).UTC()
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// TouchLastLogin records a successful login timestamp for the user.
func (s *Store) TouchLastLogin(ctx context.Context, userID int64) error {
	const q = `UPDATE users SET last_login_unix_ms = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, time.Now().UnixMilli(), userID); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// CreateFile inserts one file record.
func (s *Store) CreateFile(ctx context.Context, rec FileRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("file id is required")
	}
	if strings.TrimSpace(rec.Name) == "" {
		return fmt.Errorf("file name is required")
	}
	if strings.TrimSpace(rec.DiskName) == "" {
		return fmt.Errorf("file disk name is required")
	}
	if rec.SizeBytes < 0 {
		return fmt.Errorf("file size must be non-negative")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO files (id, name, size_bytes, disk_name, created_at_unix_ms) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, rec.ID, rec.Name, rec.SizeBytes, rec.DiskName, rec.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	slog.Debug("file record created", "file_id", rec.ID, "size", rec.SizeBytes)
	return nil
}

// FileByID returns the file record for id, or ErrFileNotFound.
func (s *Store) FileByID(ctx context.Context, id string) (FileRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return FileRecord{}, fmt.Errorf("file id is required")
	}

	const q = `SELECT id, name, size_bytes, disk_name, created_at_unix_ms FROM files WHERE id = ?`

	var (
		rec       FileRecord
		createdMs int64
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(&rec.ID, &rec.Name, &rec.SizeBytes, &rec.DiskName, &createdMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FileRecord{}, ErrFileNotFound
		}
		return FileRecord{}, fmt.Errorf("query file record: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, nil
}

// ListFiles returns all file records, newest first.
func (s *Store) ListFiles(ctx context.Context) ([]FileRecord, error) {
	const q = `SELECT id, name, size_bytes, disk_name, created_at_unix_ms FROM files ORDER BY created_at_unix_ms DESC, id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query file records: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var (
			rec       FileRecord
			createdMs int64
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.SizeBytes, &rec.DiskName, &createdMs); err != nil {
			return nil, fmt.Errorf("scan file record: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
