// Package filestore coordinates uploaded file bytes on disk with metadata
// rows in sqlite. Bytes land in a temp file first and are renamed into place
// only after the full declared size arrived, so a partial upload can never
// surface as a completed record.
package filestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"partyline/internal/store"
)

// Store owns the on-disk directory of uploaded files.
type Store struct {
	rootDir string
	meta    *store.Store
}

// OpenResult is a file record plus its opened on-disk stream.
type OpenResult struct {
	Record store.FileRecord
	File   *os.File
}

// New creates a file store rooted at rootDir.
func New(rootDir string, meta *store.Store) (*Store, error) {
	rootDir = strings.TrimSpace(rootDir)
	if rootDir == "" {
		return nil, fmt.Errorf("file store directory is required")
	}
	if meta == nil {
		return nil, fmt.Errorf("sqlite metadata store is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create file store directory: %w", err)
	}
	slog.Debug("file store initialized", "dir", rootDir)
	return &Store{rootDir: rootDir, meta: meta}, nil
}

// Put reads exactly size bytes from r, persists them under a fresh
// server-generated identifier, and commits the record. A short read or I/O
// failure discards the partial bytes and returns an error without
// committing anything.
func (s *Store) Put(ctx context.Context, originalName string, size int64, r io.Reader) (store.FileRecord, error) {
	originalName = sanitizeName(originalName)
	if originalName == "" {
		return store.FileRecord{}, fmt.Errorf("file name is required")
	}
	if size < 0 {
		return store.FileRecord{}, fmt.Errorf("declared size must be non-negative")
	}

	id := uuid.NewString()

	tempFile, err := os.CreateTemp(s.rootDir, ".upload-*")
	if err != nil {
		return store.FileRecord{}, fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	written, copyErr := io.Copy(tempFile, io.LimitReader(r, size))
	closeErr := tempFile.Close()
	if copyErr != nil {
		_ = os.Remove(tempPath)
		return store.FileRecord{}, fmt.Errorf("write file bytes: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tempPath)
		return store.FileRecord{}, fmt.Errorf("close file: %w", closeErr)
	}
	if written != size {
		_ = os.Remove(tempPath)
		return store.FileRecord{}, fmt.Errorf("upload truncated: declared %d bytes, received %d", size, written)
	}

	finalPath := filepath.Join(s.rootDir, id)
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return store.FileRecord{}, fmt.Errorf("move file into place: %w", err)
	}

	rec := store.FileRecord{
		ID:        id,
		Name:      originalName,
		SizeBytes: size,
		DiskName:  id,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.meta.CreateFile(ctx, rec); err != nil {
		_ = os.Remove(finalPath)
		return store.FileRecord{}, fmt.Errorf("persist file record: %w", err)
	}

	slog.Info("file stored", "file_id", id, "name", originalName, "size", size)
	return rec, nil
}

// Open resolves a record and opens its on-disk bytes for streaming. The
// caller closes the file. Returns store.ErrFileNotFound for unknown ids.
func (s *Store) Open(ctx context.Context, id string) (OpenResult, error) {
	rec, err := s.meta.FileByID(ctx, id)
	if err != nil {
		return OpenResult{}, err
	}

	path := filepath.Join(s.rootDir, rec.DiskName)
	f, err := os.Open(path)
	if err != nil {
		slog.Error("stored file open failed", "file_id", id, "path", path, "err", err)
		return OpenResult{}, fmt.Errorf("open stored file: %w", err)
	}
	return OpenResult{Record: rec, File: f}, nil
}

// List returns all committed records, newest first.
func (s *Store) List(ctx context.Context) ([]store.FileRecord, error) {
	return s.meta.ListFiles(ctx)
}

// sanitizeName strips any path components a client smuggles into a filename.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = filepath.Base(filepath.ToSlash(name))
	if name == "." || name == string(filepath.Separator) || name == "/" {
		return ""
	}
	return name
}
