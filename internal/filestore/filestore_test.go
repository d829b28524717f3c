package filestore

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"partyline/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	meta, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open metadata store: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })

	fs, err := New(t.TempDir(), meta)
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	return fs
}

func TestPutThenOpenRoundTrip(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	// Sizes around and across the 64 KiB transfer chunk boundary.
	for _, size := range []int{0, 1, 64 * 1024, 64*1024 + 1, 200_000} {
		payload := make([]byte, size)
		if _, err := rand.Read(payload); err != nil {
			t.Fatalf("rand: %v", err)
		}

		rec, err := fs.Put(ctx, "data.bin", int64(size), bytes.NewReader(payload))
		if err != nil {
			t.Fatalf("put %d bytes: %v", size, err)
		}
		if rec.SizeBytes != int64(size) || rec.ID == "" {
			t.Fatalf("unexpected record for %d bytes: %#v", size, rec)
		}

		res, err := fs.Open(ctx, rec.ID)
		if err != nil {
			t.Fatalf("open %s: %v", rec.ID, err)
		}
		got, err := io.ReadAll(res.File)
		_ = res.File.Close()
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("byte mismatch for size %d", size)
		}
	}
}

func TestPutTruncatedUploadLeavesNoRecord(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	// Reader ends after 10 bytes although 100 were declared.
	_, err := fs.Put(ctx, "partial.bin", 100, strings.NewReader("0123456789"))
	if err == nil {
		t.Fatal("expected truncated upload to fail")
	}

	files, err := fs.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("partial upload became visible: %#v", files)
	}

	// No stray temp or blob files either.
	entries, err := os.ReadDir(fs.rootDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty storage dir, found %d entries", len(entries))
	}
}

func TestOpenUnknownID(t *testing.T) {
	fs := newTestStore(t)

	_, err := fs.Open(context.Background(), "no-such-id")
	if !errors.Is(err, store.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestPutSanitizesFilename(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	rec, err := fs.Put(ctx, "../../etc/passwd", 2, strings.NewReader("hi"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if rec.Name != "passwd" {
		t.Fatalf("expected sanitized name, got %q", rec.Name)
	}
	// Bytes must live inside the store root under the opaque id.
	if _, err := os.Stat(filepath.Join(fs.rootDir, rec.ID)); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
}

func TestPutRejectsEmptyName(t *testing.T) {
	fs := newTestStore(t)

	if _, err := fs.Put(context.Background(), "  ", 0, strings.NewReader("")); err == nil {
		t.Fatal("expected empty name to fail")
	}
}

func TestPutAssignsDistinctIDs(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	a, err := fs.Put(ctx, "same.txt", 1, strings.NewReader("a"))
	if err != nil {
		t.Fatalf("put a: %v", err)
	}
	b, err := fs.Put(ctx, "same.txt", 1, strings.NewReader("b"))
	if err != nil {
		t.Fatalf("put b: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("expected distinct ids, both %s", a.ID)
	}
}
