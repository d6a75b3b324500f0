package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("got %q, want %q", got, "v")
	}
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := db.Close(); err == nil {
		t.Fatalf("second close should fail")
	}
}

func TestOpenReusePreservesContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node-db")

	db, err := Open(path, OpenReuse)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Put([]byte("marker"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = Open(path, OpenReuse)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	ok, err := db.Has([]byte("marker"))
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if !ok {
		t.Fatalf("marker lost after reuse reopen")
	}
}

func TestOpenRebuildDiscardsContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node-db")

	db, err := Open(path, OpenReuse)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Put([]byte("marker"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = Open(path, OpenRebuild)
	if err != nil {
		t.Fatalf("rebuild open: %v", err)
	}
	defer db.Close()
	ok, err := db.Has([]byte("marker"))
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if ok {
		t.Fatalf("marker survived rebuild")
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/data", ""); got != filepath.Join("/data", DefaultDirName) {
		t.Fatalf("default path: got %q", got)
	}
	if got := ResolvePath("/data", "/elsewhere/db"); got != "/elsewhere/db" {
		t.Fatalf("explicit path: got %q", got)
	}
}
