package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	ctx := context.Background()

	key, err := store.Write(ctx, "uploads/sess-1/menu.png", []byte("payload"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if key != "uploads/sess-1/menu.png" {
		t.Fatalf("unexpected key %q", key)
	}

	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected payload %q", data)
	}
}

func TestWriteRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	if _, err := store.Write(context.Background(), "../escape.txt", []byte("x")); err == nil {
		t.Fatal("expected error for traversal key")
	}
}

func TestRemoveAllClearsSessionSubtree(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Write(ctx, "uploads/sess-1/menu.png", []byte("a")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if _, err := store.Write(ctx, "uploads/sess-2/menu.png", []byte("b")); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	if err := store.RemoveAll(ctx, "uploads/sess-1"); err != nil {
		t.Fatalf("RemoveAll error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "uploads", "sess-1")); !os.IsNotExist(err) {
		t.Fatalf("expected sess-1 subtree removed, stat err: %v", err)
	}
	if _, err := store.Read(ctx, "uploads/sess-2/menu.png"); err != nil {
		t.Fatalf("unrelated session affected: %v", err)
	}
}

func TestRemoveMissingKeyIsNoError(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	if err := store.Remove(context.Background(), "uploads/none.png"); err != nil {
		t.Fatalf("Remove of missing key errored: %v", err)
	}
}
