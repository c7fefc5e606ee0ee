package cache

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"menugen/internal/domain"
	"menugen/internal/storage"
)

func testResult(state domain.ProcessingState) domain.ProcessingResult {
	return domain.ProcessingResult{
		OriginalImage: "uploads/sess/menu.png",
		ExtractedItems: []domain.LineItem{
			{ID: "item-1", Name: "Nasi Goreng", Price: "25000", Category: "mains"},
			{ID: "item-2", Name: "Es Teh", Price: "5000", Category: "drinks"},
		},
		GeneratedImages: []domain.GenerationOutcome{
			{URL: "http://localhost:8080/static/generated/items/m/dish-1.png", LineItemID: "item-1", Status: domain.OutcomeSuccess},
			{LineItemID: "item-2", Status: domain.OutcomeFailed, ErrorMessage: "Max retries exceeded"},
		},
		ProcessingStatus: state,
	}
}

func newTestCache(t *testing.T, opts Options) *ResultsCache {
	t.Helper()
	if opts.Snapshots == nil {
		snapshots, err := NewSnapshotStore(t.TempDir())
		if err != nil {
			t.Fatalf("snapshot store: %v", err)
		}
		opts.Snapshots = snapshots
	}
	if opts.Links == nil {
		opts.Links = NewShareLinkRegistry(time.Hour)
	}
	opts.Logger = zerolog.Nop()
	return NewResultsCache(opts)
}

func TestCacheSaveAndGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, Options{})

	saved := testResult(domain.ProcessingInProgress)
	if err := c.Save(ctx, "sess", saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := c.Get(ctx, "sess")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got, saved) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, saved)
	}

	status, err := c.GetStatus(ctx, "sess")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.State != domain.ProcessingInProgress || status.Progress != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestCacheStatusProjection(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, Options{})

	if err := c.Save(ctx, "sess", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	status, err := c.GetStatus(ctx, "sess")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Progress != 100 || status.Stage != "Processing complete" {
		t.Fatalf("completed projection wrong: %+v", status)
	}
}

func TestCacheUnknownSession(t *testing.T) {
	c := newTestCache(t, Options{})
	if _, err := c.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("got %v, want ErrSessionNotFound", err)
	}
	if _, err := c.Get(context.Background(), "  "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("blank id: got %v, want ErrInvalidArgument", err)
	}
}

func TestCacheReloadsFromSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	snapshots, err := NewSnapshotStore(dir)
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}

	first := newTestCache(t, Options{Snapshots: snapshots})
	saved := testResult(domain.ProcessingCompleted)
	if err := first.Save(ctx, "sess", saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh cache over the same directory simulates a restart.
	second := newTestCache(t, Options{Snapshots: snapshots})
	got, err := second.Get(ctx, "sess")
	if err != nil {
		t.Fatalf("Get after restart: %v", err)
	}
	if !reflect.DeepEqual(got, saved) {
		t.Fatalf("snapshot reload mismatch:\n got %+v\nwant %+v", got, saved)
	}
}

func TestCacheExpiryWinsOverSnapshot(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, Options{TTL: time.Hour})

	current := time.Now()
	c.now = func() time.Time { return current }

	if err := c.Save(ctx, "sess", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	current = current.Add(2 * time.Hour)

	// Expired in memory.
	if _, err := c.Get(ctx, "sess"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expired in-memory entry served: %v", err)
	}

	// Expired on disk: drop the memory entry and force a reload.
	c.mu.Lock()
	delete(c.entries, "sess")
	c.mu.Unlock()
	if _, err := c.Get(ctx, "sess"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("stale snapshot served: %v", err)
	}

	// Reads never renew expiry, so a fresh save is the only way back.
	if err := c.Save(ctx, "sess", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	if _, err := c.Get(ctx, "sess"); err != nil {
		t.Fatalf("Get after re-save: %v", err)
	}
}

func TestCacheEvictsLeastRecentlyAccessed(t *testing.T) {
	ctx := context.Background()
	c := NewResultsCache(Options{Capacity: 2, Logger: zerolog.Nop()})

	current := time.Now()
	c.now = func() time.Time { return current }

	if err := c.Save(ctx, "a", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("Save a: %v", err)
	}
	current = current.Add(time.Minute)
	if err := c.Save(ctx, "b", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("Save b: %v", err)
	}

	// Touch a so b becomes the eviction victim.
	current = current.Add(time.Minute)
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatalf("Get a: %v", err)
	}

	current = current.Add(time.Minute)
	if err := c.Save(ctx, "c", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("Save c: %v", err)
	}

	// No snapshot store here, so eviction is observable as absence.
	if _, err := c.Get(ctx, "b"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("b should have been evicted, got %v", err)
	}
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatalf("a evicted instead of b: %v", err)
	}
	if _, err := c.Get(ctx, "c"); err != nil {
		t.Fatalf("c missing: %v", err)
	}
}

func TestCacheEvictionKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	snapshots, err := NewSnapshotStore(t.TempDir())
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}
	c := newTestCache(t, Options{Capacity: 1, Snapshots: snapshots})

	if err := c.Save(ctx, "a", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("Save a: %v", err)
	}
	if err := c.Save(ctx, "b", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("Save b: %v", err)
	}

	// a was evicted from memory but its snapshot still reloads until expiry.
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatalf("evicted entry did not reload from snapshot: %v", err)
	}
}

func TestCacheUpdateStatus(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, Options{})

	if err := c.Save(ctx, "sess", testResult(domain.ProcessingInProgress)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	progress := 40
	stage := "Generating dish photos (2/5)"
	if !c.UpdateStatus(ctx, "sess", domain.StatusUpdate{Progress: &progress, Stage: &stage}) {
		t.Fatalf("UpdateStatus returned false for live session")
	}

	status, err := c.GetStatus(ctx, "sess")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Progress != 40 || status.Stage != stage {
		t.Fatalf("partial update not applied: %+v", status)
	}
	if status.State != domain.ProcessingInProgress {
		t.Fatalf("untouched field changed: %+v", status)
	}

	if c.UpdateStatus(ctx, "missing", domain.StatusUpdate{Progress: &progress}) {
		t.Fatalf("UpdateStatus returned true for unknown session")
	}
}

func TestCacheDeleteSession(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	snapshots, err := NewSnapshotStore(t.TempDir())
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}
	links := NewShareLinkRegistry(time.Hour)
	c := newTestCache(t, Options{Snapshots: snapshots, Links: links, Uploads: store})

	if _, err := store.Write(ctx, "uploads/sess/menu.png", []byte("img")); err != nil {
		t.Fatalf("seed upload: %v", err)
	}
	if err := c.Save(ctx, "sess", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := c.ShareURL(ctx, "sess", "item-1"); err != nil {
		t.Fatalf("ShareURL: %v", err)
	}

	if !c.DeleteSession(ctx, "sess") {
		t.Fatalf("DeleteSession returned false")
	}
	if c.DeleteSession(ctx, "sess") {
		t.Fatalf("second delete should return false")
	}
	if _, err := c.Get(ctx, "sess"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("deleted session still served: %v", err)
	}
	if _, err := snapshots.Load("sess"); err == nil {
		t.Fatalf("snapshot survived delete")
	}
	if _, err := store.Read(ctx, "uploads/sess/menu.png"); err == nil {
		t.Fatalf("upload survived delete")
	}
	if n := links.DeleteSession("sess"); n != 0 {
		t.Fatalf("share links survived delete: %d", n)
	}
}

func TestCacheDownloadURL(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, Options{})

	if err := c.Save(ctx, "sess", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	url, err := c.DownloadURL(ctx, "sess", "item-1")
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	if !strings.Contains(url, "download=true") || !strings.Contains(url, "sessionId=sess") {
		t.Fatalf("url missing download annotations: %s", url)
	}

	// item-2 only has a failed outcome.
	if _, err := c.DownloadURL(ctx, "sess", "item-2"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("failed-only item: got %v, want ErrItemNotFound", err)
	}
	if _, err := c.DownloadURL(ctx, "sess", "ghost"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("unknown item: got %v, want ErrItemNotFound", err)
	}
}

func TestCacheShareURL(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, Options{})

	if err := c.Save(ctx, "sess", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	shareURL, err := c.ShareURL(ctx, "sess", "item-1")
	if err != nil {
		t.Fatalf("ShareURL: %v", err)
	}
	if !strings.HasPrefix(shareURL, "/share/") {
		t.Fatalf("unexpected share path: %s", shareURL)
	}

	token := strings.TrimPrefix(shareURL, "/share/")
	link, ok := c.ResolveShareLink(token)
	if !ok {
		t.Fatalf("minted link did not resolve")
	}
	if link.SessionID != "sess" || link.LineItemID != "item-1" {
		t.Fatalf("link points elsewhere: %+v", link)
	}
	if link.URL == "" {
		t.Fatalf("link has no artifact url")
	}

	if _, err := c.ShareURL(ctx, "sess", "item-2"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("failed-only item sharable: %v", err)
	}
}

func TestCacheGetInfo(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, Options{})

	if err := c.Save(ctx, "sess", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := c.GetInfo(ctx, "sess")
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.SessionID != "sess" || info.ItemCount != 2 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.SizeBytes <= 0 {
		t.Fatalf("size not measured: %+v", info)
	}
	if !info.ExpiresAt.After(info.CreatedAt) {
		t.Fatalf("expiry not after creation: %+v", info)
	}
}

func TestCacheSweepExpired(t *testing.T) {
	ctx := context.Background()
	snapshots, err := NewSnapshotStore(t.TempDir())
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}
	c := newTestCache(t, Options{TTL: time.Hour, Snapshots: snapshots})

	current := time.Now()
	c.now = func() time.Time { return current }

	if err := c.Save(ctx, "old", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("Save old: %v", err)
	}
	current = current.Add(30 * time.Minute)
	if err := c.Save(ctx, "fresh", testResult(domain.ProcessingCompleted)); err != nil {
		t.Fatalf("Save fresh: %v", err)
	}
	current = current.Add(45 * time.Minute)

	if removed := c.SweepExpired(ctx); removed != 1 {
		t.Fatalf("swept %d entries, want 1", removed)
	}
	if _, err := c.Get(ctx, "old"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("swept entry still served: %v", err)
	}
	if _, err := snapshots.Load("old"); err == nil {
		t.Fatalf("swept snapshot still on disk")
	}
	if _, err := c.Get(ctx, "fresh"); err != nil {
		t.Fatalf("live entry swept: %v", err)
	}
}
