package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"menugen/internal/domain"
	"menugen/internal/infra"
	"menugen/internal/storage"
)

const (
	// DefaultCapacity bounds the number of in-memory entries.
	DefaultCapacity = 100
	// DefaultTTL is the fixed expiry horizon set at save time; reads do not
	// renew it.
	DefaultTTL = 24 * time.Hour
)

// Options configures a ResultsCache.
type Options struct {
	Capacity  int
	TTL       time.Duration
	Snapshots *SnapshotStore
	Links     *ShareLinkRegistry
	Uploads   *storage.FileStore
	Logger    infra.Logger
}

// ResultsCache holds processing results per session with TTL expiry,
// eviction of the least-recently-accessed entry at capacity, and a
// write-behind disk snapshot per session. Snapshot failures degrade the cache
// to memory-only operation and are never surfaced to callers.
type ResultsCache struct {
	mu      sync.Mutex
	entries map[string]*Entry

	capacity  int
	ttl       time.Duration
	snapshots *SnapshotStore
	links     *ShareLinkRegistry
	uploads   *storage.FileStore
	logger    infra.Logger
	reload    singleflight.Group

	now func() time.Time
}

// NewResultsCache constructs the cache.
func NewResultsCache(opts Options) *ResultsCache {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &ResultsCache{
		entries:   make(map[string]*Entry),
		capacity:  opts.Capacity,
		ttl:       opts.TTL,
		snapshots: opts.Snapshots,
		links:     opts.Links,
		uploads:   opts.Uploads,
		logger:    opts.Logger,
		now:       time.Now,
	}
}

// Save stores the aggregate result for a session. The coarse status is
// derived from the result's processing state; the expiry horizon starts now.
func (c *ResultsCache) Save(ctx context.Context, sessionID string, result domain.ProcessingResult) error {
	if strings.TrimSpace(sessionID) == "" {
		return domain.ErrInvalidArgument
	}
	now := c.now()
	entry := &Entry{
		Results:      result,
		Status:       statusFor(result.ProcessingStatus),
		CreatedAt:    now,
		LastAccessed: now,
		ExpiresAt:    now.Add(c.ttl),
	}

	c.mu.Lock()
	if _, exists := c.entries[sessionID]; !exists && len(c.entries) >= c.capacity {
		c.evictLocked()
	}
	c.entries[sessionID] = entry
	snapshot := *entry
	c.mu.Unlock()

	c.persist(sessionID, &snapshot)
	return nil
}

// Get returns the session's result, reloading it from the snapshot store on a
// memory miss. Expired entries are treated as absent regardless of what the
// disk holds.
func (c *ResultsCache) Get(ctx context.Context, sessionID string) (domain.ProcessingResult, error) {
	entry, err := c.lookup(sessionID)
	if err != nil {
		return domain.ProcessingResult{}, err
	}
	return entry.Results, nil
}

// GetStatus mirrors Get but returns the status projection.
func (c *ResultsCache) GetStatus(ctx context.Context, sessionID string) (domain.SessionStatus, error) {
	entry, err := c.lookup(sessionID)
	if err != nil {
		return domain.SessionStatus{}, err
	}
	return entry.Status, nil
}

// UpdateStatus merges non-nil fields into the session's status and
// re-persists. Returns false when the session is absent.
func (c *ResultsCache) UpdateStatus(ctx context.Context, sessionID string, update domain.StatusUpdate) bool {
	c.mu.Lock()
	entry, ok := c.entries[sessionID]
	if !ok || c.now().After(entry.ExpiresAt) {
		c.mu.Unlock()
		return false
	}
	if update.State != nil {
		entry.Status.State = *update.State
	}
	if update.Progress != nil {
		entry.Status.Progress = *update.Progress
	}
	if update.Stage != nil {
		entry.Status.Stage = *update.Stage
	}
	snapshot := *entry
	c.mu.Unlock()

	c.persist(sessionID, &snapshot)
	return true
}

// DownloadURL returns the item's artifact URL annotated for browser download.
// Only successful outcomes qualify.
func (c *ResultsCache) DownloadURL(ctx context.Context, sessionID, itemID string) (string, error) {
	outcome, err := c.successfulOutcome(sessionID, itemID)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(outcome.URL)
	if err != nil {
		return "", fmt.Errorf("parse artifact url: %w", err)
	}
	q := u.Query()
	q.Set("download", "true")
	q.Set("sessionId", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ShareURL mints a share link for the item's successful outcome and returns
// its addressable path.
func (c *ResultsCache) ShareURL(ctx context.Context, sessionID, itemID string) (string, error) {
	outcome, err := c.successfulOutcome(sessionID, itemID)
	if err != nil {
		return "", err
	}
	link := c.links.Create(sessionID, itemID, outcome.URL)
	return "/share/" + link.ID, nil
}

// ResolveShareLink returns the link for token if present and unexpired.
func (c *ResultsCache) ResolveShareLink(token string) (ShareLink, bool) {
	return c.links.Resolve(token)
}

// DeleteSession removes the session everywhere: memory, snapshot, share
// links, and session-scoped uploads. It returns false only when the session
// existed in neither memory nor the snapshot store.
func (c *ResultsCache) DeleteSession(ctx context.Context, sessionID string) bool {
	c.mu.Lock()
	_, inMemory := c.entries[sessionID]
	delete(c.entries, sessionID)
	c.mu.Unlock()

	onDisk := false
	if c.snapshots != nil {
		removed, err := c.snapshots.Remove(sessionID)
		if err != nil {
			c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("cache: remove snapshot failed")
		}
		onDisk = removed
	}
	if c.links != nil {
		c.links.DeleteSession(sessionID)
	}
	if c.uploads != nil {
		if err := c.uploads.RemoveAll(ctx, "uploads/"+sessionID); err != nil {
			c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("cache: remove uploads failed")
		}
	}
	return inMemory || onDisk
}

// Info is a diagnostic snapshot of one cache entry.
type Info struct {
	SessionID    string    `json:"sessionId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
	ExpiresAt    time.Time `json:"expiresAt"`
	SizeBytes    int       `json:"sizeBytes"`
	ItemCount    int       `json:"itemCount"`
}

// GetInfo returns diagnostics for the session's entry.
func (c *ResultsCache) GetInfo(ctx context.Context, sessionID string) (Info, error) {
	entry, err := c.lookup(sessionID)
	if err != nil {
		return Info{}, err
	}
	size := 0
	if data, err := json.Marshal(entry); err == nil {
		size = len(data)
	}
	return Info{
		SessionID:    sessionID,
		CreatedAt:    entry.CreatedAt,
		LastAccessed: entry.LastAccessed,
		ExpiresAt:    entry.ExpiresAt,
		SizeBytes:    size,
		ItemCount:    len(entry.Results.ExtractedItems),
	}, nil
}

// SweepExpired removes every expired entry from memory and best-effort
// removes its snapshot. Returns the count removed. Individual failures never
// abort the sweep.
func (c *ResultsCache) SweepExpired(ctx context.Context) int {
	now := c.now()
	c.mu.Lock()
	var expired []string
	for id, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			expired = append(expired, id)
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()

	for _, id := range expired {
		if c.snapshots == nil {
			continue
		}
		if _, err := c.snapshots.Remove(id); err != nil {
			c.logger.Warn().Err(err).Str("session_id", id).Msg("cache: sweep snapshot removal failed")
		}
	}
	return len(expired)
}

// lookup finds a live entry, reloading from disk on a memory miss, and bumps
// its last-accessed time.
func (c *ResultsCache) lookup(sessionID string) (Entry, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Entry{}, domain.ErrInvalidArgument
	}
	now := c.now()

	c.mu.Lock()
	if entry, ok := c.entries[sessionID]; ok {
		if now.After(entry.ExpiresAt) {
			c.mu.Unlock()
			return Entry{}, domain.ErrSessionNotFound
		}
		entry.LastAccessed = now
		snapshot := *entry
		c.mu.Unlock()
		return snapshot, nil
	}
	c.mu.Unlock()

	if c.snapshots == nil {
		return Entry{}, domain.ErrSessionNotFound
	}
	loaded, err, _ := c.reload.Do(sessionID, func() (any, error) {
		return c.snapshots.Load(sessionID)
	})
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("cache: snapshot reload failed")
		}
		return Entry{}, domain.ErrSessionNotFound
	}
	entry := loaded.(*Entry)
	if now.After(entry.ExpiresAt) {
		// Stale snapshot; expiry always wins over presence on disk.
		return Entry{}, domain.ErrSessionNotFound
	}

	c.mu.Lock()
	if existing, ok := c.entries[sessionID]; ok {
		existing.LastAccessed = now
		snapshot := *existing
		c.mu.Unlock()
		return snapshot, nil
	}
	if len(c.entries) >= c.capacity {
		c.evictLocked()
	}
	repopulated := *entry
	repopulated.LastAccessed = now
	c.entries[sessionID] = &repopulated
	snapshot := repopulated
	c.mu.Unlock()
	return snapshot, nil
}

func (c *ResultsCache) successfulOutcome(sessionID, itemID string) (domain.GenerationOutcome, error) {
	if strings.TrimSpace(itemID) == "" {
		return domain.GenerationOutcome{}, domain.ErrInvalidArgument
	}
	entry, err := c.lookup(sessionID)
	if err != nil {
		return domain.GenerationOutcome{}, err
	}
	for _, outcome := range entry.Results.GeneratedImages {
		if outcome.LineItemID == itemID && outcome.Status == domain.OutcomeSuccess {
			return outcome, nil
		}
	}
	return domain.GenerationOutcome{}, domain.ErrItemNotFound
}

// evictLocked drops the entry with the oldest last access. Its snapshot is
// kept; the entry can still be reloaded until it expires.
func (c *ResultsCache) evictLocked() {
	victim := ""
	var oldest time.Time
	for id, entry := range c.entries {
		if victim == "" || entry.LastAccessed.Before(oldest) {
			victim = id
			oldest = entry.LastAccessed
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.logger.Debug().Str("session_id", victim).Msg("cache: evicted least-recently-accessed entry")
	}
}

func (c *ResultsCache) persist(sessionID string, entry *Entry) {
	if c.snapshots == nil {
		return
	}
	if err := c.snapshots.Write(sessionID, entry); err != nil {
		c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("cache: persist snapshot failed")
	}
}

func statusFor(state domain.ProcessingState) domain.SessionStatus {
	switch state {
	case domain.ProcessingCompleted:
		return domain.SessionStatus{State: state, Progress: 100, Stage: "Processing complete"}
	case domain.ProcessingFailed:
		return domain.SessionStatus{State: state, Progress: 0, Stage: "Processing failed"}
	case domain.ProcessingPending:
		return domain.SessionStatus{State: state, Progress: 0, Stage: "Waiting to start"}
	default:
		return domain.SessionStatus{State: state, Progress: 0, Stage: "Generating dish photos"}
	}
}
