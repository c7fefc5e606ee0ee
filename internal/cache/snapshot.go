package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"menugen/internal/domain"
)

// Entry is the cached state for one session. Timestamps marshal as RFC 3339,
// which is what the snapshot files carry on disk.
type Entry struct {
	Results      domain.ProcessingResult `json:"results"`
	Status       domain.SessionStatus    `json:"status"`
	CreatedAt    time.Time               `json:"createdAt"`
	LastAccessed time.Time               `json:"lastAccessed"`
	ExpiresAt    time.Time               `json:"expiresAt"`
}

// SnapshotStore writes one JSON document per session id. It is a write-behind
// copy of the in-memory cache, never the source of truth: expiry is always
// decided by the entry's expiresAt, not by presence on disk.
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore initializes the snapshot directory.
func NewSnapshotStore(dir string) (*SnapshotStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("cache: snapshot dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: ensure snapshot dir: %w", err)
	}
	return &SnapshotStore{dir: dir}, nil
}

// Write persists the entry for sessionID, replacing any previous snapshot.
func (s *SnapshotStore) Write(sessionID string, entry *Entry) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: marshal snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cache: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cache: replace snapshot: %w", err)
	}
	return nil
}

// Load reads the entry for sessionID. A missing snapshot yields
// fs.ErrNotExist.
func (s *SnapshotStore) Load(sessionID string) (*Entry, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("cache: read snapshot: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("cache: decode snapshot: %w", err)
	}
	return &entry, nil
}

// Remove deletes the snapshot and reports whether one existed.
func (s *SnapshotStore) Remove(sessionID string) (bool, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("cache: remove snapshot: %w", err)
	}
	return true, nil
}

func (s *SnapshotStore) path(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || sessionID == "." || sessionID == ".." || strings.ContainsAny(sessionID, "/\\") {
		return "", fmt.Errorf("cache: invalid session id %q", sessionID)
	}
	return filepath.Join(s.dir, sessionID+".json"), nil
}
