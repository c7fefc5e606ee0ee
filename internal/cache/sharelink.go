package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultShareTTL is the lifetime of a freshly minted share link.
const DefaultShareTTL = 7 * 24 * time.Hour

// ShareLink grants time-bounded access to one generated photo without
// exposing the session id. The token is an opaque uuid.
type ShareLink struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	LineItemID string    `json:"lineItemId"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ShareLinkRegistry is the process-wide token table. Expired links are
// deleted lazily on access and reaped by the sweeper.
type ShareLinkRegistry struct {
	mu    sync.Mutex
	links map[string]*ShareLink
	ttl   time.Duration

	now func() time.Time
}

// NewShareLinkRegistry constructs an empty registry with the given TTL.
func NewShareLinkRegistry(ttl time.Duration) *ShareLinkRegistry {
	if ttl <= 0 {
		ttl = DefaultShareTTL
	}
	return &ShareLinkRegistry{
		links: make(map[string]*ShareLink),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Create mints a new link for one (session, line item) pair.
func (r *ShareLinkRegistry) Create(sessionID, lineItemID, url string) ShareLink {
	now := r.now()
	link := &ShareLink{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		LineItemID: lineItemID,
		URL:        url,
		CreatedAt:  now,
		ExpiresAt:  now.Add(r.ttl),
	}
	r.mu.Lock()
	r.links[link.ID] = link
	r.mu.Unlock()
	return *link
}

// Resolve returns the link for token if present and unexpired. Expired links
// are deleted on access and treated as absent.
func (r *ShareLinkRegistry) Resolve(token string) (ShareLink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[token]
	if !ok {
		return ShareLink{}, false
	}
	if r.now().After(link.ExpiresAt) {
		delete(r.links, token)
		return ShareLink{}, false
	}
	return *link, true
}

// DeleteSession removes every link referencing the session and returns the
// count removed.
func (r *ShareLinkRegistry) DeleteSession(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for token, link := range r.links {
		if link.SessionID == sessionID {
			delete(r.links, token)
			removed++
		}
	}
	return removed
}

// Sweep removes every expired link and returns the count removed.
func (r *ShareLinkRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	removed := 0
	for token, link := range r.links {
		if now.After(link.ExpiresAt) {
			delete(r.links, token)
			removed++
		}
	}
	return removed
}
